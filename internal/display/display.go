// Package display carries progress and timer text from the session engine to
// whatever surface renders it. The engine only knows slot names; a slot
// nobody listens to is not an error.
package display

import (
	"fmt"
	"sync"
)

// Slot names published by the session controller.
const (
	SlotProgress      = "progress"
	SlotTimer         = "timer"
	SlotQuestionTimer = "question-timer"
)

// Update is one piece of text pushed to a named slot.
type Update struct {
	Slot   string
	Text   string
	Danger bool // true inside a countdown's warning window
}

// Sink receives display updates. Implementations must not block for long;
// they are called from the controller's event loop.
type Sink interface {
	Publish(u Update)
}

// SectionSlot returns the section-scoped variant of a slot, e.g.
// "reading-progress".
func SectionSlot(section, slot string) string {
	return fmt.Sprintf("%s-%s", section, slot)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(Update) {}

// Multi fans every update out to all sinks in order.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Publish(u Update) {
	for _, s := range m {
		s.Publish(u)
	}
}

// Memory keeps the latest value of every slot plus a per-slot history.
// It is safe for concurrent use; the TUI reads it while the controller writes.
type Memory struct {
	mu      sync.RWMutex
	latest  map[string]Update
	history map[string][]string
}

// NewMemory creates an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{
		latest:  make(map[string]Update),
		history: make(map[string][]string),
	}
}

func (m *Memory) Publish(u Update) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[u.Slot] = u
	h := m.history[u.Slot]
	if len(h) == 0 || h[len(h)-1] != u.Text {
		m.history[u.Slot] = append(h, u.Text)
	}
}

// Get returns the latest update for slot.
func (m *Memory) Get(slot string) (Update, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.latest[slot]
	return u, ok
}

// Text returns the latest text for slot, or "" if nothing was published.
func (m *Memory) Text(slot string) string {
	u, _ := m.Get(slot)
	return u.Text
}

// History returns the distinct consecutive texts published to slot.
func (m *Memory) History(slot string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.history[slot]))
	copy(out, m.history[slot])
	return out
}

// Clear removes a slot, used when a countdown is torn down.
func (m *Memory) Clear(slot string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.latest, slot)
}
