package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/examrun/internal/display"
	"github.com/abhisek/examrun/internal/module"
)

const waitFor = 2 * time.Second

// fakeClock hands out tickers the test fires by hand. Every ticker created
// is also sent on created, in creation order.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	created chan *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		created: make(chan *fakeTicker, 64),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{clock: c, c: make(chan time.Time)}
	c.created <- t
	return t
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// fireTimers runs every pending AfterFunc callback that was not stopped.
func (c *fakeClock) fireTimers() int {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()

	n := 0
	for _, t := range timers {
		if t.fire() {
			n++
		}
	}
	return n
}

// nextTicker waits for the next ticker the controller creates.
func (c *fakeClock) nextTicker(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case tk := <-c.created:
		return tk
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a ticker")
		return nil
	}
}

type fakeTicker struct {
	clock   *fakeClock
	c       chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()                  { t.stopped.Store(true) }

// fire delivers one tick and advances the clock by a second. The send is
// unbuffered, so when fire returns the event loop has taken the tick.
func (t *fakeTicker) fire(tb testing.TB) {
	tb.Helper()
	t.clock.Advance(time.Second)
	select {
	case t.c <- t.clock.Now():
	case <-time.After(waitFor):
		tb.Fatal("tick not consumed")
	}
}

func (t *fakeTicker) fireN(tb testing.TB, n int) {
	tb.Helper()
	for i := 0; i < n; i++ {
		t.fire(tb)
	}
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func (t *fakeTimer) fire() bool {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
	return true
}

// fakeComponent answers questions on demand. The test plays the learner.
type fakeComponent struct {
	spec module.ComponentSpec
	host Host
	opts Options

	// Set by the factory before Init runs.
	initErr       error
	questionTimer int

	mu      sync.Mutex
	idx     int
	answers []AnswerRecord
	retake  *AnswerRecord
	item    RetakeItem

	results   chan ComponentResult
	once      sync.Once
	submits   atomic.Int32
	cleanups  atomic.Int32
	nexts     atomic.Int32
	retakeIns atomic.Int32
}

func (f *fakeComponent) Init(context.Context) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.host.UpdateCurrentQuestion(0)
	if f.questionTimer > 0 {
		f.host.StartQuestionTimer(f.questionTimer)
	}
	return nil
}

func (f *fakeComponent) Result(ctx context.Context) (ComponentResult, error) {
	select {
	case r := <-f.results:
		return r, nil
	case <-ctx.Done():
		return ComponentResult{}, ctx.Err()
	}
}

func (f *fakeComponent) NextQuestion() bool {
	f.nexts.Add(1)
	f.mu.Lock()
	if f.idx+1 >= f.spec.QuestionsPerSet {
		f.mu.Unlock()
		return false
	}
	f.idx++
	idx := f.idx
	f.mu.Unlock()

	f.host.UpdateCurrentQuestion(idx)
	if f.questionTimer > 0 {
		f.host.StartQuestionTimer(f.questionTimer)
	}
	return true
}

func (f *fakeComponent) Submit() {
	f.submits.Add(1)
	f.finish()
}

// answer records a response for the current question.
func (f *fakeComponent) answer(response string, correct bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, AnswerRecord{
		QuestionID: fmt.Sprintf("%s-%d-q%d", f.spec.Type, f.spec.SetID, len(f.answers)+1),
		Response:   response,
		Correct:    correct,
	})
}

// finish makes Result return with the answers recorded so far.
func (f *fakeComponent) finish() {
	f.once.Do(func() {
		f.results <- ComponentResult{Answers: f.Answers()}
	})
}

func (f *fakeComponent) Answers() []AnswerRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AnswerRecord(nil), f.answers...)
}

func (f *fakeComponent) Cleanup() { f.cleanups.Add(1) }

func (f *fakeComponent) InitRetakeMode(_ context.Context, item RetakeItem) error {
	f.retakeIns.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.item = item
	f.retake = nil
	return nil
}

func (f *fakeComponent) RetakeAnswer() (AnswerRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retake == nil {
		return AnswerRecord{}, false
	}
	return *f.retake, true
}

func (f *fakeComponent) retakeWith(response string, correct bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retake = &AnswerRecord{QuestionID: fmt.Sprintf("retake-%d", f.item.GlobalNumber), Response: response, Correct: correct}
}

// harness wires a controller to a fake clock, a memory sink and a registry
// of fake components.
type harness struct {
	clock      *fakeClock
	sink       *display.Memory
	registry   Registry
	comps      chan *fakeComponent
	completed  atomic.Int32
	initErrs   map[string]error
	qTimers    map[string]int
	factoryErr map[string]error
}

func newHarness(types ...string) *harness {
	h := &harness{
		clock:      newFakeClock(),
		sink:       display.NewMemory(),
		registry:   Registry{},
		comps:      make(chan *fakeComponent, 16),
		initErrs:   map[string]error{},
		qTimers:    map[string]int{},
		factoryErr: map[string]error{},
	}
	for _, typ := range types {
		h.registry[typ] = h.factory
	}
	return h
}

func (h *harness) factory(spec module.ComponentSpec, host Host, opts Options) (Component, error) {
	if err := h.factoryErr[spec.Type]; err != nil {
		return nil, err
	}
	f := &fakeComponent{
		spec:          spec,
		host:          host,
		opts:          opts,
		initErr:       h.initErrs[spec.Type],
		questionTimer: h.qTimers[spec.Type],
		results:       make(chan ComponentResult, 1),
	}
	h.comps <- f
	return f, nil
}

func (h *harness) config() Config {
	return Config{
		Registry:   h.registry,
		Sink:       h.sink,
		Clock:      h.clock,
		Logger:     zerolog.Nop(),
		SessionID:  "test-session",
		OnComplete: func(ModuleResult) { h.completed.Add(1) },
	}
}

// next waits for the controller to construct its next component.
func (h *harness) next(t *testing.T) *fakeComponent {
	t.Helper()
	select {
	case f := <-h.comps:
		return f
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a component")
		return nil
	}
}

// ready waits until the active component has finished Init.
func ready(t *testing.T, c *Controller, f *fakeComponent) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := c.Status()
		return s.ActiveReady && s.Active == Component(f)
	}, waitFor, 5*time.Millisecond)
}

func wait(t *testing.T, c *Controller) ModuleResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	res, err := c.Wait(ctx)
	require.NoError(t, err)
	return res
}

func readingModule() *module.Descriptor {
	return &module.Descriptor{
		ModuleID:       "reading-1",
		ModuleName:     "Reading 1",
		SectionKind:    module.SectionReading,
		TotalQuestions: 7,
		Components: []module.ComponentSpec{
			{Type: "fillblanks", SetID: 1, QuestionsPerSet: 5},
			{Type: "daily1", SetID: 1, QuestionsPerSet: 2},
		},
	}
}
