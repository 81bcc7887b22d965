package session

import "sync"

// event is one input to the controller's event loop.
type event interface {
	apply(c *Controller)
}

// mailbox is an unbounded queue feeding the event loop. post never blocks,
// so a component may call its Host from inside a controller-initiated
// NextQuestion or Submit.
type mailbox struct {
	mu    sync.Mutex
	queue []event
	wake  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) post(ev event) {
	m.mu.Lock()
	m.queue = append(m.queue, ev)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

type componentReady struct {
	index int
	err   error
}

func (e componentReady) apply(c *Controller) { c.onComponentReady(e) }

type componentDone struct {
	index  int
	result ComponentResult
	err    error
}

func (e componentDone) apply(c *Controller) { c.onComponentDone(e) }

type componentStalled struct {
	index int
}

func (e componentStalled) apply(c *Controller) { c.onStalled(e) }

type progressMoved struct {
	index         int
	internalIndex int
}

func (e progressMoved) apply(c *Controller) { c.onProgressMoved(e) }

type timerOp int

const (
	timerStart timerOp = iota
	timerPause
	timerResume
	timerStop
)

type questionTimerRequested struct {
	index   int
	op      timerOp
	seconds int
}

func (e questionTimerRequested) apply(c *Controller) { c.onQuestionTimer(e) }

type quitRequested struct{}

func (quitRequested) apply(c *Controller) { c.onQuit() }

type statusRequested struct {
	reply chan Status
}

func (e statusRequested) apply(c *Controller) { e.reply <- c.status() }

// componentHost is the Host handed to one component. Requests are tagged with
// the component's index so the loop can drop them once it is no longer
// active.
type componentHost struct {
	mbox  *mailbox
	index int
}

func (h *componentHost) UpdateCurrentQuestion(internalIndex int) {
	h.mbox.post(progressMoved{index: h.index, internalIndex: internalIndex})
}

func (h *componentHost) StartQuestionTimer(seconds int) {
	h.mbox.post(questionTimerRequested{index: h.index, op: timerStart, seconds: seconds})
}

func (h *componentHost) PauseQuestionTimer() {
	h.mbox.post(questionTimerRequested{index: h.index, op: timerPause})
}

func (h *componentHost) ResumeQuestionTimer() {
	h.mbox.post(questionTimerRequested{index: h.index, op: timerResume})
}

func (h *componentHost) StopQuestionTimer() {
	h.mbox.post(questionTimerRequested{index: h.index, op: timerStop})
}
