// Package session runs one module attempt: it sequences components, owns the
// module and question countdowns, numbers questions across components and
// assembles the aggregated result. A second entry point, Coordinator, replays
// a finished attempt in retake mode.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abhisek/examrun/internal/display"
	"github.com/abhisek/examrun/internal/module"
)

// State is the controller's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	}
	return "idle"
}

// Config holds the controller's collaborators and policies.
type Config struct {
	// Registry maps component type tags to factories. Required.
	Registry Registry

	// Sink receives progress and timer text. Defaults to display.Discard.
	Sink display.Sink

	// Clock drives countdowns. Defaults to SystemClock().
	Clock Clock

	Logger zerolog.Logger

	// OnComplete is invoked exactly once with the final result, on the event
	// loop. Status and Wait may be called from it.
	OnComplete func(ModuleResult)

	// AllowCountMismatch starts the session even when totalQuestions does not
	// match the component sizes. The mismatch is still logged at error level.
	AllowCountMismatch bool

	// StallTimeout tears a component down if it has not reported within this
	// duration of being initialized. Zero disables the watchdog.
	StallTimeout time.Duration

	ModuleDangerSeconds   int
	QuestionDangerSeconds int

	// SessionID identifies the attempt. Generated when empty.
	SessionID string
}

// Cursor is the controller's position in the module.
type Cursor struct {
	ComponentIndex int
	// AnsweredBefore counts answers reported by finished components, plus the
	// sizes of skipped ones.
	AnsweredBefore int
	// InternalIndex is the active component's own question index.
	InternalIndex int
}

// GlobalQuestionNumber is the 1-based number of the current question.
func (c Cursor) GlobalQuestionNumber() int {
	return c.AnsweredBefore + c.InternalIndex + 1
}

// Status is a consistent snapshot of a controller.
type Status struct {
	State         State
	SessionID     string
	Cursor        Cursor
	ComponentType string
	Progress      string
	Active        Component
	ActiveReady   bool // Active has finished Init
	ModuleTimer   TimerState
	QuestionTimer TimerState
	Answered      int
}

// Controller sequences the components of one module attempt. All state is
// owned by a single event-loop goroutine; every public method is safe for
// concurrent use.
type Controller struct {
	desc      *module.Descriptor
	cfg       Config
	log       zerolog.Logger
	sink      display.Sink
	clock     Clock
	sessionID string

	mbox    *mailbox
	started atomic.Bool
	done    chan struct{}

	finalMu  sync.Mutex
	finished atomic.Bool // result and final are set
	result   ModuleResult
	final    Status

	// Owned by the event loop after Start.
	ctx            context.Context
	cancel         context.CancelFunc
	state          State
	cursor         Cursor
	active         *activeComponent
	startedAt      time.Time
	moduleTimer    *Countdown
	moduleTicker   Ticker
	questionTimer  *Countdown
	questionTicker Ticker
	answers        []AnswerRecord
	results        []ComponentResult
	skipped        []ComponentRef
}

type activeComponent struct {
	index  int
	spec   module.ComponentSpec
	comp   Component
	ready  bool
	cancel context.CancelFunc
	stall  Timer
}

// New creates an idle controller for desc.
func New(desc *module.Descriptor, cfg Config) *Controller {
	if cfg.Sink == nil {
		cfg.Sink = display.Discard
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.ModuleDangerSeconds <= 0 {
		cfg.ModuleDangerSeconds = DefaultModuleDangerSeconds
	}
	if cfg.QuestionDangerSeconds <= 0 {
		cfg.QuestionDangerSeconds = DefaultQuestionDangerSeconds
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	}

	d := *desc
	d.Components = append([]module.ComponentSpec(nil), desc.Components...)

	return &Controller{
		desc:          &d,
		cfg:           cfg,
		sessionID:     cfg.SessionID,
		log:           cfg.Logger.With().Str("component", "session").Str("session_id", cfg.SessionID).Str("module_id", d.ModuleID).Logger(),
		sink:          cfg.Sink,
		clock:         cfg.Clock,
		mbox:          newMailbox(),
		done:          make(chan struct{}),
		moduleTimer:   NewCountdown(cfg.ModuleDangerSeconds),
		questionTimer: NewCountdown(cfg.QuestionDangerSeconds),
	}
}

// SessionID returns the attempt's identifier.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Descriptor returns the controller's copy of the module descriptor.
func (c *Controller) Descriptor() *module.Descriptor {
	return c.desc
}

// Start validates the descriptor, starts the module timer for timed sections
// and initializes the first component. It returns immediately; the attempt
// runs until every component reports, the module timer expires, Quit is
// called or ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	if c.started.Load() {
		return ErrAlreadyStarted
	}

	if err := module.Validate(c.desc); err != nil {
		c.log.Error().Err(err).Msg("invalid module descriptor")
		return err
	}
	if err := module.CheckQuestionCount(c.desc); err != nil {
		c.log.Error().Err(err).
			Int("declared", c.desc.TotalQuestions).
			Int("computed", c.desc.ComputedTotal()).
			Bool("allowed", c.cfg.AllowCountMismatch).
			Msg("QUESTION COUNT MISMATCH in module descriptor")
		if !c.cfg.AllowCountMismatch {
			return err
		}
	}

	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.state = StateRunning
	c.startedAt = c.clock.Now()

	if c.desc.Timed() {
		c.moduleTimer.Start(*c.desc.TimeLimitSeconds)
		c.moduleTicker = c.clock.NewTicker(time.Second)
		c.publishModuleTimer()
	}

	c.log.Info().
		Str("section", string(c.desc.SectionKind)).
		Int("components", len(c.desc.Components)).
		Int("total_questions", c.desc.TotalQuestions).
		Bool("timed", c.desc.Timed()).
		Msg("session started")

	go c.run()
	return nil
}

// Wait blocks until the attempt completes and returns its result.
func (c *Controller) Wait(ctx context.Context) (ModuleResult, error) {
	if !c.started.Load() {
		return ModuleResult{}, ErrNotStarted
	}
	if c.finished.Load() {
		return c.finalResult(), nil
	}
	select {
	case <-c.done:
		return c.finalResult(), nil
	case <-ctx.Done():
		return ModuleResult{}, ctx.Err()
	}
}

// Done is closed once the result is available.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Status returns a snapshot taken on the event loop, so it reflects every
// event posted before the call.
func (c *Controller) Status() Status {
	if !c.started.Load() {
		return Status{State: StateIdle, SessionID: c.sessionID}
	}
	if c.finished.Load() {
		return c.finalStatus()
	}
	reply := make(chan Status, 1)
	c.mbox.post(statusRequested{reply: reply})
	select {
	case s := <-reply:
		return s
	case <-c.done:
		return c.finalStatus()
	}
}

func (c *Controller) finalResult() ModuleResult {
	c.finalMu.Lock()
	defer c.finalMu.Unlock()
	return c.result.Clone()
}

func (c *Controller) finalStatus() Status {
	c.finalMu.Lock()
	defer c.finalMu.Unlock()
	return c.final
}

// Quit ends the attempt early. Answers collected so far are kept.
func (c *Controller) Quit() {
	if c.started.Load() {
		c.mbox.post(quitRequested{})
	}
}

func (c *Controller) run() {
	c.initComponent(0)

	for c.state != StateCompleted {
		select {
		case <-c.mbox.wake:
			for _, ev := range c.mbox.drain() {
				ev.apply(c)
			}
		case <-tickerChan(c.moduleTicker):
			c.onModuleTick()
		case <-tickerChan(c.questionTicker):
			c.onQuestionTick()
		case <-c.ctx.Done():
			c.log.Warn().Err(c.ctx.Err()).Msg("session context cancelled")
			c.teardownActive(false)
			c.complete(false, true)
		}
	}

	// Answer anything queued while completing.
	for _, ev := range c.mbox.drain() {
		ev.apply(c)
	}
}

func tickerChan(t Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

// initComponent activates the first usable component at or after i, or
// completes the attempt when none is left.
func (c *Controller) initComponent(i int) {
	for ; i < len(c.desc.Components); i++ {
		spec := c.desc.Components[i]
		c.cursor.ComponentIndex = i
		c.cursor.InternalIndex = 0

		factory, ok := c.cfg.Registry.Lookup(spec.Type)
		if !ok {
			c.log.Error().Int("index", i).Str("type", spec.Type).Int("set_id", spec.SetID).
				Msg("unknown component type, skipping")
			c.skip(i, spec, "unknown component type")
			continue
		}

		host := &componentHost{mbox: c.mbox, index: i}
		comp, err := factory(spec, host, Options{
			StartQuestionNumber:  c.desc.StartQuestionNumber(i),
			TotalModuleQuestions: c.desc.TotalQuestions,
			QuestionsPerSet:      spec.QuestionsPerSet,
			SectionKind:          c.desc.SectionKind,
		})
		if err != nil {
			c.log.Error().Err(err).Int("index", i).Str("type", spec.Type).Msg("construct component, skipping")
			c.skip(i, spec, "construct: "+err.Error())
			continue
		}

		ctx, cancel := context.WithCancel(c.ctx)
		c.active = &activeComponent{index: i, spec: spec, comp: comp, cancel: cancel}
		c.publishProgress()

		if c.cfg.StallTimeout > 0 {
			idx := i
			c.active.stall = c.clock.AfterFunc(c.cfg.StallTimeout, func() {
				c.mbox.post(componentStalled{index: idx})
			})
		}

		c.log.Debug().Int("index", i).Str("type", spec.Type).Int("set_id", spec.SetID).Msg("component initializing")
		go runComponent(ctx, c.mbox, i, comp)
		return
	}

	c.complete(false, false)
}

// runComponent owns the blocking half of a component's lifecycle.
func runComponent(ctx context.Context, mbox *mailbox, index int, comp Component) {
	if err := comp.Init(ctx); err != nil {
		mbox.post(componentReady{index: index, err: err})
		return
	}
	mbox.post(componentReady{index: index})

	res, err := comp.Result(ctx)
	mbox.post(componentDone{index: index, result: res, err: err})
}

func (c *Controller) skip(i int, spec module.ComponentSpec, reason string) {
	c.skipped = append(c.skipped, ComponentRef{Index: i, Type: spec.Type, SetID: spec.SetID, Reason: reason})
	c.cursor.AnsweredBefore += spec.QuestionsPerSet
}

// isActive reports whether index names the live component.
func (c *Controller) isActive(index int) bool {
	return c.state == StateRunning && c.active != nil && c.active.index == index
}

func (c *Controller) onComponentReady(ev componentReady) {
	if !c.isActive(ev.index) {
		return
	}
	if ev.err != nil {
		a := c.active
		c.log.Error().Err(ev.err).Int("index", a.index).Str("type", a.spec.Type).Msg("component init failed, skipping")
		c.releaseActive()
		a.comp.Cleanup()
		c.skip(a.index, a.spec, "init: "+ev.err.Error())
		c.initComponent(a.index + 1)
		return
	}
	c.active.ready = true
}

func (c *Controller) onComponentDone(ev componentDone) {
	if !c.isActive(ev.index) {
		c.log.Debug().Int("index", ev.index).Msg("dropping result from inactive component")
		return
	}
	a := c.active
	res := ev.result
	if ev.err != nil {
		c.log.Error().Err(ev.err).Int("index", a.index).Msg("component failed, keeping partial answers")
		res = ComponentResult{Answers: a.comp.Answers(), Partial: true}
	}
	c.onComponentComplete(res)
}

// onComponentComplete stores the active component's result and advances.
func (c *Controller) onComponentComplete(res ComponentResult) {
	a := c.active
	c.releaseActive()

	answers := cloneAnswers(res.Answers)
	c.answers = append(c.answers, answers...)
	c.cursor.AnsweredBefore += len(answers)
	c.results = append(c.results, ComponentResult{
		Index:   a.index,
		Type:    a.spec.Type,
		SetID:   a.spec.SetID,
		Answers: answers,
		Partial: res.Partial,
	})

	c.log.Info().Int("index", a.index).Str("type", a.spec.Type).Int("answers", len(answers)).Msg("component completed")
	c.initComponent(a.index + 1)
}

// releaseActive detaches the active component and everything it owned on
// the controller side.
func (c *Controller) releaseActive() {
	a := c.active
	if a == nil {
		return
	}
	if a.stall != nil {
		a.stall.Stop()
	}
	a.cancel()
	c.stopQuestionTimer()
	c.active = nil
}

// teardownActive forcibly ends the active component, keeping whatever it
// has answered.
func (c *Controller) teardownActive(stalled bool) {
	a := c.active
	if a == nil {
		return
	}
	partial := cloneAnswers(a.comp.Answers())
	a.comp.Cleanup()
	c.releaseActive()

	c.answers = append(c.answers, partial...)
	c.cursor.AnsweredBefore += len(partial)
	c.results = append(c.results, ComponentResult{
		Index:   a.index,
		Type:    a.spec.Type,
		SetID:   a.spec.SetID,
		Answers: partial,
		Partial: true,
		Stalled: stalled,
	})
}

func (c *Controller) onStalled(ev componentStalled) {
	if !c.isActive(ev.index) {
		return
	}
	c.log.Error().Int("index", ev.index).Str("type", c.active.spec.Type).
		Dur("stall_timeout", c.cfg.StallTimeout).Msg("component stalled, tearing down")
	c.teardownActive(true)
	c.initComponent(ev.index + 1)
}

func (c *Controller) onModuleTick() {
	expired := c.moduleTimer.Tick()
	c.publishModuleTimer()
	if !expired {
		return
	}
	c.log.Warn().Int("component_index", c.cursor.ComponentIndex).Msg("module time limit reached")
	c.teardownActive(false)
	c.complete(true, false)
}

func (c *Controller) onQuestionTick() {
	expired := c.questionTimer.Tick()
	c.publishQuestionTimer()
	if !expired {
		return
	}
	c.stopQuestionTicker()
	if c.active == nil {
		return
	}
	if c.active.comp.NextQuestion() {
		c.log.Debug().Int("index", c.active.index).Msg("question timer expired, advanced")
		return
	}
	c.log.Debug().Int("index", c.active.index).Msg("question timer expired on last question, submitting")
	c.active.comp.Submit()
}

func (c *Controller) onProgressMoved(ev progressMoved) {
	if !c.isActive(ev.index) {
		return
	}
	c.cursor.InternalIndex = ev.internalIndex
	c.publishProgress()
}

func (c *Controller) onQuestionTimer(ev questionTimerRequested) {
	if !c.isActive(ev.index) {
		return
	}
	switch ev.op {
	case timerStart:
		c.stopQuestionTicker()
		c.questionTimer.Start(ev.seconds)
		if c.questionTimer.Running() {
			c.questionTicker = c.clock.NewTicker(time.Second)
		}
	case timerPause:
		c.stopQuestionTicker()
		c.questionTimer.Pause()
	case timerResume:
		c.stopQuestionTicker()
		if c.questionTimer.Resume() {
			c.questionTicker = c.clock.NewTicker(time.Second)
		}
	case timerStop:
		c.stopQuestionTimer()
		return
	}
	c.publishQuestionTimer()
}

func (c *Controller) onQuit() {
	if c.state != StateRunning {
		return
	}
	c.log.Info().Msg("session quit by learner")
	c.teardownActive(false)
	c.complete(false, true)
}

func (c *Controller) stopQuestionTicker() {
	if c.questionTicker != nil {
		c.questionTicker.Stop()
		c.questionTicker = nil
	}
}

func (c *Controller) stopQuestionTimer() {
	wasSet := c.questionTimer.State().DurationSeconds > 0
	c.stopQuestionTicker()
	c.questionTimer.Clear()
	if wasSet {
		c.sink.Publish(display.Update{Slot: display.SlotQuestionTimer})
	}
}

// complete assembles the result. Terminal; later calls are no-ops.
func (c *Controller) complete(timedOut, aborted bool) {
	if c.state == StateCompleted {
		return
	}
	if c.moduleTicker != nil {
		c.moduleTicker.Stop()
		c.moduleTicker = nil
	}
	c.moduleTimer.Stop()
	c.stopQuestionTimer()
	c.state = StateCompleted

	now := c.clock.Now()
	res := ModuleResult{
		SessionID:          c.sessionID,
		ModuleID:           c.desc.ModuleID,
		ModuleName:         c.desc.ModuleName,
		SectionKind:        c.desc.SectionKind,
		TotalQuestions:     c.desc.TotalQuestions,
		AnsweredQuestions:  len(c.answers),
		Answers:            cloneAnswers(c.answers),
		ComponentResults:   append([]ComponentResult(nil), c.results...),
		SkippedComponents:  append([]ComponentRef(nil), c.skipped...),
		TimeSpentSeconds:   int(now.Sub(c.startedAt) / time.Second),
		TimedOut:           timedOut,
		Aborted:            aborted,
		CompletedAtEpochMs: now.UnixMilli(),
	}

	c.finalMu.Lock()
	c.result = res
	c.final = c.status()
	c.finalMu.Unlock()
	c.finished.Store(true)

	c.log.Info().
		Int("answered", res.AnsweredQuestions).
		Int("total", res.TotalQuestions).
		Int("time_spent_secs", res.TimeSpentSeconds).
		Bool("timed_out", timedOut).
		Bool("aborted", aborted).
		Msg("session completed")

	c.cancel()
	if c.cfg.OnComplete != nil {
		c.cfg.OnComplete(res.Clone())
	}
	close(c.done)
}

func (c *Controller) status() Status {
	s := Status{
		State:         c.state,
		SessionID:     c.sessionID,
		Cursor:        c.cursor,
		ModuleTimer:   c.moduleTimer.State(),
		QuestionTimer: c.questionTimer.State(),
		Answered:      len(c.answers),
	}
	if c.cursor.ComponentIndex < len(c.desc.Components) {
		s.ComponentType = c.desc.Components[c.cursor.ComponentIndex].Type
		s.Progress = ComputeProgress(c.desc, c.cursor.ComponentIndex, c.cursor.InternalIndex).String()
	}
	if c.active != nil {
		s.Active = c.active.comp
		s.ActiveReady = c.active.ready
	}
	return s
}

func (c *Controller) publishProgress() {
	text := ComputeProgress(c.desc, c.cursor.ComponentIndex, c.cursor.InternalIndex).String()
	c.sink.Publish(display.Update{Slot: display.SlotProgress, Text: text})
	c.sink.Publish(display.Update{Slot: display.SectionSlot(string(c.desc.SectionKind), display.SlotProgress), Text: text})
}

func (c *Controller) publishModuleTimer() {
	u := display.Update{Slot: display.SlotTimer, Text: c.moduleTimer.Display(), Danger: c.moduleTimer.Danger()}
	c.sink.Publish(u)
	u.Slot = display.SectionSlot(string(c.desc.SectionKind), display.SlotTimer)
	c.sink.Publish(u)
}

func (c *Controller) publishQuestionTimer() {
	c.sink.Publish(display.Update{
		Slot:   display.SlotQuestionTimer,
		Text:   c.questionTimer.Display(),
		Danger: c.questionTimer.Danger(),
	})
}
