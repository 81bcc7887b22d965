package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/examrun/internal/display"
	"github.com/abhisek/examrun/internal/module"
)

func TestController_NaturalCompletion(t *testing.T) {
	h := newHarness("fillblanks", "daily1")
	c := New(readingModule(), h.config())
	require.NoError(t, c.Start(context.Background()))

	fb := h.next(t)
	ready(t, c, fb)
	assert.Equal(t, "Questions 1-5 of 7", h.sink.Text(display.SlotProgress))
	assert.Equal(t, "Questions 1-5 of 7", h.sink.Text("reading-progress"))
	assert.Equal(t, 1, fb.opts.StartQuestionNumber)
	assert.Equal(t, 7, fb.opts.TotalModuleQuestions)

	for i := 0; i < 5; i++ {
		fb.answer("word", i%2 == 0)
	}
	fb.finish()

	d1 := h.next(t)
	ready(t, c, d1)
	assert.Equal(t, "Question 6 of 7", h.sink.Text(display.SlotProgress))
	assert.Equal(t, 6, d1.opts.StartQuestionNumber)

	d1.answer("b", true)
	require.True(t, d1.NextQuestion())
	s := c.Status()
	assert.Equal(t, "Question 7 of 7", s.Progress)
	assert.Equal(t, "Question 7 of 7", h.sink.Text(display.SlotProgress))
	assert.Equal(t, 7, s.Cursor.GlobalQuestionNumber())

	d1.answer("c", false)
	d1.finish()

	res := wait(t, c)
	assert.Equal(t, 7, res.AnsweredQuestions)
	assert.False(t, res.TimedOut)
	assert.False(t, res.Aborted)
	require.Len(t, res.ComponentResults, 2)
	assert.Equal(t, "fillblanks", res.ComponentResults[0].Type)
	assert.Len(t, res.ComponentResults[0].Answers, 5)
	assert.Equal(t, 1, res.ComponentResults[1].Index)
	assert.Len(t, res.Answers, 7)
	assert.Equal(t, 4, res.CorrectCount())
	assert.Equal(t, "test-session", res.SessionID)

	assert.Equal(t,
		[]string{"Questions 1-5 of 7", "Question 6 of 7", "Question 7 of 7"},
		h.sink.History(display.SlotProgress))
	assert.EqualValues(t, 1, h.completed.Load())
	assert.EqualValues(t, 0, fb.cleanups.Load())
}

func TestController_ModuleTimeout(t *testing.T) {
	h := newHarness("listening")
	d := &module.Descriptor{
		ModuleID:         "listening-1",
		SectionKind:      module.SectionListening,
		TotalQuestions:   3,
		TimeLimitSeconds: module.Seconds(5),
		Components:       []module.ComponentSpec{{Type: "listening", SetID: 4, QuestionsPerSet: 3}},
	}
	c := New(d, h.config())
	require.NoError(t, c.Start(context.Background()))

	moduleTicker := h.clock.nextTicker(t)
	assert.Equal(t, "0:05", h.sink.Text(display.SlotTimer))

	comp := h.next(t)
	ready(t, c, comp)

	moduleTicker.fireN(t, 4)
	st := c.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, 1, st.ModuleTimer.RemainingSeconds)
	assert.Equal(t, "0:01", h.sink.Text("listening-timer"))

	moduleTicker.fire(t)

	res := wait(t, c)
	assert.True(t, res.TimedOut)
	assert.Equal(t, 0, res.AnsweredQuestions)
	assert.EqualValues(t, 1, comp.cleanups.Load())
	assert.True(t, moduleTicker.stopped.Load())
	require.Len(t, res.ComponentResults, 1)
	assert.True(t, res.ComponentResults[0].Partial)
	assert.Equal(t, 5, res.TimeSpentSeconds)
	assert.EqualValues(t, 1, h.completed.Load())

	u, ok := h.sink.Get(display.SlotTimer)
	require.True(t, ok)
	assert.Equal(t, "0:00", u.Text)
	assert.True(t, u.Danger)
}

func TestController_ModuleTimeoutKeepsPartialAnswers(t *testing.T) {
	h := newHarness("fillblanks", "daily1")
	d := readingModule()
	d.TimeLimitSeconds = module.Seconds(3)
	c := New(d, h.config())
	require.NoError(t, c.Start(context.Background()))
	moduleTicker := h.clock.nextTicker(t)

	fb := h.next(t)
	ready(t, c, fb)
	for i := 0; i < 5; i++ {
		fb.answer("x", true)
	}
	fb.finish()

	d1 := h.next(t)
	ready(t, c, d1)
	d1.answer("a", true)

	moduleTicker.fireN(t, 3)
	res := wait(t, c)
	assert.True(t, res.TimedOut)
	assert.Equal(t, 6, res.AnsweredQuestions)
	require.Len(t, res.ComponentResults, 2)
	assert.False(t, res.ComponentResults[0].Partial)
	assert.True(t, res.ComponentResults[1].Partial)
	assert.EqualValues(t, 1, d1.cleanups.Load())
}

func TestController_QuestionTimerAdvancesThenSubmitsOnce(t *testing.T) {
	h := newHarness("listening")
	h.qTimers["listening"] = 30
	d := &module.Descriptor{
		ModuleID:       "listening-2",
		SectionKind:    module.SectionListening,
		TotalQuestions: 2,
		Components:     []module.ComponentSpec{{Type: "listening", SetID: 1, QuestionsPerSet: 2}},
	}
	c := New(d, h.config())
	require.NoError(t, c.Start(context.Background()))

	comp := h.next(t)
	q1 := h.clock.nextTicker(t)
	ready(t, c, comp)
	assert.Equal(t, "0:30", h.sink.Text(display.SlotQuestionTimer))

	q1.fireN(t, 29)
	assert.Equal(t, "0:01", h.sink.Text(display.SlotQuestionTimer))
	assert.EqualValues(t, 0, comp.nexts.Load())

	q1.fire(t)
	q2 := h.clock.nextTicker(t)
	assert.True(t, q1.stopped.Load())
	assert.EqualValues(t, 1, comp.nexts.Load())
	assert.EqualValues(t, 0, comp.submits.Load())
	assert.Equal(t, "Question 2 of 2", c.Status().Progress)

	q2.fireN(t, 30)
	res := wait(t, c)
	assert.EqualValues(t, 1, comp.submits.Load())
	assert.EqualValues(t, 2, comp.nexts.Load())
	assert.False(t, res.TimedOut)

	u, _ := h.sink.Get(display.SlotQuestionTimer)
	assert.Equal(t, "", u.Text)
}

func TestController_QuestionTimerPauseResetsDisplay(t *testing.T) {
	h := newHarness("listening")
	h.qTimers["listening"] = 30
	d := &module.Descriptor{
		ModuleID:       "listening-3",
		SectionKind:    module.SectionListening,
		TotalQuestions: 1,
		Components:     []module.ComponentSpec{{Type: "listening", SetID: 2, QuestionsPerSet: 1}},
	}
	c := New(d, h.config())
	require.NoError(t, c.Start(context.Background()))

	comp := h.next(t)
	qt := h.clock.nextTicker(t)
	ready(t, c, comp)

	qt.fireN(t, 3)
	assert.Equal(t, 27, c.Status().QuestionTimer.RemainingSeconds)

	comp.host.PauseQuestionTimer()
	st := c.Status()
	assert.False(t, st.QuestionTimer.Running)
	assert.Equal(t, 30, st.QuestionTimer.RemainingSeconds)
	assert.Equal(t, "0:30", h.sink.Text(display.SlotQuestionTimer))
	assert.True(t, qt.stopped.Load())

	comp.host.ResumeQuestionTimer()
	resumed := h.clock.nextTicker(t)
	st = c.Status()
	assert.True(t, st.QuestionTimer.Running)
	assert.Equal(t, 30, st.QuestionTimer.RemainingSeconds)

	resumed.fire(t)
	assert.Equal(t, 29, c.Status().QuestionTimer.RemainingSeconds)

	comp.host.StopQuestionTimer()
	assert.Equal(t, TimerState{}, c.Status().QuestionTimer)

	c.Quit()
	wait(t, c)
}

func TestController_UnknownTypeIsSkipped(t *testing.T) {
	h := newHarness("daily1")
	d := &module.Descriptor{
		ModuleID:       "reading-2",
		SectionKind:    module.SectionReading,
		TotalQuestions: 5,
		Components: []module.ComponentSpec{
			{Type: "crossword", SetID: 9, QuestionsPerSet: 3},
			{Type: "daily1", SetID: 1, QuestionsPerSet: 2},
		},
	}
	c := New(d, h.config())
	require.NoError(t, c.Start(context.Background()))

	d1 := h.next(t)
	ready(t, c, d1)
	assert.Equal(t, "Question 4 of 5", c.Status().Progress)
	assert.Equal(t, 4, d1.opts.StartQuestionNumber)

	d1.answer("a", true)
	d1.answer("b", true)
	d1.finish()

	res := wait(t, c)
	assert.Equal(t, 2, res.AnsweredQuestions)
	require.Len(t, res.SkippedComponents, 1)
	assert.Equal(t, 0, res.SkippedComponents[0].Index)
	assert.Equal(t, "crossword", res.SkippedComponents[0].Type)
	require.Len(t, res.ComponentResults, 1)
	assert.Equal(t, 1, res.ComponentResults[0].Index)
}

func TestController_FactoryAndInitErrorsSkip(t *testing.T) {
	h := newHarness("fillblanks", "daily1", "daily2")
	h.factoryErr["fillblanks"] = errors.New("set 1 missing")
	h.initErrs["daily1"] = errors.New("corrupt set")
	d := &module.Descriptor{
		ModuleID:       "reading-3",
		SectionKind:    module.SectionReading,
		TotalQuestions: 9,
		Components: []module.ComponentSpec{
			{Type: "fillblanks", SetID: 1, QuestionsPerSet: 5},
			{Type: "daily1", SetID: 1, QuestionsPerSet: 2},
			{Type: "daily2", SetID: 1, QuestionsPerSet: 2},
		},
	}
	c := New(d, h.config())
	require.NoError(t, c.Start(context.Background()))

	broken := h.next(t)
	assert.Equal(t, "daily1", broken.spec.Type)

	d2 := h.next(t)
	ready(t, c, d2)
	assert.Equal(t, "Question 8 of 9", c.Status().Progress)
	assert.EqualValues(t, 1, broken.cleanups.Load())

	d2.answer("x", false)
	d2.finish()

	res := wait(t, c)
	require.Len(t, res.SkippedComponents, 2)
	assert.Contains(t, res.SkippedComponents[0].Reason, "set 1 missing")
	assert.Contains(t, res.SkippedComponents[1].Reason, "corrupt set")
	assert.Equal(t, 1, res.AnsweredQuestions)
}

func TestController_AllComponentsUnknown(t *testing.T) {
	h := newHarness()
	c := New(readingModule(), h.config())
	require.NoError(t, c.Start(context.Background()))

	res := wait(t, c)
	assert.Equal(t, 0, res.AnsweredQuestions)
	assert.Len(t, res.SkippedComponents, 2)
	assert.False(t, res.TimedOut)
}

func TestController_CountMismatch(t *testing.T) {
	t.Run("fatal by default", func(t *testing.T) {
		h := newHarness("fillblanks", "daily1")
		d := readingModule()
		d.TotalQuestions = 8

		c := New(d, h.config())
		err := c.Start(context.Background())

		var mismatch *module.CountMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 8, mismatch.Declared)
		assert.Equal(t, 7, mismatch.Computed)
		assert.Equal(t, StateIdle, c.Status().State)

		_, err = c.Wait(context.Background())
		assert.ErrorIs(t, err, ErrNotStarted)
	})

	t.Run("allowed", func(t *testing.T) {
		h := newHarness("fillblanks", "daily1")
		d := readingModule()
		d.TotalQuestions = 8
		cfg := h.config()
		cfg.AllowCountMismatch = true

		c := New(d, cfg)
		require.NoError(t, c.Start(context.Background()))
		fb := h.next(t)
		ready(t, c, fb)
		assert.Equal(t, "Questions 1-5 of 8", c.Status().Progress)
		c.Quit()
		wait(t, c)
	})
}

func TestController_InvalidDescriptor(t *testing.T) {
	h := newHarness("daily1")
	d := readingModule()
	d.Components = nil

	c := New(d, h.config())
	err := c.Start(context.Background())
	assert.ErrorIs(t, err, module.ErrNoComponents)
}

func TestController_StallWatchdog(t *testing.T) {
	h := newHarness("fillblanks", "daily1")
	cfg := h.config()
	cfg.StallTimeout = time.Minute
	c := New(readingModule(), cfg)
	require.NoError(t, c.Start(context.Background()))

	fb := h.next(t)
	ready(t, c, fb)
	fb.answer("one", true)
	fb.answer("two", false)

	assert.Equal(t, 1, h.clock.fireTimers())

	d1 := h.next(t)
	ready(t, c, d1)
	assert.EqualValues(t, 1, fb.cleanups.Load())
	assert.Equal(t, "Question 6 of 7", c.Status().Progress)

	// A late result from the torn-down component is ignored.
	fb.finish()
	d1.answer("a", true)
	d1.finish()

	res := wait(t, c)
	require.Len(t, res.ComponentResults, 2)
	assert.True(t, res.ComponentResults[0].Stalled)
	assert.True(t, res.ComponentResults[0].Partial)
	assert.Len(t, res.ComponentResults[0].Answers, 2)
	assert.Equal(t, 3, res.AnsweredQuestions)
}

func TestController_Quit(t *testing.T) {
	h := newHarness("fillblanks", "daily1")
	c := New(readingModule(), h.config())
	require.NoError(t, c.Start(context.Background()))

	fb := h.next(t)
	ready(t, c, fb)
	fb.answer("a", true)
	c.Quit()
	c.Quit()

	res := wait(t, c)
	assert.True(t, res.Aborted)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 1, res.AnsweredQuestions)
	assert.EqualValues(t, 1, fb.cleanups.Load())
	assert.EqualValues(t, 1, h.completed.Load())
	assert.Equal(t, StateCompleted, c.Status().State)
}

func TestController_OnCompleteMayQueryController(t *testing.T) {
	h := newHarness("fillblanks", "daily1")
	type seen struct {
		status Status
		result ModuleResult
		err    error
	}
	got := make(chan seen, 1)

	var c *Controller
	cfg := h.config()
	cfg.OnComplete = func(ModuleResult) {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		res, err := c.Wait(ctx)
		got <- seen{status: c.Status(), result: res, err: err}
	}
	c = New(readingModule(), cfg)
	require.NoError(t, c.Start(context.Background()))

	fb := h.next(t)
	ready(t, c, fb)
	fb.answer("a", true)
	c.Quit()

	select {
	case s := <-got:
		require.NoError(t, s.err)
		assert.Equal(t, StateCompleted, s.status.State)
		assert.True(t, s.result.Aborted)
		assert.Equal(t, 1, s.result.AnsweredQuestions)
	case <-time.After(waitFor):
		t.Fatal("completion callback blocked on the controller")
	}
	wait(t, c)
}

func TestController_ContextCancel(t *testing.T) {
	h := newHarness("fillblanks", "daily1")
	ctx, cancel := context.WithCancel(context.Background())
	c := New(readingModule(), h.config())
	require.NoError(t, c.Start(ctx))

	fb := h.next(t)
	ready(t, c, fb)
	cancel()

	res := wait(t, c)
	assert.True(t, res.Aborted)
	assert.EqualValues(t, 1, fb.cleanups.Load())
}

func TestController_StaleHostCallsIgnored(t *testing.T) {
	h := newHarness("fillblanks", "daily1")
	c := New(readingModule(), h.config())
	require.NoError(t, c.Start(context.Background()))

	fb := h.next(t)
	ready(t, c, fb)
	for i := 0; i < 5; i++ {
		fb.answer("x", true)
	}
	fb.finish()

	d1 := h.next(t)
	ready(t, c, d1)

	fb.host.UpdateCurrentQuestion(3)
	fb.host.StartQuestionTimer(20)
	st := c.Status()
	assert.Equal(t, "Question 6 of 7", st.Progress)
	assert.Equal(t, TimerState{}, st.QuestionTimer)

	c.Quit()
	wait(t, c)
}

func TestController_StartTwice(t *testing.T) {
	h := newHarness("fillblanks", "daily1")
	c := New(readingModule(), h.config())
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
	c.Quit()
	wait(t, c)
}

func TestController_DescriptorIsCopied(t *testing.T) {
	h := newHarness("fillblanks", "daily1")
	d := readingModule()
	c := New(d, h.config())
	d.Components[0].QuestionsPerSet = 99

	assert.Equal(t, 5, c.Descriptor().Components[0].QuestionsPerSet)
	assert.Equal(t, "test-session", c.SessionID())
}

func TestController_GeneratesSessionID(t *testing.T) {
	h := newHarness("fillblanks")
	cfg := h.config()
	cfg.SessionID = ""
	a := New(readingModule(), cfg)
	b := New(readingModule(), cfg)

	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}

func TestController_ResultIsolatedFromCaller(t *testing.T) {
	h := newHarness("daily1")
	d := &module.Descriptor{
		ModuleID:       "reading-4",
		SectionKind:    module.SectionReading,
		TotalQuestions: 1,
		Components:     []module.ComponentSpec{{Type: "daily1", SetID: 3, QuestionsPerSet: 1}},
	}
	c := New(d, h.config())
	require.NoError(t, c.Start(context.Background()))
	comp := h.next(t)
	ready(t, c, comp)
	comp.answer("a", true)
	comp.finish()

	first := wait(t, c)
	first.Answers[0].Response = "tampered"
	first.ComponentResults[0].Answers[0].Correct = false

	again := wait(t, c)
	assert.Equal(t, "a", again.Answers[0].Response)
	assert.True(t, again.ComponentResults[0].Answers[0].Correct)
}
