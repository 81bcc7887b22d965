package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/examrun/internal/display"
	"github.com/abhisek/examrun/internal/module"
	"github.com/abhisek/examrun/internal/questionset"
	"github.com/abhisek/examrun/internal/router"
	"github.com/abhisek/examrun/internal/screens/summary"
	"github.com/abhisek/examrun/internal/session"
)

const waitFor = 2 * time.Second

func testModule() *module.Descriptor {
	return &module.Descriptor{
		ModuleID:       "writing-1",
		ModuleName:     "Writing 1",
		SectionKind:    module.SectionWriting,
		TotalQuestions: 3,
		Components: []module.ComponentSpec{
			{Type: "daily1", SetID: 1, QuestionsPerSet: 2},
			{Type: "writing", SetID: 1, QuestionsPerSet: 1},
		},
	}
}

func testLoader() questionset.Loader {
	return questionset.NewStaticLoader(
		&questionset.Data{Type: "daily1", SetID: 1, Title: "Notices", Items: []questionset.Item{
			{ID: "d1", Prompt: "When does the shop open?", Options: []string{"8am", "9am"}, Answer: "9am"},
			{ID: "d2", Prompt: "Where is the exit?", Options: []string{"left", "right"}, Answer: "left"},
		}},
		&questionset.Data{Type: "writing", SetID: 1, Items: []questionset.Item{
			{ID: "w1", Prompt: "Describe your town."},
		}},
	)
}

type fixture struct {
	ctrl  *session.Controller
	mem   *display.Memory
	scr   *ExamScreen
	saved chan session.ModuleResult
}

func newFixture(t *testing.T, desc *module.Descriptor) *fixture {
	t.Helper()
	f := &fixture{mem: display.NewMemory(), saved: make(chan session.ModuleResult, 1)}
	f.ctrl = session.New(desc, session.Config{
		Registry:  questionset.NewRegistry(testLoader(), zerolog.Nop(), nil),
		Sink:      f.mem,
		Logger:    zerolog.Nop(),
		SessionID: "exam-test",
	})
	f.scr = New(Options{
		Controller: f.ctrl,
		Display:    f.mem,
		Save: func(res session.ModuleResult) error {
			f.saved <- res
			return nil
		},
		Log: zerolog.Nop(),
	})
	t.Cleanup(f.ctrl.Quit)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.scr.Update(startedMsg{Err: f.ctrl.Start(context.Background())})
}

// activeType waits until the screen shows a loaded set of type typ.
func (f *fixture) activeType(t *testing.T, typ string) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.scr.refresh()
		v, ok := f.scr.prompt()
		return ok && v.Type == typ
	}, waitFor, 10*time.Millisecond)
}

func press(s *ExamScreen, keys ...tea.KeyPressMsg) {
	for _, k := range keys {
		s.Update(k)
	}
}

func char(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

var enter = tea.KeyPressMsg{Code: tea.KeyEnter}

func TestExamScreen_FullAttempt(t *testing.T) {
	f := newFixture(t, testModule())
	f.start(t)

	f.activeType(t, "daily1")
	assert.Equal(t, "Question 1 of 3", f.mem.Text(display.SlotProgress))
	assert.Contains(t, f.scr.View(100, 30), "When does the shop open?")

	press(f.scr, char('2'), enter)
	require.Eventually(t, func() bool {
		return f.mem.Text(display.SlotProgress) == "Question 2 of 3"
	}, waitFor, 10*time.Millisecond)

	// Highlight the first option and commit it with Enter.
	press(f.scr, tea.KeyPressMsg{Code: tea.KeyUp}, enter)

	f.activeType(t, "writing")
	assert.True(t, f.scr.panel.Typing())
	assert.Equal(t, "Question 3 of 3", f.mem.Text(display.SlotProgress))

	for _, r := range "A quiet place" {
		f.scr.Update(char(r))
	}
	press(f.scr, enter)

	msg := f.scr.waitCmd()()
	fin, ok := msg.(finishedMsg)
	require.True(t, ok, "got %T", msg)
	require.NoError(t, fin.SaveErr)

	res := fin.Result
	assert.Equal(t, 3, res.AnsweredQuestions)
	assert.Equal(t, 2, res.CorrectCount())
	assert.False(t, res.TimedOut)
	assert.Equal(t, "A quiet place", res.Answers[2].Response)
	assert.Equal(t, res, <-f.saved)

	_, cmd := f.scr.Update(fin)
	require.NotNil(t, cmd)
	replace, ok := cmd().(router.ReplaceScreenMsg)
	require.True(t, ok)
	assert.IsType(t, &summary.SummaryScreen{}, replace.Screen)
}

func TestExamScreen_QuitConfirm(t *testing.T) {
	f := newFixture(t, testModule())
	f.start(t)
	f.activeType(t, "daily1")

	press(f.scr, char('1'))
	press(f.scr, tea.KeyPressMsg{Code: tea.KeyEsc})
	assert.True(t, f.scr.confirmQuit)
	assert.Contains(t, f.scr.View(100, 30), "End this attempt?")

	press(f.scr, char('n'))
	assert.False(t, f.scr.confirmQuit)

	press(f.scr, tea.KeyPressMsg{Code: tea.KeyEsc}, char('y'))

	fin := f.scr.waitCmd()().(finishedMsg)
	assert.True(t, fin.Result.Aborted)
	assert.Equal(t, 1, fin.Result.AnsweredQuestions)
}

func TestExamScreen_StartError(t *testing.T) {
	desc := testModule()
	desc.TotalQuestions = 9
	f := newFixture(t, desc)
	f.start(t)

	assert.Contains(t, f.scr.View(100, 30), "Could not start the attempt")
	_, cmd := f.scr.Update(char('x'))
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)

	var mismatch *module.CountMismatchError
	assert.True(t, errors.As(f.ctrl.Start(context.Background()), &mismatch))
}

func TestExamScreen_TimerSlotsRendered(t *testing.T) {
	desc := testModule()
	desc.TimeLimitSeconds = module.Seconds(600)
	f := newFixture(t, desc)
	f.start(t)
	f.activeType(t, "daily1")

	assert.Equal(t, "10:00", f.mem.Text(display.SlotTimer))
	assert.Contains(t, f.scr.View(100, 30), "10:00")
}

func TestExamScreen_AudioReplay(t *testing.T) {
	desc := &module.Descriptor{
		ModuleID:       "listening-1",
		ModuleName:     "Listening 1",
		SectionKind:    module.SectionListening,
		TotalQuestions: 1,
		Components:     []module.ComponentSpec{{Type: "listening", SetID: 1, QuestionsPerSet: 1}},
	}
	mem := display.NewMemory()
	loader := questionset.NewStaticLoader(&questionset.Data{Type: "listening", SetID: 1, Audio: "clip.mp3", Items: []questionset.Item{
		{ID: "l1", Prompt: "What time is the train?", Options: []string{"6", "7"}, Answer: "7"},
	}})
	ctrl := session.New(desc, session.Config{
		Registry: questionset.NewRegistry(loader, zerolog.Nop(), nil),
		Sink:     mem,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(ctrl.Quit)
	scr := New(Options{Controller: ctrl, Display: mem, AudioLength: time.Millisecond, Log: zerolog.Nop()})
	scr.Update(startedMsg{Err: ctrl.Start(context.Background())})

	require.Eventually(t, func() bool {
		scr.refresh()
		return scr.panel.Set() != nil && mem.Text(display.SlotQuestionTimer) == "0:30"
	}, waitFor, 10*time.Millisecond)

	_, cmd := scr.Update(char('p'))
	require.NotNil(t, cmd)
	v, _ := scr.prompt()
	assert.True(t, v.AudioPlaying)

	scr.Update(cmd())
	v, _ = scr.prompt()
	assert.False(t, v.AudioPlaying)
}
