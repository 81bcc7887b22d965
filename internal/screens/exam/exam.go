// Package exam is the screen for a live module attempt.
package exam

import (
	"context"
	"errors"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/rs/zerolog"

	"github.com/abhisek/examrun/internal/display"
	"github.com/abhisek/examrun/internal/questionset"
	"github.com/abhisek/examrun/internal/router"
	"github.com/abhisek/examrun/internal/screen"
	"github.com/abhisek/examrun/internal/screens/question"
	"github.com/abhisek/examrun/internal/screens/summary"
	"github.com/abhisek/examrun/internal/session"
	"github.com/abhisek/examrun/internal/ui/layout"
	"github.com/abhisek/examrun/internal/ui/theme"
)

// DefaultAudioLength is how long a simulated recording replay lasts.
const DefaultAudioLength = 5 * time.Second

// Options configures the exam screen.
type Options struct {
	Controller *session.Controller
	// Display must be one of the controller's sinks.
	Display *display.Memory
	// Save persists the finished attempt. Its error is shown on the summary.
	Save        func(session.ModuleResult) error
	AudioLength time.Duration
	Log         zerolog.Logger
}

// ExamScreen drives a session.Controller: it starts the attempt, renders the
// display slots and the active set, and forwards the learner's keys.
type ExamScreen struct {
	ctrl  *session.Controller
	disp  *display.Memory
	save  func(session.ModuleResult) error
	audio time.Duration
	log   zerolog.Logger

	status      session.Status
	panel       question.Panel
	confirmQuit bool
	finished    bool
	errMsg      string
}

var _ screen.Screen = (*ExamScreen)(nil)
var _ screen.KeyHintProvider = (*ExamScreen)(nil)

// New creates an exam screen for a controller that has not been started.
func New(opts Options) *ExamScreen {
	audio := opts.AudioLength
	if audio <= 0 {
		audio = DefaultAudioLength
	}
	return &ExamScreen{
		ctrl:  opts.Controller,
		disp:  opts.Display,
		save:  opts.Save,
		audio: audio,
		log:   opts.Log.With().Str("component", "exam_screen").Logger(),
	}
}

func (s *ExamScreen) Init() tea.Cmd {
	ctrl := s.ctrl
	return tea.Batch(func() tea.Msg {
		return startedMsg{Err: ctrl.Start(context.Background())}
	}, tickCmd())
}

func (s *ExamScreen) Title() string {
	return s.ctrl.Descriptor().ModuleName
}

func (s *ExamScreen) KeyHints() []layout.KeyHint {
	if s.confirmQuit {
		return []layout.KeyHint{
			{Key: "y", Description: "End attempt"},
			{Key: "n", Description: "Keep going"},
		}
	}
	hints := []layout.KeyHint{{Key: "Enter", Description: "Next"}}
	if !s.panel.Typing() {
		hints = append(hints, layout.KeyHint{Key: "1-9", Description: "Answer"})
	}
	if v, ok := s.prompt(); ok {
		if v.Block {
			hints = append(hints, layout.KeyHint{Key: "Shift+Tab", Description: "Previous"})
		}
		if v.Audio {
			hints = append(hints, layout.KeyHint{Key: "p", Description: "Replay"})
		}
	}
	return append(hints, layout.KeyHint{Key: "Esc", Description: "End"})
}

func (s *ExamScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case startedMsg:
		if msg.Err != nil {
			s.errMsg = msg.Err.Error()
			s.log.Error().Err(msg.Err).Msg("attempt did not start")
			return s, nil
		}
		return s, tea.Batch(s.refresh(), s.waitCmd())

	case timerTickMsg:
		if s.finished || s.errMsg != "" {
			return s, nil
		}
		return s, tea.Batch(s.refresh(), tickCmd())

	case audioDoneMsg:
		msg.Set.AudioFinished()
		return s, nil

	case finishedMsg:
		s.finished = true
		next := summary.NewModule(msg.Result, msg.SaveErr)
		return s, func() tea.Msg { return router.ReplaceScreenMsg{Screen: next} }

	case tea.KeyMsg:
		return s.handleKey(msg)
	}

	_, cmd := s.panel.Update(msg)
	return s, cmd
}

func (s *ExamScreen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()

	if s.errMsg != "" {
		return s, tea.Quit
	}
	if s.finished {
		return s, nil
	}

	if s.confirmQuit {
		switch key {
		case "y", "Y":
			s.confirmQuit = false
			s.ctrl.Quit()
		case "n", "N", "esc":
			s.confirmQuit = false
		}
		return s, nil
	}

	set := s.panel.Set()
	switch key {
	case "esc":
		s.confirmQuit = true
		return s, nil
	case "left", "shift+tab":
		if key == "left" && s.panel.Typing() {
			break
		}
		if set != nil && set.Previous() {
			return s, s.refresh()
		}
		return s, nil
	case "p":
		if set != nil && !s.panel.Typing() {
			return s, s.playAudio(set)
		}
	}

	action, cmd := s.panel.Update(msg)
	if action == question.ActionNext && set != nil {
		set.Advance()
		return s, tea.Batch(cmd, s.refresh())
	}
	return s, cmd
}

func (s *ExamScreen) playAudio(set *questionset.Set) tea.Cmd {
	if err := set.PlayAudio(); err != nil {
		if !errors.Is(err, questionset.ErrNoAudio) {
			s.log.Warn().Err(err).Msg("replay failed")
		}
		return nil
	}
	return tea.Tick(s.audio, func(time.Time) tea.Msg {
		return audioDoneMsg{Set: set}
	})
}

// refresh re-reads the controller status and follows the active set.
func (s *ExamScreen) refresh() tea.Cmd {
	s.status = s.ctrl.Status()
	var set *questionset.Set
	if s.status.ActiveReady {
		set, _ = s.status.Active.(*questionset.Set)
	}
	before := s.panel.Set()
	s.panel.Sync(set)
	if set != nil && set != before {
		return s.panel.Init()
	}
	return nil
}

func (s *ExamScreen) prompt() (questionset.Prompt, bool) {
	if set := s.panel.Set(); set != nil {
		return set.View()
	}
	return questionset.Prompt{}, false
}

func (s *ExamScreen) waitCmd() tea.Cmd {
	ctrl, save, log := s.ctrl, s.save, s.log
	return func() tea.Msg {
		res, err := ctrl.Wait(context.Background())
		if err != nil {
			return finishedMsg{SaveErr: err}
		}
		var saveErr error
		if save != nil {
			if saveErr = save(res); saveErr != nil {
				log.Error().Err(saveErr).Str("session_id", res.SessionID).Msg("save attempt")
			}
		}
		return finishedMsg{Result: res, SaveErr: saveErr}
	}
}

func (s *ExamScreen) View(width, height int) string {
	if s.errMsg != "" {
		return renderError(width, height, s.errMsg)
	}
	if s.confirmQuit {
		return renderQuitConfirm(width, height)
	}

	status := s.statusLine(width)
	body := s.panel.View(width-4, height-2)
	return status + "\n\n" + lipgloss.NewStyle().PaddingLeft(2).Render(body)
}

func (s *ExamScreen) statusLine(width int) string {
	progress := s.disp.Text(display.SlotProgress)

	var timer, qtimer string
	if u, ok := s.disp.Get(display.SlotTimer); ok && u.Text != "" {
		timer = theme.TimerStyle(u.Danger).Render("⏱ " + u.Text)
	}
	if u, ok := s.disp.Get(display.SlotQuestionTimer); ok && u.Text != "" {
		qtimer = theme.TimerStyle(u.Danger).Render("question " + u.Text)
	}
	return layout.RenderStatusLine(width, theme.Body.Bold(true).Render(progress), timer, qtimer)
}

func renderQuitConfirm(width, height int) string {
	msg := strings.Join([]string{
		theme.Title.Render("End this attempt?"),
		"",
		theme.Body.Render("Answers given so far are kept and submitted."),
		"",
		theme.Hint.Render("y to end, n to keep going"),
	}, "\n")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, theme.Card.Render(msg))
}

func renderError(width, height int, errMsg string) string {
	msg := theme.Incorrect.Render("Could not start the attempt") + "\n\n" +
		theme.Body.Render(errMsg) + "\n\n" +
		theme.Hint.Render("Press any key to exit")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, msg)
}

// tickCmd returns a 1-second tick command.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return timerTickMsg(t)
	})
}
