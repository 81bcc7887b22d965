// Package retake is the self-paced review screen for a stored attempt.
package retake

import (
	"context"
	"errors"
	"fmt"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/rs/zerolog"

	"github.com/abhisek/examrun/internal/questionset"
	"github.com/abhisek/examrun/internal/router"
	"github.com/abhisek/examrun/internal/screen"
	"github.com/abhisek/examrun/internal/screens/question"
	"github.com/abhisek/examrun/internal/screens/summary"
	"github.com/abhisek/examrun/internal/session"
	"github.com/abhisek/examrun/internal/ui/layout"
	"github.com/abhisek/examrun/internal/ui/theme"
)

// itemMsg reports the outcome of Coordinator.Next.
type itemMsg struct {
	Item session.RetakeItem
	Comp session.Component
	Err  error
}

// prefetchMsg reports the outcome of the background prefetch.
type prefetchMsg struct {
	Err error
}

// doneMsg carries the finished pass and the outcome of saving it.
type doneMsg struct {
	Result  session.RetakeResult
	SaveErr error
}

// Options configures the retake screen.
type Options struct {
	Coordinator *session.Coordinator
	Save        func(session.RetakeResult) error
	Log         zerolog.Logger
}

// RetakeScreen walks the coordinator's items one at a time. There are no
// timers; Enter moves to the next item and Esc ends the review.
type RetakeScreen struct {
	coord *session.Coordinator
	save  func(session.RetakeResult) error
	log   zerolog.Logger

	item    session.RetakeItem
	pos     int
	total   int
	panel   question.Panel
	loading bool
	done    bool
	notice  string
}

var _ screen.Screen = (*RetakeScreen)(nil)
var _ screen.KeyHintProvider = (*RetakeScreen)(nil)

// New creates the screen. The coordinator must not have been advanced.
func New(opts Options) *RetakeScreen {
	return &RetakeScreen{
		total: len(opts.Coordinator.Items()),
		coord: opts.Coordinator,
		save:  opts.Save,
		log:   opts.Log.With().Str("component", "retake_screen").Logger(),
	}
}

func (s *RetakeScreen) Init() tea.Cmd {
	ch := s.coord.StartPrefetch(context.Background())
	prefetch := func() tea.Msg { return prefetchMsg{Err: <-ch} }
	return tea.Batch(prefetch, s.nextCmd())
}

func (s *RetakeScreen) Title() string {
	return "Review"
}

func (s *RetakeScreen) KeyHints() []layout.KeyHint {
	hints := []layout.KeyHint{{Key: "Enter", Description: "Next"}}
	if !s.panel.Typing() {
		hints = append(hints, layout.KeyHint{Key: "1-9", Description: "Answer"})
	}
	return append(hints, layout.KeyHint{Key: "Esc", Description: "Finish"})
}

func (s *RetakeScreen) nextCmd() tea.Cmd {
	s.loading = true
	coord := s.coord
	return func() tea.Msg {
		item, comp, err := coord.Next(context.Background())
		return itemMsg{Item: item, Comp: comp, Err: err}
	}
}

func (s *RetakeScreen) finishCmd() tea.Cmd {
	s.loading = true
	coord, save, log := s.coord, s.save, s.log
	return func() tea.Msg {
		res := coord.Finish()
		var saveErr error
		if save != nil {
			if saveErr = save(res); saveErr != nil {
				log.Error().Err(saveErr).Str("session_id", res.SessionID).Msg("save retake")
			}
		}
		return doneMsg{Result: res, SaveErr: saveErr}
	}
}

func (s *RetakeScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case prefetchMsg:
		if msg.Err != nil {
			s.notice = "Some questions are still loading."
		}
		return s, nil

	case itemMsg:
		s.loading = false
		if errors.Is(msg.Err, session.ErrRetakeDone) {
			return s, s.finishCmd()
		}
		if msg.Err != nil {
			// The item cannot be shown; move past it.
			s.log.Warn().Err(msg.Err).Int("question", msg.Item.GlobalNumber).Msg("retake item unavailable")
			s.notice = fmt.Sprintf("Question %d could not be loaded.", msg.Item.GlobalNumber)
			return s, s.nextCmd()
		}
		s.item = msg.Item
		s.pos, s.total = s.coord.Position()
		set, _ := msg.Comp.(*questionset.Set)
		s.panel.Sync(set)
		return s, s.panel.Init()

	case doneMsg:
		s.done = true
		next := summary.NewRetake(msg.Result, msg.SaveErr)
		return s, func() tea.Msg { return router.ReplaceScreenMsg{Screen: next} }

	case tea.KeyMsg:
		if s.loading || s.done {
			return s, nil
		}
		if msg.String() == "esc" {
			return s, s.finishCmd()
		}
		action, cmd := s.panel.Update(msg)
		if action == question.ActionNext {
			s.notice = ""
			return s, tea.Batch(cmd, s.nextCmd())
		}
		return s, cmd
	}

	_, cmd := s.panel.Update(msg)
	return s, cmd
}

func (s *RetakeScreen) View(width, height int) string {
	head := theme.Body.Bold(true).Render(fmt.Sprintf("Review %d of %d", s.pos, s.total))
	if s.pos > 0 {
		head += theme.Hint.Render(fmt.Sprintf("  (%s, question %d)", s.item.Type, s.item.GlobalNumber))
	}
	if s.notice != "" {
		head += "   " + theme.Hint.Render(s.notice)
	}

	body := theme.Hint.Render("Loading...")
	if !s.loading && s.panel.Set() != nil {
		body = s.panel.View(width-4, height-2)
	}
	return layout.RenderStatusLine(width, head) + "\n\n" + lipgloss.NewStyle().PaddingLeft(2).Render(body)
}
