// Package summary shows the outcome of a module attempt or a retake pass.
package summary

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/examrun/internal/screen"
	"github.com/abhisek/examrun/internal/session"
	"github.com/abhisek/examrun/internal/ui/components"
	"github.com/abhisek/examrun/internal/ui/layout"
	"github.com/abhisek/examrun/internal/ui/theme"
)

// SummaryScreen displays a ModuleResult or a RetakeResult.
type SummaryScreen struct {
	module  *session.ModuleResult
	retake  *session.RetakeResult
	saveErr error
}

var _ screen.Screen = (*SummaryScreen)(nil)
var _ screen.KeyHintProvider = (*SummaryScreen)(nil)

// NewModule summarizes a finished attempt. saveErr, when set, is shown so the
// learner knows the attempt was not stored.
func NewModule(res session.ModuleResult, saveErr error) *SummaryScreen {
	return &SummaryScreen{module: &res, saveErr: saveErr}
}

// NewRetake summarizes a retake pass.
func NewRetake(res session.RetakeResult, saveErr error) *SummaryScreen {
	return &SummaryScreen{retake: &res, saveErr: saveErr}
}

func (s *SummaryScreen) Init() tea.Cmd {
	return nil
}

func (s *SummaryScreen) Title() string {
	if s.retake != nil {
		return "Retake Summary"
	}
	return "Attempt Summary"
}

func (s *SummaryScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Exit"},
	}
}

func (s *SummaryScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	if kmsg, ok := msg.(tea.KeyMsg); ok {
		switch kmsg.String() {
		case "enter", "esc", "q":
			return s, tea.Quit
		}
	}
	return s, nil
}

func (s *SummaryScreen) View(width, height int) string {
	var body string
	switch {
	case s.module != nil:
		body = s.moduleView(width)
	case s.retake != nil:
		body = s.retakeView(width)
	}
	if s.saveErr != nil {
		body += "\n" + center(width, theme.Incorrect.Render("Not saved: "+s.saveErr.Error()))
	}
	return body
}

func (s *SummaryScreen) moduleView(width int) string {
	res := s.module
	var b strings.Builder

	heading := "Attempt complete"
	switch {
	case res.TimedOut:
		heading = "Time is up"
	case res.Aborted:
		heading = "Attempt ended early"
	}
	b.WriteString(center(width, theme.Title.Render(heading)))
	b.WriteString("\n\n")

	b.WriteString(center(width, theme.Subtitle.Render(fmt.Sprintf("%s · %s · %s",
		res.ModuleName, res.SectionKind, formatDuration(res.TimeSpentSeconds)))))
	b.WriteString("\n\n")

	barWidth := min(width-8, 60)
	b.WriteString(center(width, components.NewProgressBar("Answered", res.AnsweredQuestions, res.TotalQuestions, true, barWidth).View()))
	b.WriteString("\n")
	b.WriteString(center(width, components.NewProgressBar("Correct ", res.CorrectCount(), res.TotalQuestions, true, barWidth).View()))
	b.WriteString("\n\n")

	b.WriteString(section(width, "Parts"))
	for _, cr := range res.ComponentResults {
		correct := 0
		for _, a := range cr.Answers {
			if a.Correct {
				correct++
			}
		}
		line := fmt.Sprintf("%-12s set %-3d  %d answered  %d correct", cr.Type, cr.SetID, len(cr.Answers), correct)
		style := theme.Body
		if cr.Stalled {
			line += "  (stopped responding)"
			style = theme.Incorrect
		}
		b.WriteString(center(width, style.Render(line)))
		b.WriteString("\n")
	}
	for _, ref := range res.SkippedComponents {
		line := fmt.Sprintf("%-12s set %-3d  skipped: %s", ref.Type, ref.SetID, ref.Reason)
		b.WriteString(center(width, theme.Hint.Render(line)))
		b.WriteString("\n")
	}
	return b.String()
}

func (s *SummaryScreen) retakeView(width int) string {
	res := s.retake
	var b strings.Builder

	b.WriteString(center(width, theme.Title.Render("Review complete")))
	b.WriteString("\n\n")

	retaken := 0
	for _, o := range res.Outcomes {
		if o.Retaken {
			retaken++
		}
	}
	stats := fmt.Sprintf("Reviewed: %d        Re-answered: %d        Improved: %d",
		len(res.Outcomes), retaken, res.Improved())
	b.WriteString(center(width, theme.Body.Render(stats)))
	b.WriteString("\n\n")

	b.WriteString(section(width, "Questions"))
	for _, o := range res.Outcomes {
		var line string
		style := theme.Body
		switch {
		case o.WasCorrect:
			line = fmt.Sprintf("Q%-3d correct the first time", o.GlobalNumber)
			style = theme.Hint
		case !o.Retaken:
			line = fmt.Sprintf("Q%-3d not re-answered", o.GlobalNumber)
		case o.Retake.Correct:
			line = fmt.Sprintf("Q%-3d %s → %s", o.GlobalNumber, orDash(o.FirstAnswer.Response), o.Retake.Response)
			style = theme.Correct
		default:
			line = fmt.Sprintf("Q%-3d %s → %s", o.GlobalNumber, orDash(o.FirstAnswer.Response), o.Retake.Response)
			style = theme.Incorrect
		}
		b.WriteString(center(width, style.Render(line)))
		b.WriteString("\n")
	}
	return b.String()
}

func section(width int, name string) string {
	divider := lipgloss.NewStyle().Foreground(theme.Border).Render(strings.Repeat("─", max(min(width-8, 60), 0)))
	return center(width, lipgloss.NewStyle().Foreground(theme.TextDim).Render(name)) + "\n" +
		center(width, divider) + "\n\n"
}

func center(width int, s string) string {
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, s)
}

func formatDuration(secs int) string {
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
