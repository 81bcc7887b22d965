package components

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/examrun/internal/ui/theme"
)

// MultiChoice is a numbered option list. Selected is the highlighted row;
// Chosen is the option currently recorded as the answer, or -1.
type MultiChoice struct {
	Question string
	Options  []string
	Selected int
	Chosen   int
}

// NewMultiChoice creates a list with the recorded response, if any,
// highlighted.
func NewMultiChoice(question string, options []string, recorded string) MultiChoice {
	m := MultiChoice{Question: question, Options: options, Chosen: -1}
	for i, o := range options {
		if recorded != "" && strings.EqualFold(strings.TrimSpace(o), strings.TrimSpace(recorded)) {
			m.Selected = i
			m.Chosen = i
			break
		}
	}
	return m
}

// Update moves the highlight. Number keys jump to an option and report it
// through the returned index; -1 means nothing was picked.
func (m MultiChoice) Update(msg tea.Msg) (MultiChoice, int) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, -1
	}

	key := kmsg.String()
	switch key {
	case "up", "k":
		if m.Selected > 0 {
			m.Selected--
		}
		return m, -1
	case "down", "j":
		if m.Selected < len(m.Options)-1 {
			m.Selected++
		}
		return m, -1
	}

	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		i := int(key[0] - '1')
		if i < len(m.Options) {
			m.Selected = i
			m.Chosen = i
			return m, i
		}
	}
	return m, -1
}

// View renders the question and its options.
func (m MultiChoice) View() string {
	var b strings.Builder
	if m.Question != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(theme.Text).Bold(true).Render(m.Question))
		b.WriteString("\n\n")
	}

	for i, opt := range m.Options {
		prefix := "  "
		if i == m.Selected {
			prefix = "▸ "
		}
		mark := " "
		if i == m.Chosen {
			mark = "●"
		}
		line := fmt.Sprintf("%s%d) %s %s", prefix, i+1, mark, opt)

		switch {
		case i == m.Selected:
			b.WriteString(theme.Selected.Render(line))
		case i == m.Chosen:
			b.WriteString(theme.Answered.Render(line))
		default:
			b.WriteString(theme.Unselected.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}
