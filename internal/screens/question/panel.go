// Package question renders the current item of a question set and turns
// keys into responses. The exam and retake screens share it.
package question

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/examrun/internal/questionset"
	"github.com/abhisek/examrun/internal/ui/components"
	"github.com/abhisek/examrun/internal/ui/layout"
	"github.com/abhisek/examrun/internal/ui/theme"
)

// Action is what the learner asked for beyond recording a response.
type Action int

const (
	ActionNone Action = iota
	// ActionNext moves past the current item.
	ActionNext
)

// Panel holds the widgets for one set item. Call Sync before every render
// so the widgets follow the set's cursor.
type Panel struct {
	set    *questionset.Set
	key    string
	typed  bool
	locked bool // retake item answered correctly the first time
	choice components.MultiChoice
	input  components.TextInput
	err    string
}

// Sync points the panel at set, rebuilding the widgets when the item changed.
// A nil set clears the panel.
func (p *Panel) Sync(set *questionset.Set) {
	if set == nil {
		*p = Panel{}
		return
	}
	v, ok := set.View()
	if !ok {
		p.set = set
		p.key = ""
		return
	}
	key := fmt.Sprintf("%p/%d/%t", set, v.Index, v.Retake)
	if p.set == set && p.key == key {
		return
	}

	p.set = set
	p.key = key
	p.err = ""
	p.typed = len(v.Item.Options) == 0
	p.locked = v.Retake && v.WasCorrect
	recorded := v.Response
	if p.locked {
		recorded = v.FirstResponse
	}
	if p.typed {
		p.input = components.NewTextInput("type your answer", 0)
		p.input.Reset(recorded)
	} else {
		p.choice = components.NewMultiChoice("", v.Item.Options, recorded)
	}
}

// Set returns the set the panel shows.
func (p *Panel) Set() *questionset.Set {
	return p.set
}

// Typing reports whether printable keys belong to the text input.
func (p *Panel) Typing() bool {
	return p.set != nil && p.typed && !p.locked
}

// Init focuses the text input when the item is typed.
func (p *Panel) Init() tea.Cmd {
	if p.Typing() {
		return p.input.Init()
	}
	return nil
}

// Update records responses. Enter commits the highlighted option or the typed
// text and reports ActionNext; an empty text box keeps the earlier response.
func (p *Panel) Update(msg tea.Msg) (Action, tea.Cmd) {
	if p.set == nil || p.key == "" {
		return ActionNone, nil
	}
	kmsg, isKey := msg.(tea.KeyMsg)
	if p.locked {
		return p.updateLocked(kmsg, isKey), nil
	}

	if p.typed {
		if isKey && kmsg.String() == "enter" {
			if text := p.input.Value(); text != "" {
				if !p.respond(p.set.Respond(text)) {
					return ActionNone, nil
				}
			}
			return ActionNext, nil
		}
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(msg)
		return ActionNone, cmd
	}

	if isKey && kmsg.String() == "enter" {
		if p.choice.Chosen != p.choice.Selected {
			if !p.respond(p.set.RespondOption(p.choice.Selected)) {
				return ActionNone, nil
			}
			p.choice.Chosen = p.choice.Selected
		}
		return ActionNext, nil
	}

	var picked int
	p.choice, picked = p.choice.Update(msg)
	if picked >= 0 {
		p.respond(p.set.RespondOption(picked))
	}
	return ActionNone, nil
}

// updateLocked lets the learner move on from an item that cannot be
// re-answered. Attempts to answer are passed to the set so it reports why.
func (p *Panel) updateLocked(kmsg tea.KeyMsg, isKey bool) Action {
	if !isKey {
		return ActionNone
	}
	if kmsg.String() == "enter" {
		return ActionNext
	}
	if p.typed {
		if text := kmsg.Key().Text; text != "" {
			p.respond(p.set.Respond(text))
		}
		return ActionNone
	}
	if _, picked := p.choice.Update(kmsg); picked >= 0 {
		p.respond(p.set.RespondOption(picked))
	}
	return ActionNone
}

func (p *Panel) respond(err error) bool {
	if err != nil {
		p.err = err.Error()
		return false
	}
	p.err = ""
	return true
}

// View renders the item with its passage and, for block sets, the answers
// given so far.
func (p *Panel) View(width, height int) string {
	if p.set == nil {
		return theme.Hint.Render("Waiting for the next part...")
	}
	v, ok := p.set.View()
	if !ok {
		return theme.Hint.Render("Loading questions...")
	}

	var b strings.Builder
	if v.Title != "" {
		b.WriteString(theme.Title.Render(v.Title))
		b.WriteString("\n\n")
	}

	if v.Passage != "" {
		passage := v.Passage
		if layout.IsCompactHeight(height) {
			passage = firstLines(passage, 4)
		}
		b.WriteString(theme.Passage.Width(width - 4).Render(passage))
		b.WriteString("\n\n")
	}

	if v.Audio {
		audio := "♪ press p to replay the recording"
		if v.AudioPlaying {
			audio = "♪ playing..."
		}
		b.WriteString(lipgloss.NewStyle().Foreground(theme.Accent).Render(audio))
		b.WriteString("\n\n")
	}

	if v.Block && !v.Retake {
		b.WriteString(blockSummary(v))
		b.WriteString("\n")
	}

	number := lipgloss.NewStyle().Foreground(theme.Primary).Bold(true).Render(fmt.Sprintf("%d.", v.Number))
	b.WriteString(number + " " + theme.Body.Render(v.Item.Prompt))
	b.WriteString("\n\n")

	if p.typed {
		b.WriteString(p.input.View())
	} else {
		b.WriteString(p.choice.View())
	}

	if v.Retake {
		b.WriteString("\n")
		b.WriteString(firstAttempt(v))
	}

	if p.err != "" {
		b.WriteString("\n")
		b.WriteString(theme.Incorrect.Render(p.err))
	}
	return b.String()
}

func blockSummary(v questionset.Prompt) string {
	first := v.Number - v.Index
	parts := make([]string, len(v.Responses))
	for i, r := range v.Responses {
		label := fmt.Sprintf("%d", first+i)
		switch {
		case i == v.Index:
			parts[i] = theme.Selected.Render("[" + label + "]")
		case r != "":
			parts[i] = theme.Answered.Render(label + "✓")
		default:
			parts[i] = theme.Hint.Render(label)
		}
	}
	return strings.Join(parts, " ")
}

func firstAttempt(v questionset.Prompt) string {
	first := v.FirstResponse
	if first == "" {
		first = "(no answer)"
	}
	if v.WasCorrect {
		return theme.Correct.Render("First attempt: " + first + " (correct)")
	}
	return theme.Incorrect.Render("First attempt: " + first + " (incorrect)")
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + "\n…"
}
