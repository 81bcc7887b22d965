package session

import (
	"fmt"

	"github.com/abhisek/examrun/internal/module"
)

// Progress is the learner-facing position inside a module.
type Progress struct {
	Start int  // first global question number shown
	End   int  // last global question number shown; equals Start unless Range
	Total int  // total questions in the module
	Range bool // true for component types answered as a block
}

// String renders "Question 6 of 7" or "Questions 1-5 of 7".
func (p Progress) String() string {
	if p.Range {
		return fmt.Sprintf("Questions %d-%d of %d", p.Start, p.End, p.Total)
	}
	return fmt.Sprintf("Question %d of %d", p.Start, p.Total)
}

// ReportsRange reports whether a component type shows its progress as an
// inclusive range. Decided by tag only.
func ReportsRange(componentType string) bool {
	return componentType == module.TypeFillBlanks
}

// ComputeProgress derives the global position for component index with
// internal cursor internalIndex. The first question of component k is
// 1 + sum(questionsPerSet[0..k-1]).
func ComputeProgress(d *module.Descriptor, index, internalIndex int) Progress {
	p := Progress{Total: d.TotalQuestions}
	if index < 0 || index >= len(d.Components) {
		return p
	}
	spec := d.Components[index]
	start := d.StartQuestionNumber(index)
	last := start + spec.QuestionsPerSet - 1
	if last < start {
		last = start
	}

	if ReportsRange(spec.Type) {
		p.Start, p.End, p.Range = start, last, true
		return p
	}

	current := start + internalIndex
	if current < start {
		current = start
	}
	if current > last {
		current = last
	}
	p.Start, p.End = current, current
	return p
}
