package module

import (
	"fmt"
)

// CheckQuestionCount verifies sum(questionsPerSet) == totalQuestions.
// Returns *CountMismatchError when the invariant does not hold.
func CheckQuestionCount(d *Descriptor) error {
	computed := d.ComputedTotal()
	if computed != d.TotalQuestions {
		return &CountMismatchError{
			ModuleID: d.ModuleID,
			Declared: d.TotalQuestions,
			Computed: computed,
		}
	}
	return nil
}

// Validate performs structural checks that make a descriptor unusable.
// The question-count invariant is checked separately by CheckQuestionCount
// so callers can decide whether a mismatch is fatal.
func Validate(d *Descriptor) error {
	if len(d.Components) == 0 {
		return fmt.Errorf("module %q: %w", d.ModuleID, ErrNoComponents)
	}

	var problems []string
	if d.ModuleID == "" {
		problems = append(problems, "moduleId is empty")
	}
	if !d.SectionKind.Valid() {
		problems = append(problems, fmt.Sprintf("unknown section kind %q", d.SectionKind))
	}
	if d.TimeLimitSeconds != nil && *d.TimeLimitSeconds < 0 {
		problems = append(problems, fmt.Sprintf("negative time limit %d", *d.TimeLimitSeconds))
	}
	for i, c := range d.Components {
		if c.Type == "" {
			problems = append(problems, fmt.Sprintf("component %d has no type", i))
		}
		if c.QuestionsPerSet <= 0 {
			problems = append(problems, fmt.Sprintf("component %d (%s) has questionsPerSet %d", i, c.Type, c.QuestionsPerSet))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{ModuleID: d.ModuleID, Problems: problems}
	}

	return checkFormatVersion(d.FormatVersion)
}
