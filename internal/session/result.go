package session

import (
	"slices"
	"strconv"

	"github.com/abhisek/examrun/internal/module"
)

// AnswerRecord is one learner answer as reported by a component. The
// controller never looks inside it; it only counts and forwards records.
type AnswerRecord struct {
	QuestionID string            `json:"questionId"`
	Response   string            `json:"response"`
	Correct    bool              `json:"correct"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// MetaItemIndex is the AnswerRecord.Meta key holding the component's
// internal index of the answered item. Components that leave questions
// unanswered must set it so a retake can find the item again.
const MetaItemIndex = "index"

// ItemIndex returns the internal item index recorded under MetaItemIndex,
// or fallback when the record carries none.
func (a AnswerRecord) ItemIndex(fallback int) int {
	if v, ok := a.Meta[MetaItemIndex]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

// ComponentResult is the outcome of one component, tagged with its position
// in the descriptor.
type ComponentResult struct {
	Index   int            `json:"index"`
	Type    string         `json:"type"`
	SetID   int            `json:"setId"`
	Answers []AnswerRecord `json:"answers"`
	Partial bool           `json:"partial,omitempty"` // torn down before it reported
	Stalled bool           `json:"stalled,omitempty"` // torn down by the stall watchdog
}

// ComponentRef identifies a descriptor entry that was skipped.
type ComponentRef struct {
	Index  int    `json:"index"`
	Type   string `json:"type"`
	SetID  int    `json:"setId"`
	Reason string `json:"reason"`
}

// ModuleResult is the aggregated outcome of one module attempt.
type ModuleResult struct {
	SessionID          string             `json:"sessionId"`
	ModuleID           string             `json:"moduleId"`
	ModuleName         string             `json:"moduleName"`
	SectionKind        module.SectionKind `json:"sectionKind"`
	TotalQuestions     int                `json:"totalQuestions"`
	AnsweredQuestions  int                `json:"answeredQuestions"`
	Answers            []AnswerRecord     `json:"answers"`
	ComponentResults   []ComponentResult  `json:"componentResults"`
	SkippedComponents  []ComponentRef     `json:"skippedComponents,omitempty"`
	TimeSpentSeconds   int                `json:"timeSpentSeconds"`
	TimedOut           bool               `json:"timedOut"`
	Aborted            bool               `json:"aborted,omitempty"`
	CompletedAtEpochMs int64              `json:"completedAtEpochMs"`
}

// CorrectCount returns how many flattened answers are marked correct.
func (r *ModuleResult) CorrectCount() int {
	n := 0
	for _, a := range r.Answers {
		if a.Correct {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can never mutate a delivered result.
func (r ModuleResult) Clone() ModuleResult {
	out := r
	out.Answers = cloneAnswers(r.Answers)
	out.SkippedComponents = slices.Clone(r.SkippedComponents)
	if r.ComponentResults != nil {
		out.ComponentResults = make([]ComponentResult, len(r.ComponentResults))
		for i, cr := range r.ComponentResults {
			cr.Answers = cloneAnswers(cr.Answers)
			out.ComponentResults[i] = cr
		}
	}
	return out
}

func cloneAnswers(in []AnswerRecord) []AnswerRecord {
	if in == nil {
		return nil
	}
	out := make([]AnswerRecord, len(in))
	for i, a := range in {
		if a.Meta != nil {
			meta := make(map[string]string, len(a.Meta))
			for k, v := range a.Meta {
				meta[k] = v
			}
			a.Meta = meta
		}
		out[i] = a
	}
	return out
}
