package session

import (
	"context"

	"github.com/abhisek/examrun/internal/module"
)

// Component is one question set driven by the controller. Every type tag in
// a descriptor maps to a Component implementation through the Registry.
//
// Methods other than Init and Result are called from the controller's event
// loop while Result may still be blocked on another goroutine, so
// implementations must be safe for concurrent use.
type Component interface {
	// Init loads the set and presents its first question. It blocks until
	// the component is ready.
	Init(ctx context.Context) error

	// Result blocks until the learner (or Submit) finishes the set and
	// returns its answers. It returns exactly once per component.
	Result(ctx context.Context) (ComponentResult, error)

	// NextQuestion advances the internal cursor by one. It reports false at
	// the last question and never panics.
	NextQuestion() bool

	// Submit finalizes and grades the set, making Result return.
	Submit()

	// Answers returns the answers recorded so far.
	Answers() []AnswerRecord

	// Cleanup releases timers, audio and subscriptions. It is idempotent.
	Cleanup()

	// InitRetakeMode presents one previously answered question for review.
	InitRetakeMode(ctx context.Context, item RetakeItem) error

	// RetakeAnswer returns the new answer given in retake mode, if any.
	RetakeAnswer() (AnswerRecord, bool)
}

// Host is the component's only channel back to the controller. All calls are
// non-blocking and ignored once the component is no longer active.
type Host interface {
	// UpdateCurrentQuestion reports the component's internal cursor.
	UpdateCurrentQuestion(internalIndex int)
	// StartQuestionTimer starts a per-question countdown.
	StartQuestionTimer(seconds int)
	// PauseQuestionTimer stops the countdown and resets its display to the
	// full duration.
	PauseQuestionTimer()
	// ResumeQuestionTimer restarts the countdown from its full duration.
	ResumeQuestionTimer()
	// StopQuestionTimer clears the countdown.
	StopQuestionTimer()
}

// Options is passed to a Factory alongside the component's spec.
type Options struct {
	StartQuestionNumber  int
	TotalModuleQuestions int
	QuestionsPerSet      int
	SectionKind          module.SectionKind
	Retake               bool
}

// Factory constructs a component. It must not block; slow work belongs in
// Init.
type Factory func(spec module.ComponentSpec, host Host, opts Options) (Component, error)

// Registry maps a component type tag to its factory.
type Registry map[string]Factory

// Lookup returns the factory registered for typ.
func (r Registry) Lookup(typ string) (Factory, bool) {
	f, ok := r[typ]
	return f, ok && f != nil
}

// NopHost ignores every request. Used where timers and progress are
// suppressed, e.g. retake mode.
type NopHost struct{}

func (NopHost) UpdateCurrentQuestion(int) {}
func (NopHost) StartQuestionTimer(int)    {}
func (NopHost) PauseQuestionTimer()       {}
func (NopHost) ResumeQuestionTimer()      {}
func (NopHost) StopQuestionTimer()        {}
