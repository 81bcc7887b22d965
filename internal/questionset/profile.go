package questionset

import "github.com/abhisek/examrun/internal/module"

// Profile describes how one component type presents its set.
type Profile struct {
	Type string

	// QuestionSeconds arms a per-question countdown when positive.
	QuestionSeconds int

	// Audio sets can be replayed; replay pauses the question countdown.
	Audio bool

	// Block sets show all items together and are answered as a unit.
	Block bool
}

// DefaultListeningSeconds is the per-question limit for listening sets.
const DefaultListeningSeconds = 30

// DefaultProfiles returns the profiles for every shipped type tag.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		module.TypeFillBlanks: {Type: module.TypeFillBlanks, Block: true},
		"daily1":              {Type: "daily1"},
		"daily2":              {Type: "daily2"},
		"reading":             {Type: "reading"},
		"listening":           {Type: "listening", QuestionSeconds: DefaultListeningSeconds, Audio: true},
		"writing":             {Type: "writing"},
		"speaking":            {Type: "speaking"},
	}
}
