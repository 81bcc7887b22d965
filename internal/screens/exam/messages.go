package exam

import (
	"time"

	"github.com/abhisek/examrun/internal/questionset"
	"github.com/abhisek/examrun/internal/session"
)

// startedMsg reports the outcome of Controller.Start.
type startedMsg struct {
	Err error
}

// timerTickMsg is sent every second to refresh timers and progress.
type timerTickMsg time.Time

// finishedMsg carries the completed attempt and the outcome of saving it.
type finishedMsg struct {
	Result  session.ModuleResult
	SaveErr error
}

// audioDoneMsg ends a simulated replay on set.
type audioDoneMsg struct {
	Set *questionset.Set
}
