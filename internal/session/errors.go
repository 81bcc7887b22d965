package session

import "errors"

var (
	// ErrAlreadyStarted is returned by a second call to Controller.Start.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrNotStarted is returned when waiting on a controller that never started.
	ErrNotStarted = errors.New("session not started")
	// ErrRetakeDone is returned by Coordinator.Next after the last item.
	ErrRetakeDone = errors.New("retake finished")
	// ErrNothingToRetake is returned when no first-attempt answers qualify.
	ErrNothingToRetake = errors.New("no questions to retake")
)
