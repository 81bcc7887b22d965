package questionset

import "errors"

var (
	ErrSetNotFound     = errors.New("question set not found")
	ErrEmptySet        = errors.New("question set has no items")
	ErrNotEnoughItems  = errors.New("question set has fewer items than the module expects")
	ErrNotReady        = errors.New("question set not loaded")
	ErrSubmitted       = errors.New("question set already submitted")
	ErrNoAudio         = errors.New("question set has no audio")
	ErrOptionRange     = errors.New("option out of range")
	ErrRetakeItemRange = errors.New("retake item outside the set")
	ErrLocked          = errors.New("answered correctly the first time")
)
