package session

import "fmt"

// Default warning windows for the two countdowns.
const (
	DefaultModuleDangerSeconds   = 60
	DefaultQuestionDangerSeconds = 10
)

// TimerState is the observable state of one countdown.
type TimerState struct {
	RemainingSeconds int
	DurationSeconds  int
	Running          bool
}

// Countdown is a once-per-second countdown. It holds no goroutines or
// tickers; the controller calls Tick when its ticker fires.
type Countdown struct {
	state         TimerState
	dangerSeconds int
}

// NewCountdown creates a stopped countdown that reports Danger inside the
// last dangerSeconds.
func NewCountdown(dangerSeconds int) *Countdown {
	return &Countdown{dangerSeconds: dangerSeconds}
}

// Start (re)arms the countdown for seconds.
func (c *Countdown) Start(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	c.state = TimerState{
		RemainingSeconds: seconds,
		DurationSeconds:  seconds,
		Running:          seconds > 0,
	}
}

// Tick decrements the countdown by one second. It reports true exactly once,
// on the tick that reaches zero.
func (c *Countdown) Tick() bool {
	if !c.state.Running {
		return false
	}
	c.state.RemainingSeconds--
	if c.state.RemainingSeconds <= 0 {
		c.state.RemainingSeconds = 0
		c.state.Running = false
		return true
	}
	return false
}

// Pause stops the countdown and discards the partial countdown: the display
// goes back to the full duration.
func (c *Countdown) Pause() {
	c.state.Running = false
	c.state.RemainingSeconds = c.state.DurationSeconds
}

// Resume restarts from the full duration. Returns false if the countdown was
// never started.
func (c *Countdown) Resume() bool {
	if c.state.DurationSeconds <= 0 {
		return false
	}
	c.state.RemainingSeconds = c.state.DurationSeconds
	c.state.Running = true
	return true
}

// Stop freezes the countdown at its current remaining time.
func (c *Countdown) Stop() {
	c.state.Running = false
}

// Clear resets the countdown to its zero state.
func (c *Countdown) Clear() {
	c.state = TimerState{}
}

// State returns a copy of the current state.
func (c *Countdown) State() TimerState {
	return c.state
}

// Running reports whether the countdown is ticking.
func (c *Countdown) Running() bool {
	return c.state.Running
}

// Display formats the remaining time as m:ss.
func (c *Countdown) Display() string {
	return FormatClock(c.state.RemainingSeconds)
}

// Danger reports whether the remaining time is inside the warning window.
func (c *Countdown) Danger() bool {
	return c.state.DurationSeconds > 0 && c.state.RemainingSeconds <= c.dangerSeconds
}

// FormatClock renders seconds as m:ss (mm:ss from ten minutes up).
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
