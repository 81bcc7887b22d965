package questionset

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/examrun/internal/session"
)

// Autopilot plays the learner for headless runs: every Interval it answers
// the active set's current item and moves on.
type Autopilot struct {
	Interval time.Duration
	// Accuracy is the probability of picking the keyed answer.
	Accuracy float64
	// Idle leaves sets unanswered so the module timer decides the outcome.
	Idle bool

	Log zerolog.Logger
}

// Drive runs until c completes or ctx is done.
func (a Autopilot) Drive(ctx context.Context, c *session.Controller) {
	interval := a.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case <-ticker.C:
			if a.Idle {
				continue
			}
			st := c.Status()
			set, ok := st.Active.(*Set)
			if !ok || !st.ActiveReady {
				continue
			}
			a.step(set)
		}
	}
}

func (a Autopilot) step(set *Set) {
	p, ok := set.View()
	if !ok || p.Submitted {
		return
	}
	response := a.choose(p.Item)
	if err := set.Respond(response); err != nil {
		a.Log.Debug().Err(err).Msg("autopilot response rejected")
		return
	}
	a.Log.Debug().Int("question", p.Number).Str("response", response).Msg("autopilot answered")
	set.Advance()
}

func (a Autopilot) choose(it Item) string {
	if it.FreeText() {
		return "autopilot response"
	}
	if rand.Float64() < a.Accuracy && it.Answer != "" {
		return it.Answer
	}
	for _, o := range it.Options {
		if !matches(o, it.Answer) {
			return o
		}
	}
	return "?"
}
