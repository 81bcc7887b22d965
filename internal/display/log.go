package display

import "github.com/rs/zerolog"

// LogSink writes every update as a debug-level log line. Used by headless runs.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink that logs through l.
func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{log: l.With().Str("component", "display").Logger()}
}

func (s *LogSink) Publish(u Update) {
	ev := s.log.Debug()
	if u.Danger {
		ev = s.log.Info()
	}
	ev.Str("slot", u.Slot).Bool("danger", u.Danger).Msg(u.Text)
}
