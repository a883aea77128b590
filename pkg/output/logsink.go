package output

import (
	"context"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
)

type logSink struct {
	every uint64
	l     *log.Logger
}

// LogSink logs every n-th frame at debug level and the final frame of a replay
// at info level.
func LogSink(l *log.Logger, every uint64) Sink {
	return &logSink{every: max(every, 1), l: l}
}

func (s *logSink) Publish(_ context.Context, f *frame.Frame) error {
	if f.Ended {
		s.l.Info("replay ended",
			log.String("session", f.SessionID),
			log.Uint64("seq", f.Seq),
			log.Float64("index", f.Index),
			log.String("attack", f.Attack))
		return nil
	}
	if f.Seq%s.every == 0 {
		s.l.Debug("frame",
			log.Uint64("seq", f.Seq),
			log.Float64("index", f.Index),
			log.Float64("speed", f.Sample.Speed),
			log.Float64("distance", f.Sample.Distance),
			log.Float64("heading", f.Heading),
			log.String("attack", f.Attack),
			log.Int("anomalies", len(f.Anomalies)))
	}
	return nil
}
