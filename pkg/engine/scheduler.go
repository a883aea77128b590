package engine

import (
	"time"

	"github.com/mpapenbr/sentinel-replay/pkg/utils/timeutil"
)

const DefaultFrameRate = 60

// Scheduler delivers frame signals. Each Request yields at most one signal,
// the owner asks for the next one after it handled the current signal.
type Scheduler interface {
	// Request registers the next frame. A pending request is replaced.
	Request() <-chan time.Time
	// Cancel drops the pending request. No signal of it is delivered afterwards.
	Cancel()
}

type (
	FrameScheduler struct {
		clock    timeutil.Clock
		interval time.Duration
		timer    timeutil.Timer
	}
	SchedulerOption func(*FrameScheduler)
)

func WithClock(c timeutil.Clock) SchedulerOption {
	return func(s *FrameScheduler) {
		s.clock = c
	}
}

func WithFrameRate(fps int) SchedulerOption {
	return func(s *FrameScheduler) {
		if fps > 0 {
			s.interval = time.Second / time.Duration(fps)
		}
	}
}

func NewFrameScheduler(opts ...SchedulerOption) *FrameScheduler {
	s := &FrameScheduler{
		clock:    timeutil.RealClock{},
		interval: time.Second / DefaultFrameRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FrameScheduler) Interval() time.Duration {
	return s.interval
}

func (s *FrameScheduler) Request() <-chan time.Time {
	s.Cancel()
	s.timer = s.clock.NewTimer(s.interval)
	return s.timer.C()
}

func (s *FrameScheduler) Cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
