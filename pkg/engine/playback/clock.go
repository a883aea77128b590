// Package playback advances a fractional buffer index at a configurable rate.
package playback

import (
	"time"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Tick is one frame signal. Seq increases monotonically per delivered frame,
// Delta is the elapsed time since the previous frame.
type Tick struct {
	Seq   uint64
	At    time.Time
	Delta time.Duration
}

const (
	DefaultSamplePeriod = 100 * time.Millisecond
	DefaultStartOffset  = 10.0
)

type (
	Clock struct {
		samplePeriod time.Duration
		speed        float64
		startOffset  float64
		index        float64
		state        State
		length       int
		lastSeq      uint64
		seenTick     bool
	}
	Option func(*Clock)
)

func WithSamplePeriod(d time.Duration) Option {
	return func(c *Clock) {
		c.samplePeriod = d
	}
}

func WithSpeed(f float64) Option {
	return func(c *Clock) {
		c.speed = f
	}
}

func WithStartOffset(o float64) Option {
	return func(c *Clock) {
		c.startOffset = o
	}
}

func NewClock(opts ...Option) *Clock {
	c := &Clock{
		samplePeriod: DefaultSamplePeriod,
		speed:        1,
		startOffset:  DefaultStartOffset,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.index = c.clampStart()
	return c
}

// SetLength announces the number of samples in the buffer and resets the clock.
func (c *Clock) SetLength(n int) {
	c.length = n
	c.Reset()
}

func (c *Clock) Start() error {
	if c.length == 0 {
		return model.ErrNoData
	}
	c.state = Running
	return nil
}

func (c *Clock) Stop() {
	c.state = Stopped
}

// Reset stops the clock and rewinds to the start offset.
func (c *Clock) Reset() {
	c.state = Stopped
	c.index = c.clampStart()
}

func (c *Clock) SetSpeed(f float64) {
	if f > 0 {
		c.speed = f
	}
}

func (c *Clock) Speed() float64 {
	return c.speed
}

func (c *Clock) State() State {
	return c.state
}

func (c *Clock) Running() bool {
	return c.state == Running
}

func (c *Clock) Index() float64 {
	return c.index
}

// Last returns the highest index that still has a trailing sample.
func (c *Clock) Last() float64 {
	return float64(max(c.length-2, 0))
}

// Advance moves the index according to tick. Stale ticks (seq not greater than
// the last accepted one) and ticks while stopped leave the index untouched.
// ended is true exactly for the tick that hit the end of the buffer.
func (c *Clock) Advance(tick Tick) (advanced, ended bool) {
	if c.state != Running {
		return false, false
	}
	if c.seenTick && tick.Seq <= c.lastSeq {
		return false, false
	}
	c.lastSeq = tick.Seq
	c.seenTick = true
	if tick.Delta <= 0 {
		return false, false
	}
	inc := float64(tick.Delta) / float64(c.samplePeriod) * c.speed
	next := c.index + inc
	if next >= c.Last() {
		c.index = c.Last()
		c.state = Stopped
		return true, true
	}
	c.index = next
	return true, false
}

func (c *Clock) clampStart() float64 {
	if c.length == 0 {
		return c.startOffset
	}
	return min(c.startOffset, c.Last())
}
