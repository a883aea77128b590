package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/analysis/overlay"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/attack"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/playback"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/sector"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/output"
	"github.com/mpapenbr/sentinel-replay/pkg/utils/timeutil"
)

var (
	ErrSessionChanged = errors.New("session changed while analysis was running")
	ErrNoAnalyzer     = errors.New("no analysis service configured")
	ErrNoLoader       = errors.New("no session loader configured")
)

// Analyzer submits telemetry to the analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error)
}

// Loader fetches a session.
type Loader interface {
	Load(ctx context.Context, key model.SessionKey) (*model.SessionData, error)
}

type (
	// Runner is the event loop of an Engine. Commands and frame signals are
	// handled one at a time on the goroutine calling Run.
	Runner struct {
		e        *Engine
		sched    Scheduler
		clock    timeutil.Clock
		sink     output.Sink
		analyzer Analyzer
		loader   Loader
		cmds     chan command
		pending  <-chan time.Time
		seq      uint64
		lastAt   time.Time
		l        *log.Logger
	}
	RunnerOption func(*Runner)
	command      func(ctx context.Context)
)

func WithScheduler(s Scheduler) RunnerOption {
	return func(r *Runner) {
		r.sched = s
	}
}

// WithRunnerClock sets the clock used to measure the first frame delta after
// a start. It must be the clock of the scheduler.
func WithRunnerClock(c timeutil.Clock) RunnerOption {
	return func(r *Runner) {
		r.clock = c
	}
}

func WithSink(s output.Sink) RunnerOption {
	return func(r *Runner) {
		r.sink = s
	}
}

func WithAnalyzer(a Analyzer) RunnerOption {
	return func(r *Runner) {
		r.analyzer = a
	}
}

func WithLoader(l Loader) RunnerOption {
	return func(r *Runner) {
		r.loader = l
	}
}

func NewRunner(e *Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		e:     e,
		clock: timeutil.RealClock{},
		sink:  output.Discard,
		cmds:  make(chan command),
		l:     log.Default().Named("engine.runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sched == nil {
		r.sched = NewFrameScheduler(WithClock(r.clock))
	}
	return r
}

// Run processes commands and frames until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.l.Debug("runner started")
	defer r.cancelFrame()
	for {
		select {
		case <-ctx.Done():
			r.l.Debug("runner stopped")
			return nil
		case cmd := <-r.cmds:
			cmd(ctx)
		case at := <-r.pending:
			r.pending = nil
			r.tick(ctx, at)
		}
	}
}

func (r *Runner) tick(ctx context.Context, at time.Time) {
	r.seq++
	delta := at.Sub(r.lastAt)
	r.lastAt = at
	f, err := r.e.Tick(ctx, playback.Tick{Seq: r.seq, At: at, Delta: delta})
	if err != nil {
		r.l.Error("tick aborted", log.Uint64("seq", r.seq), log.ErrorField(err))
	}
	if f != nil {
		if err := r.sink.Publish(ctx, f); err != nil {
			r.l.Warn("could not publish frame", log.Uint64("seq", f.Seq),
				log.ErrorField(err))
		}
	}
	if r.e.Running() {
		r.requestFrame()
	}
}

func (r *Runner) requestFrame() {
	r.pending = r.sched.Request()
}

func (r *Runner) cancelFrame() {
	r.sched.Cancel()
	r.pending = nil
}

// call executes fn on the loop goroutine and waits for its result.
func call[T any](ctx context.Context, r *Runner, fn func(ctx context.Context) (T, error)) (
	T, error,
) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	cmd := func(loopCtx context.Context) {
		v, err := fn(loopCtx)
		done <- result{v, err}
	}
	var zero T
	select {
	case r.cmds <- cmd:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func exec(ctx context.Context, r *Runner, fn func()) error {
	_, err := call(ctx, r, func(context.Context) (struct{}, error) {
		fn()
		return struct{}{}, nil
	})
	return err
}

// Start resumes playback. Starting a running replay has no effect.
func (r *Runner) Start(ctx context.Context) error {
	_, err := call(ctx, r, func(context.Context) (struct{}, error) {
		if r.e.Running() {
			return struct{}{}, nil
		}
		if err := r.e.Start(); err != nil {
			return struct{}{}, err
		}
		r.lastAt = r.clock.Now()
		r.requestFrame()
		return struct{}{}, nil
	})
	return err
}

func (r *Runner) Stop(ctx context.Context) error {
	return exec(ctx, r, func() {
		r.cancelFrame()
		r.e.Stop()
	})
}

func (r *Runner) Reset(ctx context.Context) error {
	return exec(ctx, r, func() {
		r.cancelFrame()
		r.e.Reset()
	})
}

func (r *Runner) Clear(ctx context.Context) error {
	return exec(ctx, r, func() {
		r.cancelFrame()
		r.e.Clear()
	})
}

// Load replaces the session with data. A rejected session leaves the current
// one in place, including its playback state.
func (r *Runner) Load(ctx context.Context, data *model.SessionData) error {
	_, err := call(ctx, r, func(context.Context) (struct{}, error) {
		if err := r.e.Load(data); err != nil {
			return struct{}{}, err
		}
		// a signal requested for the replaced session must not tick the new one
		r.cancelFrame()
		return struct{}{}, nil
	})
	return err
}

// LoadSession fetches key with the configured loader and loads it. The fetch
// runs on the calling goroutine, playback continues meanwhile.
func (r *Runner) LoadSession(ctx context.Context, key model.SessionKey) error {
	if r.loader == nil {
		return ErrNoLoader
	}
	data, err := r.loader.Load(ctx, key)
	if err != nil {
		return err
	}
	return r.Load(ctx, data)
}

func (r *Runner) ToggleAttack(ctx context.Context, v attack.Vector) (attack.Vector, error) {
	return call(ctx, r, func(context.Context) (attack.Vector, error) {
		return r.e.ToggleAttack(v), nil
	})
}

func (r *Runner) SetAttack(ctx context.Context, v attack.Vector) error {
	return exec(ctx, r, func() { r.e.SetAttack(v) })
}

func (r *Runner) SetMapMode(ctx context.Context, m frame.MapMode) error {
	return exec(ctx, r, func() { r.e.SetMapMode(m) })
}

func (r *Runner) SetSpeed(ctx context.Context, f float64) error {
	return exec(ctx, r, func() { r.e.SetSpeed(f) })
}

// Submit sends the current buffer content to the analysis service and applies
// the result as overlay. The buffer is copied on the loop, the request itself
// runs on the calling goroutine.
func (r *Runner) Submit(ctx context.Context) (*overlay.Overlay, error) {
	if r.analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	req, err := call(ctx, r, func(context.Context) (*model.AnalysisRequest, error) {
		return r.e.AnalysisRequest()
	})
	if err != nil {
		return nil, err
	}
	res, err := r.analyzer.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	return call(ctx, r, func(context.Context) (*overlay.Overlay, error) {
		if r.e.SessionID() != req.Metadata.SessionID {
			return nil, fmt.Errorf("%w: %s", ErrSessionChanged, req.Metadata.SessionID)
		}
		return r.e.SetOverlay(res), nil
	})
}

func (r *Runner) State(ctx context.Context) (State, error) {
	return call(ctx, r, func(context.Context) (State, error) {
		return r.e.State(), nil
	})
}

func (r *Runner) LastFrame(ctx context.Context) (*frame.Frame, error) {
	return call(ctx, r, func(context.Context) (*frame.Frame, error) {
		return r.e.LastFrame(), nil
	})
}

func (r *Runner) Series(ctx context.Context, c model.Channel) ([]frame.Point, error) {
	return call(ctx, r, func(context.Context) ([]frame.Point, error) {
		return r.e.Series(c), nil
	})
}

// Snapshot is a consistent copy of the data needed to render the track.
type Snapshot struct {
	State     State
	Samples   []model.Sample
	Geometry  *sector.Geometry
	Frame     *frame.Frame
	Series    map[model.Channel][]frame.Point
	Findings  []overlay.Finding
	Threshold float64
}

func (r *Runner) Snapshot(ctx context.Context) (*Snapshot, error) {
	return call(ctx, r, func(context.Context) (*Snapshot, error) {
		ret := &Snapshot{
			State:    r.e.State(),
			Samples:  r.e.Samples(),
			Geometry: r.e.Geometry(),
			Frame:    r.e.LastFrame(),
			Series:   make(map[model.Channel][]frame.Point),
			Findings: r.e.Findings(),
		}
		for _, c := range model.ScalarChannels {
			ret.Series[c] = r.e.Series(c)
		}
		if o := r.e.Overlay(); o != nil {
			ret.Threshold = o.Threshold()
		}
		return ret, nil
	})
}
