// Package engine owns a replay session: the telemetry buffer and everything that
// is derived from it on each tick.
//
// An Engine is not safe for concurrent use. Runner drives it from a single
// goroutine and serializes all commands with the frame ticks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/analysis/overlay"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/attack"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/interpolate"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/playback"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/sector"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/telemetry/buffer"
)

type (
	Engine struct {
		buf       *buffer.Buffer
		clock     *playback.Clock
		pipeline  *attack.Pipeline
		heading   interpolate.HeadingTracker
		geometry  *sector.Geometry
		tracker   *sector.Tracker
		series    *frame.Series
		overlay   *overlay.Overlay
		mapMode   frame.MapMode
		sessionID string
		key       model.SessionKey
		last      *frame.Frame

		clockOpts  []playback.Option
		sectorOpts []sector.Option
		params     attack.Params
		timesteps  int
		metrics    *engineMetrics
		l          *log.Logger
	}
	Option func(*Engine)
)

// State is a summary of the engine for status queries.
type State struct {
	SessionID string           `json:"sessionId,omitempty"`
	Session   model.SessionKey `json:"session"`
	Loaded    bool             `json:"loaded"`
	Samples   int              `json:"samples"`
	Index     float64          `json:"index"`
	Playback  string           `json:"playback"`
	Speed     float64          `json:"speed"`
	Attack    string           `json:"attack"`
	MapMode   frame.MapMode    `json:"mapMode"`
	Visited   int              `json:"visited"`
	Anomalies int              `json:"anomalies"`
}

func WithClockOptions(opts ...playback.Option) Option {
	return func(e *Engine) {
		e.clockOpts = append(e.clockOpts, opts...)
	}
}

func WithSectorOptions(opts ...sector.Option) Option {
	return func(e *Engine) {
		e.sectorOpts = append(e.sectorOpts, opts...)
	}
}

func WithAttackParams(p attack.Params) Option {
	return func(e *Engine) {
		e.params = p
	}
}

// WithTimesteps sets the window size of the analysis model, used to derive
// anomaly indices if the analysis result does not carry them.
func WithTimesteps(n int) Option {
	return func(e *Engine) {
		e.timesteps = n
	}
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		buf:       buffer.New(),
		series:    frame.NewSeries(),
		mapMode:   frame.MapModeSectors,
		params:    attack.DefaultParams(),
		timesteps: overlay.DefaultTimesteps,
		l:         log.Default().Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.clock = playback.NewClock(e.clockOpts...)
	e.pipeline = attack.NewPipeline(
		attack.WithParams(e.params),
		attack.WithLogger(e.l.Named("attack")))
	e.metrics = newEngineMetrics(e.l)
	return e
}

// Load replaces the session. On error the engine keeps its previous state.
func (e *Engine) Load(data *model.SessionData) error {
	if data == nil {
		return fmt.Errorf("%w: no session", model.ErrInvalidSessionData)
	}
	if err := e.buf.Load(data.Samples, &data.Sectors); err != nil {
		e.l.Warn("rejected session", log.String("session", data.Key.String()),
			log.ErrorField(err))
		return err
	}
	e.sessionID = uuid.NewString()
	e.key = data.Key
	e.clock.SetLength(e.buf.Len())
	e.pipeline.Forget()
	e.heading.Reset()
	e.geometry = sector.Partition(data.Samples, e.buf.Meta())
	e.tracker = sector.NewTracker(e.buf.Meta(), e.sectorOpts...)
	e.series.Reset()
	e.overlay = nil
	e.last = nil
	e.metrics.loaded.Store(int64(e.buf.Len()))
	e.metrics.visited.Store(-1)
	e.l.Info("session loaded",
		log.String("id", e.sessionID),
		log.String("session", e.key.String()),
		log.Int("samples", e.buf.Len()))
	return nil
}

// Clear drops the session.
func (e *Engine) Clear() {
	e.buf.Clear()
	e.clock.SetLength(0)
	e.pipeline.Forget()
	e.heading.Reset()
	e.geometry = nil
	e.tracker = nil
	e.series.Reset()
	e.overlay = nil
	e.last = nil
	e.sessionID = ""
	e.key = model.SessionKey{}
	e.metrics.loaded.Store(0)
	e.metrics.visited.Store(-1)
	e.l.Info("session cleared")
}

func (e *Engine) Loaded() bool {
	return e.buf.Len() > 0
}

func (e *Engine) SessionID() string {
	return e.sessionID
}

func (e *Engine) Start() error {
	return e.clock.Start()
}

func (e *Engine) Stop() {
	e.clock.Stop()
}

func (e *Engine) Running() bool {
	return e.clock.Running()
}

// Reset rewinds playback to the start offset. Corrupted buffer entries stay
// corrupted, the attack vector stays active.
func (e *Engine) Reset() {
	e.clock.Reset()
	e.heading.Reset()
	if e.tracker != nil {
		e.tracker.Reset()
	}
	e.series.Reset()
	e.last = nil
}

func (e *Engine) ToggleAttack(v attack.Vector) attack.Vector {
	ret := e.pipeline.Toggle(v)
	e.l.Info("attack toggled", log.String("active", ret.String()))
	return ret
}

func (e *Engine) SetAttack(v attack.Vector) {
	e.pipeline.Set(v)
}

func (e *Engine) Attack() attack.Vector {
	return e.pipeline.Active()
}

func (e *Engine) SetMapMode(m frame.MapMode) {
	e.mapMode = m
}

func (e *Engine) SetSpeed(f float64) {
	e.clock.SetSpeed(f)
}

// SetOverlay replaces the anomaly overlay. The buffer is not touched.
func (e *Engine) SetOverlay(res *model.AnalysisResult) *overlay.Overlay {
	e.overlay = overlay.Build(res, overlay.WithTimesteps(e.timesteps))
	e.l.Info("overlay set",
		log.Int("windows", len(res.IsAnomaly)),
		log.Int("anomalies", e.overlay.Len()))
	return e.overlay
}

func (e *Engine) Overlay() *overlay.Overlay {
	return e.overlay
}

// Findings classifies the overlay entries against the current buffer content.
func (e *Engine) Findings() []overlay.Finding {
	if e.overlay == nil {
		return nil
	}
	return e.overlay.Findings(e.buf)
}

// Tick advances playback and assembles the frame for the new position.
// A nil frame is returned for ticks that did not advance the clock.
func (e *Engine) Tick(ctx context.Context, t playback.Tick) (*frame.Frame, error) {
	advanced, ended := e.clock.Advance(t)
	if !advanced {
		return nil, nil
	}
	e.metrics.add(ctx, e.metrics.ticks)
	f, err := e.render(ctx, t.Seq, t.At, ended)
	if ended {
		e.metrics.add(ctx, e.metrics.endOfStream)
		e.l.Info("end of stream reached", log.Float64("index", e.clock.Index()))
	}
	return f, err
}

func (e *Engine) render(ctx context.Context, seq uint64, at time.Time, ended bool) (
	*frame.Frame, error,
) {
	seg, err := interpolate.AtIndex(e.buf, e.clock.Index())
	if errors.Is(err, model.ErrEndOfStream) {
		// a single sample session has no segment to show
		e.clock.Stop()
		return nil, nil
	}
	if err != nil {
		e.l.Error("interpolation failed", log.Float64("index", e.clock.Index()),
			log.ErrorField(err))
		e.clock.Stop()
		return nil, err
	}
	e.buf.Visit(seg.Floor)
	e.metrics.visited.Store(int64(e.buf.Visited()))

	s, mutated, err := e.pipeline.Inject(e.buf, &seg)
	if err != nil {
		e.l.Error("attack injection failed", log.Int("index", seg.Floor),
			log.ErrorField(err))
		e.clock.Stop()
		return nil, err
	}
	if mutated {
		e.metrics.add(ctx, e.metrics.injections,
			attribute.String("vector", e.pipeline.Active().String()))
	}
	heading, rotation := e.heading.Update(&seg)
	highlights := e.tracker.Update(s.Distance)
	if err := e.series.Update(e.buf, seg.Floor, seg.Frac, s); err != nil {
		return nil, err
	}
	var markers []overlay.Marker
	if e.overlay != nil {
		markers = e.overlay.Project(e.buf)
	}
	e.last = frame.Assemble(&frame.Input{
		Seq:       seq,
		SessionID: e.sessionID,
		At:        at,
		Running:   e.clock.Running(),
		Ended:     ended,
		Segment:   &seg,
		Sample:    s,
		Heading:   heading,
		Rotation:  rotation,
		Attack:    e.pipeline.Active(),
		MapMode:   e.mapMode,
		Sectors:   highlights,
		Anomalies: markers,
	})
	e.metrics.add(ctx, e.metrics.frames)
	return e.last, nil
}

// LastFrame returns the most recent frame, nil before the first tick.
func (e *Engine) LastFrame() *frame.Frame {
	return e.last
}

// Series returns the chart points of channel c.
func (e *Engine) Series(c model.Channel) []frame.Point {
	return e.series.Series(c)
}

func (e *Engine) Geometry() *sector.Geometry {
	return e.geometry
}

// Sample returns the current content of buffer entry i.
func (e *Engine) Sample(i int) (model.Sample, error) {
	return e.buf.Get(i)
}

// Samples returns a copy of the buffer content.
func (e *Engine) Samples() []model.Sample {
	return e.buf.Snapshot()
}

// AnalysisRequest builds the analysis payload from the current buffer content,
// including entries corrupted by attack injection.
func (e *Engine) AnalysisRequest() (*model.AnalysisRequest, error) {
	if !e.Loaded() {
		return nil, model.ErrNoData
	}
	req := e.buf.Channels()
	req.Metadata = model.AnalysisSession{
		SessionID: e.sessionID,
		Year:      e.key.Year,
		GP:        e.key.Location,
		Session:   e.key.SessionType,
		Driver:    e.key.Driver,
	}
	return &req, nil
}

func (e *Engine) State() State {
	ret := State{
		SessionID: e.sessionID,
		Session:   e.key,
		Loaded:    e.Loaded(),
		Samples:   e.buf.Len(),
		Index:     e.clock.Index(),
		Playback:  e.clock.State().String(),
		Speed:     e.clock.Speed(),
		Attack:    e.pipeline.Active().String(),
		MapMode:   e.mapMode,
		Visited:   e.buf.Visited(),
	}
	if e.overlay != nil {
		ret.Anomalies = e.overlay.Len()
	}
	return ret
}
