package attack

import (
	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/interpolate"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/telemetry/buffer"
)

// Store is the part of the telemetry buffer the pipeline needs.
type Store interface {
	buffer.Reader
	Overwrite(i int, s model.Sample) error
}

type (
	Pipeline struct {
		Machine
		params  Params
		applied map[int]uint8 // bit per vector already persisted at an index
		pre     map[int]preImage
		l       *log.Logger
	}
	Option func(*Pipeline)
)

// preImage is the entry at an index before the last persisted corruption.
type preImage struct {
	v Vector
	s model.Sample
}

func WithParams(p Params) Option {
	return func(pl *Pipeline) {
		pl.params = p
	}
}

func WithLogger(l *log.Logger) Option {
	return func(pl *Pipeline) {
		pl.l = l
	}
}

func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		params:  DefaultParams(),
		applied: make(map[int]uint8),
		pre:     make(map[int]preImage),
		l:       log.Default().Named("engine.attack"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Params() Params {
	return p.params
}

// Inject applies the active vector to the current segment.
//
// The floor entry is corrupted in the store (once per vector and index, repeated
// ticks on the same segment must not accumulate drift) and stays corrupted after
// the vector is switched off. The returned sample is the transform applied to the
// interpolated sample, interpolated from the floor entry as it was before this
// vector corrupted it. mutated reports whether the store was written.
func (p *Pipeline) Inject(store Store, seg *interpolate.Segment) (
	s model.Sample, mutated bool, err error,
) {
	v := p.Active()
	if v == None {
		return seg.Sample, false, nil
	}
	bit := uint8(1) << uint(v)
	base := seg.A
	if p.applied[seg.Floor]&bit == 0 {
		if err = store.Overwrite(seg.Floor, p.params.Transform(v, seg.A)); err != nil {
			return seg.Sample, false, err
		}
		p.applied[seg.Floor] |= bit
		p.pre[seg.Floor] = preImage{v: v, s: seg.A}
		mutated = true
		p.l.Debug("persisted attack",
			log.String("vector", v.String()), log.Int("index", seg.Floor))
	} else if pi, ok := p.pre[seg.Floor]; ok && pi.v == v {
		base = pi.s
	}
	return p.params.Transform(v, interpolate.Lerp(base, seg.B, seg.Frac)), mutated, nil
}

// Corrupted reports whether vector v has been persisted at index i.
func (p *Pipeline) Corrupted(i int, v Vector) bool {
	return p.applied[i]&(uint8(1)<<uint(v)) != 0
}

// Forget drops the bookkeeping of persisted corruptions and deactivates the
// pipeline. Called when the buffer content is replaced.
func (p *Pipeline) Forget() {
	p.applied = make(map[int]uint8)
	p.pre = make(map[int]preImage)
	p.Machine.Reset()
}
