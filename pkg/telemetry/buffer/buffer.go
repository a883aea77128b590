// Package buffer holds the telemetry samples of the loaded session.
//
// The buffer is an owned arena: Load copies the incoming samples, callers address
// entries by index only. Entries that playback has already visited may be
// overwritten by attack injection. Such an overwrite is permanent for the session,
// later reads (including the analysis snapshot) see the corrupted value. Only a new
// Load restores ground truth.
//
// A Buffer is not safe for concurrent use, it belongs to the goroutine driving the
// replay.
package buffer

import (
	"fmt"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

// Reader is the read side used by interpolation and overlay projection.
type Reader interface {
	Len() int
	Get(i int) (model.Sample, error)
}

type Buffer struct {
	samples []model.Sample
	meta    *model.SectorMeta
	visited int // highest index reached by playback, -1 if none
}

func New() *Buffer {
	return &Buffer{visited: -1}
}

// Load replaces samples and metadata. On error the previous content is kept.
func (b *Buffer) Load(samples []model.Sample, meta *model.SectorMeta) error {
	if len(samples) == 0 {
		return fmt.Errorf("%w: empty telemetry", model.ErrInvalidSessionData)
	}
	if meta == nil {
		return fmt.Errorf("%w: missing sector metadata", model.ErrInvalidSessionData)
	}
	if err := meta.Validate(); err != nil {
		return err
	}
	for i := range samples {
		if err := samples[i].Validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	arena := make([]model.Sample, len(samples))
	copy(arena, samples)
	b.samples = arena
	b.meta = meta.Clone()
	b.visited = -1
	return nil
}

func (b *Buffer) Len() int {
	return len(b.samples)
}

// Meta returns the sector metadata of the loaded session, nil after Clear.
func (b *Buffer) Meta() *model.SectorMeta {
	return b.meta
}

func (b *Buffer) Get(i int) (model.Sample, error) {
	if i < 0 || i >= len(b.samples) {
		return model.Sample{}, fmt.Errorf("%w: %d not in [0,%d)",
			model.ErrIndexOutOfRange, i, len(b.samples))
	}
	return b.samples[i], nil
}

// Visit records that playback reached index i.
func (b *Buffer) Visit(i int) {
	if i >= len(b.samples) {
		i = len(b.samples) - 1
	}
	if i > b.visited {
		b.visited = i
	}
}

// Visited returns the highest index playback reached, -1 if none.
func (b *Buffer) Visited() int {
	return b.visited
}

// Overwrite replaces entry i. Only indices already visited may be overwritten.
func (b *Buffer) Overwrite(i int, s model.Sample) error {
	if i < 0 || i >= len(b.samples) {
		return fmt.Errorf("%w: %d not in [0,%d)",
			model.ErrIndexOutOfRange, i, len(b.samples))
	}
	if i > b.visited {
		return fmt.Errorf("%w: %d (visited up to %d)", model.ErrNotVisited, i, b.visited)
	}
	b.samples[i] = s
	return nil
}

// Clear empties the buffer and discards the metadata.
func (b *Buffer) Clear() {
	b.samples = nil
	b.meta = nil
	b.visited = -1
}

// Snapshot returns a copy of all samples.
func (b *Buffer) Snapshot() []model.Sample {
	ret := make([]model.Sample, len(b.samples))
	copy(ret, b.samples)
	return ret
}

// Channels splits the current content into per channel arrays as expected by the
// analysis service.
func (b *Buffer) Channels() model.AnalysisRequest {
	n := len(b.samples)
	req := model.AnalysisRequest{
		Speed:    make([]float64, n),
		RPM:      make([]float64, n),
		Throttle: make([]float64, n),
		Brake:    make([]float64, n),
		Gear:     make([]float64, n),
		DRS:      make([]float64, n),
		X:        make([]float64, n),
		Y:        make([]float64, n),
		Distance: make([]float64, n),
	}
	for i := range b.samples {
		s := &b.samples[i]
		req.Speed[i] = s.Speed
		req.RPM[i] = s.RPM
		req.Throttle[i] = s.Throttle
		req.Brake[i] = s.Brake
		req.Gear[i] = float64(s.Gear)
		req.DRS[i] = float64(s.DRS)
		req.X[i] = s.X
		req.Y[i] = s.Y
		req.Distance[i] = s.Distance
	}
	return req
}
