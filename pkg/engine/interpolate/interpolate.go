// Package interpolate computes continuous-time samples between two buffer entries.
package interpolate

import (
	"fmt"
	"math"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/telemetry/buffer"
)

// Segment describes the position of a fractional index between the buffer entries
// A (at Floor) and B (at Floor+1).
type Segment struct {
	Floor  int
	Frac   float64
	A      model.Sample
	B      model.Sample
	Sample model.Sample // interpolated
}

// Index returns the fractional index of the segment position.
func (s *Segment) Index() float64 {
	return float64(s.Floor) + s.Frac
}

// AtIndex splits t into floor and fraction and interpolates.
func AtIndex(src buffer.Reader, t float64) (Segment, error) {
	if t < 0 || math.IsNaN(t) {
		return Segment{}, fmt.Errorf("%w: fractional index %v", model.ErrIndexOutOfRange, t)
	}
	floor := math.Floor(t)
	return At(src, int(floor), t-floor)
}

// At interpolates between the entries at floor and floor+1.
// frac is expected in [0,1], values outside are clamped.
func At(src buffer.Reader, floor int, frac float64) (Segment, error) {
	if floor < 0 {
		return Segment{}, fmt.Errorf("%w: floor %d", model.ErrIndexOutOfRange, floor)
	}
	if floor+1 >= src.Len() {
		return Segment{}, fmt.Errorf("%w: no sample after %d (len %d)",
			model.ErrEndOfStream, floor, src.Len())
	}
	a, err := src.Get(floor)
	if err != nil {
		return Segment{}, err
	}
	b, err := src.Get(floor + 1)
	if err != nil {
		return Segment{}, err
	}
	frac = math.Max(0, math.Min(1, frac))
	return Segment{Floor: floor, Frac: frac, A: a, B: b, Sample: Lerp(a, b, frac)}, nil
}

// Lerp interpolates the continuous channels of a and b. Gear and DRS are taken
// from a, a gear "in between" does not exist.
func Lerp(a, b model.Sample, frac float64) model.Sample {
	return model.Sample{
		Speed:    lerp(a.Speed, b.Speed, frac),
		RPM:      lerp(a.RPM, b.RPM, frac),
		Throttle: lerp(a.Throttle, b.Throttle, frac),
		Brake:    lerp(a.Brake, b.Brake, frac),
		Gear:     a.Gear,
		DRS:      a.DRS,
		X:        lerp(a.X, b.X, frac),
		Y:        lerp(a.Y, b.Y, frac),
		Distance: lerp(a.Distance, b.Distance, frac),
	}
}

// lerp reproduces the end points exactly, a+(b-a)*1 may be off by one ulp.
func lerp(a, b, frac float64) float64 {
	switch frac {
	case 0:
		return a
	case 1:
		return b
	default:
		return a + (b-a)*frac
	}
}
