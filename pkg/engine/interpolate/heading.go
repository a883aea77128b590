package interpolate

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

// SegmentHeading returns the direction from a to b in degrees [0,360).
// ok is false if both samples share the same position.
func SegmentHeading(a, b model.Sample) (deg float64, ok bool) {
	d := r2.Sub(r2.Vec{X: b.X, Y: b.Y}, r2.Vec{X: a.X, Y: a.Y})
	if r2.Norm(d) == 0 {
		return 0, false
	}
	return normalize(math.Atan2(d.Y, d.X) * 180 / math.Pi), true
}

// ShortestRotation returns the signed rotation in (-180,180] that turns from into to.
func ShortestRotation(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// HeadingTracker computes the heading once per segment. Between segments the
// rotation is accumulated along the shortest path, so the returned rotation is
// continuous (it may leave [0,360)) while the heading stays normalized.
type HeadingTracker struct {
	floor    int
	valid    bool
	heading  float64
	rotation float64
}

func (h *HeadingTracker) Update(seg *Segment) (heading, rotation float64) {
	if h.valid && seg.Floor == h.floor {
		return h.heading, h.rotation
	}
	next, ok := SegmentHeading(seg.A, seg.B)
	h.floor = seg.Floor
	if !ok {
		// standing still, keep what we have
		return h.heading, h.rotation
	}
	if !h.valid {
		h.rotation = next
	} else {
		h.rotation += ShortestRotation(h.heading, next)
	}
	h.heading = next
	h.valid = true
	return h.heading, h.rotation
}

func (h *HeadingTracker) Reset() {
	*h = HeadingTracker{}
}
