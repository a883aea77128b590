// Package sector splits the track into its three sectors and tracks which sectors
// the replay has completed.
package sector

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

const NumSectors = 3

// Path is the drawn polyline of one sector. First and Last are buffer indices,
// both inclusive.
type Path struct {
	First  int
	Last   int
	Points []r2.Vec
}

func (p Path) Empty() bool {
	return len(p.Points) == 0
}

// Geometry is computed once per loaded session.
type Geometry struct {
	Paths [NumSectors]Path
	Min   r2.Vec
	Max   r2.Vec
}

// Partition splits the positions of samples at the first index whose distance
// exceeds Sector1End and Sector2End. The boundary sample belongs to both adjacent
// paths so the drawn track has no gaps.
func Partition(samples []model.Sample, meta *model.SectorMeta) *Geometry {
	g := &Geometry{}
	n := len(samples)
	if n == 0 {
		return g
	}
	b1 := firstAbove(samples, 0, meta.Sector1End)
	b2 := n - 1
	if b1 < n-1 {
		b2 = firstAbove(samples, b1, meta.Sector2End)
	}
	bounds := [NumSectors][2]int{{0, b1}, {b1, b2}, {b2, n - 1}}
	for s, b := range bounds {
		if s > 0 && b[0] == n-1 {
			// sector never reached in this recording
			continue
		}
		g.Paths[s] = makePath(samples, b[0], b[1])
	}

	g.Min = r2.Vec{X: samples[0].X, Y: samples[0].Y}
	g.Max = g.Min
	for i := range samples {
		g.Min.X = min(g.Min.X, samples[i].X)
		g.Min.Y = min(g.Min.Y, samples[i].Y)
		g.Max.X = max(g.Max.X, samples[i].X)
		g.Max.Y = max(g.Max.Y, samples[i].Y)
	}
	return g
}

// Sector returns the sector (0-based) the buffer index i is drawn in.
// Boundary samples report the earlier sector.
func (g *Geometry) Sector(i int) int {
	for s := range g.Paths {
		p := g.Paths[s]
		if !p.Empty() && i >= p.First && i <= p.Last {
			return s
		}
	}
	return -1
}

// firstAbove returns the first index >= from with Distance > threshold,
// or the last index if there is none.
func firstAbove(samples []model.Sample, from int, threshold float64) int {
	for i := from; i < len(samples); i++ {
		if samples[i].Distance > threshold {
			return i
		}
	}
	return len(samples) - 1
}

func makePath(samples []model.Sample, first, last int) Path {
	p := Path{First: first, Last: last, Points: make([]r2.Vec, 0, last-first+1)}
	for i := first; i <= last; i++ {
		p.Points = append(p.Points, r2.Vec{X: samples[i].X, Y: samples[i].Y})
	}
	return p
}
