//nolint:funlen // ok for tests
package sector

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/testsupport/sampledata"
)

func linearMeta() *model.SectorMeta {
	return &model.SectorMeta{
		Sector1End:  100,
		Sector2End:  200,
		TrackLength: 400,
		Colors:      []string{"purple", "green", "yellow"},
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		bounds [NumSectors][2]int
		empty  [NumSectors]bool
	}{
		{
			name:   "full lap",
			n:      41,
			bounds: [NumSectors][2]int{{0, 11}, {11, 21}, {21, 40}},
		},
		{
			name:   "sector 3 not recorded",
			n:      15,
			bounds: [NumSectors][2]int{{0, 11}, {11, 14}, {}},
			empty:  [NumSectors]bool{false, false, true},
		},
		{
			name:   "only sector 1",
			n:      5,
			bounds: [NumSectors][2]int{{0, 4}, {}, {}},
			empty:  [NumSectors]bool{false, true, true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Partition(sampledata.Linear(tt.n), linearMeta())
			for s := range NumSectors {
				p := g.Paths[s]
				assert.Equal(t, tt.empty[s], p.Empty(), "sector %d", s)
				if tt.empty[s] {
					continue
				}
				assert.Equal(t, tt.bounds[s], [2]int{p.First, p.Last}, "sector %d", s)
				assert.Len(t, p.Points, p.Last-p.First+1)
			}
		})
	}
}

func TestPartition_sharedBoundary(t *testing.T) {
	g := Partition(sampledata.SampleLap(100), sampledata.SampleSectors())
	assert.Equal(t, 31, g.Paths[0].Last)
	assert.Equal(t, 65, g.Paths[1].Last)
	// the last point of a sector is the first point of the next one
	for s := range NumSectors - 1 {
		cur, next := g.Paths[s], g.Paths[s+1]
		assert.Equal(t, cur.Last, next.First)
		if diff := cmp.Diff(cur.Points[len(cur.Points)-1], next.Points[0]); diff != "" {
			t.Errorf("boundary mismatch (-want +got):\n%s", diff)
		}
	}
	assert.Equal(t, 0, g.Sector(31))
	assert.Equal(t, 1, g.Sector(32))
	assert.Equal(t, 2, g.Sector(99))
	assert.Equal(t, -1, g.Sector(100))
}

func TestPartition_bounds(t *testing.T) {
	g := Partition(sampledata.Linear(41), linearMeta())
	assert.Equal(t, r2.Vec{X: 0, Y: 0}, g.Min)
	assert.Equal(t, r2.Vec{X: 400, Y: 0}, g.Max)
}

func TestTracker_Update(t *testing.T) {
	tr := NewTracker(linearMeta())
	assert.Equal(t, [NumSectors]float64{100, 200, 200}, tr.Thresholds())

	tests := []struct {
		name     string
		distance float64
		reached  [NumSectors]bool
	}{
		{name: "start", distance: 0, reached: [NumSectors]bool{}},
		{name: "on threshold 1", distance: 100, reached: [NumSectors]bool{}},
		{name: "after threshold 1", distance: 100.5, reached: [NumSectors]bool{true}},
		{name: "lap wrap keeps state", distance: 5, reached: [NumSectors]bool{true}},
		{name: "after threshold 2", distance: 250, reached: [NumSectors]bool{true, true, true}},
	}
	// cases run in order, the tracker latches
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.Update(tt.distance)
			for s := range NumSectors {
				assert.Equal(t, tt.reached[s], got[s].Reached, "sector %d", s)
				assert.Equal(t, s, got[s].Sector)
			}
		})
	}
}

func TestTracker_colors(t *testing.T) {
	meta := sampledata.SampleSectors()
	tr := NewTracker(meta, WithNeutralColor("gray"))
	got := tr.Update(3300)
	assert.Equal(t, []string{"purple", "green", "gray"},
		[]string{got[0].Color, got[1].Color, got[2].Color})

	got = tr.Update(meta.TrackLength - DefaultSector3Margin + 1)
	assert.Equal(t, "yellow", got[2].Color)

	tr.Reset()
	for _, h := range tr.Highlights() {
		assert.False(t, h.Reached)
		assert.Equal(t, "gray", h.Color)
	}
}

func TestTracker_sector3Margin(t *testing.T) {
	meta := sampledata.SampleSectors()
	tests := []struct {
		name     string
		margin   float64
		distance float64
		want     bool
	}{
		{name: "default before margin", margin: DefaultSector3Margin, distance: 4800, want: false},
		{name: "default after margin", margin: DefaultSector3Margin, distance: 4801, want: true},
		{name: "no margin", margin: 0, distance: 4900, want: false},
		{name: "wide margin", margin: 1000, distance: 4001, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(meta, WithSector3Margin(tt.margin))
			got := tr.Update(tt.distance)
			assert.Equal(t, tt.want, got[2].Reached)
		})
	}
}

func TestTracker_missingColorUsesNeutral(t *testing.T) {
	meta := linearMeta()
	meta.Colors = []string{"purple"}
	tr := NewTracker(meta)
	got := tr.Update(1000)
	assert.Equal(t, "purple", got[0].Color)
	assert.Equal(t, DefaultNeutralColor, got[1].Color)
	assert.True(t, got[1].Reached)
}
