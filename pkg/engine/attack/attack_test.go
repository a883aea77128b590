//nolint:funlen,dupl // ok for tests
package attack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/sentinel-replay/pkg/engine/interpolate"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/telemetry/buffer"
	"github.com/mpapenbr/sentinel-replay/testsupport/sampledata"
)

func TestParams_Transform(t *testing.T) {
	in := model.Sample{Speed: 250, RPM: 11000, Throttle: 95, X: 10, Y: -20, Gear: 7}
	tests := []struct {
		name string
		v    Vector
		want model.Sample
	}{
		{name: "none", v: None, want: in},
		{
			name: "sensor jam",
			v:    SensorJam,
			want: model.Sample{Speed: 250, RPM: 0, Throttle: 95, X: 10, Y: -20, Gear: 7},
		},
		{
			name: "throttle drift clamped",
			v:    ThrottleDrift,
			want: model.Sample{Speed: 250, RPM: 11000, Throttle: 100, X: 10, Y: -20, Gear: 7},
		},
		{
			name: "gps spoof",
			v:    GpsSpoof,
			want: model.Sample{Speed: 250, RPM: 11000, Throttle: 95, X: 2010, Y: 1980, Gear: 7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultParams().Transform(tt.v, in))
		})
	}
}

func TestParams_TransformThrottleBelowMax(t *testing.T) {
	got := DefaultParams().Transform(ThrottleDrift, model.Sample{Throttle: 40})
	assert.InDelta(t, 50.0, got.Throttle, 1e-9)
}

func TestMachine_Toggle(t *testing.T) {
	m := Machine{}
	assert.Equal(t, SensorJam, m.Toggle(SensorJam))
	assert.Equal(t, GpsSpoof, m.Toggle(GpsSpoof), "vectors are mutually exclusive")
	assert.Equal(t, None, m.Toggle(GpsSpoof), "re-selecting returns to none")
	assert.Equal(t, None, m.Toggle(None))
	assert.Equal(t, ThrottleDrift, m.Toggle(ThrottleDrift))
	assert.Equal(t, ThrottleDrift, m.Toggle(None), "toggling none is a no-op")
}

func TestMachine_Set(t *testing.T) {
	var m Machine
	m.Set(SensorJam)
	m.Set(SensorJam)
	assert.Equal(t, SensorJam, m.Active())
	m.Set(None)
	assert.Equal(t, None, m.Active())
}

func TestParseVector(t *testing.T) {
	for _, v := range append(Vectors(), None) {
		got, err := ParseVector(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err := ParseVector("emp")
	assert.Error(t, err)
}

func prepared(t *testing.T, samples []model.Sample, visit int) *buffer.Buffer {
	t.Helper()
	b := buffer.New()
	require.NoError(t, b.Load(samples, sampledata.SampleSectors()))
	b.Visit(visit)
	return b
}

func TestPipeline_sensorJamPersists(t *testing.T) {
	b := prepared(t, sampledata.SampleLap(100), 40)
	p := NewPipeline()
	p.Toggle(SensorJam)

	seg, err := interpolate.At(b, 40, 0.3)
	require.NoError(t, err)
	s, mutated, err := p.Inject(b, &seg)
	require.NoError(t, err)
	assert.True(t, mutated)
	assert.InDelta(t, 0.0, s.RPM, 1e-9)

	stored, _ := b.Get(40)
	assert.InDelta(t, 0.0, stored.RPM, 1e-9)

	p.Toggle(SensorJam)
	assert.Equal(t, None, p.Active())
	stored, _ = b.Get(40)
	assert.InDelta(t, 0.0, stored.RPM, 1e-9, "corruption survives deactivation")

	// the untouched neighbour keeps its value
	next, _ := b.Get(41)
	assert.NotZero(t, next.RPM)
}

func TestPipeline_frameSample(t *testing.T) {
	type tick struct {
		frac float64
		want model.Sample // only the channels of the vector are compared
	}
	tests := []struct {
		name       string
		vector     Vector
		floor      model.Sample
		trailing   model.Sample
		ticks      []tick
		wantStored model.Sample
	}{
		{
			name:     "throttle drift clamped at floor",
			vector:   ThrottleDrift,
			floor:    model.Sample{Throttle: 95},
			trailing: model.Sample{Throttle: 97},
			ticks:    []tick{{frac: 0, want: model.Sample{Throttle: 100}}},

			wantStored: model.Sample{Throttle: 100},
		},
		{
			name:     "throttle drift trailing sample near max",
			vector:   ThrottleDrift,
			floor:    model.Sample{Throttle: 60},
			trailing: model.Sample{Throttle: 100},
			ticks: []tick{
				{frac: 0.5, want: model.Sample{Throttle: 90}},
				{frac: 0.75, want: model.Sample{Throttle: 100}},
			},
			wantStored: model.Sample{Throttle: 70},
		},
		{
			name:     "throttle drift below max",
			vector:   ThrottleDrift,
			floor:    model.Sample{Throttle: 40},
			trailing: model.Sample{Throttle: 60},
			ticks: []tick{
				{frac: 0.25, want: model.Sample{Throttle: 55}},
				{frac: 0.5, want: model.Sample{Throttle: 60}},
			},
			wantStored: model.Sample{Throttle: 50},
		},
		{
			name:     "gps spoof",
			vector:   GpsSpoof,
			floor:    model.Sample{X: 100, Y: -50},
			trailing: model.Sample{X: 200, Y: 50},
			ticks: []tick{
				{frac: 0.3, want: model.Sample{X: 2130, Y: 1980}},
				{frac: 0.6, want: model.Sample{X: 2160, Y: 2010}},
			},
			wantStored: model.Sample{X: 2100, Y: 1950},
		},
		{
			name:     "sensor jam",
			vector:   SensorJam,
			floor:    model.Sample{RPM: 11000},
			trailing: model.Sample{RPM: 12000},
			ticks: []tick{
				{frac: 0.4, want: model.Sample{RPM: 0}},
				{frac: 0.9, want: model.Sample{RPM: 0}},
			},
			wantStored: model.Sample{RPM: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := sampledata.Linear(10)
			samples[3] = tt.floor
			samples[4] = tt.trailing
			b := prepared(t, samples, 3)
			p := NewPipeline()
			p.Toggle(tt.vector)

			for _, tk := range tt.ticks {
				seg, err := interpolate.At(b, 3, tk.frac)
				require.NoError(t, err)
				s, _, err := p.Inject(b, &seg)
				require.NoError(t, err)
				switch tt.vector {
				case ThrottleDrift:
					assert.InDelta(t, tk.want.Throttle, s.Throttle, 1e-9, "frac %v", tk.frac)
				case GpsSpoof:
					assert.InDelta(t, tk.want.X, s.X, 1e-9, "frac %v", tk.frac)
					assert.InDelta(t, tk.want.Y, s.Y, 1e-9, "frac %v", tk.frac)
				case SensorJam:
					assert.InDelta(t, tk.want.RPM, s.RPM, 1e-9, "frac %v", tk.frac)
				case None:
				}
			}
			stored, err := b.Get(3)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStored, stored)
			trailing, err := b.Get(4)
			require.NoError(t, err)
			assert.Equal(t, tt.trailing, trailing, "trailing entry is not written")
		})
	}
}

func TestPipeline_noAccumulationOnSameSegment(t *testing.T) {
	b := prepared(t, sampledata.Linear(10), 5)
	p := NewPipeline()
	p.Toggle(GpsSpoof)

	for _, frac := range []float64{0.1, 0.2, 0.5, 0.8} {
		seg, err := interpolate.At(b, 5, frac)
		require.NoError(t, err)
		s, _, err := p.Inject(b, &seg)
		require.NoError(t, err)
		assert.InDelta(t, (5+frac)*10+2000, s.X, 1e-9)
		assert.InDelta(t, 2000.0, s.Y, 1e-9)
	}
	stored, _ := b.Get(5)
	assert.InDelta(t, 2050.0, stored.X, 1e-9)
	assert.True(t, p.Corrupted(5, GpsSpoof))
	assert.False(t, p.Corrupted(5, SensorJam))
}

func TestPipeline_none(t *testing.T) {
	b := prepared(t, sampledata.Linear(10), 5)
	p := NewPipeline()
	seg, _ := interpolate.At(b, 5, 0.5)
	s, mutated, err := p.Inject(b, &seg)
	require.NoError(t, err)
	assert.False(t, mutated)
	assert.Equal(t, seg.Sample, s)
}

func TestPipeline_unvisitedIndexRejected(t *testing.T) {
	b := prepared(t, sampledata.Linear(10), 2)
	p := NewPipeline()
	p.Toggle(SensorJam)
	seg, _ := interpolate.At(b, 5, 0.5)
	_, _, err := p.Inject(b, &seg)
	assert.ErrorIs(t, err, model.ErrNotVisited)
	assert.False(t, p.Corrupted(5, SensorJam))
}

func TestPipeline_Forget(t *testing.T) {
	b := prepared(t, sampledata.Linear(10), 5)
	p := NewPipeline()
	p.Toggle(SensorJam)
	seg, _ := interpolate.At(b, 5, 0)
	_, _, err := p.Inject(b, &seg)
	require.NoError(t, err)
	p.Forget()
	assert.Equal(t, None, p.Active())
	assert.False(t, p.Corrupted(5, SensorJam))
}
