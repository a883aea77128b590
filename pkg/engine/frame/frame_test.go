//nolint:funlen // ok for tests
package frame

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/sentinel-replay/pkg/analysis/overlay"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/attack"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/interpolate"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/sector"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/telemetry/buffer"
	"github.com/mpapenbr/sentinel-replay/testsupport/sampledata"
)

func loaded(t *testing.T, n int) *buffer.Buffer {
	t.Helper()
	b := buffer.New()
	require.NoError(t, b.Load(sampledata.Linear(n), sampledata.SampleSectors()))
	return b
}

func TestParseMapMode(t *testing.T) {
	tests := []struct {
		in      string
		want    MapMode
		wantErr bool
	}{
		{in: "sectors", want: MapModeSectors},
		{in: "speed", want: MapModeSpeed},
		{in: "gear", want: MapModeGear},
		{in: "rainbow", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMapMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssemble(t *testing.T) {
	b := loaded(t, 20)
	seg, err := interpolate.AtIndex(b, 12.5)
	require.NoError(t, err)
	markers := []overlay.Marker{{Index: 3, X: 30, Tag: "x"}}
	now := time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)
	in := &Input{
		Seq:       7,
		SessionID: "abc",
		At:        now,
		Running:   true,
		Segment:   &seg,
		Sample:    seg.Sample,
		Heading:   90,
		Rotation:  450,
		Attack:    attack.GpsSpoof,
		MapMode:   MapModeSpeed,
		Sectors: [sector.NumSectors]sector.Highlight{
			{Sector: 0, Reached: true, Color: "purple"},
			{Sector: 1, Color: "gray"},
			{Sector: 2, Color: "gray"},
		},
		Anomalies: markers,
	}
	got := Assemble(in)
	want := &Frame{
		Seq:       7,
		SessionID: "abc",
		At:        now,
		Index:     12.5,
		Floor:     12,
		Sample:    seg.Sample,
		Heading:   90,
		Rotation:  450,
		Attack:    "gps-spoof",
		MapMode:   MapModeSpeed,
		Sectors:   in.Sectors,
		Anomalies: []overlay.Marker{{Index: 3, X: 30, Tag: "x"}},
		Running:   true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Assemble() mismatch (-want +got):\n%s", diff)
	}

	markers[0].Tag = "changed"
	assert.Equal(t, "x", got.Anomalies[0].Tag)
}

func TestSeries_trailingPoint(t *testing.T) {
	b := loaded(t, 30)
	s := NewSeries()
	seg, err := interpolate.AtIndex(b, 10.25)
	require.NoError(t, err)
	require.NoError(t, s.Update(b, seg.Floor, seg.Frac, seg.Sample))

	speed := s.Series(model.ChannelSpeed)
	require.Len(t, speed, 12)
	for i := range 11 {
		assert.Equal(t, Point{Index: float64(i), Value: float64(i)}, speed[i])
	}
	assert.InDelta(t, 10.25, speed[11].Index, 1e-9)
	assert.InDelta(t, 10.25, speed[11].Value, 1e-9)

	// discrete channels follow the leading sample
	gear := s.Series(model.ChannelGear)
	assert.Equal(t, Point{Index: 10.25, Value: 2}, gear[len(gear)-1])
}

func TestSeries_growAndRefresh(t *testing.T) {
	b := loaded(t, 30)
	s := NewSeries()
	require.NoError(t, s.Update(b, 10, 0.5, model.Sample{}))
	require.NoError(t, s.Update(b, 10, 0.9, model.Sample{}))
	assert.Len(t, s.Series(model.ChannelRPM), 12)

	// floor entry corrupted after it was first recorded
	cur, _ := b.Get(10)
	cur.RPM = 0
	b.Visit(10)
	require.NoError(t, b.Overwrite(10, cur))

	require.NoError(t, s.Update(b, 13, 0.1, model.Sample{}))
	rpm := s.Series(model.ChannelRPM)
	require.Len(t, rpm, 15)
	assert.Equal(t, 0.0, rpm[10].Value)
	assert.Equal(t, 1300.0, rpm[13].Value)
	assert.Equal(t, 13, s.Floor())
}

func TestSeries_copyAndReset(t *testing.T) {
	b := loaded(t, 30)
	s := NewSeries()
	require.NoError(t, s.Update(b, 5, 0, model.Sample{Throttle: 5}))
	got := s.Series(model.ChannelThrottle)
	got[0].Value = 99
	assert.Equal(t, 0.0, s.Series(model.ChannelThrottle)[0].Value)

	require.NoError(t, s.Update(b, 2, 0, model.Sample{}))
	assert.Len(t, s.Series(model.ChannelThrottle), 4)

	s.Reset()
	assert.Empty(t, s.Series(model.ChannelThrottle))
	assert.Equal(t, -1, s.Floor())
	assert.Len(t, s.Channels(), len(model.ScalarChannels))
}

func TestSeries_outOfRange(t *testing.T) {
	b := loaded(t, 5)
	s := NewSeries()
	err := s.Update(b, 7, 0, model.Sample{})
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
}
