//nolint:funlen // ok for tests
package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/sentinel-replay/pkg/engine/attack"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/playback"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/testsupport/sampledata"
)

const period = 100 * time.Millisecond

func linearSession(n int) *model.SessionData {
	return &model.SessionData{
		Key:     model.SessionKey{Year: 2023, Location: "Bahrain", SessionType: "R", Driver: "PER"},
		Samples: sampledata.Linear(n),
		Sectors: *sampledata.SampleSectors(),
	}
}

type ticker struct {
	seq uint64
}

func (tk *ticker) next(d time.Duration) playback.Tick {
	tk.seq++
	return playback.Tick{Seq: tk.seq, Delta: d}
}

func loadedEngine(t *testing.T, data *model.SessionData, opts ...Option) *Engine {
	t.Helper()
	e := New(opts...)
	require.NoError(t, e.Load(data))
	return e
}

func TestEngine_singleTick(t *testing.T) {
	e := loadedEngine(t, linearSession(100))
	require.NoError(t, e.Start())
	tk := &ticker{}

	f, err := e.Tick(context.Background(), tk.next(period))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.InDelta(t, 11.0, f.Index, 1e-9)
	assert.Equal(t, 11, f.Floor)
	assert.InDelta(t, 11.0, f.Sample.Speed, 1e-9)
	assert.True(t, f.Running)
	assert.Equal(t, e.SessionID(), f.SessionID)
	assert.Equal(t, "none", f.Attack)
	assert.Equal(t, frame.MapModeSectors, f.MapMode)
}

func TestEngine_startWithoutData(t *testing.T) {
	e := New()
	assert.ErrorIs(t, e.Start(), model.ErrNoData)
	_, err := e.AnalysisRequest()
	assert.ErrorIs(t, err, model.ErrNoData)
}

func TestEngine_invalidLoadKeepsSession(t *testing.T) {
	e := loadedEngine(t, linearSession(50))
	id := e.SessionID()
	require.NoError(t, e.Start())
	_, err := e.Tick(context.Background(), (&ticker{}).next(period))
	require.NoError(t, err)

	bad := linearSession(0)
	assert.ErrorIs(t, e.Load(bad), model.ErrInvalidSessionData)
	assert.ErrorIs(t, e.Load(nil), model.ErrInvalidSessionData)

	st := e.State()
	assert.Equal(t, id, st.SessionID)
	assert.Equal(t, 50, st.Samples)
	assert.Equal(t, "running", st.Playback)
	assert.InDelta(t, 11.0, st.Index, 1e-9)
}

func TestEngine_sensorJamPersists(t *testing.T) {
	e := loadedEngine(t, linearSession(100),
		WithClockOptions(playback.WithStartOffset(40)))
	require.NoError(t, e.Start())
	tk := &ticker{}
	ctx := context.Background()

	assert.Equal(t, attack.SensorJam, e.ToggleAttack(attack.SensorJam))
	f, err := e.Tick(ctx, tk.next(period/2))
	require.NoError(t, err)
	assert.Equal(t, 40, f.Floor)
	assert.Equal(t, 0.0, f.Sample.RPM)

	s, err := e.Sample(40)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.RPM)

	assert.Equal(t, attack.None, e.ToggleAttack(attack.SensorJam))
	_, err = e.Tick(ctx, tk.next(period))
	require.NoError(t, err)
	s, err = e.Sample(40)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.RPM, "corruption persists after the attack ended")

	req, err := e.AnalysisRequest()
	require.NoError(t, err)
	assert.Equal(t, 0.0, req.RPM[40])
	assert.Equal(t, 4100.0, req.RPM[41])

	// reset keeps the corruption
	e.Reset()
	s, _ = e.Sample(40)
	assert.Equal(t, 0.0, s.RPM)

	// a reload restores ground truth
	require.NoError(t, e.Load(linearSession(100)))
	s, _ = e.Sample(40)
	assert.Equal(t, 4000.0, s.RPM)
	assert.Equal(t, attack.None, e.Attack())
}

func TestEngine_gpsSpoofShiftsFrame(t *testing.T) {
	e := loadedEngine(t, linearSession(100))
	require.NoError(t, e.Start())
	e.SetAttack(attack.GpsSpoof)
	e.SetAttack(attack.GpsSpoof)
	tk := &ticker{}
	for range 3 {
		f, err := e.Tick(context.Background(), tk.next(period/4))
		require.NoError(t, err)
		assert.InDelta(t, f.Index*10+2000, f.Sample.X, 1e-9)
		assert.InDelta(t, 2000.0, f.Sample.Y, 1e-9)
	}
	s, _ := e.Sample(10)
	assert.InDelta(t, 2100.0, s.X, 1e-9, "offset is applied once per index")
}

func TestEngine_endOfStream(t *testing.T) {
	e := loadedEngine(t, linearSession(30))
	e.SetSpeed(4)
	require.NoError(t, e.Start())
	tk := &ticker{}
	ended := 0
	for range 100 {
		f, err := e.Tick(context.Background(), tk.next(period))
		require.NoError(t, err)
		if f == nil {
			continue
		}
		assert.LessOrEqual(t, f.Index, 28.0)
		if f.Ended {
			ended++
			assert.False(t, f.Running)
			assert.Equal(t, 28.0, f.Index)
		}
	}
	assert.Equal(t, 1, ended)
	assert.False(t, e.Running())
}

func TestEngine_staleTickProducesNoFrame(t *testing.T) {
	e := loadedEngine(t, linearSession(100))
	require.NoError(t, e.Start())
	ctx := context.Background()
	f, err := e.Tick(ctx, playback.Tick{Seq: 3, Delta: period})
	require.NoError(t, err)
	require.NotNil(t, f)
	f, err = e.Tick(ctx, playback.Tick{Seq: 2, Delta: period})
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, uint64(3), e.LastFrame().Seq)
}

func TestEngine_singleSampleSession(t *testing.T) {
	e := loadedEngine(t, linearSession(1))
	require.NoError(t, e.Start())
	f, err := e.Tick(context.Background(), (&ticker{}).next(period))
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.False(t, e.Running())
}

func TestEngine_sectorsAndOverlay(t *testing.T) {
	e := loadedEngine(t, sampledata.SampleSession(100),
		WithClockOptions(playback.WithStartOffset(40)))
	e.SetMapMode(frame.MapModeGear)
	e.SetOverlay(&model.AnalysisResult{IsAnomaly: []bool{true, false}})
	require.NoError(t, e.Start())

	f, err := e.Tick(context.Background(), (&ticker{}).next(period))
	require.NoError(t, err)
	assert.True(t, f.Sectors[0].Reached)
	assert.Equal(t, "purple", f.Sectors[0].Color)
	assert.False(t, f.Sectors[1].Reached)
	assert.Equal(t, frame.MapModeGear, f.MapMode)
	require.Len(t, f.Anomalies, 1)
	assert.Equal(t, 9, f.Anomalies[0].Index)
	assert.Equal(t, 1, e.State().Anomalies)

	g := e.Geometry()
	require.NotNil(t, g)
	assert.False(t, g.Paths[2].Empty())
}

func TestEngine_seriesFollowsPlayback(t *testing.T) {
	e := loadedEngine(t, linearSession(100))
	require.NoError(t, e.Start())
	_, err := e.Tick(context.Background(), (&ticker{}).next(period*3/2))
	require.NoError(t, err)
	speed := e.Series(model.ChannelSpeed)
	require.Len(t, speed, 13)
	assert.InDelta(t, 11.5, speed[12].Index, 1e-9)

	e.Reset()
	assert.Empty(t, e.Series(model.ChannelSpeed))
	assert.Nil(t, e.LastFrame())
}

func TestEngine_Clear(t *testing.T) {
	e := loadedEngine(t, linearSession(100))
	e.ToggleAttack(attack.ThrottleDrift)
	e.Clear()
	st := e.State()
	assert.False(t, st.Loaded)
	assert.Empty(t, st.SessionID)
	assert.Equal(t, "none", st.Attack)
	assert.ErrorIs(t, e.Start(), model.ErrNoData)
	assert.Nil(t, e.Geometry())
}

func TestEngine_AnalysisRequestMetadata(t *testing.T) {
	e := loadedEngine(t, linearSession(20))
	req, err := e.AnalysisRequest()
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisSession{
		SessionID: e.SessionID(), Year: 2023, GP: "Bahrain", Session: "R", Driver: "PER",
	}, req.Metadata)
	assert.Len(t, req.Speed, 20)
}
