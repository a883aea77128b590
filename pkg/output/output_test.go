package output

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
)

func TestMulti(t *testing.T) {
	var got []uint64
	collect := SinkFunc(func(_ context.Context, f *frame.Frame) error {
		got = append(got, f.Seq)
		return nil
	})
	failure := errors.New("boom")
	failing := SinkFunc(func(context.Context, *frame.Frame) error { return failure })

	s := Multi(collect, failing, collect)
	err := s.Publish(context.Background(), &frame.Frame{Seq: 3})
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, []uint64{3, 3}, got, "all sinks are called")

	assert.NoError(t, Multi(collect, Discard).Publish(context.Background(), &frame.Frame{}))
}

func TestBroadcast(t *testing.T) {
	b := NewBroadcast("test")
	defer b.Close()
	ch := b.Subscribe()
	require.NoError(t, b.Publish(context.Background(), &frame.Frame{Seq: 9}))
	select {
	case f := <-ch:
		assert.Equal(t, uint64(9), f.Seq)
	case <-time.After(time.Second):
		t.Fatal("no frame")
	}
	b.CancelSubscription(ch)
}

func TestBroadcast_stalledSubscriber(t *testing.T) {
	b := NewBroadcast("test")
	defer b.Close()
	stalled := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := range uint64(100) {
		require.NoError(t, b.Publish(ctx, &frame.Frame{Seq: i}))
	}
	// the server handles requests in order, the last frame is queued afterwards
	b.CancelSubscription(b.Subscribe())
	var last uint64
	for f := range stalled {
		last = f.Seq
		if len(stalled) == 0 {
			break
		}
	}
	assert.Equal(t, uint64(99), last, "the newest frames are kept")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	l := log.New(&buf, log.DebugLevel)
	s := LogSink(l, 2)
	ctx := context.Background()
	require.NoError(t, s.Publish(ctx, &frame.Frame{Seq: 1}))
	assert.Empty(t, buf.String())
	require.NoError(t, s.Publish(ctx, &frame.Frame{Seq: 2}))
	assert.Contains(t, buf.String(), `"msg":"frame"`)
	require.NoError(t, s.Publish(ctx, &frame.Frame{Seq: 3, Ended: true}))
	assert.Contains(t, buf.String(), `"msg":"replay ended"`)
}
