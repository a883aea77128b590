package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("nothing received")
	}
	var zero T
	return zero
}

func TestServer_fanOut(t *testing.T) {
	source := make(chan int)
	s := New("test", source)
	defer s.Close()

	a := s.Subscribe()
	b := s.Subscribe()
	source <- 1
	source <- 2
	assert.Equal(t, 1, receive(t, a))
	assert.Equal(t, 2, receive(t, a))
	assert.Equal(t, 1, receive(t, b))
	assert.Equal(t, 2, receive(t, b))
}

func TestServer_cancelSubscription(t *testing.T) {
	source := make(chan string)
	s := New("test", source)
	defer s.Close()

	a := s.Subscribe()
	s.CancelSubscription(a)
	_, ok := <-a
	assert.False(t, ok)

	b := s.Subscribe()
	source <- "x"
	assert.Equal(t, "x", receive(t, b))
}

func TestServer_slowListenerIsSkipped(t *testing.T) {
	source := make(chan int)
	s := New("test", source,
		WithBufferSize[int](1), WithSendTimeout[int](time.Millisecond))
	defer s.Close()

	slow := s.Subscribe()
	source <- 1
	source <- 2 // buffer full, skipped after the timeout
	source <- 3
	assert.Equal(t, 1, receive(t, slow))
}

func TestServer_dropOldest(t *testing.T) {
	source := make(chan int)
	s := New("test", source, WithBufferSize[int](1), WithDropOldest[int]())
	defer s.Close()

	slow := s.Subscribe()
	start := time.Now()
	for i := 1; i <= 20; i++ {
		source <- i
	}
	// a stalled listener must not hold back the source
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	// the server handles requests in order, so 20 has been delivered afterwards
	other := s.Subscribe()
	assert.Equal(t, 20, receive(t, slow))
	select {
	case v := <-slow:
		t.Fatalf("unexpected value %d", v)
	default:
	}
	source <- 21
	assert.Equal(t, 21, receive(t, other))
}

func TestServer_sourceClosed(t *testing.T) {
	source := make(chan int)
	s := New("test", source)
	a := s.Subscribe()
	close(source)
	select {
	case _, ok := <-a:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("listener not closed")
	}
	// subscribing to a closed server yields a closed channel
	_, ok := <-s.Subscribe()
	assert.False(t, ok)
}
