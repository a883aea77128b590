package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)

func TestMockClock_timerFires(t *testing.T) {
	c := NewMockClock(epoch)
	tm := c.NewTimer(100 * time.Millisecond)
	assert.Equal(t, 1, c.Pending())

	c.Advance(50 * time.Millisecond)
	select {
	case <-tm.C():
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(50 * time.Millisecond)
	select {
	case at := <-tm.C():
		assert.Equal(t, epoch.Add(100*time.Millisecond), at)
	default:
		t.Fatal("timer did not fire")
	}
	assert.Equal(t, 0, c.Pending())
	assert.False(t, tm.Stop())
}

func TestMockClock_stoppedTimer(t *testing.T) {
	c := NewMockClock(epoch)
	tm := c.NewTimer(10 * time.Millisecond)
	assert.True(t, tm.Stop())
	c.Advance(time.Second)
	select {
	case <-tm.C():
		t.Fatal("stopped timer fired")
	default:
	}
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, epoch.Add(time.Second), c.Now())
}

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	tm := c.NewTimer(time.Millisecond)
	select {
	case <-tm.C():
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
	assert.WithinDuration(t, time.Now(), c.Now(), time.Second)
}
