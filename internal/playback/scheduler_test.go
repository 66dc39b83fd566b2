package playback

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualScheduler(t *testing.T) {
	s := NewManualScheduler()
	var order []int

	h1 := s.Schedule(func() { order = append(order, 1) })
	s.Schedule(func() { order = append(order, 2) })
	h3 := s.Schedule(func() { order = append(order, 3) })
	assert.NotEqual(t, h1, h3)
	assert.Equal(t, 3, s.Pending())

	s.Cancel(h1)
	assert.Equal(t, 2, s.Pending())

	assert.True(t, s.Step())
	assert.Equal(t, []int{2}, order)
	assert.Equal(t, 1, s.RunUntilIdle(0))
	assert.Equal(t, []int{2, 3}, order)
	assert.False(t, s.Step())
}

func TestManualScheduler_RunUntilIdleLimit(t *testing.T) {
	s := NewManualScheduler()
	var reschedule func()
	reschedule = func() { s.Schedule(reschedule) }
	s.Schedule(reschedule)

	assert.Equal(t, 10, s.RunUntilIdle(10))
	assert.Equal(t, 1, s.Pending())
}

func TestFrameScheduler_Fires(t *testing.T) {
	s := NewFrameScheduler(time.Millisecond)
	fired := make(chan struct{})

	s.Schedule(func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestFrameScheduler_Cancel(t *testing.T) {
	s := NewFrameScheduler(20 * time.Millisecond)
	var calls atomic.Int32

	h := s.Schedule(func() { calls.Add(1) })
	s.Cancel(h)
	s.Cancel(h)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestFrameScheduler_DefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultFrameInterval, NewFrameScheduler(0).Interval())
}
