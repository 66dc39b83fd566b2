package playback

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display frame at 60fps.
const DefaultFrameInterval = 16 * time.Millisecond

// Handle identifies one scheduled callback. The zero Handle is never issued.
type Handle uint64

// Scheduler runs a callback once at the next frame.
// Implementations must never invoke fn synchronously from Schedule.
type Scheduler interface {
	Schedule(fn func()) Handle
	Cancel(h Handle)
}

// FrameScheduler fires callbacks on a wall-clock frame interval.
type FrameScheduler struct {
	interval time.Duration

	mu     sync.Mutex
	next   Handle
	timers map[Handle]*time.Timer
}

// NewFrameScheduler creates a real-time scheduler. Non-positive intervals use
// DefaultFrameInterval.
func NewFrameScheduler(interval time.Duration) *FrameScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &FrameScheduler{
		interval: interval,
		timers:   make(map[Handle]*time.Timer),
	}
}

// Interval returns the frame interval.
func (s *FrameScheduler) Interval() time.Duration {
	return s.interval
}

// Schedule arms a one-shot timer for fn.
func (s *FrameScheduler) Schedule(fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	s.timers[h] = time.AfterFunc(s.interval, func() {
		s.mu.Lock()
		_, live := s.timers[h]
		delete(s.timers, h)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	return h
}

// Cancel stops the timer for h if it has not fired yet.
func (s *FrameScheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
	}
}

// Pending returns the number of armed timers.
func (s *FrameScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

type manualTask struct {
	handle Handle
	fn     func()
}

// ManualScheduler queues callbacks until Step is called. It drives headless
// replays and tests without wall-clock time.
type ManualScheduler struct {
	mu    sync.Mutex
	next  Handle
	tasks []manualTask
}

// NewManualScheduler creates an idle manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule queues fn.
func (s *ManualScheduler) Schedule(fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.tasks = append(s.tasks, manualTask{handle: s.next, fn: fn})
	return s.next
}

// Cancel drops the queued callback for h.
func (s *ManualScheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks {
		if t.handle == h {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

// Step runs the oldest queued callback. It returns false when nothing is queued.
func (s *ManualScheduler) Step() bool {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return false
	}
	task := s.tasks[0]
	s.tasks = s.tasks[1:]
	s.mu.Unlock()

	task.fn()
	return true
}

// Pending returns the number of queued callbacks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunUntilIdle steps until the queue is empty or max steps ran, and returns
// the number of steps taken. A non-positive max means no limit.
func (s *ManualScheduler) RunUntilIdle(max int) int {
	n := 0
	for max <= 0 || n < max {
		if !s.Step() {
			break
		}
		n++
	}
	return n
}
