// Package playback advances a shared progress value over the loaded
// trajectories' global time window.
package playback

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/aquintel/spillwatch/internal/queue"
	"github.com/aquintel/spillwatch/internal/trajectory"
	"github.com/aquintel/spillwatch/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// DefaultStep is the progress added per tick.
	DefaultStep = 0.02

	// MaxProgress is the completed position.
	MaxProgress = 100.0

	// absorbs float drift from repeated step additions
	completionEpsilon = 1e-9
)

// Listener receives a snapshot after every state change.
type Listener func(core.PlaybackSnapshot)

// Option configures an Engine.
type Option func(*Engine)

// WithStep sets the progress increment per tick. Non-positive values are ignored.
func WithStep(step float64) Option {
	return func(e *Engine) {
		if step > 0 && !math.IsNaN(step) && !math.IsInf(step, 0) {
			e.step = step
		}
	}
}

// WithListener registers a change listener. May be given more than once.
func WithListener(l Listener) Option {
	return func(e *Engine) {
		if l != nil {
			e.listeners = append(e.listeners, l)
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine is the playback state machine: stopped, playing, completed.
// All mutations are serialized; listeners run after the lock is released and
// see snapshots in Seq order.
type Engine struct {
	sched  Scheduler
	set    *trajectory.Set
	step   float64
	logger *slog.Logger

	mu        sync.Mutex
	progress  float64
	state     core.PlaybackState
	pending   Handle
	token     uint64
	closed    bool
	listeners []Listener

	// seq numbers published snapshots. outbox holds them until the single
	// draining caller hands them to listeners.
	seq      uint64
	outbox   *queue.Queue[core.PlaybackSnapshot]
	draining bool

	ticks       metric.Int64Counter
	transitions metric.Int64Counter
}

// NewEngine creates a stopped engine at progress 0.
func NewEngine(sched Scheduler, set *trajectory.Set, opts ...Option) *Engine {
	e := &Engine{
		sched:  sched,
		set:    set,
		step:   DefaultStep,
		logger: slog.Default(),
		state:  core.PlaybackStopped,
		outbox: queue.New[core.PlaybackSnapshot](),
	}
	for _, opt := range opts {
		opt(e)
	}

	m := meter()
	var err error
	e.ticks, err = m.Int64Counter("playback.ticks",
		metric.WithDescription("Playback frames advanced"),
	)
	if err != nil {
		e.logger.Warn("Failed to create playback tick counter", "error", err)
	}
	e.transitions, err = m.Int64Counter("playback.transitions",
		metric.WithDescription("Playback state transitions"),
	)
	if err != nil {
		e.logger.Warn("Failed to create playback transition counter", "error", err)
	}
	return e
}

// Subscribe adds a listener after construction.
func (e *Engine) Subscribe(l Listener) {
	if l == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Step returns the progress increment per tick.
func (e *Engine) Step() float64 {
	return e.step
}

// Start begins advancing progress. It is a no-op while playing, after Close,
// or when no trajectories are loaded. A completed engine rewinds to 0 first.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.closed || e.state == core.PlaybackPlaying || e.set.Len() == 0 {
		e.mu.Unlock()
		return
	}
	if e.state == core.PlaybackCompleted {
		e.progress = 0
	}
	e.setStateLocked(core.PlaybackPlaying)
	e.scheduleLocked()
	e.publishLocked()
	e.mu.Unlock()

	e.flush()
}

// Stop cancels the pending tick. It is idempotent and keeps progress.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopLocked() {
		e.publishLocked()
	}
	e.mu.Unlock()

	e.flush()
}

// Seek moves progress to p, clamped into [0,100]. NaN is ignored. Seeking
// neither starts nor stops playback.
func (e *Engine) Seek(p float64) {
	if math.IsNaN(p) {
		return
	}
	p = math.Max(0, math.Min(MaxProgress, p))

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.progress = p
	switch {
	case e.state == core.PlaybackCompleted && p < MaxProgress:
		e.setStateLocked(core.PlaybackStopped)
	case e.state == core.PlaybackStopped && p >= MaxProgress:
		e.setStateLocked(core.PlaybackCompleted)
	}
	e.publishLocked()
	e.mu.Unlock()

	e.flush()
}

// Close stops playback for good. Later Start, Seek and ticks are no-ops.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.stopLocked() {
		e.publishLocked()
	}
	e.closed = true
	e.mu.Unlock()

	e.flush()
}

// Progress returns the current progress in [0,100].
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// Snapshot returns a read-only copy of the playback state.
func (e *Engine) Snapshot() core.PlaybackSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// SimulatedTime maps the current progress onto the global time window.
func (e *Engine) SimulatedTime() time.Time {
	return e.Snapshot().SimulatedTime
}

// SimulatedTimeAt maps progress p onto [start, end]. A degenerate window
// yields start.
func SimulatedTimeAt(start, end time.Time, p float64) time.Time {
	span := end.Sub(start)
	if span <= 0 {
		return start
	}
	return start.Add(time.Duration(float64(span) * p / MaxProgress))
}

func (e *Engine) tick(token uint64) {
	e.mu.Lock()
	if e.closed || token != e.token || e.state != core.PlaybackPlaying {
		e.mu.Unlock()
		return
	}
	e.pending = 0
	e.progress += e.step
	if e.progress >= MaxProgress-completionEpsilon {
		e.progress = MaxProgress
		e.setStateLocked(core.PlaybackCompleted)
	} else {
		e.scheduleLocked()
	}
	e.publishLocked()
	e.mu.Unlock()

	if e.ticks != nil {
		e.ticks.Add(context.Background(), 1)
	}
	e.flush()
}

func (e *Engine) scheduleLocked() {
	e.token++
	token := e.token
	e.pending = e.sched.Schedule(func() { e.tick(token) })
}

func (e *Engine) stopLocked() bool {
	if e.pending != 0 {
		e.sched.Cancel(e.pending)
		e.pending = 0
	}
	// invalidate any tick that already left the scheduler
	e.token++
	if e.state == core.PlaybackPlaying {
		e.setStateLocked(core.PlaybackStopped)
		return true
	}
	return false
}

func (e *Engine) setStateLocked(s core.PlaybackState) {
	if e.state == s {
		return
	}
	e.logger.Debug("Playback state changed", "from", e.state, "to", s, "progress", e.progress)
	e.state = s
	if e.transitions != nil {
		e.transitions.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("state", string(s))))
	}
}

func (e *Engine) snapshotLocked() core.PlaybackSnapshot {
	snap := core.PlaybackSnapshot{
		Progress:  e.progress,
		IsPlaying: e.state == core.PlaybackPlaying,
		State:     e.state,
		Seq:       e.seq,
	}
	if start, end, ok := e.set.Bounds(); ok {
		snap.GlobalStart = start
		snap.GlobalEnd = end
		snap.SimulatedTime = SimulatedTimeAt(start, end, e.progress)
	}
	return snap
}

// publishLocked numbers a snapshot of the current state and queues it for
// listeners.
func (e *Engine) publishLocked() {
	e.seq++
	e.outbox.Push(e.snapshotLocked())
}

// flush delivers queued snapshots in order. Only one caller drains at a time;
// others, including listeners that mutate the engine, return at once and
// leave their snapshot to the active drainer.
func (e *Engine) flush() {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true
	for {
		snap, ok := e.outbox.Pop()
		if !ok {
			e.draining = false
			e.mu.Unlock()
			return
		}
		listeners := append([]Listener(nil), e.listeners...)
		e.mu.Unlock()

		for _, l := range listeners {
			l(snap)
		}
		e.mu.Lock()
	}
}
