package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquintel/spillwatch/internal/dispatcher"
	"github.com/aquintel/spillwatch/internal/trajectory"
	"github.com/aquintel/spillwatch/pkg/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type memStore struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (s *memStore) SaveTrajectory(t *core.Trajectory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, t.ID)
	return nil
}

func (s *memStore) QueueLengths() (int, int) { return 7, 2 }

type memTelemetry struct {
	mu      sync.Mutex
	written []string
}

func (m *memTelemetry) WriteTrajectory(t *core.Trajectory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, t.ID)
	return nil
}

type countingRefresher struct {
	calls atomic.Int32
	block chan struct{}
}

func (r *countingRefresher) Refresh(ctx context.Context) ([]core.VesselReport, error) {
	r.calls.Add(1)
	if r.block != nil {
		<-r.block
	}
	return []core.VesselReport{{MMSI: "1", Data: core.NoAggregatedData{}}}, nil
}

func testSet(t *testing.T, ids ...string) *trajectory.Set {
	t.Helper()
	set := trajectory.NewSet()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range ids {
		tr, ok := trajectory.Build(id, "red", []core.PositionSample{
			{Lat: float64(i), Lon: 1, Timestamp: base},
			{Lat: float64(i), Lon: 2, Timestamp: base.Add(time.Minute)},
		})
		require.True(t, ok)
		set.Add(tr)
	}
	return set
}

func newDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	return d
}

func TestPersistAll(t *testing.T) {
	store := &memStore{}
	tel := &memTelemetry{}
	m := NewManager(Dependencies{Set: testSet(t, "a", "b", "c"), Store: store, Telemetry: tel})
	d := newDispatcher(t)
	m.RegisterHandlers(d)

	assert.Equal(t, 3, m.PersistAll(d))
	d.Close()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, store.saved)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, tel.written)
}

func TestPersistAll_NothingConfigured(t *testing.T) {
	m := NewManager(Dependencies{Set: testSet(t, "a")})
	d := newDispatcher(t)
	m.RegisterHandlers(d)
	defer d.Close()

	assert.Zero(t, m.PersistAll(d))
}

func TestHandlePersistTrajectory(t *testing.T) {
	t.Run("unknown id", func(t *testing.T) {
		m := NewManager(Dependencies{Set: testSet(t, "a"), Store: &memStore{}})
		_, err := m.handlePersistTrajectory(dispatcher.Event{Args: []string{"zzz"}})
		assert.ErrorIs(t, err, ErrUnknownTrajectory)
	})

	t.Run("store error still writes telemetry", func(t *testing.T) {
		boom := errors.New("disk full")
		tel := &memTelemetry{}
		m := NewManager(Dependencies{Set: testSet(t, "a"), Store: &memStore{err: boom}, Telemetry: tel})

		_, err := m.handlePersistTrajectory(dispatcher.Event{Args: []string{"a"}})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"a"}, tel.written)
	})
}

func TestHandleRefreshFleet(t *testing.T) {
	ref := &countingRefresher{}
	m := NewManager(Dependencies{Set: trajectory.NewSet(), Fleet: ref})

	n, err := m.handleRefreshFleet(dispatcher.Event{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), ref.calls.Load())

	m = NewManager(Dependencies{Set: trajectory.NewSet()})
	n, err = m.handleRefreshFleet(dispatcher.Event{})
	assert.NoError(t, err)
	assert.Nil(t, n)
}

func TestPendingWrites(t *testing.T) {
	assert.Equal(t, 7, NewManager(Dependencies{Store: &memStore{}}).PendingWrites())
	assert.Zero(t, NewManager(Dependencies{}).PendingWrites())
}

func TestPoller_RefreshesUntilCancelled(t *testing.T) {
	ref := &countingRefresher{}
	m := NewManager(Dependencies{Set: trajectory.NewSet(), Fleet: ref})
	d := newDispatcher(t)
	defer d.Close()
	m.RegisterHandlers(d)

	p := NewPoller(d, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return ref.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPoller_CollapsesPendingRefreshes(t *testing.T) {
	ref := &countingRefresher{block: make(chan struct{})}
	m := NewManager(Dependencies{Set: trajectory.NewSet(), Fleet: ref})
	d := newDispatcher(t)
	m.RegisterHandlers(d)

	p := NewPoller(d, time.Hour, nil)
	p.trigger()
	assert.Eventually(t, func() bool { return ref.calls.Load() == 1 }, time.Second, time.Millisecond)

	// one refresh running, one queued, the rest dropped
	for range 5 {
		p.trigger()
	}
	close(ref.block)
	d.Close()

	assert.Equal(t, int32(2), ref.calls.Load())
}

func TestNewPoller_DefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultPollInterval, NewPoller(nil, 0, nil).Interval())
}
