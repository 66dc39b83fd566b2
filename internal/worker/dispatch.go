package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/aquintel/spillwatch/internal/dispatcher"
)

// Background command names.
const (
	CommandPersistTrajectory = "trajectory:persist"
	CommandRefreshFleet      = "fleet:refresh"
)

// RegisterHandlers registers the background handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// one write per loaded trajectory, off the ingest path
	d.Register(CommandPersistTrajectory, m.handlePersistTrajectory, dispatcher.Buffered(1000), dispatcher.Blocking(), dispatcher.Logged())

	// a single slot so overlapping poll ticks collapse into one refresh
	d.Register(CommandRefreshFleet, m.handleRefreshFleet, dispatcher.Buffered(1), dispatcher.Logged())
}

// PersistAll queues a persist event for every trajectory in the set and
// returns how many were accepted.
func (m *Manager) PersistAll(d *dispatcher.Dispatcher) int {
	if m.deps.Store == nil && m.deps.Telemetry == nil {
		return 0
	}
	queued := 0
	for _, t := range m.deps.Set.All() {
		_, err := d.Dispatch(dispatcher.Event{Command: CommandPersistTrajectory, Args: []string{t.ID}})
		if err != nil {
			m.deps.Logger.Warn("Failed to queue trajectory", "trajectory", t.ID, "error", err)
			continue
		}
		queued++
	}
	return queued
}

func (m *Manager) handlePersistTrajectory(e dispatcher.Event) (any, error) {
	id := e.Arg(0)
	t, ok := m.deps.Set.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrajectory, id)
	}

	var errs []error
	if m.deps.Store != nil {
		if err := m.deps.Store.SaveTrajectory(t); err != nil {
			errs = append(errs, fmt.Errorf("failed to save trajectory %s: %w", id, err))
		}
	}
	if m.deps.Telemetry != nil {
		if err := m.deps.Telemetry.WriteTrajectory(t); err != nil {
			errs = append(errs, fmt.Errorf("failed to write trajectory %s points: %w", id, err))
		}
	}
	return nil, errors.Join(errs...)
}

func (m *Manager) handleRefreshFleet(dispatcher.Event) (any, error) {
	if m.deps.Fleet == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.deps.RefreshTimeout)
	defer cancel()

	reports, err := m.deps.Fleet.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return len(reports), nil
}
