package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aquintel/spillwatch/internal/dispatcher"
)

// DefaultPollInterval matches the dashboard's vessel refresh cadence.
const DefaultPollInterval = 25 * time.Second

// Poller triggers a fleet refresh immediately and then on every interval.
type Poller struct {
	d        *dispatcher.Dispatcher
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller dispatching CommandRefreshFleet on d.
func NewPoller(d *dispatcher.Dispatcher, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{d: d, interval: interval, logger: logger}
}

// Interval returns the poll interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run blocks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.trigger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.trigger()
		}
	}
}

func (p *Poller) trigger() {
	_, err := p.d.Dispatch(dispatcher.Event{Command: CommandRefreshFleet})
	switch {
	case err == nil:
	case errors.Is(err, dispatcher.ErrQueueFull):
		p.logger.Debug("Fleet refresh already pending")
	default:
		p.logger.Warn("Failed to trigger fleet refresh", "error", err)
	}
}
