package memory

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper runs Manager.Sweep on a cron schedule.
type Sweeper struct {
	cron *cron.Cron
}

// StartSweeper schedules m.Sweep with a standard cron spec (e.g. "@every 1m").
func StartSweeper(m *Manager, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if n := m.Sweep(); n > 0 {
			logger.Info("stm swept", "removed", n)
		}
	}); err != nil {
		return nil, err
	}
	c.Start()
	logger.Debug("stm sweeper started", "schedule", schedule)
	return &Sweeper{cron: c}, nil
}

// Stop prevents further sweeps and waits for a running one, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	if s == nil || s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
