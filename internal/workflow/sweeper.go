package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"trade-reconciliation/internal/logger"
)

// Sweeper runs the SLA sweep on a fixed interval.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger
	onSweep  func(SweepResult)
}

// NewSweeper creates a sweeper.
func NewSweeper(engine *Engine, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{engine: engine, interval: interval, logger: logger.OrNop(log)}
}

// OnSweep registers fn to be called after every sweep that escalated at
// least one break.
func (s *Sweeper) OnSweep(fn func(SweepResult)) *Sweeper {
	s.onSweep = fn
	return s
}

// Start sweeps every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("SLA sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SLA sweeper stopped")
			return
		case now := <-ticker.C:
			res, err := s.engine.SweepSLA(ctx, now.UTC())
			if err != nil && ctx.Err() == nil {
				s.logger.Error("SLA sweep failed", zap.Error(err))
			}
			if res.Escalated > 0 && s.onSweep != nil {
				s.onSweep(res)
			}
		}
	}
}
