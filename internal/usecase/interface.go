package usecase

import (
	"context"
	"time"

	"trade-reconciliation/internal/domain"
)

// The usecase layer depends on these interfaces, not on concrete adapters.
//
//go:generate mockgen -destination=mocks/mock_ports.go -source=interface.go

// TradeSource loads the trade records of one trade date.
type TradeSource interface {
	LoadTrades(ctx context.Context, tradeDate time.Time) (*domain.TradeBatch, error)
}

// RunRepository stores reconciliation runs.
type RunRepository interface {
	LatestRun(ctx context.Context, tradeDate time.Time) (*domain.ReconciliationRun, error)
	SaveRun(ctx context.Context, run *domain.ReconciliationRun) error
}

// BreakStore commits the outcome of a run atomically: either the run and all
// of its new breaks are stored, or nothing is.
type BreakStore interface {
	CommitRun(ctx context.Context, run *domain.ReconciliationRun, breaks []*domain.Break, events []domain.BreakEvent) (domain.CommitResult, error)
}

// BreakReader serves the read models.
type BreakReader interface {
	Get(ctx context.Context, id string) (*domain.Break, error)
	List(ctx context.Context, filter domain.BreakFilter) ([]*domain.Break, error)
	Stats(ctx context.Context, filter domain.BreakFilter) (domain.BreakStats, error)
	Events(ctx context.Context, breakID string) ([]domain.BreakEvent, error)
}

// RunLocker serializes runs of the same trade date.
type RunLocker interface {
	Acquire(ctx context.Context, key string) (func(ctx context.Context) error, error)
}

// EventPublisher receives break events after they are committed.
type EventPublisher interface {
	Publish(ctx context.Context, events []domain.BreakEvent) error
}
