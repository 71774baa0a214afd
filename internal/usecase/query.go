package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/logger"
)

const (
	topCounterparties = 5
	topPriorityBreaks = 10
	reportPageSize    = 1000
)

// QueryService serves the read models over committed breaks and runs.
type QueryService struct {
	breaks BreakReader
	runs   RunRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewQueryService creates a new instance of the query service.
func NewQueryService(breaks BreakReader, runs RunRepository, log *zap.Logger) *QueryService {
	return &QueryService{breaks: breaks, runs: runs, logger: logger.OrNop(log), now: time.Now}
}

// WithClock replaces time.Now. Intended for tests.
func (q *QueryService) WithClock(now func() time.Time) *QueryService {
	q.now = now
	return q
}

func (q *QueryService) ListBreaks(ctx context.Context, filter domain.BreakFilter) ([]*domain.Break, error) {
	return q.breaks.List(ctx, filter)
}

func (q *QueryService) GetBreak(ctx context.Context, id string) (*domain.Break, error) {
	return q.breaks.Get(ctx, id)
}

func (q *QueryService) BreakEvents(ctx context.Context, id string) ([]domain.BreakEvent, error) {
	if _, err := q.breaks.Get(ctx, id); err != nil {
		return nil, err
	}
	return q.breaks.Events(ctx, id)
}

func (q *QueryService) BreakStats(ctx context.Context, filter domain.BreakFilter) (domain.BreakStats, error) {
	return q.breaks.Stats(ctx, filter)
}

func (q *QueryService) LatestRun(ctx context.Context, tradeDate time.Time) (*domain.ReconciliationRun, error) {
	return q.runs.LatestRun(ctx, truncateDay(tradeDate))
}

// Report builds the per-date summary: break counts, aging of unresolved
// breaks, the counterparties with most breaks and the highest priority open
// items.
func (q *QueryService) Report(ctx context.Context, tradeDate time.Time) (*domain.BreakReport, error) {
	tradeDate = truncateDay(tradeDate)
	report := &domain.BreakReport{
		TradeDate:         tradeDate.Format(time.DateOnly),
		Stats:             domain.NewBreakStats(),
		TopCounterparties: []domain.CounterpartyCount{},
		TopPriorityBreaks: []*domain.Break{},
	}

	run, err := q.runs.LatestRun(ctx, tradeDate)
	switch {
	case err == nil:
		report.Run = run
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("could not load run: %w", err)
	}

	all, err := q.allBreaks(ctx, tradeDate)
	if err != nil {
		return nil, err
	}

	now := q.now().UTC()
	perCounterparty := make(map[string]int)
	var open []*domain.Break
	for _, b := range all {
		report.Stats.Add(b)
		perCounterparty[b.CounterpartyID]++
		if b.Status.Terminal() {
			continue
		}
		open = append(open, b)
		addAge(&report.Aging, now.Sub(b.CreatedAt))
	}

	for id, n := range perCounterparty {
		report.TopCounterparties = append(report.TopCounterparties, domain.CounterpartyCount{CounterpartyID: id, Breaks: n})
	}
	sort.Slice(report.TopCounterparties, func(i, j int) bool {
		a, b := report.TopCounterparties[i], report.TopCounterparties[j]
		if a.Breaks != b.Breaks {
			return a.Breaks > b.Breaks
		}
		return a.CounterpartyID < b.CounterpartyID
	})
	if len(report.TopCounterparties) > topCounterparties {
		report.TopCounterparties = report.TopCounterparties[:topCounterparties]
	}

	sort.SliceStable(open, func(i, j int) bool {
		if open[i].PriorityScore != open[j].PriorityScore {
			return open[i].PriorityScore > open[j].PriorityScore
		}
		return open[i].ID < open[j].ID
	})
	if len(open) > topPriorityBreaks {
		open = open[:topPriorityBreaks]
	}
	report.TopPriorityBreaks = append(report.TopPriorityBreaks, open...)

	q.logger.Debug("report built",
		zap.String("trade_date", report.TradeDate),
		zap.Int("breaks", report.Stats.Total),
		zap.Int("open", len(open)))
	return report, nil
}

func (q *QueryService) allBreaks(ctx context.Context, tradeDate time.Time) ([]*domain.Break, error) {
	var all []*domain.Break
	for offset := 0; ; offset += reportPageSize {
		page, err := q.breaks.List(ctx, domain.BreakFilter{TradeDate: tradeDate, Limit: reportPageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("could not list breaks: %w", err)
		}
		all = append(all, page...)
		if len(page) < reportPageSize {
			return all, nil
		}
	}
}

func addAge(a *domain.AgingBuckets, age time.Duration) {
	const day = 24 * time.Hour
	switch {
	case age <= day:
		a.UpToOneDay++
	case age <= 3*day:
		a.OneToThreeDays++
	case age <= 7*day:
		a.ThreeToSeven++
	default:
		a.OverSevenDays++
	}
}
