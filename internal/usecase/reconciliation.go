package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trade-reconciliation/internal/classify"
	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/logger"
	"trade-reconciliation/internal/matching"
	"trade-reconciliation/internal/metrics"
	"trade-reconciliation/internal/rules"
	"trade-reconciliation/internal/scoring"
	"trade-reconciliation/internal/workflow"
)

// RunOptions modify a single reconciliation run.
type RunOptions struct {
	// ForceRerun executes a new run even if the date already completed.
	// Breaks that already exist are reproduced, never duplicated.
	ForceRerun bool
}

// Dependencies are the adapters the orchestrator drives.
type Dependencies struct {
	Source    TradeSource
	Runs      RunRepository
	Breaks    BreakStore
	Locker    RunLocker
	Publisher EventPublisher
}

// ReconciliationUseCase orchestrates the reconciliation of one trade date:
// ingestion, matching, classification, rule evaluation and the atomic commit
// of the resulting breaks.
type ReconciliationUseCase struct {
	cfg    *config.Config
	deps   Dependencies
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciliationUseCase creates a new instance of the usecase.
func NewReconciliationUseCase(cfg *config.Config, deps Dependencies, log *zap.Logger) *ReconciliationUseCase {
	return &ReconciliationUseCase{cfg: cfg, deps: deps, logger: logger.OrNop(log), now: time.Now}
}

// WithClock replaces time.Now. Intended for tests.
func (uc *ReconciliationUseCase) WithClock(now func() time.Time) *ReconciliationUseCase {
	uc.now = now
	return uc
}

// pipeline is the per-run set of components built from validated configuration.
type pipeline struct {
	matcher    *matching.Engine
	classifier *classify.Classifier
	machine    *workflow.Machine
	rules      []domain.ResolutionRule
	allow      domain.AllowList
}

func (uc *ReconciliationUseCase) prepare() (*pipeline, error) {
	if err := uc.cfg.Validate(); err != nil {
		return nil, err
	}
	allow, rs, err := uc.cfg.Resolution.Compile()
	if err != nil {
		return nil, err
	}
	scorer, err := scoring.New(uc.cfg.Matching)
	if err != nil {
		return nil, err
	}
	return &pipeline{
		matcher:    matching.NewEngine(scorer, uc.cfg.Matching, uc.logger),
		classifier: classify.New(uc.cfg.Severity),
		machine:    workflow.NewMachine(uc.cfg.Workflow),
		rules:      rules.Sort(rs),
		allow:      allow,
	}, nil
}

// Reconcile runs the pipeline for one trade date. A date that already has a
// completed run is returned unchanged unless opts.ForceRerun is set. When the
// run fails or exceeds its budget it is recorded as FAILED and no break is
// committed.
func (uc *ReconciliationUseCase) Reconcile(ctx context.Context, tradeDate time.Time, opts RunOptions) (*domain.ReconciliationRun, error) {
	tradeDate = truncateDay(tradeDate)
	dateStr := tradeDate.Format(time.DateOnly)
	log := uc.logger.With(zap.String("trade_date", dateStr))

	// Step 1: Configuration
	p, err := uc.prepare()
	if err != nil {
		return nil, err
	}

	// Step 2: One run per trade date
	release, err := uc.deps.Locker.Acquire(ctx, dateStr)
	if err != nil {
		if errors.Is(err, domain.ErrRunInProgress) {
			return nil, err
		}
		return nil, fmt.Errorf("could not lock trade date %s: %w", dateStr, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release run lock", zap.Error(err))
		}
	}()

	// Step 3: Idempotent re-run
	latest, err := uc.deps.Runs.LatestRun(ctx, tradeDate)
	switch {
	case err == nil && latest.Status == domain.RunCompleted && !opts.ForceRerun:
		log.Info("trade date already reconciled", zap.String("run_id", latest.ID))
		return latest, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("could not load previous run: %w", err)
	}

	run := &domain.ReconciliationRun{
		ID:         uuid.NewString(),
		TradeDate:  tradeDate,
		StartedAt:  uc.now().UTC(),
		Status:     domain.RunRunning,
		ForceRerun: opts.ForceRerun,
		Statistics: domain.NewRunStatistics(),
	}
	if err := uc.deps.Runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("could not record run start: %w", err)
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("reconciliation run started", zap.Bool("force_rerun", opts.ForceRerun))

	// Step 4: Execute within the wall-clock budget
	runCtx, cancel := context.WithTimeout(ctx, uc.cfg.Run.Budget)
	defer cancel()

	breaks, events, err := uc.execute(runCtx, p, run)
	var commit domain.CommitResult
	if err == nil {
		completed := uc.now().UTC()
		run.Status = domain.RunCompleted
		run.CompletedAt = &completed
		// Step 5: Commit all or nothing
		commit, err = uc.deps.Breaks.CommitRun(runCtx, run, breaks, events)
	}
	if err != nil {
		return nil, uc.fail(ctx, runCtx, run, err, log)
	}

	inserted := make(map[string]bool, len(commit.Inserted))
	for _, id := range commit.Inserted {
		inserted[id] = true
	}
	autoResolved := 0
	for _, b := range breaks {
		if !inserted[b.ID] {
			continue
		}
		metrics.BreaksCreated.WithLabelValues(string(b.Category), string(b.Severity)).Inc()
		if rule := autoResolvedBy(b); rule != "" {
			autoResolved++
			metrics.AutoResolved.WithLabelValues(rule).Inc()
		}
	}

	// Skipped breaks already exist from an earlier run and were not resolved here.
	if len(commit.Skipped) > 0 {
		run.Statistics.ExistingSkipped = len(commit.Skipped)
		run.Statistics.AutoResolved = autoResolved
		if err := uc.deps.Runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			log.Warn("failed to update run statistics", zap.Error(err))
		}
	}

	metrics.RunsTotal.WithLabelValues(string(domain.RunCompleted)).Inc()
	metrics.RunDuration.Observe(run.Duration().Seconds())

	// Step 6: Notify
	uc.publish(ctx, events, inserted, log)

	s := run.Statistics
	log.Info("reconciliation run completed",
		zap.Int("internal", s.TotalInternal),
		zap.Int("external", s.TotalExternal),
		zap.Int("rejected", s.Rejected),
		zap.Int("matched", s.Matched),
		zap.Int("breaks", s.Breaks),
		zap.Int("auto_resolved", s.AutoResolved),
		zap.Int("existing_skipped", s.ExistingSkipped),
		zap.Duration("duration", run.Duration()))
	return run, nil
}

// execute loads, matches and classifies, filling run statistics as it goes
// so a failed run still reports how far it got.
func (uc *ReconciliationUseCase) execute(ctx context.Context, p *pipeline, run *domain.ReconciliationRun) ([]*domain.Break, []domain.BreakEvent, error) {
	stats := &run.Statistics

	batch, err := uc.deps.Source.LoadTrades(ctx, run.TradeDate)
	if err != nil {
		return nil, nil, fmt.Errorf("could not load trades: %w", err)
	}
	stats.TotalInternal = len(batch.Internal)
	stats.TotalExternal = len(batch.External)
	for _, r := range batch.Rejected {
		if r.Record.Source == domain.SourceExternal {
			stats.TotalExternal++
		} else {
			stats.TotalInternal++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	result, err := p.matcher.Match(ctx, batch.Internal, batch.External)
	if err != nil {
		return nil, nil, fmt.Errorf("matching failed: %w", err)
	}
	rejected := append(append([]domain.RejectedRecord(nil), batch.Rejected...), result.Rejected...)
	for _, r := range rejected {
		uc.logger.Warn("rejected trade record",
			zap.String("source", string(r.Error.Source)),
			zap.String("record_id", r.Error.RecordID),
			zap.String("field", r.Error.Field),
			zap.String("reason", r.Error.Reason))
	}
	stats.Rejected = len(rejected)
	stats.CandidatesScored = result.CandidatesScored
	stats.CandidatesDropped = result.CandidatesDropped
	stats.LowScore = len(result.LowScore)
	stats.Matched = len(result.MatchedPairs)
	stats.UnmatchedInternal = len(result.UnmatchedInternal)
	stats.UnmatchedExternal = len(result.UnmatchedExternal)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	breaks := p.classifier.Classify(run.TradeDate, result, result.LowScore)
	now := uc.now().UTC()
	events := make([]domain.BreakEvent, 0, len(breaks))
	out := make([]*domain.Break, 0, len(breaks))
	for _, b := range breaks {
		b.RunID = run.ID
		events = append(events, p.machine.Open(b, now))

		if d := rules.Evaluate(b, p.rules, p.allow); d.AutoResolve {
			resolved, ev, err := p.machine.Apply(b, workflow.AutoResolveCommand(d), now)
			if err != nil {
				return nil, nil, fmt.Errorf("could not auto-resolve break %s: %w", b.ID, err)
			}
			b = resolved
			events = append(events, ev)
			stats.AutoResolved++
		}

		stats.Breaks++
		stats.BreaksBySeverity[b.Severity]++
		stats.BreaksByCategory[b.Category]++
		out = append(out, b)
	}
	return out, events, ctx.Err()
}

// autoResolvedBy names the rule that closed b during this run, if any.
func autoResolvedBy(b *domain.Break) string {
	if b.Status != domain.StatusResolved || b.Resolution == nil {
		return ""
	}
	return b.Resolution.RuleName
}

// fail records the run as FAILED with its partial statistics. Exceeding the
// budget is reported as *domain.RunTimeoutError.
func (uc *ReconciliationUseCase) fail(parent, runCtx context.Context, run *domain.ReconciliationRun, cause error, log *zap.Logger) error {
	completed := uc.now().UTC()
	run.Status = domain.RunFailed
	run.CompletedAt = &completed
	run.FailureReason = cause.Error()

	timedOut := parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded)
	if timedOut {
		run.FailureReason = fmt.Sprintf("run budget of %s exceeded", uc.cfg.Run.Budget)
	}

	if err := uc.deps.Runs.SaveRun(context.WithoutCancel(parent), run); err != nil {
		log.Error("failed to record failed run", zap.Error(err))
	}
	metrics.RunsTotal.WithLabelValues(string(domain.RunFailed)).Inc()
	log.Error("reconciliation run failed", zap.String("reason", run.FailureReason), zap.Error(cause))

	if timedOut {
		return &domain.RunTimeoutError{TradeDate: run.TradeDate, Budget: uc.cfg.Run.Budget, Statistics: run.Statistics}
	}
	return fmt.Errorf("reconciliation run for %s failed: %w", run.TradeDate.Format(time.DateOnly), cause)
}

func (uc *ReconciliationUseCase) publish(ctx context.Context, events []domain.BreakEvent, inserted map[string]bool, log *zap.Logger) {
	if uc.deps.Publisher == nil {
		return
	}
	var out []domain.BreakEvent
	for _, ev := range events {
		if inserted[ev.BreakID] {
			out = append(out, ev)
		}
	}
	if len(out) == 0 {
		return
	}
	if err := uc.deps.Publisher.Publish(ctx, out); err != nil {
		log.Warn("failed to publish break events", zap.Int("count", len(out)), zap.Error(err))
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
