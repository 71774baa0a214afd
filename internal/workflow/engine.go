package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/logger"
	"trade-reconciliation/internal/metrics"
	"trade-reconciliation/internal/rules"
)

// ErrAutoResolveDenied is returned when the rule set or allow-list does not
// permit closing a break automatically.
var ErrAutoResolveDenied = errors.New("auto-resolution not permitted")

// Repository persists breaks with optimistic concurrency.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.Break, error)
	// Update stores b only if the stored version still equals
	// expectedVersion, otherwise it returns a *domain.ConflictError.
	Update(ctx context.Context, b *domain.Break, expectedVersion int64, event domain.BreakEvent) error
	// ListDue returns non-terminal, non-manual-only breaks whose deadline is
	// at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Break, error)
}

// Publisher receives break lifecycle events after they are persisted.
type Publisher interface {
	Publish(ctx context.Context, events []domain.BreakEvent) error
}

// Engine applies workflow commands to stored breaks. It never retries on a
// version conflict; the caller reloads and decides.
type Engine struct {
	repo      Repository
	machine   *Machine
	rules     []domain.ResolutionRule
	allow     domain.AllowList
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
	batchSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher publishes events after every successful transition.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSweepBatch bounds how many due breaks one sweep loads.
func WithSweepBatch(n int) Option {
	return func(e *Engine) { e.batchSize = n }
}

// NewEngine creates a workflow engine.
func NewEngine(repo Repository, machine *Machine, rs []domain.ResolutionRule, allow domain.AllowList, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:      repo,
		machine:   machine,
		rules:     rules.Sort(rs),
		allow:     allow,
		logger:    logger.OrNop(log),
		now:       time.Now,
		batchSize: 500,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Assign gives the break to an assignee.
func (e *Engine) Assign(ctx context.Context, id string, expectedVersion int64, assignee, actor string) (*domain.Break, error) {
	return e.transition(ctx, id, expectedVersion, Command{Trigger: domain.TriggerAssign, Assignee: assignee, Actor: actor})
}

// StartReview moves an assigned break into review.
func (e *Engine) StartReview(ctx context.Context, id string, expectedVersion int64, actor string) (*domain.Break, error) {
	return e.transition(ctx, id, expectedVersion, Command{Trigger: domain.TriggerStartReview, Actor: actor})
}

// Resolve closes a break with a manual resolution.
func (e *Engine) Resolve(ctx context.Context, id string, expectedVersion int64, action domain.ResolutionAction, notes, actor string) (*domain.Break, error) {
	return e.transition(ctx, id, expectedVersion, Command{
		Trigger:    domain.TriggerResolve,
		Actor:      actor,
		Note:       notes,
		Resolution: &domain.Resolution{Action: action, Notes: notes, ResolvedBy: actor},
	})
}

// Escalate escalates a break by hand.
func (e *Engine) Escalate(ctx context.Context, id string, expectedVersion int64, actor, note string) (*domain.Break, error) {
	return e.transition(ctx, id, expectedVersion, Command{Trigger: domain.TriggerEscalate, Actor: actor, Note: note})
}

// AutoResolve evaluates the resolution rules for a stored break and closes it
// when they permit. The decision is returned in either case.
func (e *Engine) AutoResolve(ctx context.Context, id string, expectedVersion int64) (*domain.Break, rules.Decision, error) {
	b, err := e.load(ctx, id, expectedVersion)
	if err != nil {
		return nil, rules.Decision{}, err
	}
	d := rules.Evaluate(b, e.rules, e.allow)
	if !d.AutoResolve {
		return nil, d, fmt.Errorf("break %s: %w: %s", id, ErrAutoResolveDenied, d.Reason)
	}
	next, err := e.apply(ctx, b, AutoResolveCommand(d))
	if err != nil {
		return nil, d, err
	}
	metrics.AutoResolved.WithLabelValues(d.Rule.Name).Inc()
	return next, d, nil
}

// AutoResolveCommand builds the auto_resolve command for a permitting decision.
func AutoResolveCommand(d rules.Decision) Command {
	cmd := Command{Trigger: domain.TriggerAutoResolve, Actor: SystemActor}
	res := &domain.Resolution{Action: d.Action, ResolvedBy: SystemActor}
	if d.Rule != nil {
		res.RuleName = d.Rule.Name
		res.Notes = "auto-resolved by rule " + d.Rule.Name
		cmd.Note = res.Notes
	}
	cmd.Resolution = res
	return cmd
}

// SweepResult summarizes one SLA sweep.
type SweepResult struct {
	Due        int `json:"due"`
	Escalated  int `json:"escalated"`
	ManualOnly int `json:"manual_only"`
	Conflicts  int `json:"conflicts"`
	// TradeDates lists the distinct trade dates (YYYY-MM-DD) of escalated breaks.
	TradeDates []string `json:"trade_dates,omitempty"`
}

// SweepSLA escalates every overdue break. Breaks changed concurrently are
// skipped and picked up by the next sweep.
func (e *Engine) SweepSLA(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	due, err := e.repo.ListDue(ctx, now, e.batchSize)
	if err != nil {
		return res, fmt.Errorf("failed to list overdue breaks: %w", err)
	}
	res.Due = len(due)

	for _, b := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !e.machine.Overdue(b, now) {
			continue
		}
		next, ev, err := e.machine.Apply(b, Command{Trigger: domain.TriggerEscalate, Actor: SystemActor, Note: "SLA deadline elapsed"}, now)
		if err != nil {
			e.logger.Warn("escalation rejected", zap.String("break_id", b.ID), zap.Error(err))
			continue
		}
		if err := e.repo.Update(ctx, next, b.Version, ev); err != nil {
			var conflict *domain.ConflictError
			if errors.As(err, &conflict) {
				res.Conflicts++
				metrics.Conflicts.Inc()
				e.logger.Info("escalation skipped, break changed concurrently",
					zap.String("break_id", b.ID),
					zap.Int64("expected_version", conflict.ExpectedVersion),
					zap.Int64("current_version", conflict.CurrentVersion))
				continue
			}
			return res, fmt.Errorf("failed to escalate break %s: %w", b.ID, err)
		}
		res.Escalated++
		if d := next.TradeDate.Format(time.DateOnly); !slices.Contains(res.TradeDates, d) {
			res.TradeDates = append(res.TradeDates, d)
		}
		if next.ManualOnly {
			res.ManualOnly++
		}
		metrics.Transitions.WithLabelValues(string(ev.Trigger)).Inc()
		metrics.Escalations.WithLabelValues(string(next.Severity)).Inc()
		e.publish(ctx, ev)
	}

	if res.Due > 0 {
		e.logger.Info("SLA sweep complete",
			zap.Int("due", res.Due),
			zap.Int("escalated", res.Escalated),
			zap.Int("manual_only", res.ManualOnly),
			zap.Int("conflicts", res.Conflicts))
	}
	return res, nil
}

func (e *Engine) transition(ctx context.Context, id string, expectedVersion int64, cmd Command) (*domain.Break, error) {
	b, err := e.load(ctx, id, expectedVersion)
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, b, cmd)
}

func (e *Engine) load(ctx context.Context, id string, expectedVersion int64) (*domain.Break, error) {
	b, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Version != expectedVersion {
		metrics.Conflicts.Inc()
		return nil, &domain.ConflictError{
			BreakID:         id,
			ExpectedVersion: expectedVersion,
			CurrentVersion:  b.Version,
			CurrentStatus:   b.Status,
		}
	}
	return b, nil
}

func (e *Engine) apply(ctx context.Context, b *domain.Break, cmd Command) (*domain.Break, error) {
	next, ev, err := e.machine.Apply(b, cmd, e.now())
	if err != nil {
		return nil, err
	}
	if err := e.repo.Update(ctx, next, b.Version, ev); err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			metrics.Conflicts.Inc()
		}
		return nil, err
	}
	metrics.Transitions.WithLabelValues(string(cmd.Trigger)).Inc()
	e.logger.Info("break transition",
		zap.String("break_id", next.ID),
		zap.String("trigger", string(cmd.Trigger)),
		zap.String("from", string(ev.FromStatus)),
		zap.String("to", string(ev.ToStatus)),
		zap.Int64("version", next.Version),
		zap.String("actor", ev.Actor))
	e.publish(ctx, ev)
	return next, nil
}

func (e *Engine) publish(ctx context.Context, ev domain.BreakEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, []domain.BreakEvent{ev}); err != nil {
		e.logger.Warn("failed to publish break event", zap.String("break_id", ev.BreakID), zap.Error(err))
	}
}
