// Package store persists breaks, their audit trail and reconciliation runs
// with gorm on sqlite or postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/logger"
)

// Open connects to the configured database and migrates the schema.
func Open(cfg config.Store) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, &domain.ConfigurationError{Field: "store.driver", Reason: fmt.Sprintf("unsupported driver %q", cfg.Driver)}
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer; one connection also keeps :memory: databases shared
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&breakModel{}, &eventModel{}, &runModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}

// Store implements the break and run repositories.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wraps an open database.
func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, logger: logger.OrNop(log)}
}

// Get loads a break by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Break, error) {
	var m breakModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("break %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load break %s: %w", id, err)
	}
	return m.toDomain()
}

// Update writes b when the stored version equals expectedVersion and appends
// the event to the audit trail, in one transaction.
func (s *Store) Update(ctx context.Context, b *domain.Break, expectedVersion int64, event domain.BreakEvent) error {
	m, err := toBreakModel(b)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&breakModel{}).
			Where("id = ? AND version = ?", b.ID, expectedVersion).
			Updates(m.mutable())
		if res.Error != nil {
			return fmt.Errorf("failed to update break %s: %w", b.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			var cur breakModel
			if err := tx.First(&cur, "id = ?", b.ID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("break %s: %w", b.ID, domain.ErrNotFound)
				}
				return fmt.Errorf("failed to reload break %s: %w", b.ID, err)
			}
			return &domain.ConflictError{
				BreakID:         b.ID,
				ExpectedVersion: expectedVersion,
				CurrentVersion:  cur.Version,
				CurrentStatus:   domain.BreakStatus(cur.Status),
			}
		}
		if err := tx.Create(toEventModel(event)).Error; err != nil {
			return fmt.Errorf("failed to record event for break %s: %w", b.ID, err)
		}
		return nil
	})
}

// ListDue returns breaks whose SLA deadline has passed and that the sweep may
// still escalate, earliest deadline first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Break, error) {
	var ms []breakModel
	err := s.db.WithContext(ctx).
		Where("status <> ? AND manual_only = ? AND sla_deadline <= ?", string(domain.StatusResolved), false, now.UTC()).
		Order("sla_deadline ASC").Order("id ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue breaks: %w", err)
	}
	return toBreaks(ms)
}

// List returns breaks matching the filter, highest priority first.
func (s *Store) List(ctx context.Context, f domain.BreakFilter) ([]*domain.Break, error) {
	q := applyFilter(s.db.WithContext(ctx).Model(&breakModel{}), f).
		Order("priority_score DESC").Order("id ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var ms []breakModel
	if err := q.Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to list breaks: %w", err)
	}
	return toBreaks(ms)
}

// Stats counts breaks matching the filter by severity, category and status.
func (s *Store) Stats(ctx context.Context, f domain.BreakFilter) (domain.BreakStats, error) {
	var rows []struct {
		Severity string
		Category string
		Status   string
		Count    int
	}
	err := applyFilter(s.db.WithContext(ctx).Model(&breakModel{}), f).
		Select("severity, category, status, COUNT(*) AS count").
		Group("severity, category, status").
		Scan(&rows).Error
	if err != nil {
		return domain.BreakStats{}, fmt.Errorf("failed to aggregate breaks: %w", err)
	}

	stats := domain.NewBreakStats()
	for _, r := range rows {
		stats.Total += r.Count
		stats.BySeverity[domain.Severity(r.Severity)] += r.Count
		stats.ByCategory[domain.Category(r.Category)] += r.Count
		stats.ByStatus[domain.BreakStatus(r.Status)] += r.Count
	}
	return stats, nil
}

// Events returns the audit trail of a break in version order.
func (s *Store) Events(ctx context.Context, breakID string) ([]domain.BreakEvent, error) {
	var ms []eventModel
	if err := s.db.WithContext(ctx).Where("break_id = ?", breakID).Order("version ASC").Order("id ASC").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to load events of break %s: %w", breakID, err)
	}
	out := make([]domain.BreakEvent, len(ms))
	for i := range ms {
		out[i] = ms[i].toDomain()
	}
	return out, nil
}

func applyFilter(q *gorm.DB, f domain.BreakFilter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", string(f.Severity))
	}
	if f.Category != "" {
		q = q.Where("category = ?", string(f.Category))
	}
	if f.Assignee != "" {
		q = q.Where("assignee = ?", f.Assignee)
	}
	if !f.TradeDate.IsZero() {
		q = q.Where("trade_date = ?", f.TradeDate.UTC().Format(dateLayout))
	}
	return q
}

func toBreaks(ms []breakModel) ([]*domain.Break, error) {
	out := make([]*domain.Break, 0, len(ms))
	for i := range ms {
		b, err := ms[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// CommitRun stores the run together with its new breaks and their creation
// events in one transaction. Breaks whose id already exists are left as they
// are and reported as skipped.
func (s *Store) CommitRun(ctx context.Context, run *domain.ReconciliationRun, breaks []*domain.Break, events []domain.BreakEvent) (domain.CommitResult, error) {
	rm, err := toRunModel(run)
	if err != nil {
		return domain.CommitResult{}, err
	}
	var result domain.CommitResult

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]string, len(breaks))
		for i, b := range breaks {
			ids[i] = b.ID
		}
		existing := make(map[string]bool)
		for _, chunk := range chunks(ids, 500) {
			var found []string
			if err := tx.Model(&breakModel{}).Where("id IN ?", chunk).Pluck("id", &found).Error; err != nil {
				return fmt.Errorf("failed to check existing breaks: %w", err)
			}
			for _, id := range found {
				existing[id] = true
			}
		}

		var models []*breakModel
		inserted := make(map[string]bool)
		for _, b := range breaks {
			if existing[b.ID] || inserted[b.ID] {
				result.Skipped = append(result.Skipped, b.ID)
				continue
			}
			m, err := toBreakModel(b)
			if err != nil {
				return err
			}
			models = append(models, m)
			inserted[b.ID] = true
			result.Inserted = append(result.Inserted, b.ID)
		}
		if len(models) > 0 {
			if err := tx.CreateInBatches(models, 200).Error; err != nil {
				return fmt.Errorf("failed to insert breaks: %w", err)
			}
		}

		var evs []*eventModel
		for _, ev := range events {
			if inserted[ev.BreakID] {
				evs = append(evs, toEventModel(ev))
			}
		}
		if len(evs) > 0 {
			if err := tx.CreateInBatches(evs, 500).Error; err != nil {
				return fmt.Errorf("failed to insert break events: %w", err)
			}
		}

		if err := tx.Save(rm).Error; err != nil {
			return fmt.Errorf("failed to save run %s: %w", run.ID, err)
		}
		return nil
	})
	if err != nil {
		return domain.CommitResult{}, err
	}
	sort.Strings(result.Skipped)
	return result, nil
}

// SaveRun inserts or replaces a run record.
func (s *Store) SaveRun(ctx context.Context, run *domain.ReconciliationRun) error {
	m, err := toRunModel(run)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// LatestRun returns the most recently started run for a trade date.
func (s *Store) LatestRun(ctx context.Context, tradeDate time.Time) (*domain.ReconciliationRun, error) {
	var m runModel
	err := s.db.WithContext(ctx).
		Where("trade_date = ?", tradeDate.UTC().Format(dateLayout)).
		Order("started_at DESC").Order("id DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run for %s: %w", tradeDate.Format(dateLayout), domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load run for %s: %w", tradeDate.Format(dateLayout), err)
	}
	return m.toDomain()
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
