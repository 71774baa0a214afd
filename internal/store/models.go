package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trade-reconciliation/internal/domain"
)

const dateLayout = time.DateOnly

// breakModel is the persisted form of a break.
type breakModel struct {
	ID                string          `gorm:"primaryKey;type:varchar(36)"`
	RunID             string          `gorm:"type:varchar(36);index"`
	TradeDate         string          `gorm:"type:varchar(10);index"`
	Category          string          `gorm:"type:varchar(32);index"`
	Severity          string          `gorm:"type:varchar(16);index"`
	RootCause         string          `gorm:"type:varchar(32)"`
	PriorityScore     int             `gorm:"index"`
	RelatedInternalID string          `gorm:"type:varchar(64)"`
	RelatedExternalID string          `gorm:"type:varchar(64)"`
	InstrumentID      string          `gorm:"type:varchar(64)"`
	CounterpartyID    string          `gorm:"type:varchar(64);index"`
	Notional          decimal.Decimal `gorm:"type:decimal(24,8)"`
	Detail            string          `gorm:"type:text"`
	Status            string          `gorm:"type:varchar(16);index"`
	Assignee          string          `gorm:"type:varchar(64);index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SLADeadline       time.Time `gorm:"column:sla_deadline;index"`
	EscalationCount   int
	ManualOnly        bool
	ResolutionAction  string `gorm:"type:varchar(32)"`
	ResolutionNotes   string `gorm:"type:text"`
	ResolvedBy        string `gorm:"type:varchar(64)"`
	ResolvedAt        *time.Time
	ResolutionRule    string `gorm:"type:varchar(128)"`
	Version           int64
}

func (breakModel) TableName() string { return "breaks" }

// eventModel is one audit trail entry.
type eventModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	BreakID    string `gorm:"type:varchar(36);index"`
	Version    int64
	Trigger    string `gorm:"type:varchar(16)"`
	FromStatus string `gorm:"type:varchar(16)"`
	ToStatus   string `gorm:"type:varchar(16)"`
	Actor      string `gorm:"type:varchar(64)"`
	Assignee   string `gorm:"type:varchar(64)"`
	Note       string `gorm:"type:text"`
	At         time.Time
}

func (eventModel) TableName() string { return "break_events" }

// runModel is the persisted form of a reconciliation run.
type runModel struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	TradeDate     string `gorm:"type:varchar(10);index"`
	StartedAt     time.Time
	CompletedAt   *time.Time
	Status        string `gorm:"type:varchar(16)"`
	FailureReason string `gorm:"type:text"`
	ForceRerun    bool
	Statistics    string `gorm:"type:text"`
}

func (runModel) TableName() string { return "runs" }

func toBreakModel(b *domain.Break) (*breakModel, error) {
	detail, err := json.Marshal(b.Detail)
	if err != nil {
		return nil, fmt.Errorf("failed to encode detail of break %s: %w", b.ID, err)
	}
	m := &breakModel{
		ID:                b.ID,
		RunID:             b.RunID,
		TradeDate:         b.TradeDate.UTC().Format(dateLayout),
		Category:          string(b.Category),
		Severity:          string(b.Severity),
		RootCause:         string(b.RootCause),
		PriorityScore:     b.PriorityScore,
		RelatedInternalID: b.RelatedInternalID,
		RelatedExternalID: b.RelatedExternalID,
		InstrumentID:      b.InstrumentID,
		CounterpartyID:    b.CounterpartyID,
		Notional:          b.Notional,
		Detail:            string(detail),
		Status:            string(b.Status),
		Assignee:          b.Assignee,
		CreatedAt:         b.CreatedAt.UTC(),
		UpdatedAt:         b.UpdatedAt.UTC(),
		SLADeadline:       b.SLADeadline.UTC(),
		EscalationCount:   b.EscalationCount,
		ManualOnly:        b.ManualOnly,
		Version:           b.Version,
	}
	if r := b.Resolution; r != nil {
		at := r.ResolvedAt.UTC()
		m.ResolutionAction = string(r.Action)
		m.ResolutionNotes = r.Notes
		m.ResolvedBy = r.ResolvedBy
		m.ResolvedAt = &at
		m.ResolutionRule = r.RuleName
	}
	return m, nil
}

func (m *breakModel) toDomain() (*domain.Break, error) {
	tradeDate, err := time.Parse(dateLayout, m.TradeDate)
	if err != nil {
		return nil, fmt.Errorf("break %s has invalid trade date %q: %w", m.ID, m.TradeDate, err)
	}
	var detail domain.Detail
	if m.Detail != "" {
		if err := json.Unmarshal([]byte(m.Detail), &detail); err != nil {
			return nil, fmt.Errorf("failed to decode detail of break %s: %w", m.ID, err)
		}
	}
	b := &domain.Break{
		ID:                m.ID,
		RunID:             m.RunID,
		TradeDate:         tradeDate,
		Category:          domain.Category(m.Category),
		Severity:          domain.Severity(m.Severity),
		RootCause:         domain.RootCause(m.RootCause),
		PriorityScore:     m.PriorityScore,
		RelatedInternalID: m.RelatedInternalID,
		RelatedExternalID: m.RelatedExternalID,
		InstrumentID:      m.InstrumentID,
		CounterpartyID:    m.CounterpartyID,
		Notional:          m.Notional,
		Detail:            detail,
		Status:            domain.BreakStatus(m.Status),
		Assignee:          m.Assignee,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
		SLADeadline:       m.SLADeadline.UTC(),
		EscalationCount:   m.EscalationCount,
		ManualOnly:        m.ManualOnly,
		Version:           m.Version,
	}
	if m.ResolvedAt != nil {
		b.Resolution = &domain.Resolution{
			Action:     domain.ResolutionAction(m.ResolutionAction),
			Notes:      m.ResolutionNotes,
			ResolvedBy: m.ResolvedBy,
			ResolvedAt: m.ResolvedAt.UTC(),
			RuleName:   m.ResolutionRule,
		}
	}
	return b, nil
}

// mutable lists the columns a workflow transition may change.
func (m *breakModel) mutable() map[string]any {
	return map[string]any{
		"status":            m.Status,
		"assignee":          m.Assignee,
		"updated_at":        m.UpdatedAt,
		"sla_deadline":      m.SLADeadline,
		"escalation_count":  m.EscalationCount,
		"manual_only":       m.ManualOnly,
		"resolution_action": m.ResolutionAction,
		"resolution_notes":  m.ResolutionNotes,
		"resolved_by":       m.ResolvedBy,
		"resolved_at":       m.ResolvedAt,
		"resolution_rule":   m.ResolutionRule,
		"version":           m.Version,
	}
}

func toEventModel(ev domain.BreakEvent) *eventModel {
	return &eventModel{
		BreakID:    ev.BreakID,
		Version:    ev.Version,
		Trigger:    string(ev.Trigger),
		FromStatus: string(ev.FromStatus),
		ToStatus:   string(ev.ToStatus),
		Actor:      ev.Actor,
		Assignee:   ev.Assignee,
		Note:       ev.Note,
		At:         ev.At.UTC(),
	}
}

func (m *eventModel) toDomain() domain.BreakEvent {
	return domain.BreakEvent{
		BreakID:    m.BreakID,
		Version:    m.Version,
		Trigger:    domain.Trigger(m.Trigger),
		FromStatus: domain.BreakStatus(m.FromStatus),
		ToStatus:   domain.BreakStatus(m.ToStatus),
		Actor:      m.Actor,
		Assignee:   m.Assignee,
		Note:       m.Note,
		At:         m.At.UTC(),
	}
}

func toRunModel(r *domain.ReconciliationRun) (*runModel, error) {
	stats, err := json.Marshal(r.Statistics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode statistics of run %s: %w", r.ID, err)
	}
	m := &runModel{
		ID:            r.ID,
		TradeDate:     r.TradeDate.UTC().Format(dateLayout),
		StartedAt:     r.StartedAt.UTC(),
		Status:        string(r.Status),
		FailureReason: r.FailureReason,
		ForceRerun:    r.ForceRerun,
		Statistics:    string(stats),
	}
	if r.CompletedAt != nil {
		at := r.CompletedAt.UTC()
		m.CompletedAt = &at
	}
	return m, nil
}

func (m *runModel) toDomain() (*domain.ReconciliationRun, error) {
	tradeDate, err := time.Parse(dateLayout, m.TradeDate)
	if err != nil {
		return nil, fmt.Errorf("run %s has invalid trade date %q: %w", m.ID, m.TradeDate, err)
	}
	stats := domain.NewRunStatistics()
	if m.Statistics != "" {
		if err := json.Unmarshal([]byte(m.Statistics), &stats); err != nil {
			return nil, fmt.Errorf("failed to decode statistics of run %s: %w", m.ID, err)
		}
	}
	r := &domain.ReconciliationRun{
		ID:            m.ID,
		TradeDate:     tradeDate,
		StartedAt:     m.StartedAt.UTC(),
		Status:        domain.RunStatus(m.Status),
		FailureReason: m.FailureReason,
		ForceRerun:    m.ForceRerun,
		Statistics:    stats,
	}
	if m.CompletedAt != nil {
		at := m.CompletedAt.UTC()
		r.CompletedAt = &at
	}
	return r, nil
}
