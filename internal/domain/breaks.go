package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies a break.
type Category string

const (
	CategoryMissingExternal     Category = "MISSING_EXTERNAL"
	CategoryMissingInternal     Category = "MISSING_INTERNAL"
	CategoryPriceBreak          Category = "PRICE_BREAK"
	CategoryQuantityBreak       Category = "QUANTITY_BREAK"
	CategorySettlementDateBreak Category = "SETTLEMENT_DATE_BREAK"
	CategorySideBreak           Category = "SIDE_BREAK"
	CategoryAmbiguousMatch      Category = "AMBIGUOUS_MATCH"
)

// Categories lists every category in reporting order.
var Categories = []Category{
	CategoryMissingExternal,
	CategoryMissingInternal,
	CategoryPriceBreak,
	CategoryQuantityBreak,
	CategorySettlementDateBreak,
	CategorySideBreak,
	CategoryAmbiguousMatch,
}

// ParseCategory parses a category name case-insensitively.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Severity of a break.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists severities from lowest to highest.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Severities {
		if sev == known {
			return sev, true
		}
	}
	return "", false
}

// BreakStatus is the workflow state of a break.
type BreakStatus string

const (
	StatusOpen      BreakStatus = "OPEN"
	StatusAssigned  BreakStatus = "ASSIGNED"
	StatusInReview  BreakStatus = "IN_REVIEW"
	StatusEscalated BreakStatus = "ESCALATED"
	StatusResolved  BreakStatus = "RESOLVED"
)

// Statuses lists every workflow state.
var Statuses = []BreakStatus{StatusOpen, StatusAssigned, StatusInReview, StatusEscalated, StatusResolved}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (BreakStatus, bool) {
	st := BreakStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s BreakStatus) Terminal() bool { return s == StatusResolved }

// Trigger is an event that drives a workflow transition.
type Trigger string

const (
	TriggerAssign      Trigger = "assign"
	TriggerStartReview Trigger = "start_review"
	TriggerResolve     Trigger = "resolve"
	TriggerEscalate    Trigger = "escalate"
	TriggerAutoResolve Trigger = "auto_resolve"
	TriggerCreate      Trigger = "create"
)

// RootCause is the likely origin of a break.
type RootCause string

const (
	RootCauseLateBooking          RootCause = "LATE_BOOKING"
	RootCauseBrokerFeedIssue      RootCause = "BROKER_FEED_ISSUE"
	RootCauseInternalBookingError RootCause = "INTERNAL_BOOKING_ERROR"
	RootCauseDataEntryError       RootCause = "DATA_ENTRY_ERROR"
	RootCauseRoundingDifference   RootCause = "ROUNDING_DIFFERENCE"
	RootCausePartialFill          RootCause = "PARTIAL_FILL"
	RootCauseDirectionMismatch    RootCause = "DIRECTION_MISMATCH"
	RootCauseSettlementConvention RootCause = "SETTLEMENT_CONVENTION"
	RootCauseDuplicateCandidate   RootCause = "DUPLICATE_CANDIDATE"
	RootCauseUnknown              RootCause = "UNKNOWN"
)

// ResolutionAction is what a resolution (manual or rule driven) decides.
type ResolutionAction string

const (
	ActionAcceptInternal ResolutionAction = "ACCEPT_INTERNAL"
	ActionAcceptExternal ResolutionAction = "ACCEPT_EXTERNAL"
	ActionIgnore         ResolutionAction = "IGNORE"
	ActionRequireManual  ResolutionAction = "REQUIRE_MANUAL"
)

// ParseAction parses a resolution action case-insensitively.
func ParseAction(s string) (ResolutionAction, bool) {
	a := ResolutionAction(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionAcceptInternal, ActionAcceptExternal, ActionIgnore, ActionRequireManual:
		return a, true
	}
	return "", false
}

// Resolves reports whether the action closes a break.
func (a ResolutionAction) Resolves() bool {
	return a == ActionAcceptInternal || a == ActionAcceptExternal || a == ActionIgnore
}

// Resolution records how a break was closed.
type Resolution struct {
	Action     ResolutionAction `json:"action"`
	Notes      string           `json:"notes,omitempty"`
	ResolvedBy string           `json:"resolved_by"`
	ResolvedAt time.Time        `json:"resolved_at"`
	RuleName   string           `json:"rule_name,omitempty"`
}

// DetailValue is one entry of a break's structured diff.
type DetailValue struct {
	Internal       string           `json:"internal,omitempty"`
	External       string           `json:"external,omitempty"`
	Delta          *decimal.Decimal `json:"delta,omitempty"`
	DeltaPercent   *decimal.Decimal `json:"delta_percent,omitempty"`
	ToleranceRatio *decimal.Decimal `json:"tolerance_ratio,omitempty"`
	DeltaDays      *decimal.Decimal `json:"delta_days,omitempty"`
	Note           string           `json:"note,omitempty"`
}

// Detail is the structured diff of disagreeing fields, keyed by field name.
// Well-known scalar keys: "notional" and "score" (stored in Delta).
type Detail map[string]DetailValue

// Lookup resolves a dotted path such as "price.delta_percent" to a number.
// A bare key ("notional", "score") resolves to its Delta.
func (d Detail) Lookup(path string) (decimal.Decimal, bool) {
	field, attr, _ := strings.Cut(path, ".")
	v, ok := d[field]
	if !ok {
		return decimal.Zero, false
	}
	var p *decimal.Decimal
	switch attr {
	case "", "delta":
		p = v.Delta
	case "delta_percent":
		p = v.DeltaPercent
	case "tolerance_ratio":
		p = v.ToleranceRatio
	case "delta_days":
		p = v.DeltaDays
	}
	if p == nil {
		return decimal.Zero, false
	}
	return *p, true
}

// Break is a detected discrepancy. Status, Assignee, SLADeadline, EscalationCount,
// ManualOnly and Resolution are owned by the workflow engine after creation.
type Break struct {
	ID                string          `json:"id"`
	RunID             string          `json:"run_id"`
	TradeDate         time.Time       `json:"trade_date"`
	Category          Category        `json:"category"`
	Severity          Severity        `json:"severity"`
	RootCause         RootCause       `json:"root_cause"`
	PriorityScore     int             `json:"priority_score"`
	RelatedInternalID string          `json:"related_internal_id,omitempty"`
	RelatedExternalID string          `json:"related_external_id,omitempty"`
	InstrumentID      string          `json:"instrument_id"`
	CounterpartyID    string          `json:"counterparty_id"`
	Notional          decimal.Decimal `json:"notional"`
	Detail            Detail          `json:"detail"`
	Status            BreakStatus     `json:"status"`
	Assignee          string          `json:"assignee,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	SLADeadline       time.Time       `json:"sla_deadline"`
	EscalationCount   int             `json:"escalation_count"`
	ManualOnly        bool            `json:"manual_only"`
	Resolution        *Resolution     `json:"resolution,omitempty"`
	Version           int64           `json:"version"`
}

// Clone returns a deep copy so transitions never alias stored state.
func (b *Break) Clone() *Break {
	c := *b
	if b.Detail != nil {
		c.Detail = make(Detail, len(b.Detail))
		for k, v := range b.Detail {
			c.Detail[k] = v
		}
	}
	if b.Resolution != nil {
		r := *b.Resolution
		c.Resolution = &r
	}
	return &c
}

// BreakEvent is one entry of a break's audit trail.
type BreakEvent struct {
	BreakID    string      `json:"break_id"`
	Version    int64       `json:"version"`
	Trigger    Trigger     `json:"trigger"`
	FromStatus BreakStatus `json:"from_status,omitempty"`
	ToStatus   BreakStatus `json:"to_status"`
	Actor      string      `json:"actor"`
	Assignee   string      `json:"assignee,omitempty"`
	Note       string      `json:"note,omitempty"`
	At         time.Time   `json:"at"`
}

// BreakFilter selects breaks for the read models.
type BreakFilter struct {
	Status    BreakStatus
	Severity  Severity
	Category  Category
	Assignee  string
	TradeDate time.Time
	Limit     int
	Offset    int
}

// BreakStats are break counts for dashboards.
type BreakStats struct {
	Total      int                 `json:"total"`
	BySeverity map[Severity]int    `json:"by_severity"`
	ByCategory map[Category]int    `json:"by_category"`
	ByStatus   map[BreakStatus]int `json:"by_status"`
}

// NewBreakStats returns stats with initialized maps.
func NewBreakStats() BreakStats {
	return BreakStats{
		BySeverity: make(map[Severity]int),
		ByCategory: make(map[Category]int),
		ByStatus:   make(map[BreakStatus]int),
	}
}

// Add counts a break.
func (s *BreakStats) Add(b *Break) {
	s.Total++
	s.BySeverity[b.Severity]++
	s.ByCategory[b.Category]++
	s.ByStatus[b.Status]++
}
