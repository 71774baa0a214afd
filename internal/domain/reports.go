package domain

import "time"

// RunStatus is the lifecycle of a reconciliation run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// RunStatistics holds the counters of one run.
type RunStatistics struct {
	TotalInternal     int              `json:"total_internal"`
	TotalExternal     int              `json:"total_external"`
	Rejected          int              `json:"rejected"`
	CandidatesScored  int              `json:"candidates_scored"`
	CandidatesDropped int              `json:"candidates_dropped"`
	LowScore          int              `json:"low_score"`
	Matched           int              `json:"matched"`
	UnmatchedInternal int              `json:"unmatched_internal"`
	UnmatchedExternal int              `json:"unmatched_external"`
	Breaks            int              `json:"breaks"`
	BreaksBySeverity  map[Severity]int `json:"breaks_by_severity"`
	BreaksByCategory  map[Category]int `json:"breaks_by_category"`
	AutoResolved      int              `json:"auto_resolved"`
	ExistingSkipped   int              `json:"existing_skipped"`
}

// NewRunStatistics returns statistics with initialized maps.
func NewRunStatistics() RunStatistics {
	return RunStatistics{
		BreaksBySeverity: make(map[Severity]int),
		BreaksByCategory: make(map[Category]int),
	}
}

// ReconciliationRun is one execution of the pipeline for a single trade date.
type ReconciliationRun struct {
	ID            string        `json:"id"`
	TradeDate     time.Time     `json:"trade_date"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Status        RunStatus     `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	ForceRerun    bool          `json:"force_rerun"`
	Statistics    RunStatistics `json:"statistics"`
}

// Duration is the elapsed time of a finished run.
func (r *ReconciliationRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// AgingBuckets counts unresolved breaks by age.
type AgingBuckets struct {
	UpToOneDay     int `json:"0-1_days"`
	OneToThreeDays int `json:"1-3_days"`
	ThreeToSeven   int `json:"3-7_days"`
	OverSevenDays  int `json:"7+_days"`
}

// CounterpartyCount is a counterparty and its number of breaks.
type CounterpartyCount struct {
	CounterpartyID string `json:"counterparty_id"`
	Breaks         int    `json:"breaks"`
}

// BreakReport is the top-level structure for the per-date report output.
type BreakReport struct {
	TradeDate         string              `json:"trade_date"`
	Run               *ReconciliationRun  `json:"run,omitempty"`
	Stats             BreakStats          `json:"stats"`
	Aging             AgingBuckets        `json:"aging"`
	TopCounterparties []CounterpartyCount `json:"top_counterparties"`
	TopPriorityBreaks []*Break            `json:"top_priority_breaks"`
}

// CommitResult reports which breaks a run commit inserted and which already
// existed and were left untouched.
type CommitResult struct {
	Inserted []string
	Skipped  []string
}
