package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a break or run does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRunInProgress is returned when another run holds the trade date.
	ErrRunInProgress = errors.New("reconciliation run already in progress")
)

// ValidationError describes a malformed or incomplete trade record.
type ValidationError struct {
	Source   Source `json:"source"`
	RecordID string `json:"record_id,omitempty"`
	Field    string `json:"field"`
	Reason   string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("invalid %s record: %s %s", e.Source, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s record %s: %s %s", e.Source, e.RecordID, e.Field, e.Reason)
}

// ConfigurationError describes an invalid tolerance or rule configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// ConflictError is returned when a break transition carries a stale version.
type ConflictError struct {
	BreakID         string
	ExpectedVersion int64
	CurrentVersion  int64
	CurrentStatus   BreakStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("break %s version conflict: expected %d, current %d (%s)",
		e.BreakID, e.ExpectedVersion, e.CurrentVersion, e.CurrentStatus)
}

// TransitionError is returned for a transition the state machine does not allow.
type TransitionError struct {
	BreakID string
	From    BreakStatus
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("break %s: %s not allowed from %s", e.BreakID, e.Trigger, e.From)
}

// RunTimeoutError is returned when a run exceeds its wall-clock budget.
type RunTimeoutError struct {
	TradeDate  time.Time
	Budget     time.Duration
	Statistics RunStatistics
}

func (e *RunTimeoutError) Error() string {
	return fmt.Sprintf("reconciliation run for %s exceeded budget of %s",
		e.TradeDate.Format(time.DateOnly), e.Budget)
}
