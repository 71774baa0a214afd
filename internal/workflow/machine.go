package workflow

import (
	"errors"
	"math"
	"strings"
	"time"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
)

// SystemActor is recorded for transitions not made by a person.
const SystemActor = "system"

var (
	ErrAssigneeRequired   = errors.New("assignee is required")
	ErrResolutionRequired = errors.New("a resolving action is required")
	ErrManualOnly         = errors.New("break requires manual resolution")
)

// Command is a request to apply one trigger to a break.
type Command struct {
	Trigger  domain.Trigger
	Actor    string
	Assignee string
	Note     string
	// Resolution carries action and notes for resolve and auto_resolve.
	Resolution *domain.Resolution
}

// Machine applies transitions to in-memory breaks. It performs no I/O.
type Machine struct {
	cfg config.Workflow
}

// NewMachine creates a machine for the given SLA and escalation settings.
func NewMachine(cfg config.Workflow) *Machine {
	return &Machine{cfg: cfg}
}

// Open initializes a freshly classified break as OPEN at version 1 with its
// SLA deadline, and returns the creation event.
func (m *Machine) Open(b *domain.Break, now time.Time) domain.BreakEvent {
	b.Status = domain.StatusOpen
	b.CreatedAt = now
	b.UpdatedAt = now
	b.SLADeadline = now.Add(m.cfg.SLAWindow(b.Severity))
	b.Version = 1
	return domain.BreakEvent{
		BreakID:  b.ID,
		Version:  b.Version,
		Trigger:  domain.TriggerCreate,
		ToStatus: domain.StatusOpen,
		Actor:    SystemActor,
		At:       now,
	}
}

// Apply returns a copy of b with the command applied and its version bumped.
// b itself is never modified.
func (m *Machine) Apply(b *domain.Break, cmd Command, now time.Time) (*domain.Break, domain.BreakEvent, error) {
	to, ok := Next(b.Status, cmd.Trigger)
	if !ok {
		return nil, domain.BreakEvent{}, &domain.TransitionError{BreakID: b.ID, From: b.Status, Trigger: cmd.Trigger}
	}

	next := b.Clone()
	switch cmd.Trigger {
	case domain.TriggerAssign:
		assignee := strings.TrimSpace(cmd.Assignee)
		if assignee == "" {
			return nil, domain.BreakEvent{}, ErrAssigneeRequired
		}
		next.Assignee = assignee
	case domain.TriggerResolve, domain.TriggerAutoResolve:
		if cmd.Resolution == nil || !cmd.Resolution.Action.Resolves() {
			return nil, domain.BreakEvent{}, ErrResolutionRequired
		}
		if cmd.Trigger == domain.TriggerAutoResolve && b.ManualOnly {
			return nil, domain.BreakEvent{}, ErrManualOnly
		}
		res := *cmd.Resolution
		res.ResolvedAt = now
		if res.ResolvedBy == "" {
			res.ResolvedBy = actor(cmd)
		}
		next.Resolution = &res
	case domain.TriggerEscalate:
		if !m.CanEscalate(b) {
			return nil, domain.BreakEvent{}, &domain.TransitionError{BreakID: b.ID, From: b.Status, Trigger: cmd.Trigger}
		}
		m.escalate(next, now)
	}

	next.Status = to
	next.UpdatedAt = now
	next.Version = b.Version + 1

	ev := domain.BreakEvent{
		BreakID:    b.ID,
		Version:    next.Version,
		Trigger:    cmd.Trigger,
		FromStatus: b.Status,
		ToStatus:   to,
		Actor:      actor(cmd),
		Assignee:   next.Assignee,
		Note:       cmd.Note,
		At:         now,
	}
	return next, ev, nil
}

// CanEscalate reports whether b is still below the escalation limit.
func (m *Machine) CanEscalate(b *domain.Break) bool {
	if b.ManualOnly {
		return false
	}
	return m.cfg.MaxEscalations <= 0 || b.EscalationCount < m.cfg.MaxEscalations
}

// escalate raises the assignee tier and extends the deadline from the later
// of now and the current deadline, so it always moves strictly later.
// Reaching the escalation limit marks the break manual-only.
func (m *Machine) escalate(b *domain.Break, now time.Time) {
	b.EscalationCount++
	n := b.EscalationCount

	window := m.cfg.SLAWindow(b.Severity)
	extended := time.Duration(float64(window) * math.Pow(m.cfg.EscalationMultiplier, float64(n)))
	if extended <= 0 {
		extended = time.Minute
	}
	base := now
	if b.SLADeadline.After(base) {
		base = b.SLADeadline
	}
	b.SLADeadline = base.Add(extended)

	if tiers := m.cfg.EscalationTiers; len(tiers) > 0 {
		b.Assignee = tiers[min(n, len(tiers)-1)]
	}
	if m.cfg.MaxEscalations > 0 && n >= m.cfg.MaxEscalations {
		b.ManualOnly = true
	}
}

// Overdue reports whether the sweep should escalate b at now.
func (m *Machine) Overdue(b *domain.Break, now time.Time) bool {
	return !b.Status.Terminal() && !b.ManualOnly && !now.Before(b.SLADeadline)
}

func actor(cmd Command) string {
	if cmd.Actor == "" {
		return SystemActor
	}
	return cmd.Actor
}
