// Package workflow owns the break lifecycle: the transition table, SLA
// deadlines, escalation and versioned persistence of transitions.
package workflow

import "trade-reconciliation/internal/domain"

// transitions is the complete table. A (status, trigger) pair not listed is
// rejected.
var transitions = map[domain.BreakStatus]map[domain.Trigger]domain.BreakStatus{
	domain.StatusOpen: {
		domain.TriggerAssign:      domain.StatusAssigned,
		domain.TriggerEscalate:    domain.StatusEscalated,
		domain.TriggerAutoResolve: domain.StatusResolved,
	},
	domain.StatusAssigned: {
		domain.TriggerStartReview: domain.StatusInReview,
		domain.TriggerEscalate:    domain.StatusEscalated,
	},
	domain.StatusInReview: {
		domain.TriggerResolve:  domain.StatusResolved,
		domain.TriggerEscalate: domain.StatusEscalated,
	},
	domain.StatusEscalated: {
		domain.TriggerAssign:      domain.StatusAssigned,
		domain.TriggerResolve:     domain.StatusResolved,
		domain.TriggerEscalate:    domain.StatusEscalated,
		domain.TriggerAutoResolve: domain.StatusResolved,
	},
	domain.StatusResolved: {},
}

// Next returns the target status of a trigger, or false when the transition
// is not allowed.
func Next(from domain.BreakStatus, t domain.Trigger) (domain.BreakStatus, bool) {
	to, ok := transitions[from][t]
	return to, ok
}

// Allowed lists the triggers accepted in a status, in a fixed order.
func Allowed(from domain.BreakStatus) []domain.Trigger {
	var out []domain.Trigger
	for _, t := range []domain.Trigger{
		domain.TriggerAssign,
		domain.TriggerStartReview,
		domain.TriggerResolve,
		domain.TriggerEscalate,
		domain.TriggerAutoResolve,
	} {
		if _, ok := transitions[from][t]; ok {
			out = append(out, t)
		}
	}
	return out
}
