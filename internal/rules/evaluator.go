// Package rules evaluates declarative resolution rules against breaks.
package rules

import (
	"sort"

	"trade-reconciliation/internal/domain"
)

// Decision is the outcome of evaluating the rule set against one break.
type Decision struct {
	// Rule is the first matching rule, nil when none matched.
	Rule   *domain.ResolutionRule
	Action domain.ResolutionAction
	// AutoResolve is true only when the action closes the break and the
	// allow-list permits the break's category and severity.
	AutoResolve bool
	Reason      string
}

// Sort orders rules by descending priority. Equal priorities keep their
// declared order.
func Sort(rules []domain.ResolutionRule) []domain.ResolutionRule {
	out := append([]domain.ResolutionRule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Evaluate returns the decision of the highest-priority matching rule. Breaks
// marked ManualOnly, or not covered by the allow-list, are never auto-resolved
// regardless of what the rule says.
func Evaluate(b *domain.Break, rules []domain.ResolutionRule, allow domain.AllowList) Decision {
	if b.ManualOnly {
		return Decision{Action: domain.ActionRequireManual, Reason: "escalation limit reached"}
	}

	for _, r := range Sort(rules) {
		if !Matches(r, b) {
			continue
		}
		rule := r
		d := Decision{Rule: &rule, Action: r.Action}
		switch {
		case !r.Action.Resolves():
			d.Reason = "rule requires manual review"
		case !allow.Permits(b.Category, b.Severity):
			d.Reason = "category and severity not on auto-resolve allow-list"
		default:
			d.AutoResolve = true
			d.Reason = "matched rule " + r.Name
		}
		return d
	}
	return Decision{Action: domain.ActionRequireManual, Reason: "no rule matched"}
}

// Matches reports whether every predicate of the rule holds for the break.
func Matches(r domain.ResolutionRule, b *domain.Break) bool {
	if len(r.Categories) > 0 && !contains(r.Categories, b.Category) {
		return false
	}
	if len(r.Severities) > 0 && !contains(r.Severities, b.Severity) {
		return false
	}
	for _, c := range r.Conditions {
		if !holds(c, b.Detail) {
			return false
		}
	}
	return true
}

// holds is false for a path the break does not carry.
func holds(c domain.Condition, d domain.Detail) bool {
	v, ok := d.Lookup(c.Field)
	if !ok {
		return false
	}
	cmp := v.Cmp(c.Value)
	switch c.Op {
	case domain.OpEq:
		return cmp == 0
	case domain.OpNe:
		return cmp != 0
	case domain.OpLt:
		return cmp < 0
	case domain.OpLte:
		return cmp <= 0
	case domain.OpGt:
		return cmp > 0
	case domain.OpGte:
		return cmp >= 0
	}
	return false
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
