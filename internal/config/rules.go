package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"trade-reconciliation/internal/domain"
)

// Compile parses the allow-list and rules into their domain form.
func (r Resolution) Compile() (domain.AllowList, []domain.ResolutionRule, error) {
	allow := make(domain.AllowList, 0, len(r.AutoResolveAllow))
	for i, a := range r.AutoResolveAllow {
		field := fmt.Sprintf("resolution.auto_resolve_allow[%d]", i)
		cat, ok := domain.ParseCategory(a.Category)
		if !ok {
			return nil, nil, &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown category %q", a.Category)}
		}
		sevs, err := parseSeverities(field, a.Severities)
		if err != nil {
			return nil, nil, err
		}
		allow = append(allow, domain.AllowEntry{Category: cat, Severities: sevs})
	}

	rules := make([]domain.ResolutionRule, 0, len(r.Rules))
	seen := make(map[string]bool, len(r.Rules))
	for i, rc := range r.Rules {
		field := fmt.Sprintf("resolution.rules[%d]", i)
		name := strings.TrimSpace(rc.Name)
		if name == "" {
			return nil, nil, &domain.ConfigurationError{Field: field + ".name", Reason: "missing"}
		}
		if seen[name] {
			return nil, nil, &domain.ConfigurationError{Field: field + ".name", Reason: fmt.Sprintf("duplicate rule %q", name)}
		}
		seen[name] = true

		action, ok := domain.ParseAction(rc.Action)
		if !ok {
			return nil, nil, &domain.ConfigurationError{Field: field + ".action", Reason: fmt.Sprintf("unknown action %q", rc.Action)}
		}
		rule := domain.ResolutionRule{Name: name, Priority: rc.Priority, Action: action}
		for _, c := range rc.Categories {
			cat, ok := domain.ParseCategory(c)
			if !ok {
				return nil, nil, &domain.ConfigurationError{Field: field + ".categories", Reason: fmt.Sprintf("unknown category %q", c)}
			}
			rule.Categories = append(rule.Categories, cat)
		}
		sevs, err := parseSeverities(field, rc.Severities)
		if err != nil {
			return nil, nil, err
		}
		rule.Severities = sevs
		for j, cc := range rc.Conditions {
			cond, err := parseCondition(fmt.Sprintf("%s.conditions[%d]", field, j), cc)
			if err != nil {
				return nil, nil, err
			}
			rule.Conditions = append(rule.Conditions, cond)
		}
		rules = append(rules, rule)
	}
	return allow, rules, nil
}

func parseSeverities(field string, in []string) ([]domain.Severity, error) {
	var out []domain.Severity
	for _, s := range in {
		sev, ok := domain.ParseSeverity(s)
		if !ok {
			return nil, &domain.ConfigurationError{Field: field + ".severities", Reason: fmt.Sprintf("unknown severity %q", s)}
		}
		out = append(out, sev)
	}
	return out, nil
}

func parseCondition(field string, cc ConditionConfig) (domain.Condition, error) {
	if strings.TrimSpace(cc.Field) == "" {
		return domain.Condition{}, &domain.ConfigurationError{Field: field + ".field", Reason: "missing"}
	}
	op := domain.Operator(strings.ToLower(strings.TrimSpace(cc.Op)))
	if !op.Valid() {
		return domain.Condition{}, &domain.ConfigurationError{Field: field + ".op", Reason: fmt.Sprintf("unknown operator %q", cc.Op)}
	}
	value, err := decimal.NewFromString(strings.TrimSpace(cc.Value))
	if err != nil {
		return domain.Condition{}, &domain.ConfigurationError{Field: field + ".value", Reason: fmt.Sprintf("not a number: %q", cc.Value)}
	}
	return domain.Condition{Field: strings.TrimSpace(cc.Field), Op: op, Value: value}, nil
}
