package domain

import "github.com/shopspring/decimal"

// Operator compares a break detail value against a rule constant.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
)

// Valid reports whether the operator is known.
func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// Condition is a single comparison over a break detail path, e.g.
// "price.delta_percent lte 0.05".
type Condition struct {
	Field string          `json:"field"`
	Op    Operator        `json:"op"`
	Value decimal.Decimal `json:"value"`
}

// ResolutionRule is a declarative predicate/action record. An empty Categories
// or Severities list matches any value; all Conditions must hold.
type ResolutionRule struct {
	Name       string           `json:"name"`
	Priority   int              `json:"priority"`
	Action     ResolutionAction `json:"action"`
	Categories []Category       `json:"categories,omitempty"`
	Severities []Severity       `json:"severities,omitempty"`
	Conditions []Condition      `json:"conditions,omitempty"`
}

// AllowEntry permits auto-resolution for a category at the listed severities.
type AllowEntry struct {
	Category   Category   `json:"category"`
	Severities []Severity `json:"severities"`
}

// AllowList is the auto-resolution safety rail.
type AllowList []AllowEntry

// Permits reports whether auto-resolution is allowed for the category and severity.
func (l AllowList) Permits(c Category, s Severity) bool {
	for _, e := range l {
		if e.Category != c {
			continue
		}
		for _, sev := range e.Severities {
			if sev == s {
				return true
			}
		}
	}
	return false
}
