// Package scoring computes bounded similarity scores for candidate trade pairs.
package scoring

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
)

// ScorePrecision is the number of decimal places scores are rounded to, so that
// equal scores compare equal regardless of how they were computed.
const ScorePrecision = 6

// Scorer is the pluggable scoring capability used by the matching engine.
// Implementations must be pure: no shared mutable state, safe for concurrent use.
type Scorer interface {
	Score(pair domain.CandidatePair, cfg config.Matching) (decimal.Decimal, domain.FieldAgreement)
}

// Deterministic is the default weighted-agreement scorer.
type Deterministic struct{}

// NewDeterministic returns the default scorer.
func NewDeterministic() Deterministic { return Deterministic{} }

// Score returns the weighted sum of field credits normalized to [0,1].
func (Deterministic) Score(pair domain.CandidatePair, cfg config.Matching) (decimal.Decimal, domain.FieldAgreement) {
	fa := Compare(pair, cfg)
	w := cfg.Weights
	total := decimal.NewFromFloat(w.Sum())
	if !total.IsPositive() {
		return decimal.Zero, fa
	}

	sum := decimal.NewFromFloat(w.Price).Mul(fa[domain.FieldPrice].Credit).
		Add(decimal.NewFromFloat(w.Quantity).Mul(fa[domain.FieldQuantity].Credit)).
		Add(decimal.NewFromFloat(w.Side).Mul(fa[domain.FieldSide].Credit)).
		Add(decimal.NewFromFloat(w.SettlementDate).Mul(fa[domain.FieldSettlementDate].Credit))

	return clamp(sum.Div(total)).Round(ScorePrecision), fa
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}

// New builds the scorer selected by configuration.
func New(cfg config.Matching) (Scorer, error) {
	switch cfg.Scorer {
	case "", "deterministic":
		return NewDeterministic(), nil
	case "learned":
		s, err := LoadLearned(cfg.ModelPath)
		if err != nil {
			return nil, &domain.ConfigurationError{Field: "matching.model_path", Reason: err.Error()}
		}
		return s, nil
	default:
		return nil, &domain.ConfigurationError{Field: "matching.scorer", Reason: fmt.Sprintf("unknown scorer %q", cfg.Scorer)}
	}
}
