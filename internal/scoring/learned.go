package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
)

// Feature names understood by the learned scorer.
const (
	FeaturePriceDeltaPercent    = "price_delta_pct"
	FeatureQuantityDeltaPercent = "quantity_delta_pct"
	FeatureSideMatch            = "side_match"
	FeatureSettlementDeltaDays  = "settlement_delta_days"
	FeatureTradeTimeDeltaHours  = "trade_time_delta_hours"
	FeatureReferenceSimilarity  = "reference_similarity"
)

var knownFeatures = map[string]bool{
	FeaturePriceDeltaPercent:    true,
	FeatureQuantityDeltaPercent: true,
	FeatureSideMatch:            true,
	FeatureSettlementDeltaDays:  true,
	FeatureTradeTimeDeltaHours:  true,
	FeatureReferenceSimilarity:  true,
}

// Model is a trained logistic model. Training happens elsewhere; this package
// only evaluates it.
type Model struct {
	Version   string             `json:"version"`
	Intercept float64            `json:"intercept"`
	Weights   map[string]float64 `json:"weights"`
}

// Validate rejects models referencing unknown features.
func (m Model) Validate() error {
	var unknown []string
	for name := range m.Weights {
		if !knownFeatures[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("model references unknown features: %s", strings.Join(unknown, ", "))
	}
	if len(m.Weights) == 0 {
		return fmt.Errorf("model has no weights")
	}
	return nil
}

// Learned scores pairs with a logistic model over pair features. Field
// agreement is computed by Compare, like the deterministic scorer.
type Learned struct {
	model Model
	names []string
}

// NewLearned wraps a validated model.
func NewLearned(m Model) (*Learned, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m.Weights))
	for name := range m.Weights {
		names = append(names, name)
	}
	// fixed summation order keeps the score reproducible
	sort.Strings(names)
	return &Learned{model: m, names: names}, nil
}

// LoadLearned reads a JSON model file.
func LoadLearned(path string) (*Learned, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", path, err)
	}
	return NewLearned(m)
}

// Score returns the model's match probability rounded to ScorePrecision.
func (l *Learned) Score(pair domain.CandidatePair, cfg config.Matching) (decimal.Decimal, domain.FieldAgreement) {
	fa := Compare(pair, cfg)
	features := Features(pair, fa)

	z := l.model.Intercept
	for _, name := range l.names {
		z += l.model.Weights[name] * features[name]
	}
	p := 1 / (1 + math.Exp(-z))
	return clamp(decimal.NewFromFloat(p)).Round(ScorePrecision), fa
}

// Features extracts the learned scorer's inputs from a pair.
func Features(pair domain.CandidatePair, fa domain.FieldAgreement) map[string]float64 {
	side := 0.0
	if fa[domain.FieldSide].Matched {
		side = 1
	}
	gap := pair.Internal.TradeDate.Sub(pair.External.TradeDate)
	if gap < 0 {
		gap = -gap
	}
	return map[string]float64{
		FeaturePriceDeltaPercent:    fa[domain.FieldPrice].DeltaPercent.InexactFloat64(),
		FeatureQuantityDeltaPercent: fa[domain.FieldQuantity].DeltaPercent.InexactFloat64(),
		FeatureSideMatch:            side,
		FeatureSettlementDeltaDays:  fa[domain.FieldSettlementDate].Delta.InexactFloat64(),
		FeatureTradeTimeDeltaHours:  gap.Hours(),
		FeatureReferenceSimilarity:  ReferenceSimilarity(pair.Internal.ExternalTradeID, pair.External.ExternalTradeID),
	}
}

// ReferenceSimilarity is 1 − normalized Levenshtein distance of two trade
// references, compared case-insensitively.
func ReferenceSimilarity(a, b string) float64 {
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	maxLen := math.Max(float64(len(a)), float64(len(b)))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/maxLen
}
