package scoring_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/scoring"
)

var tradeDay = time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

func trade(src domain.Source, id, price, qty string) domain.TradeRecord {
	return domain.TradeRecord{
		Source:          src,
		ExternalTradeID: id,
		InstrumentID:    "US0378331005",
		Quantity:        decimal.RequireFromString(qty),
		Price:           decimal.RequireFromString(price),
		TradeDate:       tradeDay,
		SettlementDate:  tradeDay.AddDate(0, 0, 2),
		CounterpartyID:  "CP-GS",
		Side:            domain.SideBuy,
	}
}

func pair(inPrice, exPrice string) domain.CandidatePair {
	return domain.CandidatePair{
		Internal: trade(domain.SourceInternal, "INT-1", inPrice, "1000"),
		External: trade(domain.SourceExternal, "EXT-1", exPrice, "1000"),
	}
}

func TestCompare_PriceToleranceBoundary(t *testing.T) {
	cfg := config.Default().Matching

	tests := []struct {
		name      string
		internal  string
		external  string
		wantMatch bool
	}{
		{name: "identical", internal: "100.00", external: "100.00", wantMatch: true},
		{name: "delta exactly at tolerance", internal: "100.00", external: "99.99", wantMatch: true},
		{name: "one unit beyond tolerance", internal: "100.00", external: "99.9899", wantMatch: false},
		{name: "small drift inside tolerance", internal: "50.00", external: "50.004", wantMatch: true},
		{name: "far outside tolerance", internal: "50.00", external: "50.10", wantMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := scoring.Compare(pair(tt.internal, tt.external), cfg)
			res := fa[domain.FieldPrice]
			assert.Equal(t, tt.wantMatch, res.Matched)
			if tt.wantMatch {
				assert.True(t, res.Credit.Equal(decimal.NewFromInt(1)))
			} else {
				assert.True(t, res.Credit.LessThan(decimal.NewFromInt(1)))
			}
		})
	}
}

func TestCompare_PriceBreakDetail(t *testing.T) {
	fa := scoring.Compare(pair("50.00", "50.10"), config.Default().Matching)
	res := fa[domain.FieldPrice]

	assert.False(t, res.Matched)
	assert.Equal(t, "50.00", res.Internal)
	assert.Equal(t, "50.10", res.External)
	assert.Equal(t, "0.1", res.Delta.String())
	assert.Equal(t, "0.2", res.DeltaPercent.String())
	assert.Equal(t, "20", res.ToleranceRatio.String())
	assert.True(t, res.Credit.IsZero())
	assert.Equal(t, []string{domain.FieldPrice}, fa.Disagreements())
}

func TestCompare_ZeroToleranceRequiresEquality(t *testing.T) {
	cfg := config.Default().Matching
	cfg.PriceTolerancePercent = 0

	assert.True(t, scoring.Compare(pair("10", "10.00"), cfg)[domain.FieldPrice].Matched)

	res := scoring.Compare(pair("10", "10.01"), cfg)[domain.FieldPrice]
	assert.False(t, res.Matched)
	assert.True(t, res.Credit.IsZero())
	assert.True(t, res.ToleranceRatio.GreaterThan(decimal.NewFromInt(1000)))
}

func TestCompare_SettlementAndSide(t *testing.T) {
	cfg := config.Default().Matching
	p := pair("10", "10")
	p.External.SettlementDate = p.Internal.SettlementDate.AddDate(0, 0, 1)
	p.External.Side = domain.SideSell

	fa := scoring.Compare(p, cfg)

	settle := fa[domain.FieldSettlementDate]
	assert.False(t, settle.Matched)
	assert.Equal(t, "1", settle.Delta.String())
	assert.True(t, settle.Credit.IsZero(), "24h apart is at the edge of a 24h window")

	assert.False(t, fa[domain.FieldSide].Matched)
	assert.Equal(t, []string{domain.FieldSide, domain.FieldSettlementDate}, fa.Disagreements())
}

func TestDeterministic_Score(t *testing.T) {
	cfg := config.Default().Matching
	s := scoring.NewDeterministic()

	tests := []struct {
		name string
		pair domain.CandidatePair
		want string
	}{
		{name: "exact match", pair: pair("100", "100"), want: "1"},
		{name: "within tolerance", pair: pair("50.00", "50.004"), want: "1"},
		{name: "price far off", pair: pair("50.00", "50.10"), want: "0.7"},
		{
			name: "side differs",
			pair: func() domain.CandidatePair {
				p := pair("100", "100")
				p.External.Side = domain.SideSell
				return p
			}(),
			want: "0.8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _ := s.Score(tt.pair, cfg)
			assert.Equal(t, tt.want, score.String())
		})
	}
}

func TestDeterministic_ScoreIsBounded(t *testing.T) {
	cfg := config.Default().Matching
	p := pair("1", "1000")
	p.Internal.Quantity = decimal.NewFromInt(1)
	p.External.Side = domain.SideSell
	p.External.SettlementDate = p.Internal.SettlementDate.AddDate(0, 0, 10)

	score, _ := scoring.NewDeterministic().Score(p, cfg)
	assert.True(t, score.IsZero())
}

func TestNew(t *testing.T) {
	cfg := config.Default().Matching

	s, err := scoring.New(cfg)
	require.NoError(t, err)
	assert.IsType(t, scoring.Deterministic{}, s)

	cfg.Scorer = "learned"
	cfg.ModelPath = "does-not-exist.json"
	_, err = scoring.New(cfg)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "matching.model_path", cfgErr.Field)
}

func decimalOne() decimal.Decimal  { return decimal.NewFromInt(1) }
func decimalZero() decimal.Decimal { return decimal.Zero }
