package classify_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-reconciliation/internal/classify"
	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/matching"
	"trade-reconciliation/internal/scoring"
)

var tradeDate = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func trade(src domain.Source, id, price, qty string) domain.TradeRecord {
	at := tradeDate.Add(10 * time.Hour)
	return domain.TradeRecord{
		Source:          src,
		ExternalTradeID: id,
		InstrumentID:    "AAPL",
		Quantity:        decimal.RequireFromString(qty),
		Price:           decimal.RequireFromString(price),
		TradeDate:       at,
		SettlementDate:  at.AddDate(0, 0, 2),
		CounterpartyID:  "CP-1",
		Side:            domain.SideBuy,
	}
}

func classifyAll(t *testing.T, internal, external []domain.TradeRecord) []*domain.Break {
	t.Helper()
	cfg := config.Default()
	res, err := matching.NewEngine(scoring.NewDeterministic(), cfg.Matching, nil).
		Match(context.Background(), internal, external)
	require.NoError(t, err)
	return classify.New(cfg.Severity).Classify(tradeDate, res, res.LowScore)
}

func TestClassify_FieldBreaks(t *testing.T) {
	settleIn := trade(domain.SourceInternal, "I-4", "10", "100")
	settleEx := trade(domain.SourceExternal, "E-4", "10", "100")
	settleIn.InstrumentID, settleEx.InstrumentID = "NVDA", "NVDA"
	settleEx.SettlementDate = settleEx.SettlementDate.Add(20 * time.Hour)

	sideIn := trade(domain.SourceInternal, "I-5", "10", "100")
	sideEx := trade(domain.SourceExternal, "E-5", "10", "100")
	sideIn.InstrumentID, sideEx.InstrumentID = "TSLA", "TSLA"
	sideEx.Side = domain.SideSell

	tests := []struct {
		name         string
		internal     domain.TradeRecord
		external     domain.TradeRecord
		wantCategory domain.Category
		wantSeverity domain.Severity
		wantCause    domain.RootCause
		field        string
	}{
		{
			name:         "price far beyond tolerance",
			internal:     trade(domain.SourceInternal, "I-1", "50.00", "100"),
			external:     trade(domain.SourceExternal, "E-1", "50.10", "100"),
			wantCategory: domain.CategoryPriceBreak,
			wantSeverity: domain.SeverityCritical,
			wantCause:    domain.RootCauseRoundingDifference,
			field:        "price",
		},
		{
			name:         "price three times tolerance",
			internal:     trade(domain.SourceInternal, "I-2", "100.00", "100"),
			external:     trade(domain.SourceExternal, "E-2", "100.03", "100"),
			wantCategory: domain.CategoryPriceBreak,
			wantSeverity: domain.SeverityMedium,
			wantCause:    domain.RootCauseRoundingDifference,
			field:        "price",
		},
		{
			name:         "quantity slightly off",
			internal:     trade(domain.SourceInternal, "I-3", "10", "1000"),
			external:     trade(domain.SourceExternal, "E-3", "10", "1003"),
			wantCategory: domain.CategoryQuantityBreak,
			wantSeverity: domain.SeverityMedium,
			wantCause:    domain.RootCausePartialFill,
			field:        "quantity",
		},
		{
			name:         "settlement one day apart",
			internal:     settleIn,
			external:     settleEx,
			wantCategory: domain.CategorySettlementDateBreak,
			wantSeverity: domain.SeverityLow,
			wantCause:    domain.RootCauseSettlementConvention,
			field:        "settlement_date",
		},
		{
			name:         "opposite sides",
			internal:     sideIn,
			external:     sideEx,
			wantCategory: domain.CategorySideBreak,
			wantSeverity: domain.SeverityHigh,
			wantCause:    domain.RootCauseDirectionMismatch,
			field:        "side",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaks := classifyAll(t, []domain.TradeRecord{tt.internal}, []domain.TradeRecord{tt.external})
			require.Len(t, breaks, 1)

			b := breaks[0]
			assert.Equal(t, tt.wantCategory, b.Category)
			assert.Equal(t, tt.wantSeverity, b.Severity)
			assert.Equal(t, tt.wantCause, b.RootCause)
			assert.Equal(t, tt.internal.ID(), b.RelatedInternalID)
			assert.Equal(t, tt.external.ID(), b.RelatedExternalID)
			assert.Contains(t, b.Detail, tt.field)
			assert.Contains(t, b.Detail, "score")
			assert.Equal(t, classify.BreakID(tradeDate, b.Category, b.RelatedInternalID, b.RelatedExternalID), b.ID)
		})
	}
}

func TestClassify_PriceDetail(t *testing.T) {
	breaks := classifyAll(t,
		[]domain.TradeRecord{trade(domain.SourceInternal, "I-1", "50.00", "100")},
		[]domain.TradeRecord{trade(domain.SourceExternal, "E-1", "50.10", "100")})
	require.Len(t, breaks, 1)

	d := breaks[0].Detail
	delta, ok := d.Lookup("price.delta")
	require.True(t, ok)
	assert.Equal(t, "0.1", delta.String())

	pct, ok := d.Lookup("price.delta_percent")
	require.True(t, ok)
	assert.Equal(t, "0.2", pct.String())

	ratio, ok := d.Lookup("price.tolerance_ratio")
	require.True(t, ok)
	assert.Equal(t, "20", ratio.String())

	notional, ok := d.Lookup("notional")
	require.True(t, ok)
	assert.Equal(t, "5000", notional.String())

	assert.Equal(t, "50.00", d["price"].Internal)
	assert.Equal(t, "50.10", d["price"].External)
}

func TestClassify_MissingSeverityThreshold(t *testing.T) {
	atLimit := trade(domain.SourceInternal, "I-AT", "100", "10000")
	above := trade(domain.SourceInternal, "I-ABOVE", "100.000001", "10000")
	above.InstrumentID = "MSFT"

	breaks := classifyAll(t, []domain.TradeRecord{atLimit, above}, nil)
	require.Len(t, breaks, 2)

	byRecord := map[string]*domain.Break{}
	for _, b := range breaks {
		byRecord[b.RelatedInternalID] = b
	}
	assert.Equal(t, domain.SeverityHigh, byRecord["I-AT"].Severity)
	assert.Equal(t, domain.SeverityCritical, byRecord["I-ABOVE"].Severity)
}

func TestClassify_MissingBreaks(t *testing.T) {
	late := trade(domain.SourceInternal, "I-LATE", "50", "100")
	late.TradeDate = tradeDate.Add(17 * time.Hour)
	late.SettlementDate = late.TradeDate.AddDate(0, 0, 2)

	big := trade(domain.SourceInternal, "I-BIG", "200", "10000")
	big.InstrumentID = "MSFT"

	orphan := trade(domain.SourceExternal, "E-ORPHAN", "10", "5")
	orphan.InstrumentID = "IBM"

	breaks := classifyAll(t, []domain.TradeRecord{late, big}, []domain.TradeRecord{orphan})
	require.Len(t, breaks, 3)

	byRecord := map[string]*domain.Break{}
	for _, b := range breaks {
		byRecord[b.RelatedInternalID+b.RelatedExternalID] = b
	}

	assert.Equal(t, domain.CategoryMissingExternal, byRecord["I-LATE"].Category)
	assert.Equal(t, domain.SeverityHigh, byRecord["I-LATE"].Severity)
	assert.Equal(t, domain.RootCauseLateBooking, byRecord["I-LATE"].RootCause)
	assert.Equal(t, 500, byRecord["I-LATE"].PriorityScore)

	assert.Equal(t, domain.SeverityCritical, byRecord["I-BIG"].Severity)
	assert.Equal(t, domain.RootCauseBrokerFeedIssue, byRecord["I-BIG"].RootCause)
	assert.Equal(t, 1200, byRecord["I-BIG"].PriorityScore)

	assert.Equal(t, domain.CategoryMissingInternal, byRecord["E-ORPHAN"].Category)
	assert.Equal(t, domain.RootCauseInternalBookingError, byRecord["E-ORPHAN"].RootCause)
	assert.Empty(t, byRecord["E-ORPHAN"].RelatedInternalID)
}

func TestClassify_LowScoreEnrichesMissingBreaks(t *testing.T) {
	in := trade(domain.SourceInternal, "I-1", "50", "100")
	ex := trade(domain.SourceExternal, "E-1", "80", "100")
	ex.Side = domain.SideSell

	breaks := classifyAll(t, []domain.TradeRecord{in}, []domain.TradeRecord{ex})
	require.Len(t, breaks, 2, "one break per unmatched record, none for the candidate itself")

	for _, b := range breaks {
		nc, ok := b.Detail["nearest_candidate"]
		require.True(t, ok, b.Category)
		assert.Equal(t, "I-1", nc.Internal)
		assert.Equal(t, "E-1", nc.External)
		assert.Equal(t, "0.5", nc.Delta.String())
		assert.Contains(t, nc.Note, "price, side")
	}
}

func TestClassify_AmbiguousMatch(t *testing.T) {
	breaks := classifyAll(t,
		[]domain.TradeRecord{trade(domain.SourceInternal, "I-1", "50", "100")},
		[]domain.TradeRecord{
			trade(domain.SourceExternal, "E-B", "50", "100"),
			trade(domain.SourceExternal, "E-A", "50", "100"),
		})
	require.Len(t, breaks, 1)

	b := breaks[0]
	assert.Equal(t, domain.CategoryAmbiguousMatch, b.Category)
	assert.Equal(t, domain.SeverityMedium, b.Severity)
	assert.Equal(t, domain.RootCauseDuplicateCandidate, b.RootCause)
	assert.Equal(t, "E-B", b.RelatedExternalID)
	assert.Equal(t, "E-A", b.Detail["ambiguous_with"].External)
	assert.Contains(t, b.Detail["ambiguous_with"].Note, "E-A")
}

func TestClassify_StableIdentifiers(t *testing.T) {
	internal := []domain.TradeRecord{
		trade(domain.SourceInternal, "I-1", "50.00", "100"),
		trade(domain.SourceInternal, "I-2", "70", "3"),
	}
	external := []domain.TradeRecord{trade(domain.SourceExternal, "E-1", "50.10", "100")}

	first := classifyAll(t, internal, external)
	second := classifyAll(t, []domain.TradeRecord{internal[1], internal[0]}, external)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Category, second[i].Category)
	}
	assert.NotEqual(t, first[0].ID, first[1].ID)
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 10, classify.Priority(domain.SeverityLow, decimal.NewFromInt(5)))
	assert.Equal(t, 200, classify.Priority(domain.SeverityMedium, decimal.NewFromInt(250_000)))
	assert.Equal(t, 1200, classify.Priority(domain.SeverityCritical, decimal.NewFromInt(2_000_000)))
}
