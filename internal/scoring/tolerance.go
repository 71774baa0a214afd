package scoring

import (
	"time"

	"github.com/shopspring/decimal"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
	// zeroToleranceRatio stands in for an infinite ratio when the tolerance is zero.
	zeroToleranceRatio = decimal.NewFromInt(1_000_000)
)

// Compare evaluates every compared field of a pair under the tolerance
// configuration. It is shared by all scorers so break classification does not
// depend on which scorer produced the score.
func Compare(pair domain.CandidatePair, cfg config.Matching) domain.FieldAgreement {
	in, ex := pair.Internal, pair.External
	return domain.FieldAgreement{
		domain.FieldPrice:          compareNumeric(in.Price, ex.Price, cfg.PriceTolerance(), cfg.DecaySpan),
		domain.FieldQuantity:       compareNumeric(in.Quantity, ex.Quantity, cfg.QuantityTolerance(), cfg.DecaySpan),
		domain.FieldSide:           compareSide(in.Side, ex.Side),
		domain.FieldSettlementDate: compareSettlement(in.SettlementDate, ex.SettlementDate, cfg.TimeWindow()),
	}
}

// asEntered renders d at the scale it was parsed with, so "50.00" stays
// "50.00" instead of collapsing to "50".
func asEntered(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// compareNumeric gives full credit when |i−e| is within tol percent of either
// side's magnitude. Beyond that, credit decays linearly and reaches zero at
// decaySpan × tolerance. DeltaPercent is relative to the internal value.
func compareNumeric(internal, external, tolPercent decimal.Decimal, decaySpan float64) domain.FieldResult {
	delta := internal.Sub(external).Abs()
	base := decimal.Max(internal.Abs(), external.Abs())

	res := domain.FieldResult{
		Internal: asEntered(internal),
		External: asEntered(external),
		Delta:    delta,
	}
	if !internal.IsZero() {
		res.DeltaPercent = delta.Mul(hundred).Div(internal.Abs()).Round(8)
	}

	// exact boundary: delta*100 <= tol*base
	if delta.Mul(hundred).LessThanOrEqual(tolPercent.Mul(base)) {
		res.Matched = true
		res.Credit = one
		if tolPercent.IsPositive() {
			res.ToleranceRatio = res.DeltaPercent.Div(tolPercent).Round(6)
		}
		return res
	}

	if !tolPercent.IsPositive() {
		res.ToleranceRatio = zeroToleranceRatio
		res.Credit = decimal.Zero
		return res
	}
	res.ToleranceRatio = res.DeltaPercent.Div(tolPercent).Round(6)
	res.Credit = decayCredit(res.ToleranceRatio, decimal.NewFromFloat(decaySpan))
	return res
}

func decayCredit(ratio, span decimal.Decimal) decimal.Decimal {
	if ratio.LessThanOrEqual(one) {
		return one
	}
	c := one.Sub(ratio.Sub(one).Div(span.Sub(one)))
	if c.IsNegative() {
		return decimal.Zero
	}
	return c.Round(6)
}

func compareSide(internal, external domain.Side) domain.FieldResult {
	res := domain.FieldResult{
		Internal: string(internal),
		External: string(external),
		Credit:   decimal.Zero,
	}
	if internal == external {
		res.Matched = true
		res.Credit = one
	}
	return res
}

// compareSettlement is an exact match on calendar date; a different date inside
// the window gets linearly decaying credit. ToleranceRatio is the day difference.
func compareSettlement(internal, external time.Time, window time.Duration) domain.FieldResult {
	days := calendarDays(internal, external)
	res := domain.FieldResult{
		Internal:       internal.UTC().Format(time.DateOnly),
		External:       external.UTC().Format(time.DateOnly),
		Delta:          decimal.NewFromInt(days),
		ToleranceRatio: decimal.NewFromInt(days),
	}
	if days == 0 {
		res.Matched = true
		res.Credit = one
		return res
	}
	gap := internal.Sub(external)
	if gap < 0 {
		gap = -gap
	}
	if window <= 0 || gap > window {
		res.Credit = decimal.Zero
		return res
	}
	res.Credit = one.Sub(decimal.NewFromFloat(gap.Hours()).Div(decimal.NewFromFloat(window.Hours()))).Round(6)
	return res
}

func calendarDays(a, b time.Time) int64 {
	da := truncateDay(a)
	db := truncateDay(b)
	d := int64(da.Sub(db).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
