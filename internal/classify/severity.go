package classify

import (
	"github.com/shopspring/decimal"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
)

// bucket maps a tolerance ratio onto the configured severity buckets.
func bucket(ratio decimal.Decimal, cfg config.Severity) domain.Severity {
	switch {
	case ratio.LessThan(decimal.NewFromFloat(cfg.LowBelow)):
		return domain.SeverityLow
	case ratio.LessThan(decimal.NewFromFloat(cfg.MediumBelow)):
		return domain.SeverityMedium
	case ratio.LessThan(decimal.NewFromFloat(cfg.HighBelow)):
		return domain.SeverityHigh
	default:
		return domain.SeverityCritical
	}
}

func missingSeverity(notional decimal.Decimal, cfg config.Severity) domain.Severity {
	if cfg.CriticalNotional > 0 && notional.GreaterThan(decimal.NewFromFloat(cfg.CriticalNotional)) {
		return domain.SeverityCritical
	}
	return parseOr(cfg.MissingSeverity, domain.SeverityHigh)
}

func parseOr(s string, def domain.Severity) domain.Severity {
	if sev, ok := domain.ParseSeverity(s); ok {
		return sev
	}
	return def
}

var (
	priorityBase = map[domain.Severity]int{
		domain.SeverityCritical: 1000,
		domain.SeverityHigh:     500,
		domain.SeverityMedium:   100,
		domain.SeverityLow:      10,
	}
	millionNotional         = decimal.NewFromInt(1_000_000)
	hundredThousandNotional = decimal.NewFromInt(100_000)
)

// Priority orders the manual work queue: severity first, then trade size.
func Priority(sev domain.Severity, notional decimal.Decimal) int {
	score := priorityBase[sev]
	switch {
	case notional.GreaterThan(millionNotional):
		score += 200
	case notional.GreaterThan(hundredThousandNotional):
		score += 100
	}
	return score
}
