package classify

import (
	"github.com/shopspring/decimal"

	"trade-reconciliation/internal/domain"
)

// lateBookingHour is the UTC hour from which an internal booking is treated
// as end-of-day.
const lateBookingHour = 16

var dataEntryThreshold = decimal.NewFromInt(10)

func rootCause(cat domain.Category, rec domain.TradeRecord, field domain.FieldResult) domain.RootCause {
	switch cat {
	case domain.CategoryMissingExternal:
		if rec.TradeDate.UTC().Hour() >= lateBookingHour {
			return domain.RootCauseLateBooking
		}
		return domain.RootCauseBrokerFeedIssue
	case domain.CategoryMissingInternal:
		return domain.RootCauseInternalBookingError
	case domain.CategoryPriceBreak:
		if field.DeltaPercent.GreaterThan(dataEntryThreshold) {
			return domain.RootCauseDataEntryError
		}
		return domain.RootCauseRoundingDifference
	case domain.CategoryQuantityBreak:
		return domain.RootCausePartialFill
	case domain.CategorySideBreak:
		return domain.RootCauseDirectionMismatch
	case domain.CategorySettlementDateBreak:
		return domain.RootCauseSettlementConvention
	case domain.CategoryAmbiguousMatch:
		return domain.RootCauseDuplicateCandidate
	}
	return domain.RootCauseUnknown
}
