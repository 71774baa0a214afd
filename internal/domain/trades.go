package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which population a trade record belongs to.
type Source string

const (
	SourceInternal Source = "INTERNAL"
	SourceExternal Source = "EXTERNAL"
)

// Side is the direction of the trade (BUY or SELL).
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is one of the known directions.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// TradeRecord is the normalized representation of a trade from either source.
// It is never mutated after ingestion.
type TradeRecord struct {
	Source          Source            `json:"source"`
	ExternalTradeID string            `json:"external_trade_id"`
	InstrumentID    string            `json:"instrument_id"`
	Quantity        decimal.Decimal   `json:"quantity"` // signed
	Price           decimal.Decimal   `json:"price"`
	TradeDate       time.Time         `json:"trade_date"`
	SettlementDate  time.Time         `json:"settlement_date"`
	CounterpartyID  string            `json:"counterparty_id"`
	Side            Side              `json:"side"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}

// ID returns the identifier of the record within its source.
func (t TradeRecord) ID() string { return t.ExternalTradeID }

// Notional is |quantity × price|.
func (t TradeRecord) Notional() decimal.Decimal {
	return t.Quantity.Mul(t.Price).Abs()
}

// Validate checks the required fields and returns a *ValidationError for the
// first violation found.
func (t TradeRecord) Validate() error {
	switch {
	case t.ExternalTradeID == "":
		return &ValidationError{Source: t.Source, Field: "external_trade_id", Reason: "missing"}
	case t.Source != SourceInternal && t.Source != SourceExternal:
		return &ValidationError{Source: t.Source, RecordID: t.ExternalTradeID, Field: "source", Reason: "unknown source " + string(t.Source)}
	case t.InstrumentID == "":
		return &ValidationError{Source: t.Source, RecordID: t.ExternalTradeID, Field: "instrument_id", Reason: "missing"}
	case t.CounterpartyID == "":
		return &ValidationError{Source: t.Source, RecordID: t.ExternalTradeID, Field: "counterparty_id", Reason: "missing"}
	case !t.Side.Valid():
		return &ValidationError{Source: t.Source, RecordID: t.ExternalTradeID, Field: "side", Reason: "must be BUY or SELL"}
	case t.TradeDate.IsZero():
		return &ValidationError{Source: t.Source, RecordID: t.ExternalTradeID, Field: "trade_date", Reason: "missing"}
	case t.SettlementDate.IsZero():
		return &ValidationError{Source: t.Source, RecordID: t.ExternalTradeID, Field: "settlement_date", Reason: "missing"}
	case !t.Price.IsPositive():
		return &ValidationError{Source: t.Source, RecordID: t.ExternalTradeID, Field: "price", Reason: "must be positive"}
	case t.Quantity.IsZero():
		return &ValidationError{Source: t.Source, RecordID: t.ExternalTradeID, Field: "quantity", Reason: "must be non-zero"}
	}
	return nil
}

// RejectedRecord is a trade record excluded from matching because it failed validation.
type RejectedRecord struct {
	Record TradeRecord      `json:"record"`
	Error  *ValidationError `json:"error"`
}

// TradeBatch is what ingestion hands over for one trade date.
type TradeBatch struct {
	TradeDate time.Time        `json:"trade_date"`
	Internal  []TradeRecord    `json:"internal"`
	External  []TradeRecord    `json:"external"`
	Rejected  []RejectedRecord `json:"rejected,omitempty"`
}
