package domain

import (
	"github.com/shopspring/decimal"
)

// Field names used in field agreement and break detail.
const (
	FieldPrice          = "price"
	FieldQuantity       = "quantity"
	FieldSide           = "side"
	FieldSettlementDate = "settlement_date"
)

// CandidatePair is an ordered (internal, external) pair considered for matching.
type CandidatePair struct {
	Internal TradeRecord
	External TradeRecord
}

// FieldResult is the agreement detail for a single compared field.
type FieldResult struct {
	Matched        bool            `json:"matched"`
	Internal       string          `json:"internal"`
	External       string          `json:"external"`
	Delta          decimal.Decimal `json:"delta"`
	DeltaPercent   decimal.Decimal `json:"delta_percent"`
	ToleranceRatio decimal.Decimal `json:"tolerance_ratio"`
	Credit         decimal.Decimal `json:"credit"`
}

// FieldAgreement maps field name to its comparison result.
type FieldAgreement map[string]FieldResult

// Disagreements returns the names of fields that did not match, in a fixed order.
func (fa FieldAgreement) Disagreements() []string {
	var out []string
	for _, f := range []string{FieldPrice, FieldQuantity, FieldSide, FieldSettlementDate} {
		if r, ok := fa[f]; ok && !r.Matched {
			out = append(out, f)
		}
	}
	return out
}

// MatchCandidate is a scored candidate pair. Transient within one matching pass.
type MatchCandidate struct {
	Internal       TradeRecord     `json:"internal"`
	External       TradeRecord     `json:"external"`
	Score          decimal.Decimal `json:"score"`
	FieldAgreement FieldAgreement  `json:"field_agreement"`
}

// MatchedPair is an accepted pairing.
type MatchedPair struct {
	InternalID     string          `json:"internal_id"`
	ExternalID     string          `json:"external_id"`
	Score          decimal.Decimal `json:"score"`
	Internal       TradeRecord     `json:"-"`
	External       TradeRecord     `json:"-"`
	FieldAgreement FieldAgreement  `json:"field_agreement"`
}

// UnmatchedRecord is a record left without a counterpart.
// AmbiguousWith names the record that won an equal-score tie against it.
type UnmatchedRecord struct {
	Record        TradeRecord `json:"record"`
	AmbiguousWith string      `json:"ambiguous_with,omitempty"`
	Note          string      `json:"note,omitempty"`
}

// MatchResult partitions the valid records of a run. Every valid record appears
// in exactly one of MatchedPairs, UnmatchedInternal or UnmatchedExternal.
type MatchResult struct {
	MatchedPairs      []MatchedPair     `json:"matched_pairs"`
	UnmatchedInternal []UnmatchedRecord `json:"unmatched_internal"`
	UnmatchedExternal []UnmatchedRecord `json:"unmatched_external"`
	LowScore          []MatchCandidate  `json:"-"`
	Rejected          []RejectedRecord  `json:"rejected,omitempty"`
	CandidatesScored  int               `json:"candidates_scored"`
	CandidatesDropped int               `json:"candidates_dropped"`
}
