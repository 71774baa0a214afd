// Package classify turns a match result into typed, severity-graded breaks.
package classify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
)

// breakNamespace scopes deterministic break identifiers.
var breakNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:trade-reconciliation:break"))

// BreakID derives the identifier of a break from its origin, so the same
// inputs always yield the same id.
func BreakID(tradeDate time.Time, cat domain.Category, internalID, externalID string) string {
	name := strings.Join([]string{tradeDate.UTC().Format(time.DateOnly), string(cat), internalID, externalID}, "|")
	return uuid.NewSHA1(breakNamespace, []byte(name)).String()
}

// Classifier maps match results to breaks.
type Classifier struct {
	severity config.Severity
}

// New creates a classifier.
func New(severity config.Severity) *Classifier {
	return &Classifier{severity: severity}
}

// Classify produces one break per disagreeing field of each matched pair and
// one break per unmatched record. Low-score candidates never create breaks of
// their own; the best one for an unmatched record is attached to its break as
// nearest_candidate. Workflow fields are left for the workflow engine to set.
func (c *Classifier) Classify(tradeDate time.Time, result *domain.MatchResult, lowScore []domain.MatchCandidate) []*domain.Break {
	var breaks []*domain.Break

	for _, p := range result.MatchedPairs {
		breaks = append(breaks, c.pairBreaks(tradeDate, p)...)
	}

	nearestIn, nearestEx := nearest(lowScore)
	for _, u := range result.UnmatchedInternal {
		b := c.unmatchedBreak(tradeDate, u, domain.CategoryMissingExternal)
		b.RelatedInternalID = u.Record.ID()
		if cand, ok := nearestIn[u.Record.ID()]; ok {
			b.Detail["nearest_candidate"] = candidateDetail(cand)
		}
		breaks = append(breaks, b)
	}
	for _, u := range result.UnmatchedExternal {
		b := c.unmatchedBreak(tradeDate, u, domain.CategoryMissingInternal)
		b.RelatedExternalID = u.Record.ID()
		if cand, ok := nearestEx[u.Record.ID()]; ok {
			b.Detail["nearest_candidate"] = candidateDetail(cand)
		}
		breaks = append(breaks, b)
	}

	sort.Slice(breaks, func(i, j int) bool { return breaks[i].ID < breaks[j].ID })
	return breaks
}

func (c *Classifier) pairBreaks(tradeDate time.Time, p domain.MatchedPair) []*domain.Break {
	var out []*domain.Break
	notional := p.Internal.Notional()
	score := p.Score

	for _, field := range p.FieldAgreement.Disagreements() {
		res := p.FieldAgreement[field]
		cat, sev := c.fieldCategory(field, res)

		dv := domain.DetailValue{Internal: res.Internal, External: res.External}
		switch field {
		case domain.FieldPrice, domain.FieldQuantity:
			dv.Delta = ptr(res.Delta)
			dv.DeltaPercent = ptr(res.DeltaPercent)
			dv.ToleranceRatio = ptr(res.ToleranceRatio)
		case domain.FieldSettlementDate:
			dv.Delta = ptr(res.Delta)
			dv.DeltaDays = ptr(res.Delta)
			dv.ToleranceRatio = ptr(res.ToleranceRatio)
		}

		out = append(out, &domain.Break{
			ID:                BreakID(tradeDate, cat, p.InternalID, p.ExternalID),
			TradeDate:         tradeDate,
			Category:          cat,
			Severity:          sev,
			RootCause:         rootCause(cat, p.Internal, res),
			PriorityScore:     Priority(sev, notional),
			RelatedInternalID: p.InternalID,
			RelatedExternalID: p.ExternalID,
			InstrumentID:      p.Internal.InstrumentID,
			CounterpartyID:    p.Internal.CounterpartyID,
			Notional:          notional,
			Detail: domain.Detail{
				field:      dv,
				"notional": {Delta: ptr(notional)},
				"score":    {Delta: ptr(score)},
			},
		})
	}
	return out
}

func (c *Classifier) fieldCategory(field string, res domain.FieldResult) (domain.Category, domain.Severity) {
	switch field {
	case domain.FieldPrice:
		return domain.CategoryPriceBreak, bucket(res.ToleranceRatio, c.severity)
	case domain.FieldQuantity:
		return domain.CategoryQuantityBreak, bucket(res.ToleranceRatio, c.severity)
	case domain.FieldSettlementDate:
		return domain.CategorySettlementDateBreak, bucket(res.Delta, c.severity)
	default:
		return domain.CategorySideBreak, parseOr(c.severity.SideSeverity, domain.SeverityHigh)
	}
}

func (c *Classifier) unmatchedBreak(tradeDate time.Time, u domain.UnmatchedRecord, missing domain.Category) *domain.Break {
	rec := u.Record
	notional := rec.Notional()

	cat := missing
	sev := missingSeverity(notional, c.severity)
	detail := domain.Detail{"notional": {Delta: ptr(notional)}}
	if u.AmbiguousWith != "" {
		cat = domain.CategoryAmbiguousMatch
		sev = parseOr(c.severity.AmbiguousSeverity, domain.SeverityMedium)
		detail["ambiguous_with"] = domain.DetailValue{Note: u.Note, Internal: ambiguousSide(rec, u, domain.SourceInternal), External: ambiguousSide(rec, u, domain.SourceExternal)}
	}

	var inID, exID string
	if rec.Source == domain.SourceInternal {
		inID = rec.ID()
	} else {
		exID = rec.ID()
	}

	return &domain.Break{
		ID:             BreakID(tradeDate, cat, inID, exID),
		TradeDate:      tradeDate,
		Category:       cat,
		Severity:       sev,
		RootCause:      rootCause(cat, rec, domain.FieldResult{}),
		PriorityScore:  Priority(sev, notional),
		InstrumentID:   rec.InstrumentID,
		CounterpartyID: rec.CounterpartyID,
		Notional:       notional,
		Detail:         detail,
	}
}

// ambiguousSide names the winning rival on the record's own side.
func ambiguousSide(rec domain.TradeRecord, u domain.UnmatchedRecord, side domain.Source) string {
	if rec.Source == side {
		return u.AmbiguousWith
	}
	return ""
}

// nearest picks the best low-score candidate per internal and per external
// record. Candidates arrive ordered best first.
func nearest(cands []domain.MatchCandidate) (map[string]domain.MatchCandidate, map[string]domain.MatchCandidate) {
	byIn := make(map[string]domain.MatchCandidate)
	byEx := make(map[string]domain.MatchCandidate)
	for _, c := range cands {
		if best, ok := byIn[c.Internal.ID()]; !ok || better(c, best) {
			byIn[c.Internal.ID()] = c
		}
		if best, ok := byEx[c.External.ID()]; !ok || better(c, best) {
			byEx[c.External.ID()] = c
		}
	}
	return byIn, byEx
}

func better(a, b domain.MatchCandidate) bool {
	if cmp := a.Score.Cmp(b.Score); cmp != 0 {
		return cmp > 0
	}
	if a.External.ID() != b.External.ID() {
		return a.External.ID() < b.External.ID()
	}
	return a.Internal.ID() < b.Internal.ID()
}

func candidateDetail(c domain.MatchCandidate) domain.DetailValue {
	note := "below match threshold"
	if fields := c.FieldAgreement.Disagreements(); len(fields) > 0 {
		note = fmt.Sprintf("%s, disagrees on %s", note, strings.Join(fields, ", "))
	}
	return domain.DetailValue{
		Internal: c.Internal.ID(),
		External: c.External.ID(),
		Delta:    ptr(c.Score),
		Note:     note,
	}
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }
