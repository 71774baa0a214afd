// Package matching pairs internal trade records with external confirmations.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/logger"
	"trade-reconciliation/internal/metrics"
	"trade-reconciliation/internal/scoring"
)

// Engine generates candidate pairs, scores them concurrently and assigns
// matches greedily by descending score.
type Engine struct {
	scorer scoring.Scorer
	cfg    config.Matching
	logger *zap.Logger
}

// NewEngine creates a matching engine.
func NewEngine(scorer scoring.Scorer, cfg config.Matching, log *zap.Logger) *Engine {
	return &Engine{scorer: scorer, cfg: cfg, logger: logger.OrNop(log)}
}

// Match partitions the records of one trade date. Malformed or duplicate
// records are reported in Rejected and take no part in matching. The result
// does not depend on input order or on worker scheduling.
func (e *Engine) Match(ctx context.Context, internal, external []domain.TradeRecord) (*domain.MatchResult, error) {
	ins, rejectedIn := sanitize(internal, domain.SourceInternal)
	exs, rejectedEx := sanitize(external, domain.SourceExternal)

	result := &domain.MatchResult{
		MatchedPairs:      []domain.MatchedPair{},
		UnmatchedInternal: []domain.UnmatchedRecord{},
		UnmatchedExternal: []domain.UnmatchedRecord{},
		Rejected:          append(rejectedIn, rejectedEx...),
	}
	for _, r := range result.Rejected {
		metrics.RejectedRecords.WithLabelValues(string(r.Record.Source)).Inc()
	}

	candidates, dropped, err := e.score(ctx, ins, exs)
	if err != nil {
		return nil, err
	}
	result.CandidatesScored = len(candidates)
	result.CandidatesDropped = dropped
	metrics.CandidatesScored.Add(float64(len(candidates)))
	metrics.CandidatesDropped.Add(float64(dropped))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.assign(result, candidates, ins, exs)
	metrics.MatchedPairs.Add(float64(len(result.MatchedPairs)))

	e.logger.Debug("matching complete",
		zap.Int("internal", len(ins)),
		zap.Int("external", len(exs)),
		zap.Int("rejected", len(result.Rejected)),
		zap.Int("candidates", result.CandidatesScored),
		zap.Int("matched", len(result.MatchedPairs)),
		zap.Int("unmatched_internal", len(result.UnmatchedInternal)),
		zap.Int("unmatched_external", len(result.UnmatchedExternal)),
	)
	return result, nil
}

// sanitize validates records and rejects every record whose identifier is
// not unique within its source, so neither copy wins by input position.
// Valid records are returned ordered by identifier, rejects by identifier
// and content.
func sanitize(records []domain.TradeRecord, src domain.Source) ([]domain.TradeRecord, []domain.RejectedRecord) {
	valid := make([]domain.TradeRecord, 0, len(records))
	var rejected []domain.RejectedRecord

	occurrences := make(map[string]int, len(records))
	for _, r := range records {
		if r.Source == "" || r.Source == src {
			occurrences[r.ID()]++
		}
	}

	for _, r := range records {
		if r.Source == "" {
			r.Source = src
		}
		var verr *domain.ValidationError
		switch {
		case r.Source != src:
			verr = &domain.ValidationError{Source: r.Source, RecordID: r.ID(), Field: "source", Reason: fmt.Sprintf("expected %s", src)}
		case r.ID() != "" && occurrences[r.ID()] > 1:
			verr = &domain.ValidationError{Source: src, RecordID: r.ID(), Field: "external_trade_id",
				Reason: fmt.Sprintf("duplicate identifier (%d records)", occurrences[r.ID()])}
		default:
			if err := r.Validate(); err != nil && !errors.As(err, &verr) {
				verr = &domain.ValidationError{Source: src, RecordID: r.ID(), Field: "record", Reason: err.Error()}
			}
		}
		if verr != nil {
			rejected = append(rejected, domain.RejectedRecord{Record: r, Error: verr})
			continue
		}
		valid = append(valid, r)
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].ID() < valid[j].ID() })
	sort.SliceStable(rejected, func(i, j int) bool {
		a, b := rejected[i], rejected[j]
		if a.Error.RecordID != b.Error.RecordID {
			return a.Error.RecordID < b.Error.RecordID
		}
		if a.Error.Field != b.Error.Field {
			return a.Error.Field < b.Error.Field
		}
		return contentKey(a.Record) < contentKey(b.Record)
	})
	return valid, rejected
}

func contentKey(r domain.TradeRecord) string {
	return strings.Join([]string{
		string(r.Source), r.InstrumentID, r.CounterpartyID, string(r.Side),
		r.Quantity.String(), r.Price.String(),
		r.TradeDate.UTC().Format(time.RFC3339Nano), r.SettlementDate.UTC().Format(time.RFC3339Nano),
	}, "|")
}

// score fans candidate scoring out to a bounded worker pool. Each internal
// record owns one output slot, so the merged order is fixed.
func (e *Engine) score(ctx context.Context, ins, exs []domain.TradeRecord) ([]domain.MatchCandidate, int, error) {
	idx := newIndex(exs, e.cfg.TimeWindow())
	slots := make([][]domain.MatchCandidate, len(ins))
	droppedPer := make([]int, len(ins))

	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range ins {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			exCands, dropped := idx.candidates(ins[i], e.cfg.MaxCandidatesPerRecord)
			droppedPer[i] = dropped
			out := make([]domain.MatchCandidate, 0, len(exCands))
			for _, ex := range exCands {
				s, fa := e.scorer.Score(domain.CandidatePair{Internal: ins[i], External: ex}, e.cfg)
				out = append(out, domain.MatchCandidate{Internal: ins[i], External: ex, Score: s, FieldAgreement: fa})
			}
			slots[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var all []domain.MatchCandidate
	dropped := 0
	for i := range slots {
		all = append(all, slots[i]...)
		dropped += droppedPer[i]
	}
	return all, dropped, nil
}

// assign is the sequential greedy pass. Ties on score resolve to the smaller
// external identifier, then the smaller internal identifier.
func (e *Engine) assign(result *domain.MatchResult, candidates []domain.MatchCandidate, ins, exs []domain.TradeRecord) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if c := a.Score.Cmp(b.Score); c != 0 {
			return c > 0
		}
		if a.External.ID() != b.External.ID() {
			return a.External.ID() < b.External.ID()
		}
		return a.Internal.ID() < b.Internal.ID()
	})

	minScore := e.cfg.MinScore()
	usedIn := make(map[string]string)
	usedEx := make(map[string]string)
	winningScore := make(map[string]decimal.Decimal)

	for _, c := range candidates {
		if c.Score.LessThan(minScore) {
			result.LowScore = append(result.LowScore, c)
			continue
		}
		inID, exID := c.Internal.ID(), c.External.ID()
		if _, ok := usedIn[inID]; ok {
			continue
		}
		if _, ok := usedEx[exID]; ok {
			continue
		}
		usedIn[inID] = exID
		usedEx[exID] = inID
		winningScore[inID] = c.Score
		result.MatchedPairs = append(result.MatchedPairs, domain.MatchedPair{
			InternalID:     inID,
			ExternalID:     exID,
			Score:          c.Score,
			Internal:       c.Internal,
			External:       c.External,
			FieldAgreement: c.FieldAgreement,
		})
	}

	// Equal-score rivals of an accepted pair are near-duplicates of the winner.
	inNotes := make(map[string]domain.UnmatchedRecord)
	exNotes := make(map[string]domain.UnmatchedRecord)
	for _, c := range candidates {
		if c.Score.LessThan(minScore) {
			continue
		}
		inID, exID := c.Internal.ID(), c.External.ID()
		if winner, ok := usedIn[inID]; ok && winner != exID && winningScore[inID].Equal(c.Score) {
			if _, matched := usedEx[exID]; !matched {
				if _, noted := exNotes[exID]; !noted {
					exNotes[exID] = domain.UnmatchedRecord{
						AmbiguousWith: winner,
						Note:          fmt.Sprintf("near-duplicate of %s for internal trade %s (score %s)", winner, inID, c.Score),
					}
				}
			}
		}
		if winner, ok := usedEx[exID]; ok && winner != inID && winningScore[winner].Equal(c.Score) {
			if _, matched := usedIn[inID]; !matched {
				if _, noted := inNotes[inID]; !noted {
					inNotes[inID] = domain.UnmatchedRecord{
						AmbiguousWith: winner,
						Note:          fmt.Sprintf("near-duplicate of %s for external trade %s (score %s)", winner, exID, c.Score),
					}
				}
			}
		}
	}

	for _, r := range ins {
		if _, ok := usedIn[r.ID()]; ok {
			continue
		}
		u := inNotes[r.ID()]
		u.Record = r
		result.UnmatchedInternal = append(result.UnmatchedInternal, u)
	}
	for _, r := range exs {
		if _, ok := usedEx[r.ID()]; ok {
			continue
		}
		u := exNotes[r.ID()]
		u.Record = r
		result.UnmatchedExternal = append(result.UnmatchedExternal, u)
	}

	sort.Slice(result.MatchedPairs, func(i, j int) bool {
		return result.MatchedPairs[i].InternalID < result.MatchedPairs[j].InternalID
	})
}
