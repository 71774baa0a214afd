package matching

import (
	"sort"
	"time"

	"github.com/tidwall/btree"

	"trade-reconciliation/internal/domain"
)

type groupKey struct {
	instrument   string
	counterparty string
}

func keyOf(t domain.TradeRecord) groupKey {
	return groupKey{instrument: t.InstrumentID, counterparty: t.CounterpartyID}
}

func byTradeTime(a, b domain.TradeRecord) bool {
	if !a.TradeDate.Equal(b.TradeDate) {
		return a.TradeDate.Before(b.TradeDate)
	}
	return a.ExternalTradeID < b.ExternalTradeID
}

// index holds external records grouped by hard key, each group ordered by
// trade time so a window lookup is a range scan. Read-only once built.
type index struct {
	groups map[groupKey]*btree.BTreeG[domain.TradeRecord]
	window time.Duration
}

func newIndex(records []domain.TradeRecord, window time.Duration) *index {
	idx := &index{
		groups: make(map[groupKey]*btree.BTreeG[domain.TradeRecord]),
		window: window,
	}
	for _, r := range records {
		k := keyOf(r)
		tr, ok := idx.groups[k]
		if !ok {
			tr = btree.NewBTreeG[domain.TradeRecord](byTradeTime)
			idx.groups[k] = tr
		}
		tr.Set(r)
	}
	return idx
}

// candidates returns the external records sharing rec's key whose trade and
// settlement dates are within the window, closest trade time first, bounded
// by limit. The second value is the number of in-window records cut by limit.
func (idx *index) candidates(rec domain.TradeRecord, limit int) ([]domain.TradeRecord, int) {
	tr, ok := idx.groups[keyOf(rec)]
	if !ok {
		return nil, 0
	}

	lo := rec.TradeDate.Add(-idx.window)
	hi := rec.TradeDate.Add(idx.window)

	var out []domain.TradeRecord
	tr.Ascend(domain.TradeRecord{TradeDate: lo}, func(ex domain.TradeRecord) bool {
		if ex.TradeDate.After(hi) {
			return false
		}
		if absDuration(ex.SettlementDate.Sub(rec.SettlementDate)) <= idx.window {
			out = append(out, ex)
		}
		return true
	})

	if limit <= 0 || len(out) <= limit {
		return out, 0
	}
	sort.SliceStable(out, func(i, j int) bool {
		di := absDuration(out[i].TradeDate.Sub(rec.TradeDate))
		dj := absDuration(out[j].TradeDate.Sub(rec.TradeDate))
		if di != dj {
			return di < dj
		}
		return out[i].ExternalTradeID < out[j].ExternalTradeID
	})
	return out[:limit], len(out) - limit
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
