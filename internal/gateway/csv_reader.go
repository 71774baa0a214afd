package gateway

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/logger"
)

const (
	colTradeID        = "trade_id"
	colInstrumentID   = "instrument_id"
	colQuantity       = "quantity"
	colPrice          = "price"
	colTradeDate      = "trade_date"
	colSettlementDate = "settlement_date"
	colCounterpartyID = "counterparty_id"
	colSide           = "side"
)

var requiredColumns = []string{
	colTradeID, colInstrumentID, colQuantity, colPrice,
	colTradeDate, colSettlementDate, colCounterpartyID, colSide,
}

// CSVTradeSource implements the TradeSource interface for CSV exports of the
// internal booking system and the external confirmation feed.
type CSVTradeSource struct {
	cfg    config.Ingestion
	logger *zap.Logger
}

// NewCSVTradeSource creates a new source instance. Paths may contain a {date}
// placeholder which is replaced by the trade date as YYYY-MM-DD.
func NewCSVTradeSource(cfg config.Ingestion, log *zap.Logger) *CSVTradeSource {
	return &CSVTradeSource{cfg: cfg, logger: logger.OrNop(log)}
}

// LoadTrades reads both files for the trade date. Rows that cannot be parsed
// are returned in Rejected; rows for another trade date are skipped.
func (s *CSVTradeSource) LoadTrades(ctx context.Context, tradeDate time.Time) (*domain.TradeBatch, error) {
	batch := &domain.TradeBatch{TradeDate: tradeDate}

	var err error
	batch.Internal, batch.Rejected, err = s.readFile(ctx, pathFor(s.cfg.InternalPath, tradeDate), domain.SourceInternal, tradeDate, batch.Rejected)
	if err != nil {
		return nil, err
	}
	batch.External, batch.Rejected, err = s.readFile(ctx, pathFor(s.cfg.ExternalPath, tradeDate), domain.SourceExternal, tradeDate, batch.Rejected)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func pathFor(template string, tradeDate time.Time) string {
	return strings.ReplaceAll(template, "{date}", tradeDate.Format(time.DateOnly))
}

func (s *CSVTradeSource) readFile(ctx context.Context, path string, src domain.Source, tradeDate time.Time, rejected []domain.RejectedRecord) ([]domain.TradeRecord, []domain.RejectedRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s trade file %s: %w", strings.ToLower(string(src)), path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, nil, fmt.Errorf("file %s is missing column %q", path, c)
		}
	}

	var (
		trades  []domain.TradeRecord
		skipped int
		line    = 1
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("error reading record from %s: %w", path, err)
		}
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		rec, verr := parseRow(row, header, cols, src)
		if verr != nil {
			if verr.RecordID == "" {
				verr.RecordID = fmt.Sprintf("%s:%d", path, line)
			}
			rejected = append(rejected, domain.RejectedRecord{Record: rec, Error: verr})
			continue
		}
		if !sameDay(rec.TradeDate, tradeDate) {
			skipped++
			continue
		}
		trades = append(trades, rec)
	}

	s.logger.Debug("trade file loaded",
		zap.String("path", path),
		zap.String("source", string(src)),
		zap.Int("records", len(trades)),
		zap.Int("other_dates", skipped))
	return trades, rejected, nil
}

func parseRow(row, header []string, cols map[string]int, src domain.Source) (domain.TradeRecord, *domain.ValidationError) {
	get := func(col string) string {
		i := cols[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := domain.TradeRecord{
		Source:          src,
		ExternalTradeID: get(colTradeID),
		InstrumentID:    get(colInstrumentID),
		CounterpartyID:  get(colCounterpartyID),
		Side:            domain.Side(strings.ToUpper(get(colSide))),
	}
	invalid := func(field, reason string) *domain.ValidationError {
		return &domain.ValidationError{Source: src, RecordID: rec.ExternalTradeID, Field: field, Reason: reason}
	}

	var err error
	if rec.Quantity, err = decimal.NewFromString(get(colQuantity)); err != nil {
		return rec, invalid(colQuantity, fmt.Sprintf("could not parse %q", get(colQuantity)))
	}
	if rec.Price, err = decimal.NewFromString(get(colPrice)); err != nil {
		return rec, invalid(colPrice, fmt.Sprintf("could not parse %q", get(colPrice)))
	}
	if rec.TradeDate, err = parseTime(get(colTradeDate)); err != nil {
		return rec, invalid(colTradeDate, fmt.Sprintf("could not parse %q", get(colTradeDate)))
	}
	if rec.SettlementDate, err = parseTime(get(colSettlementDate)); err != nil {
		return rec, invalid(colSettlementDate, fmt.Sprintf("could not parse %q", get(colSettlementDate)))
	}

	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if slices.Contains(requiredColumns, name) || i >= len(row) || row[i] == "" {
			continue
		}
		if rec.Attributes == nil {
			rec.Attributes = make(map[string]string)
		}
		rec.Attributes[name] = row[i]
	}
	return rec, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
