package gateway

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
)

var header = []string{"trade_id", "instrument_id", "quantity", "price", "trade_date", "settlement_date", "counterparty_id", "side"}

func writeCSV(t testing.TB, path string, data [][]string) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	writer := csv.NewWriter(file)
	require.NoError(t, writer.WriteAll(data))
}

func newSource(t testing.TB, internal, external [][]string) *CSVTradeSource {
	dir := t.TempDir()
	writeCSV(t, filepath.Join(dir, "internal_2025-09-01.csv"), internal)
	writeCSV(t, filepath.Join(dir, "external_2025-09-01.csv"), external)
	return NewCSVTradeSource(config.Ingestion{
		InternalPath: filepath.Join(dir, "internal_{date}.csv"),
		ExternalPath: filepath.Join(dir, "external_{date}.csv"),
	}, nil)
}

func mustParseTime(timeStr string) time.Time {
	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		panic(err)
	}
	return t
}

var tradeDate = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func TestCSVTradeSource_LoadTrades(t *testing.T) {
	tests := []struct {
		name         string
		internal     [][]string
		external     [][]string
		wantInternal []domain.TradeRecord
		wantExternal int
		wantRejected []string
	}{
		{
			name: "valid trades",
			internal: [][]string{
				header,
				{"INT001", "AAPL", "100", "150.25", "2025-09-01T10:00:00Z", "2025-09-03", "CP-1", "buy"},
				{"INT002", "MSFT", "-50", "310", "2025-09-01", "2025-09-03", "CP-2", "SELL"},
			},
			external: [][]string{
				header,
				{"EXT001", "AAPL", "100", "150.25", "2025-09-01T10:00:05Z", "2025-09-03", "CP-1", "BUY"},
			},
			wantInternal: []domain.TradeRecord{
				{
					Source:          domain.SourceInternal,
					ExternalTradeID: "INT001",
					InstrumentID:    "AAPL",
					Quantity:        decimal.RequireFromString("100"),
					Price:           decimal.RequireFromString("150.25"),
					TradeDate:       mustParseTime("2025-09-01T10:00:00Z"),
					SettlementDate:  time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC),
					CounterpartyID:  "CP-1",
					Side:            domain.SideBuy,
				},
				{
					Source:          domain.SourceInternal,
					ExternalTradeID: "INT002",
					InstrumentID:    "MSFT",
					Quantity:        decimal.RequireFromString("-50"),
					Price:           decimal.RequireFromString("310"),
					TradeDate:       tradeDate,
					SettlementDate:  time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC),
					CounterpartyID:  "CP-2",
					Side:            domain.SideSell,
				},
			},
			wantExternal: 1,
		},
		{
			name: "other trade dates are skipped",
			internal: [][]string{
				header,
				{"INT001", "AAPL", "100", "150", "2025-08-31T23:59:59Z", "2025-09-02", "CP-1", "BUY"},
			},
			external:     [][]string{header},
			wantExternal: 0,
		},
		{
			name: "malformed rows are rejected",
			internal: [][]string{
				header,
				{"INT001", "AAPL", "abc", "150", "2025-09-01", "2025-09-03", "CP-1", "BUY"},
				{"INT002", "AAPL", "100", "150", "yesterday", "2025-09-03", "CP-1", "BUY"},
			},
			external: [][]string{
				header,
				{"EXT001", "AAPL", "100", "", "2025-09-01", "2025-09-03", "CP-1", "BUY"},
			},
			wantExternal: 0,
			wantRejected: []string{"INT001/quantity", "INT002/trade_date", "EXT001/price"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newSource(t, tt.internal, tt.external)

			got, err := src.LoadTrades(context.Background(), tradeDate)
			require.NoError(t, err)

			assert.Equal(t, tradeDate, got.TradeDate)
			require.Len(t, got.Internal, len(tt.wantInternal))
			for i, want := range tt.wantInternal {
				rec := got.Internal[i]
				assert.Equal(t, want.ExternalTradeID, rec.ExternalTradeID)
				assert.Equal(t, want.Source, rec.Source)
				assert.Equal(t, want.InstrumentID, rec.InstrumentID)
				assert.True(t, want.Quantity.Equal(rec.Quantity), "quantity %s", rec.Quantity)
				assert.True(t, want.Price.Equal(rec.Price), "price %s", rec.Price)
				assert.True(t, want.TradeDate.Equal(rec.TradeDate))
				assert.True(t, want.SettlementDate.Equal(rec.SettlementDate))
				assert.Equal(t, want.CounterpartyID, rec.CounterpartyID)
				assert.Equal(t, want.Side, rec.Side)
			}
			assert.Len(t, got.External, tt.wantExternal)

			var rejected []string
			for _, r := range got.Rejected {
				rejected = append(rejected, fmt.Sprintf("%s/%s", r.Error.RecordID, r.Error.Field))
			}
			assert.Equal(t, tt.wantRejected, rejected)
		})
	}
}

func TestCSVTradeSource_Attributes(t *testing.T) {
	src := newSource(t,
		[][]string{
			append(header, "Book", "trader"),
			{"INT001", "AAPL", "100", "150", "2025-09-01", "2025-09-03", "CP-1", "BUY", "EQ-DESK", ""},
		},
		[][]string{header},
	)

	got, err := src.LoadTrades(context.Background(), tradeDate)
	require.NoError(t, err)
	require.Len(t, got.Internal, 1)
	assert.Equal(t, map[string]string{"book": "EQ-DESK"}, got.Internal[0].Attributes)
}

func TestCSVTradeSource_FileErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("file not found", func(t *testing.T) {
		src := NewCSVTradeSource(config.Ingestion{
			InternalPath: filepath.Join(t.TempDir(), "missing_{date}.csv"),
		}, nil)
		_, err := src.LoadTrades(ctx, tradeDate)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("file with no header", func(t *testing.T) {
		src := newSource(t, nil, [][]string{header})
		_, err := src.LoadTrades(ctx, tradeDate)
		assert.Error(t, err)
	})

	t.Run("missing required column", func(t *testing.T) {
		src := newSource(t, [][]string{header[:7]}, [][]string{header})
		_, err := src.LoadTrades(ctx, tradeDate)
		assert.ErrorContains(t, err, `missing column "side"`)
	})
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, "data/internal_2025-09-01.csv", pathFor("data/internal_{date}.csv", tradeDate))
	assert.Equal(t, "static.csv", pathFor("static.csv", tradeDate))
}

func BenchmarkLoadTrades(b *testing.B) {
	data := [][]string{header}
	for i := 0; i < 1000; i++ {
		data = append(data, []string{
			fmt.Sprintf("INT%04d", i), "AAPL", "100", "150.25", "2025-09-01T10:00:00Z", "2025-09-03", "CP-1", "BUY",
		})
	}
	src := newSource(b, data, data)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := src.LoadTrades(ctx, tradeDate); err != nil {
			b.Fatalf("Error in benchmark: %v", err)
		}
	}
}
