package usecase_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/usecase"
	mock_usecase "trade-reconciliation/internal/usecase/mocks"
)

func TestQueryService_Report(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mock_usecase.NewMockBreakReader(ctrl)
	runs := mock_usecase.NewMockRunRepository(ctrl)
	now := tradeDate.AddDate(0, 0, 10)

	mk := func(id, cp string, status domain.BreakStatus, priority int, age time.Duration) *domain.Break {
		return &domain.Break{
			ID:             id,
			TradeDate:      tradeDate,
			Category:       domain.CategoryPriceBreak,
			Severity:       domain.SeverityMedium,
			CounterpartyID: cp,
			Status:         status,
			PriorityScore:  priority,
			CreatedAt:      now.Add(-age),
		}
	}
	breaks := []*domain.Break{
		mk("b-1", "CP-A", domain.StatusOpen, 100, 2*time.Hour),
		mk("b-2", "CP-A", domain.StatusAssigned, 500, 48*time.Hour),
		mk("b-3", "CP-B", domain.StatusInReview, 500, 5*24*time.Hour),
		mk("b-4", "CP-B", domain.StatusOpen, 10, 9*24*time.Hour),
		mk("b-5", "CP-C", domain.StatusResolved, 1000, 9*24*time.Hour),
		mk("b-6", "CP-A", domain.StatusResolved, 1000, time.Hour),
	}
	for i := 0; i < 5; i++ {
		breaks = append(breaks, mk(fmt.Sprintf("c-%d", i), fmt.Sprintf("CP-Z%d", i), domain.StatusResolved, 10, time.Hour))
	}

	run := &domain.ReconciliationRun{ID: "run-1", TradeDate: tradeDate, Status: domain.RunCompleted}
	runs.EXPECT().LatestRun(gomock.Any(), tradeDate).Return(run, nil)
	reader.EXPECT().List(gomock.Any(), domain.BreakFilter{TradeDate: tradeDate, Limit: 1000, Offset: 0}).Return(breaks, nil)

	q := usecase.NewQueryService(reader, runs, nil).WithClock(func() time.Time { return now })
	report, err := q.Report(context.Background(), tradeDate.Add(12*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "2025-03-14", report.TradeDate)
	assert.Same(t, run, report.Run)
	assert.Equal(t, 11, report.Stats.Total)
	assert.Equal(t, 7, report.Stats.ByStatus[domain.StatusResolved])
	assert.Equal(t, domain.AgingBuckets{UpToOneDay: 1, OneToThreeDays: 1, ThreeToSeven: 1, OverSevenDays: 1}, report.Aging)

	require.Len(t, report.TopCounterparties, 5)
	assert.Equal(t, domain.CounterpartyCount{CounterpartyID: "CP-A", Breaks: 3}, report.TopCounterparties[0])
	assert.Equal(t, domain.CounterpartyCount{CounterpartyID: "CP-B", Breaks: 2}, report.TopCounterparties[1])
	assert.Equal(t, "CP-C", report.TopCounterparties[2].CounterpartyID)

	var ids []string
	for _, b := range report.TopPriorityBreaks {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"b-2", "b-3", "b-1", "b-4"}, ids)
}

func TestQueryService_Report_NoRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mock_usecase.NewMockBreakReader(ctrl)
	runs := mock_usecase.NewMockRunRepository(ctrl)

	runs.EXPECT().LatestRun(gomock.Any(), tradeDate).Return(nil, domain.ErrNotFound)
	reader.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, nil)

	report, err := usecase.NewQueryService(reader, runs, nil).Report(context.Background(), tradeDate)
	require.NoError(t, err)
	assert.Nil(t, report.Run)
	assert.Equal(t, 0, report.Stats.Total)
	assert.Empty(t, report.TopCounterparties)
	assert.NotNil(t, report.TopPriorityBreaks)
}

func TestQueryService_BreakEvents(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *mock_usecase.MockBreakReader)
		want    []domain.BreakEvent
		wantErr error
	}{
		{
			name: "returns the audit trail",
			setup: func(r *mock_usecase.MockBreakReader) {
				r.EXPECT().Get(gomock.Any(), "b-1").Return(&domain.Break{ID: "b-1"}, nil)
				r.EXPECT().Events(gomock.Any(), "b-1").Return([]domain.BreakEvent{{BreakID: "b-1", Version: 1}}, nil)
			},
			want: []domain.BreakEvent{{BreakID: "b-1", Version: 1}},
		},
		{
			name: "unknown break",
			setup: func(r *mock_usecase.MockBreakReader) {
				r.EXPECT().Get(gomock.Any(), "b-1").Return(nil, domain.ErrNotFound)
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			reader := mock_usecase.NewMockBreakReader(ctrl)
			tt.setup(reader)

			got, err := usecase.NewQueryService(reader, nil, nil).BreakEvents(context.Background(), "b-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
