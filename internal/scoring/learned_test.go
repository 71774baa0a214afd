package scoring_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/scoring"
)

func TestReferenceSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, scoring.ReferenceSimilarity("", ""))
	assert.Equal(t, 1.0, scoring.ReferenceSimilarity("trd-001", "TRD-001"))
	assert.InDelta(t, 6.0/7.0, scoring.ReferenceSimilarity("TRD-001", "TRD-002"), 1e-9)
	assert.Equal(t, 0.0, scoring.ReferenceSimilarity("ABC", "XYZ"))
}

func TestLearned_Score(t *testing.T) {
	cfg := config.Default().Matching
	l, err := scoring.NewLearned(scoring.Model{
		Intercept: -2,
		Weights: map[string]float64{
			scoring.FeatureSideMatch:           2,
			scoring.FeatureReferenceSimilarity: 2,
			scoring.FeaturePriceDeltaPercent:   -5,
		},
	})
	require.NoError(t, err)

	good, fa := l.Score(pair("100", "100"), cfg)
	assert.True(t, fa[domain.FieldPrice].Matched)

	bad := pair("100", "120")
	bad.External.Side = domain.SideSell
	poor, _ := l.Score(bad, cfg)

	assert.True(t, good.GreaterThan(poor))
	assert.True(t, good.LessThanOrEqual(decimalOne()))
	assert.True(t, poor.GreaterThanOrEqual(decimalZero()))

	again, _ := l.Score(pair("100", "100"), cfg)
	assert.True(t, good.Equal(again))
}

func TestNewLearned_RejectsUnknownFeatures(t *testing.T) {
	_, err := scoring.NewLearned(scoring.Model{Weights: map[string]float64{"counterparty_rating": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "counterparty_rating")

	_, err = scoring.NewLearned(scoring.Model{})
	require.Error(t, err)
}

func TestLoadLearned(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "2025-03",
		"intercept": 0.5,
		"weights": {"side_match": 1.5, "trade_time_delta_hours": -0.1}
	}`), 0o600))

	l, err := scoring.LoadLearned(path)
	require.NoError(t, err)

	score, _ := l.Score(pair("10", "10"), config.Default().Matching)
	assert.True(t, score.GreaterThan(decimalZero()))

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	_, err = scoring.LoadLearned(path)
	assert.Error(t, err)

	cfg := config.Default().Matching
	cfg.Scorer = "learned"
	cfg.ModelPath = filepath.Join(dir, "missing.json")
	_, err = scoring.New(cfg)
	assert.Error(t, err)
}
