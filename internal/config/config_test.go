package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-reconciliation/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	allow, rules, err := cfg.Resolution.Compile()
	require.NoError(t, err)
	assert.Len(t, rules, 3)
	assert.True(t, allow.Permits(domain.CategorySettlementDateBreak, domain.SeverityLow))
	assert.False(t, allow.Permits(domain.CategorySettlementDateBreak, domain.SeverityCritical))
	assert.Equal(t, 2*time.Hour, cfg.Workflow.SLAWindow(domain.SeverityCritical))
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
matching:
  price_tolerance_percent: 0.05
  min_match_score: 0.75
workflow:
  sla_windows:
    critical: 1h
    high: 2h
    medium: 8h
    low: 24h
resolution:
  auto_resolve_allow:
    - category: price_break
      severities: [low, medium]
  rules:
    - name: small-price
      priority: 10
      action: accept_external
      categories: [PRICE_BREAK]
      conditions:
        - field: price.tolerance_ratio
          op: lt
          value: "3"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.05, cfg.Matching.PriceTolerancePercent)
	assert.Equal(t, 0.75, cfg.Matching.MinMatchScore)
	// untouched keys keep their defaults
	assert.Equal(t, 24.0, cfg.Matching.TimeWindowHours)
	assert.Equal(t, time.Hour, cfg.Workflow.SLAWindow(domain.SeverityCritical))

	allow, rules, err := cfg.Resolution.Compile()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, domain.ActionAcceptExternal, rules[0].Action)
	assert.Equal(t, "3", rules[0].Conditions[0].Value.String())
	assert.True(t, allow.Permits(domain.CategoryPriceBreak, domain.SeverityMedium))
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("RECON_MATCHING_MIN_MATCH_SCORE", "0.9")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Matching.MinMatchScore)
}

func TestValidateRejectsBadConfiguration(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{
			name:      "negative price tolerance",
			mutate:    func(c *Config) { c.Matching.PriceTolerancePercent = -0.01 },
			wantField: "Config.Matching.PriceTolerancePercent",
		},
		{
			name:      "min score above one",
			mutate:    func(c *Config) { c.Matching.MinMatchScore = 1.5 },
			wantField: "Config.Matching.MinMatchScore",
		},
		{
			name:      "all weights zero",
			mutate:    func(c *Config) { c.Matching.Weights = Weights{} },
			wantField: "matching.weights",
		},
		{
			name:      "severity buckets out of order",
			mutate:    func(c *Config) { c.Severity.MediumBelow = 1 },
			wantField: "severity",
		},
		{
			name:      "missing sla window",
			mutate:    func(c *Config) { delete(c.Workflow.SLAWindows, "low") },
			wantField: "workflow.sla_windows.low",
		},
		{
			name: "unparseable rule value",
			mutate: func(c *Config) {
				c.Resolution.Rules[0].Conditions[0].Value = "one day"
			},
			wantField: "resolution.rules[0].conditions[0].value",
		},
		{
			name:      "unknown rule action",
			mutate:    func(c *Config) { c.Resolution.Rules[1].Action = "DELETE" },
			wantField: "resolution.rules[1].action",
		},
		{
			name:      "unknown allow-list category",
			mutate:    func(c *Config) { c.Resolution.AutoResolveAllow[0].Category = "FX_BREAK" },
			wantField: "resolution.auto_resolve_allow[0]",
		},
		{
			name:      "learned scorer without model",
			mutate:    func(c *Config) { c.Matching.Scorer = "learned" },
			wantField: "matching.model_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var cerr *domain.ConfigurationError
			require.True(t, errors.As(err, &cerr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tt.wantField, cerr.Field)
		})
	}
}
