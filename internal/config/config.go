// Package config holds the reconciliation engine configuration: matching
// tolerances, severity buckets, SLA windows, resolution rules and the
// infrastructure endpoints used by the CLI.
package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-reconciliation/internal/domain"
)

// Config is the root configuration, supplied at run start.
type Config struct {
	LogLevel   string     `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Matching   Matching   `mapstructure:"matching"`
	Severity   Severity   `mapstructure:"severity"`
	Workflow   Workflow   `mapstructure:"workflow"`
	Resolution Resolution `mapstructure:"resolution"`
	Run        Run        `mapstructure:"run"`
	Store      Store      `mapstructure:"store"`
	Redis      Redis      `mapstructure:"redis"`
	Kafka      Kafka      `mapstructure:"kafka"`
	Ingestion  Ingestion  `mapstructure:"ingestion"`
	HTTP       HTTP       `mapstructure:"http"`
}

// Weights are the relative contributions of each field to the match score.
type Weights struct {
	Price          float64 `mapstructure:"price" validate:"gte=0"`
	Quantity       float64 `mapstructure:"quantity" validate:"gte=0"`
	Side           float64 `mapstructure:"side" validate:"gte=0"`
	SettlementDate float64 `mapstructure:"settlement_date" validate:"gte=0"`
}

// Sum of all weights.
func (w Weights) Sum() float64 {
	return w.Price + w.Quantity + w.Side + w.SettlementDate
}

// Matching configures candidate generation and scoring.
type Matching struct {
	PriceTolerancePercent    float64 `mapstructure:"price_tolerance_percent" validate:"gte=0"`
	QuantityTolerancePercent float64 `mapstructure:"quantity_tolerance_percent" validate:"gte=0"`
	TimeWindowHours          float64 `mapstructure:"time_window_hours" validate:"gt=0"`
	MinMatchScore            float64 `mapstructure:"min_match_score" validate:"gte=0,lte=1"`
	// DecaySpan is the multiple of tolerance at which field credit reaches zero.
	DecaySpan              float64 `mapstructure:"decay_span" validate:"gt=1"`
	Weights                Weights `mapstructure:"weights"`
	Workers                int     `mapstructure:"workers" validate:"gte=1,lte=256"`
	MaxCandidatesPerRecord int     `mapstructure:"max_candidates_per_record" validate:"gte=1"`
	Scorer                 string  `mapstructure:"scorer" validate:"oneof=deterministic learned"`
	ModelPath              string  `mapstructure:"model_path"`
}

// PriceTolerance returns the price tolerance in percent.
func (m Matching) PriceTolerance() decimal.Decimal {
	return decimal.NewFromFloat(m.PriceTolerancePercent)
}

// QuantityTolerance returns the quantity tolerance in percent.
func (m Matching) QuantityTolerance() decimal.Decimal {
	return decimal.NewFromFloat(m.QuantityTolerancePercent)
}

// TimeWindow returns the candidate time window.
func (m Matching) TimeWindow() time.Duration {
	return time.Duration(m.TimeWindowHours * float64(time.Hour))
}

// MinScore returns the acceptance threshold.
func (m Matching) MinScore() decimal.Decimal {
	return decimal.NewFromFloat(m.MinMatchScore)
}

// Severity configures the break severity buckets.
type Severity struct {
	LowBelow          float64 `mapstructure:"low_below" validate:"gt=0"`
	MediumBelow       float64 `mapstructure:"medium_below" validate:"gt=0"`
	HighBelow         float64 `mapstructure:"high_below" validate:"gt=0"`
	CriticalNotional  float64 `mapstructure:"critical_notional" validate:"gte=0"`
	MissingSeverity   string  `mapstructure:"missing_severity"`
	AmbiguousSeverity string  `mapstructure:"ambiguous_severity"`
	SideSeverity      string  `mapstructure:"side_severity"`
}

// Workflow configures SLA deadlines and escalation.
type Workflow struct {
	SLAWindows           map[string]time.Duration `mapstructure:"sla_windows"`
	EscalationMultiplier float64                  `mapstructure:"escalation_multiplier" validate:"gt=0"`
	MaxEscalations       int                      `mapstructure:"max_escalations" validate:"gte=1"`
	EscalationTiers      []string                 `mapstructure:"escalation_tiers" validate:"min=1"`
	SweepInterval        time.Duration            `mapstructure:"sweep_interval" validate:"gt=0"`
	SweepBatchSize       int                      `mapstructure:"sweep_batch_size" validate:"gte=1"`
}

// SLAWindow returns the SLA window for a severity.
func (w Workflow) SLAWindow(s domain.Severity) time.Duration {
	return w.SLAWindows[strings.ToLower(string(s))]
}

// Resolution configures the rule engine. Rules and allow-list are kept in
// their textual form here and compiled by Compile.
type Resolution struct {
	AutoResolveAllow []AllowConfig `mapstructure:"auto_resolve_allow"`
	Rules            []RuleConfig  `mapstructure:"rules"`
}

// AllowConfig is one allow-list entry.
type AllowConfig struct {
	Category   string   `mapstructure:"category"`
	Severities []string `mapstructure:"severities"`
}

// RuleConfig is one resolution rule as written in configuration.
type RuleConfig struct {
	Name       string            `mapstructure:"name"`
	Priority   int               `mapstructure:"priority"`
	Action     string            `mapstructure:"action"`
	Categories []string          `mapstructure:"categories"`
	Severities []string          `mapstructure:"severities"`
	Conditions []ConditionConfig `mapstructure:"conditions"`
}

// ConditionConfig is a textual rule condition.
type ConditionConfig struct {
	Field string `mapstructure:"field"`
	Op    string `mapstructure:"op"`
	Value string `mapstructure:"value"`
}

// Run configures a reconciliation run.
type Run struct {
	Budget time.Duration `mapstructure:"budget" validate:"gt=0"`
}

// Store configures persistence.
type Store struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

// Redis configures the distributed run lock.
type Redis struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// Kafka configures break event publishing.
type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Ingestion configures the CSV trade source. Paths may contain {date}.
type Ingestion struct {
	InternalPath string `mapstructure:"internal_path"`
	ExternalPath string `mapstructure:"external_path"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr       string        `mapstructure:"addr"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	CORSOrigin string        `mapstructure:"cors_origin"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Matching: Matching{
			PriceTolerancePercent:    0.01,
			QuantityTolerancePercent: 0.1,
			TimeWindowHours:          24,
			MinMatchScore:            0.6,
			DecaySpan:                10,
			Weights:                  Weights{Price: 0.3, Quantity: 0.3, Side: 0.2, SettlementDate: 0.2},
			Workers:                  8,
			MaxCandidatesPerRecord:   64,
			Scorer:                   "deterministic",
		},
		Severity: Severity{
			LowBelow:          2,
			MediumBelow:       5,
			HighBelow:         10,
			CriticalNotional:  1_000_000,
			MissingSeverity:   string(domain.SeverityHigh),
			AmbiguousSeverity: string(domain.SeverityMedium),
			SideSeverity:      string(domain.SeverityHigh),
		},
		Workflow: Workflow{
			SLAWindows: map[string]time.Duration{
				"critical": 2 * time.Hour,
				"high":     4 * time.Hour,
				"medium":   24 * time.Hour,
				"low":      48 * time.Hour,
			},
			EscalationMultiplier: 0.5,
			MaxEscalations:       3,
			EscalationTiers:      []string{"ops-analyst", "ops-senior", "ops-manager"},
			SweepInterval:        5 * time.Minute,
			SweepBatchSize:       500,
		},
		Resolution: Resolution{
			AutoResolveAllow: []AllowConfig{
				{Category: string(domain.CategorySettlementDateBreak), Severities: []string{"LOW"}},
				{Category: string(domain.CategoryPriceBreak), Severities: []string{"LOW"}},
				{Category: string(domain.CategoryQuantityBreak), Severities: []string{"LOW"}},
			},
			Rules: []RuleConfig{
				{
					Name: "settlement-within-one-day", Priority: 100, Action: string(domain.ActionAcceptExternal),
					Categories: []string{string(domain.CategorySettlementDateBreak)},
					Conditions: []ConditionConfig{{Field: "settlement_date.delta_days", Op: "lte", Value: "1"}},
				},
				{
					Name: "penny-rounding", Priority: 90, Action: string(domain.ActionAcceptExternal),
					Categories: []string{string(domain.CategoryPriceBreak)},
					Conditions: []ConditionConfig{{Field: "price.delta", Op: "lte", Value: "0.01"}},
				},
				{
					Name: "quantity-rounding", Priority: 80, Action: string(domain.ActionAcceptInternal),
					Categories: []string{string(domain.CategoryQuantityBreak)},
					Conditions: []ConditionConfig{{Field: "quantity.delta", Op: "lt", Value: "0.01"}},
				},
			},
		},
		Run:   Run{Budget: 10 * time.Minute},
		Store: Store{Driver: "sqlite", DSN: "reconciliation.db"},
		Redis: Redis{Address: "localhost:6379", LockTTL: 15 * time.Minute},
		Kafka: Kafka{Brokers: []string{"localhost:9092"}, Topic: "reconciliation.breaks"},
		Ingestion: Ingestion{
			InternalPath: "data/internal_{date}.csv",
			ExternalPath: "data/external_{date}.csv",
		},
		HTTP: HTTP{Addr: ":8080", CacheTTL: 30 * time.Second, CORSOrigin: "*"},
	}
}
