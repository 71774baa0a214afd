package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"trade-reconciliation/internal/domain"
)

// EnvPrefix is the prefix of environment overrides, e.g. RECON_MATCHING_MIN_MATCH_SCORE.
const EnvPrefix = "RECON"

// Load reads the optional YAML file at path, applies environment overrides and
// validates the result. Any validation failure is a *domain.ConfigurationError.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &domain.ConfigurationError{Field: "config", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("matching.price_tolerance_percent", d.Matching.PriceTolerancePercent)
	v.SetDefault("matching.quantity_tolerance_percent", d.Matching.QuantityTolerancePercent)
	v.SetDefault("matching.time_window_hours", d.Matching.TimeWindowHours)
	v.SetDefault("matching.min_match_score", d.Matching.MinMatchScore)
	v.SetDefault("matching.decay_span", d.Matching.DecaySpan)
	v.SetDefault("matching.weights.price", d.Matching.Weights.Price)
	v.SetDefault("matching.weights.quantity", d.Matching.Weights.Quantity)
	v.SetDefault("matching.weights.side", d.Matching.Weights.Side)
	v.SetDefault("matching.weights.settlement_date", d.Matching.Weights.SettlementDate)
	v.SetDefault("matching.workers", d.Matching.Workers)
	v.SetDefault("matching.max_candidates_per_record", d.Matching.MaxCandidatesPerRecord)
	v.SetDefault("matching.scorer", d.Matching.Scorer)
	v.SetDefault("matching.model_path", d.Matching.ModelPath)

	v.SetDefault("severity.low_below", d.Severity.LowBelow)
	v.SetDefault("severity.medium_below", d.Severity.MediumBelow)
	v.SetDefault("severity.high_below", d.Severity.HighBelow)
	v.SetDefault("severity.critical_notional", d.Severity.CriticalNotional)
	v.SetDefault("severity.missing_severity", d.Severity.MissingSeverity)
	v.SetDefault("severity.ambiguous_severity", d.Severity.AmbiguousSeverity)
	v.SetDefault("severity.side_severity", d.Severity.SideSeverity)

	v.SetDefault("workflow.sla_windows", d.Workflow.SLAWindows)
	v.SetDefault("workflow.escalation_multiplier", d.Workflow.EscalationMultiplier)
	v.SetDefault("workflow.max_escalations", d.Workflow.MaxEscalations)
	v.SetDefault("workflow.escalation_tiers", d.Workflow.EscalationTiers)
	v.SetDefault("workflow.sweep_interval", d.Workflow.SweepInterval)
	v.SetDefault("workflow.sweep_batch_size", d.Workflow.SweepBatchSize)

	v.SetDefault("resolution.auto_resolve_allow", d.Resolution.AutoResolveAllow)
	v.SetDefault("resolution.rules", d.Resolution.Rules)

	v.SetDefault("run.budget", d.Run.Budget)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.address", d.Redis.Address)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.lock_ttl", d.Redis.LockTTL)

	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)

	v.SetDefault("ingestion.internal_path", d.Ingestion.InternalPath)
	v.SetDefault("ingestion.external_path", d.Ingestion.ExternalPath)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.cache_ttl", d.HTTP.CacheTTL)
	v.SetDefault("http.cors_origin", d.HTTP.CORSOrigin)
}

var validate = validator.New()

// Validate checks ranges and cross-field constraints. It must succeed before
// any matching begins.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ConfigurationError{
				Field:  fe.Namespace(),
				Reason: fmt.Sprintf("failed %q constraint (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return &domain.ConfigurationError{Field: "config", Reason: err.Error()}
	}

	if c.Matching.Weights.Sum() <= 0 {
		return &domain.ConfigurationError{Field: "matching.weights", Reason: "at least one weight must be positive"}
	}
	if c.Matching.Scorer == "learned" && c.Matching.ModelPath == "" {
		return &domain.ConfigurationError{Field: "matching.model_path", Reason: "required for the learned scorer"}
	}

	s := c.Severity
	if !(s.LowBelow < s.MediumBelow && s.MediumBelow < s.HighBelow) {
		return &domain.ConfigurationError{Field: "severity", Reason: "buckets must be strictly increasing (low < medium < high)"}
	}
	for field, value := range map[string]string{
		"severity.missing_severity":   s.MissingSeverity,
		"severity.ambiguous_severity": s.AmbiguousSeverity,
		"severity.side_severity":      s.SideSeverity,
	} {
		if _, ok := domain.ParseSeverity(value); !ok {
			return &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown severity %q", value)}
		}
	}

	for _, sev := range domain.Severities {
		if c.Workflow.SLAWindow(sev) <= 0 {
			return &domain.ConfigurationError{
				Field:  "workflow.sla_windows." + strings.ToLower(string(sev)),
				Reason: "must be a positive duration",
			}
		}
	}

	if _, _, err := c.Resolution.Compile(); err != nil {
		return err
	}
	return nil
}
