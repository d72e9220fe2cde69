// Package config defines service configuration and its loading.
//
// Values layer defaults, an optional YAML file named by SIGNPOST_CONFIG and
// SIGNPOST_* environment variables, in that order of precedence.
package config

import (
	"context"
	"fmt"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" yaml:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format" yaml:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" yaml:"addr"`

	DBDriver string `koanf:"db_driver" yaml:"db_driver"`
	DBDSN    string `koanf:"db_dsn" yaml:"db_dsn"`

	// CatalogPath points at the milestone and alias rule YAML.
	CatalogPath string `koanf:"catalog_path" yaml:"catalog_path"`

	// QueueSize bounds the asynchronous ingestion queue.
	QueueSize int `koanf:"queue_size" yaml:"queue_size"`
	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count" yaml:"worker_count"`

	// LinkCap is the maximum number of links kept per claim.
	LinkCap int `koanf:"link_cap" yaml:"link_cap"`
	// ReviewThreshold is the final confidence below which links need review.
	ReviewThreshold float64 `koanf:"review_threshold" yaml:"review_threshold"`
	// SourceKindAdjustments shifts confidence per source kind.
	SourceKindAdjustments map[string]float64 `koanf:"source_kind_adjustments" yaml:"source_kind_adjustments"`

	// OracleProvider is "", "openai" or "keyword". Empty disables the fallback.
	OracleProvider  string  `koanf:"oracle_provider" yaml:"oracle_provider"`
	OracleModel     string  `koanf:"oracle_model" yaml:"oracle_model"`
	OracleAPIKey    string  `koanf:"oracle_api_key" yaml:"-"`
	OracleBaseURL   string  `koanf:"oracle_base_url" yaml:"oracle_base_url"`
	OracleTimeoutMS int     `koanf:"oracle_timeout_ms" yaml:"oracle_timeout_ms"`
	OracleRPS       float64 `koanf:"oracle_rps" yaml:"oracle_rps"`

	CacheTTLSeconds int `koanf:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`

	// AnchorCategories feed the overall score's harmonic mean.
	AnchorCategories []string `koanf:"anchor_categories" yaml:"anchor_categories"`
	SafetyCategory   string   `koanf:"safety_category" yaml:"safety_category"`
	// Presets maps a preset name to per-category weights.
	Presets map[string]map[string]float64 `koanf:"presets" yaml:"presets"`

	CredibilityWindowDays int `koanf:"credibility_window_days" yaml:"credibility_window_days"`
	CredibilityMinSample  int `koanf:"credibility_min_sample" yaml:"credibility_min_sample"`

	// RecomputeIntervalSeconds schedules snapshot recomputation; 0 disables it.
	RecomputeIntervalSeconds int `koanf:"recompute_interval_seconds" yaml:"recompute_interval_seconds"`
}

// New returns a Config populated with defaults. Context is accepted first to
// follow the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		DBDriver:              "sqlite",
		DBDSN:                 "signpost.db",
		CatalogPath:           "configs/catalog.yaml",
		QueueSize:             10_000,
		WorkerCount:           4,
		LinkCap:               2,
		ReviewThreshold:       0.6,
		SourceKindAdjustments: map[string]float64{},
		OracleModel:           "gpt-4o-mini",
		OracleTimeoutMS:       5000,
		OracleRPS:             2,
		CacheTTLSeconds:       3600,
		AnchorCategories:      []string{"capability", "input"},
		SafetyCategory:        "security",
		Presets: map[string]map[string]float64{
			"equal": {"capability": 1, "input": 1},
		},
		CredibilityWindowDays:    90,
		CredibilityMinSample:     5,
		RecomputeIntervalSeconds: 3600,
	}
}

// OracleTimeout is the per-call oracle deadline.
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.OracleTimeoutMS) * time.Millisecond
}

// CacheTTL is the score cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// CredibilityWindow is how far back credibility counts claims.
func (c *Config) CredibilityWindow() time.Duration {
	return time.Duration(c.CredibilityWindowDays) * 24 * time.Hour
}

// RecomputeInterval is the scheduled recompute period.
func (c *Config) RecomputeInterval() time.Duration {
	return time.Duration(c.RecomputeIntervalSeconds) * time.Second
}

var knownCategories = map[string]bool{"capability": true, "agentic": true, "input": true, "security": true}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != "sqlite" && c.DBDriver != "postgres":
		return fmt.Errorf("%w: db_driver %q is not sqlite or postgres", ErrInvalidConfig, c.DBDriver)
	case c.DBDSN == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case c.LinkCap < 1:
		return fmt.Errorf("%w: link_cap must be at least 1", ErrInvalidConfig)
	case c.ReviewThreshold < 0 || c.ReviewThreshold > 1:
		return fmt.Errorf("%w: review_threshold must be within [0,1]", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.OracleProvider != "" && c.OracleProvider != "openai" && c.OracleProvider != "keyword":
		return fmt.Errorf("%w: oracle_provider %q is unknown", ErrInvalidConfig, c.OracleProvider)
	case c.OracleTimeoutMS <= 0:
		return fmt.Errorf("%w: oracle_timeout_ms must be positive", ErrInvalidConfig)
	case len(c.AnchorCategories) < 2:
		return fmt.Errorf("%w: at least two anchor_categories are required", ErrInvalidConfig)
	case len(c.Presets) == 0:
		return fmt.Errorf("%w: at least one preset is required", ErrInvalidConfig)
	case c.CredibilityWindowDays < 1 || c.CredibilityMinSample < 1:
		return fmt.Errorf("%w: credibility window and sample must be positive", ErrInvalidConfig)
	case c.RecomputeIntervalSeconds < 0:
		return fmt.Errorf("%w: recompute_interval_seconds must not be negative", ErrInvalidConfig)
	}
	for _, a := range append(append([]string{}, c.AnchorCategories...), c.SafetyCategory) {
		if !knownCategories[a] {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidConfig, a)
		}
	}
	for name, weights := range c.Presets {
		for cat, w := range weights {
			if !knownCategories[cat] {
				return fmt.Errorf("%w: preset %q names unknown category %q", ErrInvalidConfig, name, cat)
			}
			if w < 0 {
				return fmt.Errorf("%w: preset %q has a negative weight", ErrInvalidConfig, name)
			}
		}
	}
	return nil
}
