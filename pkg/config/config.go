// Package config provides configuration loading, validation, and secret
// management for the orchestrator service.
//
// Configuration is split in two:
//
//   - Service config: a YAML file describing the listen address, database
//     path, scoring/answer providers, and router defaults. Loaded once at
//     startup, immutable afterwards.
//   - Per-agent config: stored in the database (see pkg/persistence) and
//     mutated by agent owners at runtime. The values here only provide the
//     defaults applied when an agent has no stored config row.
//
// State (escalation counts, decision history) never lives in config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider name constants.
const (
	ScoringProviderOpenAI = "openai"
	ScoringProviderOllama = "ollama"

	AnswerProviderAnthropic = "anthropic"
	AnswerProviderGoogle    = "google"
	AnswerProviderTemplate  = "template"
)

// Secret name constants resolved via GetSecret.
const (
	SecretOpenAIKey    = "OPENAI_API_KEY"
	SecretAnthropicKey = "ANTHROPIC_API_KEY"
	SecretGoogleKey    = "GEMINI_API_KEY"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr         string `yaml:"listen_addr"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScoringConfig selects and tunes the embedding backend used by pkg/scoring.
type ScoringConfig struct {
	Provider   string `yaml:"provider"`    // "openai" or "ollama"
	Model      string `yaml:"model"`       // embedding model name
	OllamaHost string `yaml:"ollama_host"` // only used when provider is "ollama"
	TimeoutSec int    `yaml:"timeout_sec"` // deadline for a single scoring pass
}

// AnswerConfig selects the LLM used to phrase auto-answers and clarifications.
type AnswerConfig struct {
	Provider  string `yaml:"provider"` // "anthropic", "google", or "template"
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// RouterConfig holds routing constants and the defaults applied to agents
// without a stored config row.
type RouterConfig struct {
	// ClarifyBandWidth defines path B's band: confidence in
	// [threshold-width, threshold) asks a clarifying question.
	ClarifyBandWidth float64 `yaml:"clarify_band_width"`
	// ReuseSimilarityThreshold is the cosine similarity above which a
	// canonical answer is served directly (path C).
	ReuseSimilarityThreshold float64 `yaml:"reuse_similarity_threshold"`
	// Defaults for agents with no stored config.
	DefaultConfidenceThreshold float64 `yaml:"default_confidence_threshold"`
	DefaultMaxEscalationsDay   int     `yaml:"default_max_escalations_day"`
	DefaultMaxEscalationsWeek  int     `yaml:"default_max_escalations_week"`
}

// SweepConfig controls the background expiry sweep for stale escalations.
type SweepConfig struct {
	IntervalSec     int `yaml:"interval_sec"`
	PendingTTLHours int `yaml:"pending_ttl_hours"`
}

// AuditConfig controls the JSONL decision audit trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// MetricsConfig points at an optional Prometheus server used for owner
// analytics queries. The exporter on /metrics is always on.
type MetricsConfig struct {
	PrometheusURL string `yaml:"prometheus_url"`
}

// Config is the root service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Answer   AnswerConfig   `yaml:"answer"`
	Router   RouterConfig   `yaml:"router"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Default values applied by applyDefaults.
const (
	defaultListenAddr         = ":8085"
	defaultShutdownTimeoutSec = 30
	defaultDatabasePath       = "orchestrator.db"
	defaultScoringProvider    = ScoringProviderOpenAI
	defaultScoringModel       = "text-embedding-3-small"
	defaultOllamaHost         = "http://localhost:11434"
	defaultScoringTimeoutSec  = 10
	defaultAnswerProvider     = AnswerProviderTemplate
	defaultAnswerModel        = "claude-3-5-haiku-20241022"
	defaultAnswerMaxTokens    = 1024

	defaultClarifyBandWidth    = 0.15
	defaultReuseSimilarity     = 0.92
	defaultConfidenceThreshold = 0.75
	defaultMaxEscalationsDay   = 5
	defaultMaxEscalationsWeek  = 20

	defaultSweepIntervalSec = 300
	defaultPendingTTLHours  = 72
)

// Load reads, defaults, and validates the YAML config at path.
// A missing file is not an error: the full default config is returned, so the
// service can run with zero configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Fall through to defaults.
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Server.ShutdownTimeoutSec <= 0 {
		c.Server.ShutdownTimeoutSec = defaultShutdownTimeoutSec
	}
	if c.Database.Path == "" {
		c.Database.Path = defaultDatabasePath
	}
	if c.Scoring.Provider == "" {
		c.Scoring.Provider = defaultScoringProvider
	}
	if c.Scoring.Model == "" {
		c.Scoring.Model = defaultScoringModel
	}
	if c.Scoring.OllamaHost == "" {
		c.Scoring.OllamaHost = defaultOllamaHost
	}
	if c.Scoring.TimeoutSec <= 0 {
		c.Scoring.TimeoutSec = defaultScoringTimeoutSec
	}
	if c.Answer.Provider == "" {
		c.Answer.Provider = defaultAnswerProvider
	}
	if c.Answer.Model == "" {
		c.Answer.Model = defaultAnswerModel
	}
	if c.Answer.MaxTokens <= 0 {
		c.Answer.MaxTokens = defaultAnswerMaxTokens
	}
	if c.Router.ClarifyBandWidth <= 0 {
		c.Router.ClarifyBandWidth = defaultClarifyBandWidth
	}
	if c.Router.ReuseSimilarityThreshold <= 0 {
		c.Router.ReuseSimilarityThreshold = defaultReuseSimilarity
	}
	if c.Router.DefaultConfidenceThreshold <= 0 {
		c.Router.DefaultConfidenceThreshold = defaultConfidenceThreshold
	}
	if c.Router.DefaultMaxEscalationsDay <= 0 {
		c.Router.DefaultMaxEscalationsDay = defaultMaxEscalationsDay
	}
	if c.Router.DefaultMaxEscalationsWeek <= 0 {
		c.Router.DefaultMaxEscalationsWeek = defaultMaxEscalationsWeek
	}
	if c.Sweep.IntervalSec <= 0 {
		c.Sweep.IntervalSec = defaultSweepIntervalSec
	}
	if c.Sweep.PendingTTLHours <= 0 {
		c.Sweep.PendingTTLHours = defaultPendingTTLHours
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = "audit"
	}
}

// Validate rejects configurations that would misroute messages.
func (c *Config) Validate() error {
	switch c.Scoring.Provider {
	case ScoringProviderOpenAI, ScoringProviderOllama:
	default:
		return fmt.Errorf("unknown scoring provider: %q", c.Scoring.Provider)
	}

	switch c.Answer.Provider {
	case AnswerProviderAnthropic, AnswerProviderGoogle, AnswerProviderTemplate:
	default:
		return fmt.Errorf("unknown answer provider: %q", c.Answer.Provider)
	}

	if c.Router.ReuseSimilarityThreshold > 1 {
		return fmt.Errorf("reuse_similarity_threshold must be in (0,1], got %f", c.Router.ReuseSimilarityThreshold)
	}
	if c.Router.DefaultConfidenceThreshold > 1 {
		return fmt.Errorf("default_confidence_threshold must be in (0,1], got %f", c.Router.DefaultConfidenceThreshold)
	}
	if c.Router.ClarifyBandWidth >= c.Router.DefaultConfidenceThreshold {
		return fmt.Errorf("clarify_band_width %f must be below the confidence threshold %f",
			c.Router.ClarifyBandWidth, c.Router.DefaultConfidenceThreshold)
	}
	if c.Router.DefaultMaxEscalationsWeek < c.Router.DefaultMaxEscalationsDay {
		return fmt.Errorf("weekly escalation quota %d below daily quota %d",
			c.Router.DefaultMaxEscalationsWeek, c.Router.DefaultMaxEscalationsDay)
	}
	return nil
}

// ScoringTimeout returns the scoring deadline as a duration.
func (c *Config) ScoringTimeout() time.Duration {
	return time.Duration(c.Scoring.TimeoutSec) * time.Second
}

// SweepInterval returns the expiry sweep cadence as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweep.IntervalSec) * time.Second
}

// PendingTTL returns how long a pending escalation lives before expiry.
func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.Sweep.PendingTTLHours) * time.Hour
}

// ShutdownTimeout returns the graceful shutdown deadline as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}
