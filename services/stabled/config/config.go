package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Supported engine state backends.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Supported oracle source types.
const (
	SourceStatic = "static"
	SourceHTTP   = "http"
)

// Config captures runtime configuration for stabled.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"environment"`
	DatabasePath  string          `yaml:"database"`
	GenesisPath   string          `yaml:"genesis"`
	State         StateConfig     `yaml:"state"`
	Indexer       IndexerConfig   `yaml:"indexer"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Oracle        OracleConfig    `yaml:"oracle"`
	Feeds         []Feed          `yaml:"feeds"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// StateConfig selects the key/value store holding engine state.
type StateConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// IndexerConfig points the event indexer at a relational database. DSNs
// starting with postgres:// or postgresql:// use Postgres; anything else is
// treated as a sqlite path.
type IndexerConfig struct {
	DSN      string `yaml:"dsn"`
	Disabled bool   `yaml:"disabled"`
}

// AuthConfig configures HS256 bearer tokens for privileged routes.
type AuthConfig struct {
	HMACSecret string   `yaml:"hmac_secret"`
	Issuer     string   `yaml:"issuer"`
	Audience   string   `yaml:"audience"`
	ClockSkew  Duration `yaml:"clock_skew"`
}

// RateLimitConfig throttles state-changing public routes per client.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// OracleConfig tunes the polling loop.
type OracleConfig struct {
	Interval   Duration `yaml:"interval"`
	MaxAge     Duration `yaml:"max_age"`
	MinSources int      `yaml:"min_sources"`
	Retries    uint     `yaml:"retries"`
}

// Feed names an oracle feed and the sources that quote it.
type Feed struct {
	Name    string   `yaml:"name"`
	Sources []Source `yaml:"sources"`
}

// Source describes an upstream quote provider. Static sources always report
// Mantissa; HTTP sources read Field from a JSON document at Endpoint.
type Source struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Field    string `yaml:"field"`
	Mantissa int64  `yaml:"mantissa"`
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig mirrors the OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Traces      bool    `yaml:"traces"`
	Metrics     bool    `yaml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7081"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/stabled.sqlite"
	}
	cfg.State.Backend = strings.ToLower(strings.TrimSpace(cfg.State.Backend))
	if cfg.State.Backend == "" {
		cfg.State.Backend = BackendLevelDB
	}
	if cfg.State.Path == "" && cfg.State.Backend != BackendMemory {
		cfg.State.Path = "/var/data/stabled-state"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 60
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}
	if cfg.Oracle.Interval.Duration == 0 {
		cfg.Oracle.Interval.Duration = 30 * time.Second
	}
	if cfg.Oracle.MaxAge.Duration == 0 {
		cfg.Oracle.MaxAge.Duration = 5 * time.Minute
	}
	if cfg.Oracle.MinSources <= 0 {
		cfg.Oracle.MinSources = 1
	}
	if cfg.Oracle.Retries == 0 {
		cfg.Oracle.Retries = 3
	}
	for i := range cfg.Feeds {
		for j := range cfg.Feeds[i].Sources {
			src := &cfg.Feeds[i].Sources[j]
			src.Type = strings.ToLower(strings.TrimSpace(src.Type))
			if src.Type == "" {
				src.Type = SourceHTTP
			}
		}
	}
}

func validate(cfg Config) error {
	switch cfg.State.Backend {
	case BackendMemory, BackendLevelDB, BackendBolt:
	default:
		return fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth.hmac_secret must be configured")
	}
	if len(cfg.Feeds) == 0 {
		return fmt.Errorf("at least one oracle feed must be configured")
	}
	seen := make(map[string]struct{}, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		name := strings.TrimSpace(feed.Name)
		if name == "" {
			return fmt.Errorf("oracle feed name required")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate oracle feed %q", name)
		}
		seen[name] = struct{}{}
		if len(feed.Sources) < cfg.Oracle.MinSources {
			return fmt.Errorf("feed %s: %d sources configured, %d required", name, len(feed.Sources), cfg.Oracle.MinSources)
		}
		for _, src := range feed.Sources {
			switch src.Type {
			case SourceStatic:
				if src.Mantissa == 0 {
					return fmt.Errorf("feed %s: static source %q requires a non-zero mantissa", name, src.Name)
				}
			case SourceHTTP:
				if strings.TrimSpace(src.Endpoint) == "" {
					return fmt.Errorf("feed %s: http source %q requires an endpoint", name, src.Name)
				}
			default:
				return fmt.Errorf("feed %s: unknown source type %q", name, src.Type)
			}
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must lie in [0,1]")
	}
	return nil
}
