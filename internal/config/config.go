// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Callback CallbackConfig `mapstructure:"callback"`
	Store    StoreConfig    `mapstructure:"store"`
	DB       DBConfig       `mapstructure:"db"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CallbackConfig describes the outbound results endpoint.
type CallbackConfig struct {
	URL            string        `mapstructure:"url"`
	SecretKey      string        `mapstructure:"secret_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ReportFailures bool          `mapstructure:"report_failures"`
	MaxRPS         float64       `mapstructure:"max_rps"`
	Burst          int           `mapstructure:"burst"`
}

// StoreConfig selects the data gateway implementation.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	SeedFile string `mapstructure:"seed_file"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// AnalysisConfig governs the worker pool and run pacing.
type AnalysisConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	DelayMin       time.Duration `mapstructure:"delay_min"`
	DelayMax       time.Duration `mapstructure:"delay_max"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
}

// PubSubConfig holds metadata for outcome event publishing.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment.
// Variables already set in the environment win.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GENRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("callback.url", "")
	v.SetDefault("callback.secret_key", "")
	v.SetDefault("callback.timeout", 10*time.Second)
	v.SetDefault("callback.report_failures", false)
	v.SetDefault("callback.max_rps", 0)
	v.SetDefault("callback.burst", 1)
	v.SetDefault("store.driver", StoreDriverPostgres)
	v.SetDefault("store.seed_file", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("analysis.workers", 8)
	v.SetDefault("analysis.queue_depth", 256)
	v.SetDefault("analysis.delay_min", 5*time.Second)
	v.SetDefault("analysis.delay_max", 10*time.Second)
	v.SetDefault("analysis.fetch_timeout", 10*time.Second)
	v.SetDefault("analysis.enqueue_timeout", 100*time.Millisecond)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "genre-analysis-outcomes")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if err := validateCallbackURL(c.Callback.URL); err != nil {
		return err
	}
	if c.Callback.SecretKey == "" {
		return fmt.Errorf("callback.secret_key is required")
	}
	if c.Callback.Timeout <= 0 {
		return fmt.Errorf("callback.timeout must be > 0")
	}
	if c.Callback.MaxRPS < 0 {
		return fmt.Errorf("callback.max_rps must be >= 0")
	}
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when store.driver is %q", StoreDriverPostgres)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.Store.Driver)
	}
	if c.Analysis.Workers <= 0 {
		return fmt.Errorf("analysis.workers must be > 0")
	}
	if c.Analysis.QueueDepth <= 0 {
		return fmt.Errorf("analysis.queue_depth must be > 0")
	}
	if c.Analysis.DelayMin < 0 || c.Analysis.DelayMax < c.Analysis.DelayMin {
		return fmt.Errorf("analysis.delay_min and analysis.delay_max must satisfy 0 <= min <= max")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// InsecureCallback reports whether results would travel over plain HTTP.
func (c Config) InsecureCallback() bool {
	u, err := url.Parse(c.Callback.URL)
	return err == nil && u.Scheme == "http"
}

func validateCallbackURL(raw string) error {
	if raw == "" {
		return errors.New("callback.url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("callback.url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("callback.url must be an absolute http(s) URL")
	}
	return nil
}
