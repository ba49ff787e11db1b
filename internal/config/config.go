package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Engine   EngineConfig   `yaml:"engine" mapstructure:"engine"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Temporal TemporalConfig `yaml:"temporal" mapstructure:"temporal"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`

	// Transient database errors are retried up to RetryAttempts times in
	// total, starting RetryBackoffMs apart.
	RetryAttempts  int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// EngineConfig tunes filing acceptance, resolution confidence and ratio
// evaluation.
type EngineConfig struct {
	MinVerificationScore float64 `yaml:"min_verification_score" mapstructure:"min_verification_score"`
	UnverifiedPenalty    float64 `yaml:"unverified_penalty" mapstructure:"unverified_penalty"`
	SynonymPenalty       float64 `yaml:"synonym_penalty" mapstructure:"synonym_penalty"`
	DerivationPenalty    float64 `yaml:"derivation_penalty" mapstructure:"derivation_penalty"`
	CrossCheckPenalty    float64 `yaml:"cross_check_penalty" mapstructure:"cross_check_penalty"`
	CrossCheckTolerance  float64 `yaml:"cross_check_tolerance" mapstructure:"cross_check_tolerance"`
	MatchThreshold       float64 `yaml:"match_threshold" mapstructure:"match_threshold"`
	DecimalPlaces        int     `yaml:"decimal_places" mapstructure:"decimal_places"`
	RequireVerified      bool    `yaml:"require_verified" mapstructure:"require_verified"`
	CatalogPath          string  `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentFilings int `yaml:"max_concurrent_filings" mapstructure:"max_concurrent_filings"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	RequestsPerSecond float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int      `yaml:"burst" mapstructure:"burst"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// TemporalConfig configures the Temporal worker and client.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RATIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ratio.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.retry_attempts", 3)
	v.SetDefault("store.retry_backoff_ms", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("engine.min_verification_score", 95)
	v.SetDefault("engine.unverified_penalty", 30)
	v.SetDefault("engine.synonym_penalty", 10)
	v.SetDefault("engine.derivation_penalty", 15)
	v.SetDefault("engine.cross_check_penalty", 20)
	v.SetDefault("engine.cross_check_tolerance", 0.01)
	v.SetDefault("engine.match_threshold", 50)
	v.SetDefault("engine.decimal_places", 2)
	v.SetDefault("engine.require_verified", false)
	v.SetDefault("engine.catalog_path", "")
	v.SetDefault("batch.max_concurrent_filings", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.requests_per_second", 20)
	v.SetDefault("server.burst", 40)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "ratio-filings")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Every problem is
// reported in one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	e := c.Engine
	if e.MinVerificationScore < 0 || e.MinVerificationScore > 100 {
		errs = append(errs, "engine.min_verification_score must be between 0 and 100")
	}
	penalties := []struct {
		name  string
		value float64
	}{
		{"unverified_penalty", e.UnverifiedPenalty},
		{"synonym_penalty", e.SynonymPenalty},
		{"derivation_penalty", e.DerivationPenalty},
		{"cross_check_penalty", e.CrossCheckPenalty},
	}
	for _, p := range penalties {
		if p.value < 0 || p.value > 100 {
			errs = append(errs, fmt.Sprintf("engine.%s must be between 0 and 100", p.name))
		}
	}
	if e.CrossCheckTolerance < 0 {
		errs = append(errs, "engine.cross_check_tolerance must be >= 0")
	}
	if e.DecimalPlaces < 0 || e.DecimalPlaces > 10 {
		errs = append(errs, "engine.decimal_places must be between 0 and 10")
	}
	if c.Batch.MaxConcurrentFilings < 1 || c.Batch.MaxConcurrentFilings > 64 {
		errs = append(errs, "batch.max_concurrent_filings must be between 1 and 64")
	}

	switch mode {
	case "process":
	case "persist", "migrate":
		errs = append(errs, c.storeErrors()...)
	case "serve":
		errs = append(errs, c.storeErrors()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RequestsPerSecond <= 0 {
			errs = append(errs, "server.requests_per_second must be > 0")
		}
		if c.Server.Burst < 1 {
			errs = append(errs, "server.burst must be >= 1")
		}
	case "worker":
		errs = append(errs, c.storeErrors()...)
		if c.Temporal.HostPort == "" {
			errs = append(errs, "temporal.host_port is required")
		}
		if c.Temporal.TaskQueue == "" {
			errs = append(errs, "temporal.task_queue is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrors() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.RetryAttempts < 1 || c.Store.RetryAttempts > 10 {
		errs = append(errs, "store.retry_attempts must be between 1 and 10")
	}
	if c.Store.RetryBackoffMs < 0 {
		errs = append(errs, "store.retry_backoff_ms must be >= 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
