// Package config loads and validates the geolocator pipeline's configuration
// from environment variables and an optional YAML file, and bootstraps the
// global zap logger.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration shared by every worker
// subcommand (router, dispatcher, consolidator, locator).
type Config struct {
	Environment string          `yaml:"environment" mapstructure:"environment"`
	Store       StoreConfig     `yaml:"store" mapstructure:"store"`
	Queue       QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Geocoder    GeocoderConfig  `yaml:"geocoder" mapstructure:"geocoder"`
	Ruleset     RulesetConfig   `yaml:"ruleset" mapstructure:"ruleset"`
	Locator     LocatorConfig   `yaml:"locator" mapstructure:"locator"`
	Bootstrap   BootstrapConfig `yaml:"bootstrap" mapstructure:"bootstrap"`
	Server      ServerConfig    `yaml:"server" mapstructure:"server"`
	Log         LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the candidate/transfer Postgres backend.
type StoreConfig struct {
	Driver          string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns        int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns        int32  `yaml:"min_conns" mapstructure:"min_conns"`
	GeocodesTable   string `yaml:"geocodes_table" mapstructure:"geocodes_table"`
	TransferTable   string `yaml:"transfer_table" mapstructure:"transfer_table"`
	DeadLetterTable string `yaml:"dead_letter_table" mapstructure:"dead_letter_table"`
}

// QueueConfig names the queue/stream resources the router, dispatcher and
// consolidator exchange tasks through.
type QueueConfig struct {
	GeocoderQueue          string `yaml:"geocoder_queue" mapstructure:"geocoder_queue"`
	InputQueue             string `yaml:"input_queue" mapstructure:"input_queue"`
	OutputStream           string `yaml:"output_stream" mapstructure:"output_stream"`
	CandidateGeoDataStream string `yaml:"candidate_geo_data_stream" mapstructure:"candidate_geo_data_stream"`
}

// GeocoderConfig configures the provider dispatcher: credentials and retry
// tuning shared across all adapters.
type GeocoderConfig struct {
	SecretName        string `yaml:"secret_name" mapstructure:"secret_name"`
	APIKeysParam      string `yaml:"api_keys_param" mapstructure:"api_keys_param"`
	MaxRetries        int    `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffSec int    `yaml:"initial_backoff_sec" mapstructure:"initial_backoff_sec"`
	MaxBackoffSec     int    `yaml:"max_backoff_sec" mapstructure:"max_backoff_sec"`
}

// RulesetConfig names the ruleset document versions to evaluate candidates
// against.
type RulesetConfig struct {
	GeocoderRulesetVersion string `yaml:"geocoder_ruleset_version" mapstructure:"geocoder_ruleset_version"`
	PartnerRulesetVersion  string `yaml:"partner_ruleset_version" mapstructure:"partner_ruleset_version"`
}

// LocatorConfig configures the locator's SigV4-signed locality HTTP calls.
type LocatorConfig struct {
	APIID                   string `yaml:"api_id" mapstructure:"api_id"`
	APIKey                  string `yaml:"api_key" mapstructure:"api_key"`
	AWSRegion               string `yaml:"aws_region" mapstructure:"aws_region"`
	AWSKey                  string `yaml:"aws_access_key_id" mapstructure:"aws_access_key_id"`
	AWSSecret               string `yaml:"aws_secret_access_key" mapstructure:"aws_secret_access_key"`
	AWSSession              string `yaml:"aws_session_token" mapstructure:"aws_session_token"`
	BreakerFailureThreshold int    `yaml:"breaker_failure_threshold" mapstructure:"breaker_failure_threshold"`
	BreakerResetTimeoutSec  int    `yaml:"breaker_reset_timeout_sec" mapstructure:"breaker_reset_timeout_sec"`
}

// BootstrapConfig points at the small reference datasets (country codes,
// destinations, rulesets) the pipeline loads at startup.
type BootstrapConfig struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig configures each worker's health-check HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks required configuration fields based on run mode.
// Supported modes: "router", "dispatcher", "consolidator", "locator".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment is required")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "router":
		if c.Store.TransferTable == "" {
			errs = append(errs, "store.transfer_table is required")
		}
		if c.Queue.InputQueue == "" {
			errs = append(errs, "queue.input_queue is required")
		}
	case "dispatcher":
		if c.Queue.GeocoderQueue == "" {
			errs = append(errs, "queue.geocoder_queue is required")
		}
		if c.Geocoder.SecretName == "" {
			errs = append(errs, "geocoder.secret_name is required")
		}
	case "consolidator":
		if c.Store.GeocodesTable == "" {
			errs = append(errs, "store.geocodes_table is required")
		}
		if c.Ruleset.GeocoderRulesetVersion == "" {
			errs = append(errs, "ruleset.geocoder_ruleset_version is required")
		}
		if c.Ruleset.PartnerRulesetVersion == "" {
			errs = append(errs, "ruleset.partner_ruleset_version is required")
		}
	case "locator":
		if c.Locator.APIID == "" {
			errs = append(errs, "locator.api_id is required")
		}
		if c.Locator.AWSRegion == "" {
			errs = append(errs, "locator.aws_region is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Geocoder.MaxRetries < 0 {
		errs = append(errs, "geocoder.max_retries must be >= 0")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: validation failed: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GEOCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "dev")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.geocodes_table", "geo.candidates")
	v.SetDefault("store.transfer_table", "geo.transfer")
	v.SetDefault("store.dead_letter_table", "geo.dispatch_dead_letters")
	v.SetDefault("queue.geocoder_queue", "geo.geocoder_tasks")
	v.SetDefault("queue.input_queue", "geo.feed_records")
	v.SetDefault("queue.output_stream", "geo.candidate_consolidations")
	v.SetDefault("queue.candidate_geo_data_stream", "geo.candidate_geo_data")
	v.SetDefault("geocoder.max_retries", 3)
	v.SetDefault("geocoder.initial_backoff_sec", 1)
	v.SetDefault("geocoder.max_backoff_sec", 60)
	v.SetDefault("ruleset.geocoder_ruleset_version", "v1")
	v.SetDefault("ruleset.partner_ruleset_version", "v1")
	v.SetDefault("bootstrap.data_dir", "data")
	v.SetDefault("locator.breaker_failure_threshold", 10)
	v.SetDefault("locator.breaker_reset_timeout_sec", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
