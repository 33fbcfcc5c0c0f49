// Package config provides configuration loading and validation for prune runs.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidLanguage  = errors.New("language must be set")
	ErrInvalidMaxSteps  = errors.New("max steps must be positive")
	ErrInvalidWorkers   = errors.New("workers must not be negative")
	ErrInvalidMaxRounds = errors.New("max rounds must be positive")
	ErrInvalidTimeout   = errors.New("timeout must not be negative")
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("invalid log format")
	ErrNoRules          = errors.New("no rules: builtin rules disabled and no rule paths given")
	ErrInvalidSampling  = errors.New("trace sample ratio must be within [0, 1]")
)

// Config holds all configuration for a prune run.
type Config struct {
	Language string `mapstructure:"language"`
	// Substitutions are the hole values that seed the run, such as
	// stale_flag_name and treated.
	Substitutions map[string]string `mapstructure:"substitutions"`
	Rules         RulesConfig       `mapstructure:"rules"`
	Run           RunConfig         `mapstructure:"run"`
	Logging       LoggingConfig     `mapstructure:"logging"`
	Telemetry     TelemetryConfig   `mapstructure:"telemetry"`
}

// RulesConfig selects the rule files.
type RulesConfig struct {
	Paths   []string `mapstructure:"paths"`
	Builtin bool     `mapstructure:"builtin"`
}

// RunConfig bounds and shapes the rewrite.
type RunConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxSteps         int           `mapstructure:"max_steps"`
	Workers          int           `mapstructure:"workers"`
	MaxRounds        int           `mapstructure:"max_rounds"`
	DryRun           bool          `mapstructure:"dry_run"`
	DeleteEmptyFiles bool          `mapstructure:"delete_empty_files"`
	GrepHeuristic    bool          `mapstructure:"grep_heuristic"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SlogLevel returns the configured level, or info when it does not parse.
func (l LoggingConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}

	return level
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	// OTLPHeaders is a "key=value,key=value" list sent with every export.
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	MetricsAddr  string  `mapstructure:"metrics_addr"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
}

// LoadConfig loads configuration from file and environment variables and
// validates the result.
func LoadConfig(configPath string) (*Config, error) {
	config, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Load is LoadConfig without validation, for callers that layer further
// overrides such as command-line flags before calling Validate.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("prune")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/prune")
	}

	viperCfg.SetEnvPrefix("PRUNE")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("language", DefaultLanguage)
	viperCfg.SetDefault("substitutions", map[string]string{})

	viperCfg.SetDefault("rules.builtin", DefaultBuiltinRules)
	viperCfg.SetDefault("rules.paths", []string{})

	viperCfg.SetDefault("run.max_steps", DefaultMaxSteps)
	viperCfg.SetDefault("run.workers", DefaultWorkers)
	viperCfg.SetDefault("run.max_rounds", DefaultMaxRounds)
	viperCfg.SetDefault("run.timeout", "0s")
	viperCfg.SetDefault("run.dry_run", DefaultDryRun)
	viperCfg.SetDefault("run.delete_empty_files", DefaultDeleteEmptyFiles)
	viperCfg.SetDefault("run.grep_heuristic", DefaultGrepHeuristic)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.metrics_addr", "")
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
}

// Validate checks a configuration assembled from file, environment and flags.
func Validate(config *Config) error {
	if strings.TrimSpace(config.Language) == "" {
		return ErrInvalidLanguage
	}

	if config.Run.MaxSteps <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxSteps, config.Run.MaxSteps)
	}

	if config.Run.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Run.Workers)
	}

	if config.Run.MaxRounds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRounds, config.Run.MaxRounds)
	}

	if config.Run.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, config.Run.Timeout)
	}

	if !config.Rules.Builtin && len(config.Rules.Paths) == 0 {
		return ErrNoRules
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(config.Logging.Level)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	if config.Logging.Format != FormatText && config.Logging.Format != FormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampling, config.Telemetry.SampleRatio)
	}

	return nil
}
