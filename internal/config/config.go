// Package config provides configuration management for img2arr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultPluginsRoot  = "./plugins"
	defaultMode         = "default"
	defaultThreads      = 0
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultMaxOutputSize = 64 * 1024 * 1024
)

// Config holds all configuration for the application.
type Config struct {
	Plugins  PluginsConfig  `mapstructure:"plugins"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
}

// PluginsConfig controls where plug-ins are discovered and which optional
// features the registry attempts to load for each one.
type PluginsConfig struct {
	// Root is the directory that contains <stage>/<category>/<key> plug-in
	// directories.
	Root string `mapstructure:"root"`

	// Features lists which optional plug-in features to load: "native",
	// "scripted_ui", or both. Unknown values are ignored by the registry.
	Features []string `mapstructure:"features"`
}

// PipelineConfig holds pipeline execution configuration.
type PipelineConfig struct {
	// Mode selects the preprocessing iterator's memory/speed tradeoff:
	// "default", "speed", or "memory".
	Mode string `mapstructure:"mode"`

	// Threads is the worker pool size. 0 means "use logical core count".
	Threads int `mapstructure:"threads"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// OutputConfig guards the OUT-stage byte sequence against runaway growth.
type OutputConfig struct {
	// MaxSize is the largest `out` buffer the pipeline will allocate.
	// Supports human-readable values like "64MB", "1GB".
	MaxSize ByteSize `mapstructure:"max_size"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with IMG2ARR_ and use underscores for
// nesting, e.g. IMG2ARR_PIPELINE_THREADS=4.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/img2arr")
		v.AddConfigPath("$HOME/.img2arr")
	}

	v.SetEnvPrefix("IMG2ARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("plugins.root", defaultPluginsRoot)
	v.SetDefault("plugins.features", []string{"native"})

	v.SetDefault("pipeline.mode", defaultMode)
	v.SetDefault("pipeline.threads", defaultThreads)

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.format", defaultLogFormat)
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", "")

	v.SetDefault("output.max_size", defaultMaxOutputSize)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Plugins.Root == "" {
		return fmt.Errorf("plugins.root is required")
	}

	validModes := map[string]bool{"default": true, "speed": true, "memory": true}
	if !validModes[strings.ToLower(c.Pipeline.Mode)] {
		return fmt.Errorf("pipeline.mode must be one of: default, speed, memory")
	}
	if c.Pipeline.Threads < 0 {
		return fmt.Errorf("pipeline.threads must be >= 0")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Output.MaxSize.Bytes() <= 0 {
		return fmt.Errorf("output.max_size must be positive")
	}

	return nil
}
