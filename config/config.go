// Package config loads the service configuration from a YAML file and INCIDENTAL_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"github.com/linchenxuan/incidental/collector"
	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/metric"
	"github.com/linchenxuan/incidental/task"
)

// EnvPrefix prefixes environment overrides, e.g. INCIDENTAL_LOG_LEVEL.
const EnvPrefix = "INCIDENTAL"

// DefinitionConfig declares a measurement definition.
type DefinitionConfig struct {
	Name        string            `mapstructure:"name"`
	Aggregation string            `mapstructure:"aggregation"`
	Unit        string            `mapstructure:"unit"`
	Resolution  int               `mapstructure:"resolution"`
	Tags        map[string]string `mapstructure:"tags"`
}

// Define builds the definition.
func (d DefinitionConfig) Define() (*collector.Definition, error) {
	agg, err := collector.ParseAggregation(d.Aggregation)
	if err != nil {
		return nil, err
	}
	opts := metric.Options{Unit: d.Unit, Resolution: d.Resolution, Tags: d.Tags}
	if agg == collector.AggregationCount && opts.Unit == "" {
		return collector.Count(d.Name, opts)
	}
	return collector.Define(d.Name, opts, agg)
}

// Config is the whole service configuration.
type Config struct {
	Log         log.LogCfg         `mapstructure:"log"`
	Task        task.Config        `mapstructure:"task"`
	Definitions []DefinitionConfig `mapstructure:"definitions"`
	// Plugin is passed to plugin.Manager.SetupPlugins: type -> factory name -> config.
	Plugin map[string]any `mapstructure:"plugin"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Log, validation.By(func(any) error {
			return c.Log.Validate()
		})),
		validation.Field(&c.Task, validation.By(func(any) error {
			return c.Task.Validate()
		})),
	); err != nil {
		return err
	}
	return validateDefinitions(c.Definitions)
}

func validateDefinitions(defs []DefinitionConfig) error {
	seen := make(map[string]struct{}, len(defs))
	for i, d := range defs {
		if _, err := d.Define(); err != nil {
			return fmt.Errorf("definition %d: %w", i, err)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("definition %d: duplicate name %q", i, d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:  log.DefaultCfg(),
		Task: task.Config{Name: "default", Schedule: task.DefaultSchedule},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.path", d.Log.LogPath)
	v.SetDefault("log.maxSizeMB", d.Log.MaxSizeMB)
	v.SetDefault("log.maxBackups", d.Log.MaxBackups)
	v.SetDefault("log.maxAgeDays", d.Log.MaxAgeDays)
	v.SetDefault("log.callerSkip", d.Log.CallerSkip)
	v.SetDefault("log.fileAppender", d.Log.FileAppender)
	v.SetDefault("log.consoleAppender", d.Log.ConsoleAppender)
	v.SetDefault("log.enabledCallerInfo", d.Log.EnabledCallerInfo)
	v.SetDefault("task.name", d.Task.Name)
	v.SetDefault("task.schedule", d.Task.Schedule)
	v.SetDefault("task.flushTimeoutSec", 0)
}

// Load reads path, applies defaults and environment overrides and validates the result.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
