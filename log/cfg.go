package log

import (
	"errors"
	"fmt"
	"path/filepath"
)

// LogCfg configures the logger and its appenders.
// It is normally decoded from the `log` section of the service configuration.
type LogCfg struct {
	// Level is the minimum level name (trace, debug, info, warn, error, fatal).
	Level string `mapstructure:"level"`

	// LogPath is the target file of the file appender.
	LogPath string `mapstructure:"path"`

	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `mapstructure:"maxSizeMB"`

	// MaxBackups is the number of rotated files kept. 0 keeps all of them.
	MaxBackups int `mapstructure:"maxBackups"`

	// MaxAgeDays removes rotated files older than this. 0 disables age based cleanup.
	MaxAgeDays int `mapstructure:"maxAgeDays"`

	// Compress gzips rotated files.
	Compress bool `mapstructure:"compress"`

	// CallerSkip is the number of extra stack frames skipped when resolving the caller.
	CallerSkip int `mapstructure:"callerSkip"`

	// FileAppender enables output to LogPath.
	FileAppender bool `mapstructure:"fileAppender"`

	// ConsoleAppender enables output to stdout.
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	// EnabledCallerInfo adds a caller field to every event.
	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
}

// MinLevel returns the parsed minimum level.
func (cfg *LogCfg) MinLevel() Level {
	return ParseLevel(cfg.Level)
}

// Validate checks the configuration for consistency.
func (cfg *LogCfg) Validate() error {
	if cfg.MaxSizeMB < 0 || cfg.MaxSizeMB > 10240 {
		return fmt.Errorf("max size must be between 0MB and 10240MB, got %dMB", cfg.MaxSizeMB)
	}
	if cfg.MaxBackups < 0 {
		return fmt.Errorf("max backups must be non-negative, got %d", cfg.MaxBackups)
	}
	if cfg.MaxAgeDays < 0 {
		return fmt.Errorf("max age must be non-negative, got %d", cfg.MaxAgeDays)
	}
	if cfg.CallerSkip < 0 {
		return fmt.Errorf("caller skip must be non-negative, got %d", cfg.CallerSkip)
	}
	if cfg.FileAppender {
		if cfg.LogPath == "" {
			return errors.New("log path cannot be empty when file appender is enabled")
		}
		cfg.LogPath = filepath.Clean(cfg.LogPath)
	}
	if !cfg.FileAppender && !cfg.ConsoleAppender {
		return errors.New("at least one appender (file or console) must be enabled")
	}
	return nil
}

var _defaultCfg = &LogCfg{
	Level:             "info",
	LogPath:           "./incidental.log",
	MaxSizeMB:         50,
	MaxBackups:        7,
	MaxAgeDays:        30,
	CallerSkip:        1,
	ConsoleAppender:   true,
	EnabledCallerInfo: true,
}

// DefaultCfg returns a copy of the default configuration: console output at info level.
func DefaultCfg() LogCfg {
	return *_defaultCfg
}
