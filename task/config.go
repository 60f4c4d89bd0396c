package task

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"

	"github.com/linchenxuan/incidental/metric"
)

// DefaultSchedule flushes once per default metric resolution.
const DefaultSchedule = "@every 1m"

// Config configures a Task.
type Config struct {
	// Name identifies the task in logs.
	Name string `mapstructure:"name"`
	// Schedule is a cron spec or descriptor ("@every 30s") for periodic pings.
	Schedule string `mapstructure:"schedule"`
	// Tags are added to every metric the task's collectors emit.
	Tags metric.Tags `mapstructure:"tags"`
	// FlushTimeoutSec bounds a scheduled ping. Zero waits indefinitely.
	FlushTimeoutSec int `mapstructure:"flushTimeoutSec"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Schedule, validation.By(validSchedule)),
		validation.Field(&c.FlushTimeoutSec, validation.Min(0)),
	)
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.Name == "" {
		c.Name = "default"
	}
	c.Tags = c.Tags.Clone()
	return c
}

func validSchedule(v any) error {
	spec, _ := v.(string)
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return errors.New("invalid cron schedule: " + err.Error())
	}
	return nil
}
