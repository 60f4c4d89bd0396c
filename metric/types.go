// Package metric defines the finalized metric value produced by a flush, and the factory
// functions collectors use to build it.
package metric

import (
	"fmt"
	"maps"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Statistic tags a scalar metric with the reduction that produced its value.
// Metrics that were not reduced carry StatisticNone.
type Statistic string

const (
	StatisticNone  Statistic = ""      // raw single value or summary
	StatisticMin   Statistic = "min"   // smallest value of the interval
	StatisticMax   Statistic = "max"   // largest value of the interval
	StatisticSum   Statistic = "sum"   // sum of the values of the interval
	StatisticCount Statistic = "count" // number of values of the interval
)

// Kind is the shape of a metric's payload.
type Kind int

const (
	// KindSingle carries one Value and its Date.
	KindSingle Kind = iota + 1
	// KindSummary carries Stats and the Date of the flush that captured them.
	KindSummary
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindSummary:
		return "summary"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// DefaultResolution is the reporting resolution in seconds used when Options leaves it zero.
const DefaultResolution = 60

// Tags are key/value annotations attached to every metric of a definition.
type Tags map[string]string

// Clone returns a copy of t. A nil map stays nil.
func (t Tags) Clone() Tags {
	if t == nil {
		return nil
	}
	return maps.Clone(t)
}

// Options describe the metrics built for one name.
type Options struct {
	// Unit is required, e.g. "ms", "bytes", "count".
	Unit string `mapstructure:"unit"`
	// Resolution is the reporting interval in seconds. Zero means DefaultResolution.
	Resolution int `mapstructure:"resolution"`
	// Tags are copied onto every metric.
	Tags Tags `mapstructure:"tags"`
	// Statistic is set by reduce collectors.
	Statistic Statistic `mapstructure:"statistic"`
}

// Validate checks that the options can build a metric.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Unit, validation.Required),
		validation.Field(&o.Resolution, validation.Min(0)),
		validation.Field(&o.Statistic, validation.In(
			StatisticNone, StatisticMin, StatisticMax, StatisticSum, StatisticCount,
		)),
	)
}

// WithDefaults returns a copy of o with zero fields defaulted and Tags copied.
func (o Options) WithDefaults() Options {
	if o.Resolution == 0 {
		o.Resolution = DefaultResolution
	}
	o.Tags = o.Tags.Clone()
	return o
}

// ValidateName checks a metric name.
func ValidateName(name string) error {
	return validation.Validate(name, validation.Required.Error("name must be a non-empty string"))
}
