package reporter

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/metric"
)

const _defaultInstrumentationName = "github.com/linchenxuan/incidental/reporter"

// OTelReporterConfig contains configuration for the OpenTelemetry reporter.
type OTelReporterConfig struct {
	Tag                 string `mapstructure:"tag"`
	InstrumentationName string `mapstructure:"instrumentationName"`
}

// OTelOption configures an OTelReporter.
type OTelOption func(*otelOptions)

type otelOptions struct {
	meterProvider otelmetric.MeterProvider
}

// WithMeterProvider sets the MeterProvider. Defaults to the global provider.
func WithMeterProvider(provider otelmetric.MeterProvider) OTelOption {
	return func(o *otelOptions) {
		if provider != nil {
			o.meterProvider = provider
		}
	}
}

// OTelReporter records finalized metrics on OpenTelemetry instruments.
//
// Interval values are recorded on Float64Gauge instruments named after the metric, suffixed
// with the statistic or summary field. Counts are added to Int64Counter instruments.
type OTelReporter struct {
	meter otelmetric.Meter

	mu       sync.Mutex
	gauges   map[string]otelmetric.Float64Gauge
	counters map[string]otelmetric.Int64Counter
}

// NewOTelReporter creates a reporter on a meter of the configured provider.
func NewOTelReporter(cfg *OTelReporterConfig, opts ...OTelOption) (*OTelReporter, error) {
	o := &otelOptions{meterProvider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(o)
	}
	name := cfg.InstrumentationName
	if name == "" {
		name = _defaultInstrumentationName
	}
	return &OTelReporter{
		meter:    o.meterProvider.Meter(name),
		gauges:   make(map[string]otelmetric.Float64Gauge),
		counters: make(map[string]otelmetric.Int64Counter),
	}, nil
}

// FactoryName implements plugin.Plugin.
func (x *OTelReporter) FactoryName() string {
	return "otel"
}

// Report records m.
func (x *OTelReporter) Report(m *metric.Metric) {
	ctx := context.Background()
	attrs := otelmetric.WithAttributes(attributes(m.Tags)...)

	var err error
	if m.Kind() == metric.KindSummary {
		err = x.recordSummary(ctx, m, attrs)
	} else if m.Statistic == metric.StatisticCount {
		err = x.add(ctx, m.Name+".count", m.Unit, int64(m.Value), attrs)
	} else {
		name := m.Name
		if m.Statistic != metric.StatisticNone {
			name += "." + string(m.Statistic)
		}
		err = x.set(ctx, name, m.Unit, m.Value, attrs)
	}
	if err != nil {
		log.Error().Err(err).Str("metric", m.Name).Msg("otel report")
	}
}

func (x *OTelReporter) recordSummary(ctx context.Context, m *metric.Metric, attrs otelmetric.MeasurementOption) error {
	if err := x.set(ctx, m.Name+".min", m.Unit, m.Stats.Min, attrs); err != nil {
		return err
	}
	if err := x.set(ctx, m.Name+".max", m.Unit, m.Stats.Max, attrs); err != nil {
		return err
	}
	if err := x.set(ctx, m.Name+".sum", m.Unit, m.Stats.Sum, attrs); err != nil {
		return err
	}
	return x.add(ctx, m.Name+".count", "1", m.Stats.Count, attrs)
}

func (x *OTelReporter) set(ctx context.Context, name, unit string, v float64, attrs otelmetric.MeasurementOption) error {
	x.mu.Lock()
	g, ok := x.gauges[name]
	if !ok {
		var err error
		g, err = x.meter.Float64Gauge(name, otelmetric.WithUnit(unit))
		if err != nil {
			x.mu.Unlock()
			return fmt.Errorf("create gauge %s: %w", name, err)
		}
		x.gauges[name] = g
	}
	x.mu.Unlock()

	g.Record(ctx, v, attrs)
	return nil
}

func (x *OTelReporter) add(ctx context.Context, name, unit string, v int64, attrs otelmetric.MeasurementOption) error {
	x.mu.Lock()
	c, ok := x.counters[name]
	if !ok {
		var err error
		c, err = x.meter.Int64Counter(name, otelmetric.WithUnit(unit))
		if err != nil {
			x.mu.Unlock()
			return fmt.Errorf("create counter %s: %w", name, err)
		}
		x.counters[name] = c
	}
	x.mu.Unlock()

	c.Add(ctx, v, attrs)
	return nil
}

func attributes(tags metric.Tags) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		attrs = append(attrs, attribute.String(k, tags[k]))
	}
	return attrs
}
