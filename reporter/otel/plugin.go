// Package otel registers the OpenTelemetry reporter as a plugin factory.
// Instruments are created on the global MeterProvider.
package otel

import (
	"fmt"

	"github.com/linchenxuan/incidental/plugin"
	"github.com/linchenxuan/incidental/reporter"
)

type factory struct{}

// NewFactory returns the "otel" reporter factory.
func NewFactory() plugin.Factory {
	return &factory{}
}

func (f *factory) Type() plugin.Type {
	return plugin.Reporter
}

func (f *factory) Name() string {
	return "otel"
}

func (f *factory) ConfigType() any {
	return &reporter.OTelReporterConfig{}
}

func (f *factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*reporter.OTelReporterConfig)
	if !ok {
		return nil, fmt.Errorf("otel setup: unexpected config %T", cfgAny)
	}
	r, err := reporter.NewOTelReporter(cfg)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Destroy is a no-op: the MeterProvider belongs to the application.
func (f *factory) Destroy(plugin.Plugin) {}
