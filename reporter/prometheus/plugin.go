// Package prometheus registers the Prometheus reporter as a plugin factory.
package prometheus

import (
	"fmt"

	"github.com/linchenxuan/incidental/plugin"
	"github.com/linchenxuan/incidental/reporter"
)

type factory struct{}

// NewFactory returns the "prometheus" reporter factory.
func NewFactory() plugin.Factory {
	return &factory{}
}

// Type returns the plugin type.
func (f *factory) Type() plugin.Type {
	return plugin.Reporter
}

// Name returns the name of the plugin implementation.
func (f *factory) Name() string {
	return "prometheus"
}

// ConfigType returns an empty struct that represents the plugin's configuration.
// This struct will be populated by the manager using mapstructure.
func (f *factory) ConfigType() any {
	return &reporter.PrometheusReporterConfig{}
}

// Setup initializes a plugin instance based on the configuration.
func (f *factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*reporter.PrometheusReporterConfig)
	if !ok {
		return nil, fmt.Errorf("prometheus setup: unexpected config %T", cfgAny)
	}
	prom, err := reporter.NewPrometheusReporter(cfg)
	if err != nil {
		return nil, err
	}
	return prom, nil
}

// Destroy stops the reporter.
func (f *factory) Destroy(p plugin.Plugin) {
	if prom, ok := p.(*reporter.PrometheusReporter); ok {
		prom.Stop()
	}
}
