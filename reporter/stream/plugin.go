// Package stream registers the protobuf stream reporter as a plugin factory.
package stream

import (
	"errors"
	"fmt"

	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/plugin"
	"github.com/linchenxuan/incidental/reporter"
)

type factory struct{}

// NewFactory returns the "stream" reporter factory.
func NewFactory() plugin.Factory {
	return &factory{}
}

func (f *factory) Type() plugin.Type {
	return plugin.Reporter
}

func (f *factory) Name() string {
	return "stream"
}

func (f *factory) ConfigType() any {
	return &reporter.StreamReporterConfig{}
}

func (f *factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*reporter.StreamReporterConfig)
	if !ok {
		return nil, fmt.Errorf("stream setup: unexpected config %T", cfgAny)
	}
	if cfg.Path == "" {
		return nil, errors.New("stream setup: path is required")
	}
	s, err := reporter.OpenStreamReporter(cfg.Path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Destroy closes the stream file.
func (f *factory) Destroy(p plugin.Plugin) {
	if s, ok := p.(*reporter.StreamReporter); ok {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("close metric stream")
		}
	}
}
