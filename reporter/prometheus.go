package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/metric"
)

const (
	_defaultChanSize   = 65536
	_defaultMetricPath = "/metrics"
	_defaultHealthPath = "/health"
	_pushTimeout       = 5 * time.Second
	_unhealthyChanUse  = 0.9
)

// PrometheusReporterConfig contains configuration for the Prometheus reporter.
type PrometheusReporterConfig struct {
	Tag               string            `mapstructure:"tag"`               // Plugin instance tag
	Namespace         string            `mapstructure:"namespace"`         // Metric name prefix
	HTTPListenAddr    string            `mapstructure:"httpListenAddr"`    // Exposition address, empty disables HTTP
	MetricPath        string            `mapstructure:"metricPath"`        // Metrics HTTP path
	UsePush           bool              `mapstructure:"usePush"`           // Enable push mode
	PushAddr          string            `mapstructure:"pushAddr"`          // Push gateway address
	PushIntervalSec   int               `mapstructure:"pushIntervalSec"`   // Push interval in seconds
	PushJobName       string            `mapstructure:"pushJobName"`       // Push job name
	ExtLabels         map[string]string `mapstructure:"extLabels"`         // Labels added to every series
	EnableHealthCheck bool              `mapstructure:"enableHealthCheck"` // Enable health endpoint
	HealthCheckPath   string            `mapstructure:"healthCheckPath"`   // Health endpoint path
	ProcessMetrics    bool              `mapstructure:"processMetrics"`    // Also expose Go and process collectors
	ChanSize          int               `mapstructure:"chanSize"`          // Pending metric buffer
}

// Validate checks the configuration.
func (c *PrometheusReporterConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PushAddr, validation.When(c.UsePush, validation.Required)),
		validation.Field(&c.PushJobName, validation.When(c.UsePush, validation.Required)),
		validation.Field(&c.PushIntervalSec, validation.When(c.UsePush, validation.Required, validation.Min(1))),
		validation.Field(&c.ChanSize, validation.Min(0)),
	)
}

func (c *PrometheusReporterConfig) withDefaults() *PrometheusReporterConfig {
	cp := *c
	if cp.MetricPath == "" {
		cp.MetricPath = _defaultMetricPath
	}
	if cp.HealthCheckPath == "" {
		cp.HealthCheckPath = _defaultHealthPath
	}
	if cp.ChanSize == 0 {
		cp.ChanSize = _defaultChanSize
	}
	return &cp
}

// series is one exposed Prometheus time series.
type series struct {
	fqName  string
	gauge   prometheus.Gauge
	counter prometheus.Counter
}

func (s *series) collector() prometheus.Collector {
	if s.counter != nil {
		return s.counter
	}
	return s.gauge
}

// sample is one value of a metric mapped onto a series.
type sample struct {
	suffix  string
	value   float64
	counter bool
}

// PrometheusReporter exposes finalized metrics as Prometheus series.
//
// Every interval value is a gauge holding the latest flush. Counts are accumulated into
// counters. Report only enqueues. A single goroutine owns series creation and updates.
type PrometheusReporter struct {
	cfg      *PrometheusReporterConfig
	reg      *prometheus.Registry
	promSvr  *http.Server
	addr     net.Addr
	pusher   *push.Pusher
	metricsC chan *metric.Metric

	mu     sync.Mutex
	series map[uint64]*series

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPrometheusReporter creates and starts a Prometheus reporter with its own registry.
func NewPrometheusReporter(cfg *PrometheusReporterConfig) (*PrometheusReporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("prometheus reporter config: %w", err)
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	x := &PrometheusReporter{
		cfg:      cfg,
		reg:      prometheus.NewRegistry(),
		metricsC: make(chan *metric.Metric, cfg.ChanSize),
		series:   make(map[uint64]*series),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.ProcessMetrics {
		x.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if err := x.start(); err != nil {
		x.Stop()
		return nil, err
	}
	return x, nil
}

// FactoryName implements plugin.Plugin.
func (x *PrometheusReporter) FactoryName() string {
	return "prometheus"
}

// Registry returns the registry the series are registered with.
func (x *PrometheusReporter) Registry() *prometheus.Registry {
	return x.reg
}

// Addr returns the HTTP listen address, or nil when HTTP is disabled.
func (x *PrometheusReporter) Addr() net.Addr {
	return x.addr
}

// Report enqueues m. It drops m when the buffer is full or the reporter is stopped.
func (x *PrometheusReporter) Report(m *metric.Metric) {
	if x.ctx.Err() != nil {
		return
	}
	select {
	case x.metricsC <- m:
	default:
		log.Error().Str("metric", m.Name).Msg("prometheus metrics chan full")
	}
}

func (x *PrometheusReporter) start() error {
	x.startAggregate()
	if x.cfg.HTTPListenAddr != "" {
		if err := x.startHTTPSvr(); err != nil {
			return err
		}
	}
	if x.cfg.UsePush {
		x.startPusher()
	}
	return nil
}

// Stop drains pending metrics, pushes a last time in push mode and closes the HTTP server.
func (x *PrometheusReporter) Stop() {
	if x.cancel == nil {
		return
	}
	x.cancel()
	x.cancel = nil
	x.wg.Wait()

	if x.pusher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), _pushTimeout)
		if err := x.pusher.PushContext(ctx); err != nil {
			log.Error().Err(err).Msg("prometheus final push")
		}
		cancel()
	}

	if x.promSvr != nil {
		if err := x.promSvr.Close(); err != nil {
			log.Error().Err(err).Msg("stop prometheus http server")
		}
		x.promSvr = nil
	}
}

func (x *PrometheusReporter) startPusher() {
	x.pusher = push.New(x.cfg.PushAddr, x.cfg.PushJobName).Gatherer(x.reg)
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		log.Info().Str("addr", x.cfg.PushAddr).Msg("prometheus pusher started")
		t := time.NewTicker(time.Second * time.Duration(x.cfg.PushIntervalSec))
		defer t.Stop()
		for {
			select {
			case <-x.ctx.Done():
				log.Info().Msg("prometheus pusher end")
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(x.ctx, _pushTimeout)
				if err := x.pusher.PushContext(ctx); err != nil {
					log.Error().Err(err).Msg("prometheus push")
				}
				cancel()
			}
		}
	}()
}

func (x *PrometheusReporter) startHTTPSvr() error {
	l, err := net.Listen("tcp", x.cfg.HTTPListenAddr)
	if err != nil {
		return fmt.Errorf("prometheus listen %s: %w", x.cfg.HTTPListenAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(x.cfg.MetricPath, promhttp.HandlerFor(x.reg, promhttp.HandlerOpts{Registry: x.reg}))
	if x.cfg.EnableHealthCheck {
		mux.HandleFunc(x.cfg.HealthCheckPath, x.healthCheckHandler)
		log.Info().Str("path", x.cfg.HealthCheckPath).Msg("health check endpoint enabled")
	}

	x.addr = l.Addr()
	x.promSvr = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func(svr *http.Server) {
		if err := svr.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("prometheus http server")
		}
	}(x.promSvr)
	log.Info().Str("addr", x.addr.String()).Str("path", x.cfg.MetricPath).Msg("prometheus http start listen on")
	return nil
}

func (x *PrometheusReporter) startAggregate() {
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		log.Info().Msg("prometheus collector begin")
		for {
			select {
			case m := <-x.metricsC:
				x.merge(m)
			case <-x.ctx.Done():
				for {
					select {
					case m := <-x.metricsC:
						x.merge(m)
					default:
						log.Info().Msg("prometheus collector shutdown")
						return
					}
				}
			}
		}
	}()
}

// healthCheckHandler reports unhealthy while the pending buffer is nearly full.
func (x *PrometheusReporter) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	usage := float64(len(x.metricsC)) / float64(cap(x.metricsC))
	status, code := "healthy", http.StatusOK
	if usage > _unhealthyChanUse {
		status, code = "unhealthy", http.StatusServiceUnavailable
		log.Warn().Float64("chan_usage", usage).Msg("health check failed - high channel usage")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"timestamp":  time.Now().Format(time.RFC3339),
		"chan_usage": usage,
	})
}

// merge applies m to its series, creating them on first sight.
func (x *PrometheusReporter) merge(m *metric.Metric) {
	for _, s := range samples(m) {
		ser, err := x.getSeries(m, s)
		if err != nil {
			log.Error().Err(err).Str("metric", m.Name).Str("suffix", s.suffix).Msg("prometheus register")
			continue
		}
		if ser.counter != nil {
			ser.counter.Add(s.value)
		} else {
			ser.gauge.Set(s.value)
		}
	}
}

func samples(m *metric.Metric) []sample {
	if m.Kind() == metric.KindSummary {
		return []sample{
			{suffix: "min", value: m.Stats.Min},
			{suffix: "max", value: m.Stats.Max},
			{suffix: "sum", value: m.Stats.Sum},
			{suffix: "count", value: float64(m.Stats.Count), counter: true},
		}
	}
	return []sample{{
		suffix:  string(m.Statistic),
		value:   m.Value,
		counter: m.Statistic == metric.StatisticCount,
	}}
}

func (x *PrometheusReporter) getSeries(m *metric.Metric, s sample) (*series, error) {
	labels := x.constLabels(m)
	key := seriesKey(m.Name, s.suffix, labels)

	x.mu.Lock()
	defer x.mu.Unlock()
	if ser, ok := x.series[key]; ok {
		return ser, nil
	}

	name := sanitizeName(m.Name)
	if s.suffix != "" {
		name += "_" + s.suffix
	}
	if s.counter {
		name += "_total"
	}
	ser := &series{fqName: prometheus.BuildFQName(sanitizeName(x.cfg.Namespace), "", name)}
	help := fmt.Sprintf("%s (%s)", m.Name, m.Unit)
	if s.counter {
		ser.counter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: ser.fqName, Help: help, ConstLabels: labels,
		})
	} else {
		ser.gauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: ser.fqName, Help: help, ConstLabels: labels,
		})
	}
	if err := x.reg.Register(ser.collector()); err != nil {
		return nil, err
	}
	x.series[key] = ser
	return ser, nil
}

func (x *PrometheusReporter) constLabels(m *metric.Metric) prometheus.Labels {
	labels := make(prometheus.Labels, len(m.Tags)+len(x.cfg.ExtLabels))
	for k, v := range m.Tags {
		labels[sanitizeName(k)] = v
	}
	for k, v := range x.cfg.ExtLabels {
		labels[sanitizeName(k)] = v
	}
	return labels
}

// seriesKey hashes the name, suffix and sorted labels of a series.
func seriesKey(name, suffix string, labels prometheus.Labels) uint64 {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := xxhash.New()
	_, _ = d.WriteString(name)
	_, _ = d.WriteString("*")
	_, _ = d.WriteString(suffix)
	_, _ = d.WriteString("*")
	for _, k := range keys {
		_, _ = d.WriteString(k)
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(labels[k])
		_, _ = d.WriteString(",")
	}
	return d.Sum64()
}

// sanitizeName maps every character outside [a-zA-Z0-9_] to '_'.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
