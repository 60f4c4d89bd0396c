// Package reporter delivers finalized metrics to monitoring backends.
package reporter

import (
	"sort"

	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/metric"
)

// Reporter receives finalized metrics. Report must not block the caller for long: it is
// called from within collector flushes.
type Reporter interface {
	Report(m *metric.Metric)
}

// Func adapts a function to Reporter.
type Func func(m *metric.Metric)

// Report calls f(m).
func (f Func) Report(m *metric.Metric) { f(m) }

// Multi reports every metric to each reporter in order.
type Multi []Reporter

// Report forwards m to all reporters.
func (r Multi) Report(m *metric.Metric) {
	for _, rep := range r {
		rep.Report(m)
	}
}

// LogReporter writes every metric as a structured log line.
type LogReporter struct {
	level log.Level
}

// NewLogReporter creates a reporter logging at level.
func NewLogReporter(level log.Level) *LogReporter {
	return &LogReporter{level: level}
}

// FactoryName implements plugin.Plugin.
func (x *LogReporter) FactoryName() string {
	return "log"
}

// Report logs m.
func (x *LogReporter) Report(m *metric.Metric) {
	e := x.event()
	if e == nil {
		return
	}
	e = e.Str("metric", m.Name).Str("unit", m.Unit).Int("resolution", m.Resolution).Time("date", m.Date)
	if m.Statistic != metric.StatisticNone {
		e = e.Str("statistic", string(m.Statistic))
	}
	for _, k := range sortedKeys(m.Tags) {
		e = e.Str("tag."+k, m.Tags[k])
	}
	if m.Kind() == metric.KindSummary {
		e.Float64("min", m.Stats.Min).Float64("max", m.Stats.Max).
			Float64("sum", m.Stats.Sum).Int64("count", m.Stats.Count).Msg("metric")
		return
	}
	e.Float64("value", m.Value).Msg("metric")
}

func (x *LogReporter) event() *log.LogEvent {
	switch x.level {
	case log.TraceLevel:
		return log.Trace()
	case log.DebugLevel:
		return log.Debug()
	case log.WarnLevel:
		return log.Warn()
	case log.ErrorLevel:
		return log.Error()
	default:
		return log.Info()
	}
}

func sortedKeys(tags metric.Tags) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
