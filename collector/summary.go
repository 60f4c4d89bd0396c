package collector

import (
	"time"

	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/metric"
)

// SummaryCollector folds every recorded value into one min/max/sum/count metric per interval.
//
// The running summary is replaced, never cleared, on each flush, so an emitted metric is a
// frozen snapshot that later records cannot change.
type SummaryCollector struct {
	base
	name    string
	opts    metric.Options
	current *metric.Metric
}

func newSummaryCollector(name string, opts metric.Options, cfg *attachConfig) (*SummaryCollector, error) {
	c := &SummaryCollector{
		base: newBase(cfg),
		name: name,
		opts: mergeOptions(opts, cfg),
	}
	if err := c.resetLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *SummaryCollector) resetLocked() error {
	m, err := metric.NewSummary(c.name, c.opts)
	if err != nil {
		return err
	}
	c.current = m
	return nil
}

func (c *SummaryCollector) record(v float64, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStopped || c.current == nil {
		return nil
	}
	c.current.Record(v, at)
	return nil
}

// Start replaces the running summary and completes on a later turn.
func (c *SummaryCollector) Start(done Completion) {
	c.mu.Lock()
	err := c.resetLocked()
	c.state = StateRecording
	c.mu.Unlock()

	c.later(done, err)
}

// Ping flushes on a later turn, timestamping the summary in that turn, then completes.
func (c *SummaryCollector) Ping(done Completion) {
	c.deferrer.Defer(func() {
		finish(done, c.flush(false))
	})
}

// Stop flushes on a later turn like Ping and stops the collector.
func (c *SummaryCollector) Stop(done Completion) {
	c.deferrer.Defer(func() {
		finish(done, c.flush(true))
	})
}

func (c *SummaryCollector) flush(stop bool) error {
	c.mu.Lock()
	m := c.current
	var err error
	if stop {
		c.current = nil
		c.state = StateStopped
	} else if c.state != StateStopped {
		err = c.resetLocked()
	}
	c.mu.Unlock()

	if m == nil || m.Stats.Count == 0 {
		return err
	}
	m.Touch()
	log.Trace().Str("metric", c.name).Int64("count", m.Stats.Count).Msg("summary flush")
	c.emit(m)
	return err
}
