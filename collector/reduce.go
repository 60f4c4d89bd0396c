package collector

import (
	"time"

	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/metric"
)

// ReduceCollector folds the values recorded while it is recording into one scalar with its
// Strategy, and emits a single metric tagged with the strategy's statistic per non-empty
// interval.
type ReduceCollector struct {
	base
	name     string
	opts     metric.Options
	strategy Strategy
	count    int64
	value    float64
}

func newReduceCollector(name string, opts metric.Options, s Strategy, cfg *attachConfig) *ReduceCollector {
	opts = mergeOptions(opts, cfg)
	opts.Statistic = s.Statistic()
	return &ReduceCollector{
		base:     newBase(cfg),
		name:     name,
		opts:     opts,
		strategy: s,
	}
}

// Strategy returns the fold applied by the collector.
func (c *ReduceCollector) Strategy() Strategy {
	return c.strategy
}

// resetLocked clears the interval. The identity is applied lazily by the first record.
func (c *ReduceCollector) resetLocked() {
	c.count = 0
	c.value = 0
}

func (c *ReduceCollector) record(v float64, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return nil
	}

	c.count++
	prev := c.value
	if c.count == 1 {
		prev = c.strategy.Identity()
	}
	c.value = c.strategy.Combine(prev, v, c.count)
	return nil
}

// Start resets the interval, begins recording and completes on a later turn.
func (c *ReduceCollector) Start(done Completion) {
	c.mu.Lock()
	c.resetLocked()
	c.state = StateRecording
	c.mu.Unlock()

	c.later(done, nil)
}

// Ping emits the folded value if anything was recorded and completes immediately.
func (c *ReduceCollector) Ping(done Completion) {
	finish(done, c.flush(false))
}

// Stop stops recording, emits the folded value if anything was recorded and completes on a
// later turn.
func (c *ReduceCollector) Stop(done Completion) {
	c.later(done, c.flush(true))
}

func (c *ReduceCollector) flush(stop bool) error {
	c.mu.Lock()
	if stop {
		c.state = StateStopped
	}
	if c.count == 0 {
		c.mu.Unlock()
		return nil
	}

	m, err := metric.NewSingle(c.name, c.opts)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	m.Record(c.value, time.Time{})
	count := c.count
	c.resetLocked()
	c.mu.Unlock()

	log.Trace().Str("metric", c.name).Str("statistic", c.strategy.String()).
		Int64("count", count).Float64("value", m.Value).Msg("reduce flush")
	c.emit(m)
	return nil
}
