package collector

import (
	"time"

	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/metric"
)

// QueueCollector keeps every recorded value as its own single metric and emits them all, in
// recording order, on each flush.
type QueueCollector struct {
	base
	name  string
	opts  metric.Options
	queue []*metric.Metric
}

func newQueueCollector(name string, opts metric.Options, cfg *attachConfig) *QueueCollector {
	return &QueueCollector{
		base: newBase(cfg),
		name: name,
		opts: mergeOptions(opts, cfg),
	}
}

func (c *QueueCollector) record(v float64, at time.Time) error {
	m, err := metric.NewSingle(c.name, c.opts)
	if err != nil {
		return err
	}
	m.Record(v, at)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStopped {
		return nil
	}
	c.queue = append(c.queue, m)
	return nil
}

// Start drops anything buffered and completes on a later turn.
func (c *QueueCollector) Start(done Completion) {
	c.mu.Lock()
	c.queue = nil
	c.state = StateRecording
	c.mu.Unlock()

	c.later(done, nil)
}

// Ping emits the buffered metrics and completes immediately.
func (c *QueueCollector) Ping(done Completion) {
	c.flush(false)
	finish(done, nil)
}

// Stop emits the buffered metrics, stops the collector and completes on a later turn.
func (c *QueueCollector) Stop(done Completion) {
	c.flush(true)
	c.later(done, nil)
}

func (c *QueueCollector) flush(stop bool) {
	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	if stop {
		c.state = StateStopped
	}
	c.mu.Unlock()

	if len(batch) > 0 {
		log.Trace().Str("metric", c.name).Int("count", len(batch)).Msg("queue flush")
	}
	for _, m := range batch {
		c.emit(m)
	}
}
