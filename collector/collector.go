// Package collector implements per-task metric aggregation.
//
// A Definition is a named measurement shared by every task it is attached to. Each Attach
// creates an independent Collector with its own lifecycle, and Definition.Record fans a value
// out to all of them:
//
//	latency, _ := collector.Summary("http.latency", metric.Options{Unit: "ms"})
//	c := latency.Attach()
//	c.OnMetric(report)
//	c.Start(func(error) {})
//	latency.Record(12.5)
//	c.Ping(func(error) {}) // emits {min,max,sum,count}
//
// Lifecycle calls on one collector must be sequential: the scheduler waits for each Completion
// before issuing the next call. Start and Stop always complete on a later turn of the
// collector's loop.Deferrer. Ping completes immediately for queue and reduce collectors, and on
// a later turn for summary collectors, whose flush timestamp is taken in that turn.
//
// Start twice, Stop twice and Ping after Stop are not validated. A second Start resets again.
// Stop or Ping on a stopped collector flushes nothing.
package collector

import (
	"sync"
	"time"

	"github.com/linchenxuan/incidental/event"
	"github.com/linchenxuan/incidental/loop"
	"github.com/linchenxuan/incidental/metric"
)

// Completion is called once a lifecycle operation has finished.
type Completion func(err error)

// State is the lifecycle state of a collector.
type State int

const (
	// StateIdle is the state before Start. Queue and summary collectors already accept records.
	StateIdle State = iota
	// StateRecording follows Start.
	StateRecording
	// StateStopped follows Stop. Records are ignored.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Collector is one task's aggregation state for a Definition.
type Collector interface {
	// Start begins or restarts an aggregation interval.
	Start(done Completion)
	// Ping flushes the current interval without ending the lifecycle.
	Ping(done Completion)
	// Stop flushes and ends the lifecycle.
	Stop(done Completion)
	// OnMetric subscribes fn to the metrics emitted by flushes, in emission order.
	OnMetric(fn func(*metric.Metric))
	// State returns the lifecycle state.
	State() State
	// Handle returns the collector's handle in its Definition.
	Handle() Handle
}

// instance is the fan-out side of a collector, used by Definition.Record.
type instance interface {
	Collector
	record(v float64, at time.Time) error
	setHandle(h Handle)
}

// AttachOption configures a collector created by Definition.Attach.
type AttachOption func(*attachConfig)

type attachConfig struct {
	deferrer loop.Deferrer
	tags     metric.Tags
}

// WithDeferrer sets the scheduler that runs deferred completions. Defaults to loop.Async.
func WithDeferrer(d loop.Deferrer) AttachOption {
	return func(c *attachConfig) {
		if d != nil {
			c.deferrer = d
		}
	}
}

// WithTags adds tags to the metrics of this attachment only. They override definition tags
// with the same key.
func WithTags(tags metric.Tags) AttachOption {
	return func(c *attachConfig) {
		if c.tags == nil {
			c.tags = metric.Tags{}
		}
		for k, v := range tags {
			c.tags[k] = v
		}
	}
}

// base holds what every collector kind shares: the lock, lifecycle state, deferrer and the
// metric emitter.
type base struct {
	mu       sync.Mutex
	state    State
	handle   Handle
	deferrer loop.Deferrer
	emitter  *event.Emitter
}

func newBase(cfg *attachConfig) base {
	return base{
		state:    StateIdle,
		deferrer: cfg.deferrer,
		emitter:  event.NewEmitter(event.TopicMetric),
	}
}

// OnMetric subscribes fn to emitted metrics.
func (b *base) OnMetric(fn func(*metric.Metric)) {
	_ = b.emitter.Subscribe(event.TopicMetric, func(p any) {
		fn(p.(*metric.Metric))
	})
}

// State returns the lifecycle state.
func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Handle returns the registry handle.
func (b *base) Handle() Handle {
	return b.handle
}

func (b *base) setHandle(h Handle) {
	b.handle = h
}

// emit delivers m to subscribers. Must be called without holding mu.
func (b *base) emit(m *metric.Metric) {
	_ = b.emitter.Emit(event.TopicMetric, m)
}

// later completes done on a later turn.
func (b *base) later(done Completion, err error) {
	b.deferrer.Defer(func() { finish(done, err) })
}

func finish(done Completion, err error) {
	if done != nil {
		done(err)
	}
}

func mergeOptions(opts metric.Options, cfg *attachConfig) metric.Options {
	if len(cfg.tags) == 0 {
		return opts
	}
	merged := make(metric.Tags, len(opts.Tags)+len(cfg.tags))
	for k, v := range opts.Tags {
		merged[k] = v
	}
	for k, v := range cfg.tags {
		merged[k] = v
	}
	opts.Tags = merged
	return opts
}
