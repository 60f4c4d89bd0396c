// Package runtime samples Go runtime statistics into metric definitions.
package runtime

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linchenxuan/incidental/collector"
	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/metric"
)

// Metric names recorded by the sampler.
const (
	NameGoroutines = "runtime.goroutines"
	NameHeapAlloc  = "runtime.heap_alloc"
	NameGCPause    = "runtime.gc_pause"
	NameGCCount    = "runtime.gc_count"
	NameAllocBytes = "runtime.alloc_bytes"
)

// MemStats keeps the last 256 pause times.
const _pauseRing = 256

// Sampler reads runtime.MemStats and records it on its definitions.
type Sampler struct {
	goroutines *collector.Definition
	heapAlloc  *collector.Definition
	gcPause    *collector.Definition
	gcCount    *collector.Definition
	allocBytes *collector.Definition

	mu         sync.Mutex
	numGC      uint32
	totalAlloc uint64
	samples    atomic.Int64
}

// NewSampler defines the runtime metrics with tags. The go_version tag is always added.
// GC and allocation deltas are counted from the moment NewSampler returns.
func NewSampler(tags metric.Tags) (*Sampler, error) {
	tags = tags.Clone()
	if tags == nil {
		tags = metric.Tags{}
	}
	tags["go_version"] = goruntime.Version()

	s := &Sampler{}
	var err error
	if s.goroutines, err = collector.Max(NameGoroutines, metric.Options{Unit: "count", Tags: tags}); err != nil {
		return nil, err
	}
	if s.heapAlloc, err = collector.Summary(NameHeapAlloc, metric.Options{Unit: "bytes", Tags: tags}); err != nil {
		return nil, err
	}
	if s.gcPause, err = collector.Single(NameGCPause, metric.Options{Unit: "ms", Tags: tags}); err != nil {
		return nil, err
	}
	if s.gcCount, err = collector.Count(NameGCCount, metric.Options{Tags: tags}); err != nil {
		return nil, err
	}
	if s.allocBytes, err = collector.Sum(NameAllocBytes, metric.Options{Unit: "bytes", Tags: tags}); err != nil {
		return nil, err
	}

	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)
	s.numGC = ms.NumGC
	s.totalAlloc = ms.TotalAlloc
	return s, nil
}

// Definitions returns the sampler's definitions.
func (s *Sampler) Definitions() []*collector.Definition {
	return []*collector.Definition{s.goroutines, s.heapAlloc, s.gcPause, s.gcCount, s.allocBytes}
}

// Samples returns the number of completed samples.
func (s *Sampler) Samples() int64 {
	return s.samples.Load()
}

// Sample records one reading. Every GC since the previous reading counts once on
// runtime.gc_count and, while still in the pause ring, records its pause on runtime.gc_pause.
func (s *Sampler) Sample() error {
	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	record := func(d *collector.Definition, v float64) {
		if err := d.Record(v); err != nil {
			errs = append(errs, err)
		}
	}
	record(s.goroutines, float64(goruntime.NumGoroutine()))
	record(s.heapAlloc, float64(ms.HeapAlloc))
	record(s.allocBytes, float64(ms.TotalAlloc-s.totalAlloc))

	newGC := ms.NumGC - s.numGC
	for i := uint32(0); i < newGC; i++ {
		record(s.gcCount, 1)
	}
	// Oldest first so the queue emits pauses in the order they happened.
	for i := min(newGC, _pauseRing); i > 0; i-- {
		idx := (ms.NumGC - i) % _pauseRing
		pause := float64(ms.PauseNs[idx]) / float64(time.Millisecond)
		if err := s.gcPause.RecordAt(pause, time.Unix(0, int64(ms.PauseEnd[idx]))); err != nil {
			errs = append(errs, err)
		}
	}

	s.numGC = ms.NumGC
	s.totalAlloc = ms.TotalAlloc
	s.samples.Add(1)
	return errors.Join(errs...)
}

// Run samples immediately and then every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: sample interval %s", collector.ErrInvalidArgument, interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Sample(); err != nil {
			log.Warn().Err(err).Msg("runtime sample")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
