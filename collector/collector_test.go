package collector

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linchenxuan/incidental/loop"
	"github.com/linchenxuan/incidental/metric"
)

// sink collects the metrics emitted by a collector.
type sink struct {
	mu      sync.Mutex
	metrics []*metric.Metric
}

func (s *sink) add(m *metric.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

func (s *sink) take() []*metric.Metric {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.metrics
	s.metrics = nil
	return out
}

// completion records whether and how a lifecycle call completed.
type completion struct {
	called bool
	err    error
}

func (c *completion) done(err error) {
	c.called = true
	c.err = err
}

type harness struct {
	t    *testing.T
	loop *loop.Loop
	c    Collector
	out  *sink
}

func attach(t *testing.T, d *Definition, opts ...AttachOption) *harness {
	t.Helper()
	h := &harness{t: t, loop: loop.New(), out: &sink{}}
	h.c = d.Attach(append([]AttachOption{WithDeferrer(h.loop)}, opts...)...)
	h.c.OnMetric(h.out.add)
	return h
}

func (h *harness) start() {
	h.t.Helper()
	var c completion
	h.c.Start(c.done)
	h.loop.Drain()
	require.True(h.t, c.called)
	require.NoError(h.t, c.err)
}

func (h *harness) ping() []*metric.Metric {
	h.t.Helper()
	var c completion
	h.c.Ping(c.done)
	h.loop.Drain()
	require.True(h.t, c.called)
	require.NoError(h.t, c.err)
	return h.out.take()
}

func (h *harness) stop() []*metric.Metric {
	h.t.Helper()
	var c completion
	h.c.Stop(c.done)
	h.loop.Drain()
	require.True(h.t, c.called)
	require.NoError(h.t, c.err)
	return h.out.take()
}

func record(t *testing.T, d *Definition, values ...float64) {
	t.Helper()
	for _, v := range values {
		require.NoError(t, d.Record(v))
	}
}

func TestDefine(t *testing.T) {
	t.Run("EmptyName", func(t *testing.T) {
		_, err := Summary("", metric.Options{Unit: "ms"})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("EmptyUnit", func(t *testing.T) {
		_, err := Min("latency", metric.Options{})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("UnknownAggregation", func(t *testing.T) {
		_, err := Define("latency", metric.Options{Unit: "ms"}, Aggregation(42))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Defaults", func(t *testing.T) {
		d, err := Single("latency", metric.Options{Unit: "ms", Tags: metric.Tags{"route": "/"}})
		require.NoError(t, err)
		opts := d.Options()
		assert.Equal(t, "latency", d.Name())
		assert.Equal(t, AggregationQueue, d.Aggregation())
		assert.Equal(t, metric.DefaultResolution, opts.Resolution)
		assert.Equal(t, metric.Tags{"route": "/"}, opts.Tags)
		assert.Zero(t, d.Len())
	})

	t.Run("CountDefaultsUnit", func(t *testing.T) {
		d, err := Count("requests", metric.Options{})
		require.NoError(t, err)
		assert.Equal(t, "count", d.Options().Unit)
		assert.Equal(t, metric.StatisticCount, d.Options().Statistic)
	})

	t.Run("OptionsAreCopied", func(t *testing.T) {
		tags := metric.Tags{"a": "1"}
		d, err := Sum("bytes", metric.Options{Unit: "bytes", Tags: tags})
		require.NoError(t, err)
		tags["a"] = "2"
		d.Options().Tags["a"] = "3"
		assert.Equal(t, "1", d.Options().Tags["a"])
	})
}

func TestParseAggregation(t *testing.T) {
	for _, a := range []Aggregation{
		AggregationQueue, AggregationSummary, AggregationMin, AggregationMax, AggregationSum, AggregationCount,
	} {
		got, err := ParseAggregation(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}

	_, err := ParseAggregation("p99")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestStrategy(t *testing.T) {
	tests := []struct {
		strategy  Strategy
		statistic metric.Statistic
		identity  float64
		values    []float64
		want      float64
	}{
		{StrategyMin, metric.StatisticMin, math.Inf(1), []float64{3, 4, 2}, 2},
		{StrategyMax, metric.StatisticMax, math.Inf(-1), []float64{3, 4, 2}, 4},
		{StrategySum, metric.StatisticSum, 0, []float64{3, 4, 2}, 9},
		{StrategyCount, metric.StatisticCount, 0, []float64{3, 4, 2}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			assert.Equal(t, tt.statistic, tt.strategy.Statistic())
			assert.Equal(t, tt.identity, tt.strategy.Identity())

			acc := tt.strategy.Identity()
			for i, v := range tt.values {
				acc = tt.strategy.Combine(acc, v, int64(i+1))
			}
			assert.Equal(t, tt.want, acc)
		})
	}
}

func TestReduce(t *testing.T) {
	t.Run("Min", func(t *testing.T) {
		d, err := Min("latency", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		record(t, d, 3, 4, 2)
		got := h.ping()
		require.Len(t, got, 1)
		assert.Equal(t, 2.0, got[0].Value)
		assert.Equal(t, metric.StatisticMin, got[0].Statistic)
		assert.Equal(t, metric.KindSingle, got[0].Kind())
		assert.False(t, got[0].Date.IsZero())

		record(t, d, 5, 5)
		got = h.ping()
		require.Len(t, got, 1)
		assert.Equal(t, 5.0, got[0].Value, "identity is reapplied after a flush")
	})

	t.Run("Max", func(t *testing.T) {
		d, err := Max("latency", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		record(t, d, -3, -4, -2)
		got := h.ping()
		require.Len(t, got, 1)
		assert.Equal(t, -2.0, got[0].Value)
	})

	t.Run("Sum", func(t *testing.T) {
		d, err := Sum("bytes", metric.Options{Unit: "bytes"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		record(t, d, 3, 4, 2)
		got := h.ping()
		require.Len(t, got, 1)
		assert.Equal(t, 9.0, got[0].Value)
		assert.Equal(t, metric.StatisticSum, got[0].Statistic)
	})

	t.Run("Count", func(t *testing.T) {
		d, err := Count("requests", metric.Options{})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		record(t, d, 3, 4, 2)
		got := h.ping()
		require.Len(t, got, 1)
		assert.Equal(t, 3.0, got[0].Value)
		assert.Equal(t, "count", got[0].Unit)
	})

	t.Run("IgnoresRecordsBeforeStart", func(t *testing.T) {
		d, err := Sum("bytes", metric.Options{Unit: "bytes"})
		require.NoError(t, err)
		h := attach(t, d)

		record(t, d, 10)
		assert.Equal(t, StateIdle, h.c.State())
		h.start()
		assert.Empty(t, h.ping())
	})

	t.Run("PingCompletesImmediately", func(t *testing.T) {
		d, err := Sum("bytes", metric.Options{Unit: "bytes"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		var c completion
		h.c.Ping(c.done)
		assert.True(t, c.called)
		assert.Zero(t, h.loop.Len())
	})

	t.Run("RecordAfterStopIsInert", func(t *testing.T) {
		d, err := Sum("bytes", metric.Options{Unit: "bytes"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		record(t, d, 1, 2)
		got := h.stop()
		require.Len(t, got, 1)
		assert.Equal(t, 3.0, got[0].Value)
		assert.Equal(t, StateStopped, h.c.State())

		record(t, d, 100)
		assert.Equal(t, 3.0, got[0].Value)
		assert.Empty(t, h.ping())
		assert.Empty(t, h.stop())
	})
}

func TestSummary(t *testing.T) {
	t.Run("Stats", func(t *testing.T) {
		d, err := Summary("latency", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		record(t, d, 1, 2)
		got := h.ping()
		require.Len(t, got, 1)
		assert.Equal(t, metric.KindSummary, got[0].Kind())
		assert.Equal(t, metric.Stats{Min: 1, Max: 2, Sum: 3, Count: 2}, *got[0].Stats)
		assert.Equal(t, metric.StatisticNone, got[0].Statistic)
		assert.False(t, got[0].Date.IsZero())

		assert.Empty(t, h.ping())
	})

	t.Run("PingFlushesOnLaterTurn", func(t *testing.T) {
		d, err := Summary("latency", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		record(t, d, 4)
		var c completion
		h.c.Ping(c.done)
		assert.False(t, c.called)
		assert.Empty(t, h.out.take())

		h.loop.Tick()
		assert.True(t, c.called)
		got := h.out.take()
		require.Len(t, got, 1)
		assert.Equal(t, int64(1), got[0].Stats.Count)
	})

	t.Run("EmittedSnapshotIsFrozen", func(t *testing.T) {
		d, err := Summary("latency", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		record(t, d, 1)
		got := h.ping()
		require.Len(t, got, 1)

		record(t, d, 50)
		assert.Equal(t, metric.Stats{Min: 1, Max: 1, Sum: 1, Count: 1}, *got[0].Stats)
	})

	t.Run("StartResets", func(t *testing.T) {
		d, err := Summary("latency", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)

		record(t, d, 9)
		h.start()
		assert.Empty(t, h.ping())
	})

	t.Run("StopIgnoresLaterRecords", func(t *testing.T) {
		d, err := Summary("latency", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		record(t, d, 3)
		got := h.stop()
		require.Len(t, got, 1)
		assert.Equal(t, StateStopped, h.c.State())

		record(t, d, 7)
		assert.Empty(t, h.ping())
	})
}

func TestQueue(t *testing.T) {
	t.Run("EmitsInOrder", func(t *testing.T) {
		d, err := Single("latency", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		record(t, d, 1, 2)
		got := h.ping()
		require.Len(t, got, 2)
		assert.Equal(t, 1.0, got[0].Value)
		assert.Equal(t, 2.0, got[1].Value)
		assert.Equal(t, metric.KindSingle, got[0].Kind())

		assert.Empty(t, h.ping())
	})

	t.Run("KeepsRecordDate", func(t *testing.T) {
		d, err := Single("latency", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, d.RecordAt(5, at))
		got := h.ping()
		require.Len(t, got, 1)
		assert.Equal(t, at, got[0].Date)
	})

	t.Run("PingCompletesImmediately", func(t *testing.T) {
		d, err := Single("latency", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)

		record(t, d, 1)
		var c completion
		h.c.Ping(c.done)
		assert.True(t, c.called)
		assert.Len(t, h.out.take(), 1, "records before start are kept")
	})

	t.Run("StartCompletesOnLaterTurn", func(t *testing.T) {
		d, err := Single("latency", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)

		var c completion
		h.c.Start(c.done)
		assert.False(t, c.called)
		assert.Equal(t, StateRecording, h.c.State())
		h.loop.Tick()
		assert.True(t, c.called)
	})
}

func TestStopFlushesPending(t *testing.T) {
	tests := []struct {
		name   string
		define func() (*Definition, error)
		want   int
	}{
		{"Queue", func() (*Definition, error) { return Single("m", metric.Options{Unit: "ms"}) }, 2},
		{"Summary", func() (*Definition, error) { return Summary("m", metric.Options{Unit: "ms"}) }, 1},
		{"Min", func() (*Definition, error) { return Min("m", metric.Options{Unit: "ms"}) }, 1},
		{"Count", func() (*Definition, error) { return Count("m", metric.Options{}) }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.define()
			require.NoError(t, err)
			h := attach(t, d)
			h.start()

			record(t, d, 1, 2)
			assert.Len(t, h.stop(), tt.want)
			assert.Empty(t, h.stop())
		})
	}
}

func TestStopCompletesOnLaterTurn(t *testing.T) {
	for _, agg := range []Aggregation{AggregationQueue, AggregationSummary, AggregationMax} {
		t.Run(agg.String(), func(t *testing.T) {
			d, err := Define("m", metric.Options{Unit: "ms"}, agg)
			require.NoError(t, err)
			h := attach(t, d)
			h.start()

			var c completion
			h.c.Stop(c.done)
			assert.False(t, c.called)
			h.loop.Drain()
			assert.True(t, c.called)
			assert.NoError(t, c.err)
		})
	}
}

func TestEmptyFlushIsIdempotent(t *testing.T) {
	for agg := AggregationQueue; agg <= AggregationCount; agg++ {
		t.Run(agg.String(), func(t *testing.T) {
			d, err := Define("m", metric.Options{Unit: "ms"}, agg)
			require.NoError(t, err)
			h := attach(t, d)
			h.start()

			assert.Empty(t, h.ping())
			assert.Empty(t, h.ping())
		})
	}
}

func TestAttachmentsAreIndependent(t *testing.T) {
	for agg := AggregationQueue; agg <= AggregationCount; agg++ {
		t.Run(agg.String(), func(t *testing.T) {
			d, err := Define("m", metric.Options{Unit: "ms"}, agg)
			require.NoError(t, err)
			a := attach(t, d)
			b := attach(t, d)
			assert.NotEqual(t, a.c.Handle(), b.c.Handle())
			assert.Equal(t, 2, d.Len())
			a.start()
			b.start()

			record(t, d, 3, 4)
			first := a.ping()
			assert.NotEmpty(t, first)
			assert.Empty(t, a.ping())

			second := b.ping()
			assert.Len(t, second, len(first))
		})
	}
}

func TestAttachWithTags(t *testing.T) {
	d, err := Sum("bytes", metric.Options{Unit: "bytes", Tags: metric.Tags{"host": "a", "dc": "x"}})
	require.NoError(t, err)
	h := attach(t, d, WithTags(metric.Tags{"task": "t1", "dc": "y"}))
	h.start()

	record(t, d, 1)
	got := h.ping()
	require.Len(t, got, 1)
	assert.Equal(t, metric.Tags{"host": "a", "dc": "y", "task": "t1"}, got[0].Tags)
	assert.Equal(t, metric.Tags{"host": "a", "dc": "x"}, d.Options().Tags)
}

func TestDetach(t *testing.T) {
	d, err := Sum("bytes", metric.Options{Unit: "bytes"})
	require.NoError(t, err)
	hs := make([]*harness, 5)
	for i := range hs {
		hs[i] = attach(t, d)
		hs[i].start()
	}

	for _, h := range hs[:3] {
		assert.True(t, d.Detach(h.c.Handle()))
	}
	assert.False(t, d.Detach(hs[0].c.Handle()))
	assert.Equal(t, 2, d.Len())

	_, ok := d.Collector(hs[0].c.Handle())
	assert.False(t, ok)
	c, ok := d.Collector(hs[4].c.Handle())
	require.True(t, ok)
	assert.Same(t, hs[4].c, c)

	record(t, d, 2)
	assert.Empty(t, hs[0].ping())
	assert.Len(t, hs[3].ping(), 1)
	assert.Len(t, hs[4].ping(), 1)

	next := attach(t, d)
	assert.Greater(t, next.c.Handle(), hs[4].c.Handle(), "handles are not reused")
}

func TestRecord(t *testing.T) {
	t.Run("NoAttachments", func(t *testing.T) {
		d, err := Summary("m", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		assert.NoError(t, d.Record(1))
	})

	t.Run("NonFinite", func(t *testing.T) {
		d, err := Summary("m", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			assert.ErrorIs(t, d.Record(v), ErrInvalidArgument)
		}
		assert.Empty(t, h.ping())
	})

	t.Run("PanickingSubscriberDoesNotAbortFlush", func(t *testing.T) {
		d, err := Single("m", metric.Options{Unit: "ms"})
		require.NoError(t, err)
		h := attach(t, d)
		h.c.OnMetric(func(*metric.Metric) { panic("boom") })
		h.start()

		record(t, d, 1, 2)
		assert.Len(t, h.ping(), 2)
	})

	t.Run("Concurrent", func(t *testing.T) {
		d, err := Count("m", metric.Options{})
		require.NoError(t, err)
		h := attach(t, d)
		h.start()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					assert.NoError(t, d.Record(float64(j)))
				}
			}()
		}
		wg.Wait()

		got := h.ping()
		require.Len(t, got, 1)
		assert.Equal(t, 800.0, got[0].Value)
	})
}

func TestCompletionError(t *testing.T) {
	var c completion
	finish(c.done, errors.New("boom"))
	assert.EqualError(t, c.err, "boom")
	assert.NotPanics(t, func() { finish(nil, nil) })
}
