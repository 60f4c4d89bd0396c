package collector

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/loop"
	"github.com/linchenxuan/incidental/metric"
)

// Definition is a named measurement. It builds one collector per Attach and fans every
// recorded value out to all of them.
type Definition struct {
	name string
	opts metric.Options
	agg  Aggregation
	reg  *registry
}

// Define validates name and opts and returns a definition attaching collectors of kind agg.
func Define(name string, opts metric.Options, agg Aggregation) (*Definition, error) {
	if err := metric.ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if agg < AggregationQueue || agg > AggregationCount {
		return nil, fmt.Errorf("%w: unknown aggregation %d", ErrInvalidArgument, int(agg))
	}
	if s, ok := agg.Strategy(); ok {
		opts.Statistic = s.Statistic()
	} else {
		opts.Statistic = metric.StatisticNone
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: metric %q: %v", ErrInvalidArgument, name, err)
	}

	return &Definition{
		name: name,
		opts: opts.WithDefaults(),
		agg:  agg,
		reg:  newRegistry(),
	}, nil
}

// Single defines a measurement whose every value is reported as its own metric.
func Single(name string, opts metric.Options) (*Definition, error) {
	return Define(name, opts, AggregationQueue)
}

// Summary defines a measurement reported as min/max/sum/count per interval.
func Summary(name string, opts metric.Options) (*Definition, error) {
	return Define(name, opts, AggregationSummary)
}

// Min defines a measurement reported as the smallest value per interval.
func Min(name string, opts metric.Options) (*Definition, error) {
	return Define(name, opts, AggregationMin)
}

// Max defines a measurement reported as the largest value per interval.
func Max(name string, opts metric.Options) (*Definition, error) {
	return Define(name, opts, AggregationMax)
}

// Sum defines a measurement reported as the sum of the values per interval.
func Sum(name string, opts metric.Options) (*Definition, error) {
	return Define(name, opts, AggregationSum)
}

// Count defines a measurement reported as the number of values per interval.
// Unit defaults to "count".
func Count(name string, opts metric.Options) (*Definition, error) {
	if opts.Unit == "" {
		opts.Unit = "count"
	}
	return Define(name, opts, AggregationCount)
}

// Name returns the measurement name.
func (d *Definition) Name() string { return d.name }

// Aggregation returns the kind of collector Attach builds.
func (d *Definition) Aggregation() Aggregation { return d.agg }

// Options returns a copy of the defaulted options.
func (d *Definition) Options() metric.Options {
	opts := d.opts
	opts.Tags = opts.Tags.Clone()
	return opts
}

// Attach builds and registers a new idle collector.
func (d *Definition) Attach(opts ...AttachOption) Collector {
	cfg := &attachConfig{deferrer: loop.Async}
	for _, opt := range opts {
		opt(cfg)
	}

	var in instance
	switch d.agg {
	case AggregationQueue:
		in = newQueueCollector(d.name, d.opts, cfg)
	case AggregationSummary:
		c, err := newSummaryCollector(d.name, d.opts, cfg)
		if err != nil {
			// opts were validated by Define.
			panic(fmt.Sprintf("collector: attach %q: %v", d.name, err))
		}
		in = c
	default:
		s, _ := d.agg.Strategy()
		in = newReduceCollector(d.name, d.opts, s, cfg)
	}

	h := d.reg.add(in)
	log.Debug().Str("metric", d.name).Str("aggregation", d.agg.String()).
		Uint64("handle", uint64(h)).Msg("collector attached")
	return in
}

// Detach removes a collector from the fan-out. It reports whether h was attached.
func (d *Definition) Detach(h Handle) bool {
	ok := d.reg.remove(h)
	if ok {
		log.Debug().Str("metric", d.name).Uint64("handle", uint64(h)).Msg("collector detached")
	}
	return ok
}

// Collector returns the collector attached under h.
func (d *Definition) Collector(h Handle) (Collector, bool) {
	in, ok := d.reg.get(h)
	if !ok {
		return nil, false
	}
	return in, true
}

// Len returns the number of attached collectors.
func (d *Definition) Len() int {
	return d.reg.len()
}

// Record records v, timestamped now, on every attached collector.
func (d *Definition) Record(v float64) error {
	return d.RecordAt(v, time.Now())
}

// RecordAt records v with the timestamp at on every attached collector, in attach order.
// Collectors that are not accepting records ignore it. Non-finite values are rejected before
// any collector sees them.
func (d *Definition) RecordAt(v float64, at time.Time) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %q: non-finite value %v", ErrInvalidArgument, d.name, v)
	}

	var errs []error
	for _, in := range d.reg.snapshot() {
		if err := d.recordOne(in, v, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Definition) recordOne(in instance, v float64, at time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("metric", d.name).Uint64("handle", uint64(in.Handle())).
				Str("panic", fmt.Sprint(r)).Msg("record panicked")
			err = fmt.Errorf("record %q on collector %d: panic: %v", d.name, in.Handle(), r)
		}
	}()
	return in.record(v, at)
}
