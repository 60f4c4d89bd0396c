package collector

import (
	"fmt"
	"math"

	"github.com/linchenxuan/incidental/metric"
)

// Strategy is the fold a ReduceCollector applies to recorded values.
type Strategy int

const (
	StrategyMin   Strategy = iota + 1 // smallest value, identity +Inf
	StrategyMax                       // largest value, identity -Inf
	StrategySum                       // running sum, identity 0
	StrategyCount                     // number of values, identity 0
)

// Statistic returns the statistic tag of metrics produced by the strategy.
func (s Strategy) Statistic() metric.Statistic {
	switch s {
	case StrategyMin:
		return metric.StatisticMin
	case StrategyMax:
		return metric.StatisticMax
	case StrategySum:
		return metric.StatisticSum
	case StrategyCount:
		return metric.StatisticCount
	}
	return metric.StatisticNone
}

// Identity returns the value the first recorded value is folded against.
func (s Strategy) Identity() float64 {
	switch s {
	case StrategyMin:
		return math.Inf(1)
	case StrategyMax:
		return math.Inf(-1)
	}
	return 0
}

// Combine folds x into prev. count is the number of values folded so far, including x.
func (s Strategy) Combine(prev, x float64, count int64) float64 {
	switch s {
	case StrategyMin:
		return math.Min(prev, x)
	case StrategyMax:
		return math.Max(prev, x)
	case StrategySum:
		return prev + x
	case StrategyCount:
		return float64(count)
	}
	return prev
}

func (s Strategy) String() string {
	if st := s.Statistic(); st != metric.StatisticNone {
		return string(st)
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Aggregation selects the collector kind a Definition attaches.
type Aggregation int

const (
	AggregationQueue   Aggregation = iota + 1 // every record emitted as its own metric
	AggregationSummary                        // min/max/sum/count rollup
	AggregationMin
	AggregationMax
	AggregationSum
	AggregationCount
)

// Strategy returns the reduce strategy of the aggregation, if it is a reduction.
func (a Aggregation) Strategy() (Strategy, bool) {
	switch a {
	case AggregationMin:
		return StrategyMin, true
	case AggregationMax:
		return StrategyMax, true
	case AggregationSum:
		return StrategySum, true
	case AggregationCount:
		return StrategyCount, true
	}
	return 0, false
}

func (a Aggregation) String() string {
	switch a {
	case AggregationQueue:
		return "single"
	case AggregationSummary:
		return "summary"
	}
	if s, ok := a.Strategy(); ok {
		return s.String()
	}
	return fmt.Sprintf("Aggregation(%d)", int(a))
}

// ParseAggregation maps "single", "summary", "min", "max", "sum" and "count" to an Aggregation.
func ParseAggregation(s string) (Aggregation, error) {
	for a := AggregationQueue; a <= AggregationCount; a++ {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown aggregation %q", ErrInvalidArgument, s)
}
