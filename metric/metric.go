package metric

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// now is used to timestamp metrics while allowing tests to override time.Now.
var now = time.Now

// Stats is the running summary of a summary metric.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
	Count int64   `json:"count"`
}

// fold adds v to the summary.
func (s *Stats) fold(v float64) {
	if s.Count == 0 {
		s.Min, s.Max = v, v
	} else {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Sum += v
	s.Count++
}

// Metric is a finalized metric record.
//
// A metric is mutable only while it is being built: collectors record into it and then hand it
// to observers, after which nothing in this module changes it again.
type Metric struct {
	Name       string
	Unit       string
	Resolution int
	Statistic  Statistic
	Tags       Tags
	Value      float64
	Stats      *Stats
	Date       time.Time

	kind Kind
}

// NewSingle builds an empty single-value metric.
func NewSingle(name string, opts Options) (*Metric, error) {
	return newMetric(name, opts, KindSingle)
}

// NewSummary builds an empty summary metric.
func NewSummary(name string, opts Options) (*Metric, error) {
	m, err := newMetric(name, opts, KindSummary)
	if err != nil {
		return nil, err
	}
	m.Stats = &Stats{}
	return m, nil
}

func newMetric(name string, opts Options, kind Kind) (*Metric, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("metric %q: %w", name, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("metric %q: %w", name, err)
	}
	opts = opts.WithDefaults()
	return &Metric{
		Name:       name,
		Unit:       opts.Unit,
		Resolution: opts.Resolution,
		Statistic:  opts.Statistic,
		Tags:       opts.Tags,
		kind:       kind,
	}, nil
}

// Kind returns the payload shape.
func (m *Metric) Kind() Kind {
	return m.kind
}

// Record stores v. A single metric keeps v and the date at, or now when at is zero.
// A summary metric folds v into its Stats and leaves Date to Touch.
func (m *Metric) Record(v float64, at time.Time) {
	switch m.kind {
	case KindSummary:
		m.Stats.fold(v)
	default:
		if at.IsZero() {
			at = now()
		}
		m.Value = v
		m.Date = at
	}
}

// Touch sets Date to the current time.
func (m *Metric) Touch() {
	m.Date = now()
}

// Clone returns a deep copy.
func (m *Metric) Clone() *Metric {
	cp := *m
	cp.Tags = m.Tags.Clone()
	if m.Stats != nil {
		s := *m.Stats
		cp.Stats = &s
	}
	return &cp
}

type jsonMetric struct {
	Name       string    `json:"name"`
	Unit       string    `json:"unit"`
	Resolution int       `json:"resolution"`
	Statistic  Statistic `json:"statistic,omitempty"`
	Tags       Tags      `json:"tags,omitempty"`
	Value      *float64  `json:"value,omitempty"`
	Stats      *Stats    `json:"stats,omitempty"`
	Date       time.Time `json:"date"`
}

// MarshalJSON encodes single metrics with "value" and summary metrics with "stats".
func (m *Metric) MarshalJSON() ([]byte, error) {
	out := jsonMetric{
		Name:       m.Name,
		Unit:       m.Unit,
		Resolution: m.Resolution,
		Statistic:  m.Statistic,
		Tags:       m.Tags,
		Date:       m.Date,
	}
	if m.kind == KindSummary {
		out.Stats = m.Stats
	} else {
		v := m.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// ToProto converts the metric to a protobuf Struct with the same fields as its JSON form.
func (m *Metric) ToProto() (*structpb.Struct, error) {
	fields := map[string]any{
		"name":       m.Name,
		"unit":       m.Unit,
		"resolution": m.Resolution,
		"date":       m.Date.UTC().Format(time.RFC3339Nano),
	}
	if m.Statistic != StatisticNone {
		fields["statistic"] = string(m.Statistic)
	}
	if len(m.Tags) > 0 {
		tags := make(map[string]any, len(m.Tags))
		for k, v := range m.Tags {
			tags[k] = v
		}
		fields["tags"] = tags
	}
	if m.kind == KindSummary {
		fields["stats"] = map[string]any{
			"min":   m.Stats.Min,
			"max":   m.Stats.Max,
			"sum":   m.Stats.Sum,
			"count": m.Stats.Count,
		}
	} else {
		fields["value"] = m.Value
	}
	return structpb.NewStruct(fields)
}
