package log

import (
	"bytes"
	"time"
)

// LogEvent is one structured log line under construction.
// All methods are nil-safe so disabled levels cost a single nil check:
//
//	log.Debug().Str("metric", name).Int("count", n).Msg("flushed")
type LogEvent struct {
	buf    *bytes.Buffer
	logger Logger
	level  Level
}

func newEvent(l Logger) *LogEvent {
	e := &LogEvent{
		logger: l,
		level:  DebugLevel,
		buf:    &bytes.Buffer{},
	}
	e.buf.Grow(512)
	return e
}

// Reset clears the event for reuse from the pool.
func (e *LogEvent) Reset() {
	e.buf.Reset()
	e.level = DebugLevel
	AppendBeginMarker(e.buf)
}

// Level returns the severity of the event.
func (e *LogEvent) Level() Level {
	return e.level
}

// Time appends a timestamp field.
func (e *LogEvent) Time(k string, v time.Time) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendTime(e.buf, v)
	return e
}

// Dur appends a duration field in its String form.
func (e *LogEvent) Dur(k string, v time.Duration) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendString(e.buf, v.String())
	return e
}

// Int appends an integer field.
func (e *LogEvent) Int(k string, v int) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendInt(e.buf, v)
	return e
}

// Int64 appends an int64 field.
func (e *LogEvent) Int64(k string, v int64) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendInt64(e.buf, v)
	return e
}

// Uint64 appends a uint64 field.
func (e *LogEvent) Uint64(k string, v uint64) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendUint64(e.buf, v)
	return e
}

// Float64 appends a float field.
func (e *LogEvent) Float64(k string, v float64) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendFloat64(e.buf, v)
	return e
}

// Float64s appends a float array field.
func (e *LogEvent) Float64s(k string, v []float64) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendFloat64s(e.buf, v)
	return e
}

// Bool appends a bool field.
func (e *LogEvent) Bool(k string, v bool) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendBool(e.buf, v)
	return e
}

// Str appends a string field.
func (e *LogEvent) Str(k string, s string) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendString(e.buf, s)
	return e
}

// Strs appends a string array field.
func (e *LogEvent) Strs(k string, v []string) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendStrings(e.buf, v)
	return e
}

// Err appends an "error" field. A nil error is written as null.
func (e *LogEvent) Err(v error) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, "error")
	if v != nil {
		AppendString(e.buf, v.Error())
	} else {
		AppendNil(e.buf)
	}
	return e
}

// LogObjectMarshaler lets a type write its own fields into an event.
type LogObjectMarshaler interface {
	MarshalLogObj(e *LogEvent)
}

// Obj appends the fields written by v under key k.
func (e *LogEvent) Obj(k string, v LogObjectMarshaler) *LogEvent {
	if e == nil {
		return nil
	}
	if v == nil {
		AppendKey(e.buf, k)
		AppendNil(e.buf)
		return e
	}
	AppendKey(e.buf, k)
	AppendBeginMarker(e.buf)
	v.MarshalLogObj(e)
	AppendEndMarker(e.buf)
	return e
}

// Any appends v marshaled with encoding/json.
func (e *LogEvent) Any(k string, v any) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendInterface(e.buf, v)
	return e
}

// Msg appends the message and writes the event.
func (e *LogEvent) Msg(v string) {
	if e == nil {
		return
	}
	e.Str("msg", v)
	e.End()
}

// End writes the event without a message.
func (e *LogEvent) End() {
	if e == nil {
		return
	}
	AppendEndMarker(e.buf)
	AppendLineBreak(e.buf)
	e.logger.OnEventEnd(e)
}
