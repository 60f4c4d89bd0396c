package log

import "strings"

// Level is the severity of a log event. Higher values are more severe.
type Level int8

const (
	// TraceLevel is for per-record diagnostics such as individual fan-out calls.
	TraceLevel Level = iota + 1
	// DebugLevel is for lifecycle transitions and flush results.
	DebugLevel
	// InfoLevel is for service lifecycle and configuration events.
	InfoLevel
	// WarnLevel is for recoverable problems, e.g. a skipped flush.
	WarnLevel
	// ErrorLevel is for failed operations.
	ErrorLevel
	// FatalLevel panics after the event is written.
	FatalLevel
)

// String returns the upper-case level name.
func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "TRACE"
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a Level.
// Unknown names map to InfoLevel.
func ParseLevel(levelStr string) Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TraceLevel
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	}
	return InfoLevel
}
