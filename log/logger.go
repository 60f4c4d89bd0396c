package log

// Logger is the structured logging interface used across the module.
type Logger interface {
	Trace() *LogEvent
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	GetAppender() []LogAppender
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var _defaultLogger *StdLogger

func init() {
	cfg := DefaultCfg()
	_defaultLogger, _ = NewLogger(&cfg)
}

// Initialize replaces the default logger with one built from cfg.
// A nil cfg uses DefaultCfg.
func Initialize(cfg *LogCfg) error {
	if cfg == nil {
		d := DefaultCfg()
		cfg = &d
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	SetDefaultLogger(l)
	return nil
}

// SetDefaultLogger replaces the logger behind the package-level functions.
func SetDefaultLogger(logger *StdLogger) {
	_defaultLogger = logger
}

// DefaultLogger returns the logger behind the package-level functions.
func DefaultLogger() *StdLogger {
	return _defaultLogger
}

// AddAppender adds an appender to the default logger.
func AddAppender(appender LogAppender) {
	_defaultLogger.AddAppender(appender)
}

// Refresh flushes the default logger's appenders.
func Refresh() {
	_defaultLogger.Refresh()
}

// Close closes the default logger's appenders.
func Close() {
	_defaultLogger.Close()
}

// Trace starts a trace event on the default logger.
func Trace() *LogEvent {
	return _defaultLogger.Trace()
}

// Debug starts a debug event on the default logger.
func Debug() *LogEvent {
	return _defaultLogger.Debug()
}

// Info starts an info event on the default logger.
func Info() *LogEvent {
	return _defaultLogger.Info()
}

// Warn starts a warn event on the default logger.
func Warn() *LogEvent {
	return _defaultLogger.Warn()
}

// Error starts an error event on the default logger.
func Error() *LogEvent {
	return _defaultLogger.Error()
}

// Fatal starts a fatal event on the default logger. The event panics once written.
func Fatal() *LogEvent {
	return _defaultLogger.Fatal()
}
