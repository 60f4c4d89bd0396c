package log

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// StdLogger is the default Logger implementation. Events are pooled, the level check is
// lock-free, and resolved caller locations are cached per program counter.
//
//	logger, _ := NewLogger(&LogCfg{Level: "info", ConsoleAppender: true})
//	logger.Info().Str("definition", "http.latency").Int("attached", 3).Msg("definition ready")
type StdLogger struct {
	mu                sync.RWMutex
	appenders         []LogAppender
	minLevel          atomic.Int32
	callerSkip        int
	enabledCallerInfo bool
	eventPool         sync.Pool
	callerCache       sync.Map
}

// NewLogger builds a logger and its appenders from cfg.
func NewLogger(cfg *LogCfg) (*StdLogger, error) {
	if cfg == nil {
		d := DefaultCfg()
		cfg = &d
	}

	logger := &StdLogger{
		callerSkip:        cfg.CallerSkip,
		enabledCallerInfo: cfg.EnabledCallerInfo,
	}
	logger.minLevel.Store(int32(cfg.MinLevel()))
	logger.eventPool.New = func() any {
		return newEvent(logger)
	}

	if cfg.FileAppender {
		fa, err := NewFileAppender(cfg)
		if err != nil {
			return nil, err
		}
		logger.AddAppender(fa)
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}
	return logger, nil
}

// SetLevel changes the minimum level at runtime.
func (x *StdLogger) SetLevel(level Level) {
	x.minLevel.Store(int32(level))
}

// GetLevel returns the minimum level.
func (x *StdLogger) GetLevel() Level {
	return Level(x.minLevel.Load())
}

// AddAppender adds an output destination.
func (x *StdLogger) AddAppender(appender LogAppender) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns the registered appenders.
func (x *StdLogger) GetAppender() []LogAppender {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]LogAppender(nil), x.appenders...)
}

// Refresh flushes every appender.
func (x *StdLogger) Refresh() {
	for _, appender := range x.GetAppender() {
		_ = appender.Refresh()
	}
}

// Close closes every appender.
func (x *StdLogger) Close() {
	for _, appender := range x.GetAppender() {
		_ = appender.Close()
	}
}

// OnEventEnd writes a finished event to the appenders and returns it to the pool.
// Fatal events panic after being written.
func (x *StdLogger) OnEventEnd(e *LogEvent) {
	x.mu.RLock()
	for _, appender := range x.appenders {
		_, _ = appender.Write(e.buf.Bytes())
	}
	x.mu.RUnlock()

	if e.level == FatalLevel {
		panic(e.buf.String())
	}
	x.eventPool.Put(e)
}

// Trace starts a trace-level event, or returns nil when disabled.
func (x *StdLogger) Trace() *LogEvent { return x.log(TraceLevel) }

// Debug starts a debug-level event, or returns nil when disabled.
func (x *StdLogger) Debug() *LogEvent { return x.log(DebugLevel) }

// Info starts an info-level event, or returns nil when disabled.
func (x *StdLogger) Info() *LogEvent { return x.log(InfoLevel) }

// Warn starts a warn-level event, or returns nil when disabled.
func (x *StdLogger) Warn() *LogEvent { return x.log(WarnLevel) }

// Error starts an error-level event, or returns nil when disabled.
func (x *StdLogger) Error() *LogEvent { return x.log(ErrorLevel) }

// Fatal starts a fatal-level event. Fatal is never filtered.
func (x *StdLogger) Fatal() *LogEvent { return x.log(FatalLevel) }

func (x *StdLogger) log(level Level) *LogEvent {
	if level < x.GetLevel() && level != FatalLevel {
		return nil
	}

	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	e.level = level
	e.Time("time", time.Now())
	e.Str("level", level.String())
	if x.enabledCallerInfo {
		e.Str("caller", x.caller())
	}
	return e
}

// caller returns "dir/file.go:line func" for the code that started the event.
func (x *StdLogger) caller() string {
	pc, file, line, ok := runtime.Caller(3 + x.callerSkip)
	if !ok {
		return "unknown"
	}
	if cached, found := x.callerCache.Load(pc); found {
		return cached.(string)
	}

	function := runtime.FuncForPC(pc).Name()
	if idx := strings.LastIndexByte(function, '.'); idx != -1 {
		function = function[idx+1:]
	}
	if lastSlash := strings.LastIndexByte(file, '/'); lastSlash > 0 {
		if prev := strings.LastIndexByte(file[:lastSlash], '/'); prev >= 0 {
			file = file[prev+1:]
		}
	}

	info := file + ":" + strconv.Itoa(line) + " " + function
	x.callerCache.Store(pc, info)
	return info
}
