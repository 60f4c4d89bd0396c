package task

import (
	"fmt"

	"github.com/linchenxuan/incidental/log"
)

// cronLogger routes cron's own logging to the module logger.
type cronLogger struct {
	taskID string
}

// Info implements cron.Logger.
func (l cronLogger) Info(msg string, keysAndValues ...any) {
	e := log.Debug()
	if e == nil {
		return
	}
	kvs(e.Str("task_id", l.taskID), keysAndValues).Msg("cron: " + msg)
}

// Error implements cron.Logger.
func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	kvs(log.Error().Str("task_id", l.taskID).Err(err), keysAndValues).Msg("cron: " + msg)
}

func kvs(e *log.LogEvent, keysAndValues []any) *log.LogEvent {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		e = e.Str(fmt.Sprint(keysAndValues[i]), fmt.Sprint(keysAndValues[i+1]))
	}
	return e
}
