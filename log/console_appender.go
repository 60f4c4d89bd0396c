package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleAppender writes log lines to stdout, or to any writer given to NewWriterAppender.
type ConsoleAppender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleAppender returns an appender writing to stdout.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{w: os.Stdout}
}

// NewWriterAppender returns an appender writing to w. Tests use it to capture output.
func NewWriterAppender(w io.Writer) *ConsoleAppender {
	return &ConsoleAppender{w: w}
}

// Write writes one line. Concurrent lines are never interleaved.
func (ca *ConsoleAppender) Write(buf []byte) (int, error) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	return ca.w.Write(buf)
}

// Refresh is a no-op: writes are unbuffered.
func (ca *ConsoleAppender) Refresh() error {
	return nil
}

// Close is a no-op: stdout is not owned by the appender.
func (ca *ConsoleAppender) Close() error {
	return nil
}
