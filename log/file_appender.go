package log

import (
	"errors"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileAppender writes log lines to a size-rotated file.
// Rotation, backup retention and compression are delegated to lumberjack.
type FileAppender struct {
	out *lumberjack.Logger
}

// NewFileAppender creates a FileAppender from cfg.
// The file is opened lazily on the first write.
func NewFileAppender(cfg *LogCfg) (*FileAppender, error) {
	if cfg == nil || cfg.LogPath == "" {
		return nil, errors.New("file appender requires a log path")
	}
	return &FileAppender{
		out: &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		},
	}, nil
}

// Write appends one line, rotating the file first when it would exceed MaxSizeMB.
func (a *FileAppender) Write(buf []byte) (int, error) {
	return a.out.Write(buf)
}

// Refresh is a no-op: lumberjack writes straight through to the file.
func (a *FileAppender) Refresh() error {
	return nil
}

// Rotate closes the current file, renames it with a timestamp suffix and opens a new one.
func (a *FileAppender) Rotate() error {
	return a.out.Rotate()
}

// Close closes the current file.
func (a *FileAppender) Close() error {
	return a.out.Close()
}
