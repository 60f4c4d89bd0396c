package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level string) (*StdLogger, *bytes.Buffer) {
	t.Helper()
	logger, err := NewLogger(&LogCfg{Level: level, ConsoleAppender: false, FileAppender: false})
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	logger.AddAppender(NewWriterAppender(buf))
	return logger, buf
}

func TestFileLogging(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "incidental.log")

	cfg := &LogCfg{
		Level:             "debug",
		LogPath:           logPath,
		MaxSizeMB:         10,
		FileAppender:      true,
		ConsoleAppender:   false,
		EnabledCallerInfo: true,
	}
	require.NoError(t, Initialize(cfg))

	Info().Str("definition", "test.count").Msg("this is a test message")
	Refresh()
	Close()
	require.NoError(t, Initialize(nil))

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	out := string(content)
	assert.Contains(t, out, "this is a test message")
	assert.Contains(t, out, `"level":"INFO"`)
	assert.Contains(t, out, `"definition":"test.count"`)
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, "warn")

	assert.Nil(t, logger.Debug(), "disabled level returns a nil event")
	logger.Debug().Str("k", "v").Msg("dropped")
	logger.Info().Msg("dropped too")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")

	logger.SetLevel(DebugLevel)
	logger.Debug().Msg("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestEventIsValidJSON(t *testing.T) {
	logger, buf := newBufferLogger(t, "trace")

	logger.Info().
		Str("quoted", `a "b" \c`+"\n").
		Int("int", 3).
		Float64("value", 2.5).
		Float64("inf", posInf()).
		Float64s("values", []float64{1, 2}).
		Bool("ok", true).
		Strs("tags", []string{"x", "y"}).
		Err(errors.New("boom")).
		Any("any", map[string]int{"a": 1}).
		Msg("fields")

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded), line)
	assert.Equal(t, "fields", decoded["msg"])
	assert.Equal(t, `a "b" \c`+"\n", decoded["quoted"])
	assert.Equal(t, 2.5, decoded["value"])
	assert.Equal(t, "+Inf", decoded["inf"])
	assert.Equal(t, "boom", decoded["error"])
	assert.Equal(t, "INFO", decoded["level"])
}

func TestFatalPanics(t *testing.T) {
	logger, buf := newBufferLogger(t, "error")
	assert.Panics(t, func() {
		logger.Fatal().Msg("fatal")
	})
	assert.Contains(t, buf.String(), "FATAL")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"trace":   TraceLevel,
		"DEBUG":   DebugLevel,
		"Info":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"fatal":   FatalLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestCfgValidate(t *testing.T) {
	t.Run("NoAppender", func(t *testing.T) {
		cfg := &LogCfg{}
		assert.Error(t, cfg.Validate())
	})
	t.Run("FileWithoutPath", func(t *testing.T) {
		cfg := &LogCfg{FileAppender: true}
		assert.Error(t, cfg.Validate())
	})
	t.Run("Default", func(t *testing.T) {
		cfg := DefaultCfg()
		assert.NoError(t, cfg.Validate())
	})
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}
