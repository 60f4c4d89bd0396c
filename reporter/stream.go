package reporter

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/metric"
	"github.com/linchenxuan/incidental/utils/file"
	"github.com/linchenxuan/incidental/utils/pool"
)

var _framePool = pool.NewPool("stream_frame", func() any { return new(bytes.Buffer) })

// StreamReporterConfig contains configuration for the stream reporter.
type StreamReporterConfig struct {
	Tag  string `mapstructure:"tag"`
	Path string `mapstructure:"path"` // File the frames are appended to
}

// StreamReporter writes every metric as a length-delimited protobuf Struct frame.
type StreamReporter struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	frames int
}

// NewStreamReporter writes frames to w.
func NewStreamReporter(w io.Writer) *StreamReporter {
	x := &StreamReporter{w: w}
	if c, ok := w.(io.Closer); ok {
		x.closer = c
	}
	return x
}

// OpenStreamReporter appends frames to the file at path. The file stays locked until Close so
// a second reporter on the same path fails with file.ErrLocked.
func OpenStreamReporter(path string) (*StreamReporter, error) {
	l := file.NewFileLock(path)
	if err := l.Lock(os.O_WRONLY | os.O_APPEND); err != nil {
		return nil, fmt.Errorf("open metric stream: %w", err)
	}
	x := NewStreamReporter(l.File)
	x.closer = l
	return x, nil
}

// FactoryName implements plugin.Plugin.
func (x *StreamReporter) FactoryName() string {
	return "stream"
}

// Report writes m as one frame.
func (x *StreamReporter) Report(m *metric.Metric) {
	msg, err := m.ToProto()
	if err != nil {
		log.Error().Err(err).Str("metric", m.Name).Msg("stream encode")
		return
	}

	buf := _framePool.Get().(*bytes.Buffer)
	defer _framePool.Put(buf)
	buf.Reset()
	if _, err := protodelim.MarshalTo(buf, msg); err != nil {
		log.Error().Err(err).Str("metric", m.Name).Msg("stream encode")
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.w == nil {
		return
	}
	if _, err := x.w.Write(buf.Bytes()); err != nil {
		log.Error().Err(err).Str("metric", m.Name).Msg("stream write")
		return
	}
	x.frames++
}

// Frames returns the number of frames written.
func (x *StreamReporter) Frames() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.frames
}

// Close closes the underlying writer if it is a Closer. Later reports are dropped.
func (x *StreamReporter) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.w = nil
	if x.closer == nil {
		return nil
	}
	err := x.closer.Close()
	x.closer = nil
	return err
}

// ReadStream decodes frames from r until EOF, calling fn for each.
func ReadStream(r io.Reader, fn func(*structpb.Struct) error) error {
	br := bufio.NewReader(r)
	for {
		msg := &structpb.Struct{}
		if err := protodelim.UnmarshalFrom(br, msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read metric frame: %w", err)
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
