package reporter

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/linchenxuan/incidental/metric"
	"github.com/linchenxuan/incidental/utils/file"
)

func TestStreamReporter(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		var buf bytes.Buffer
		x := NewStreamReporter(&buf)

		x.Report(newSingle(t, "latency", metric.StatisticMin, 2, metric.Tags{"host": "a"}))
		x.Report(newSummary(t, "latency", 1, 2))
		assert.Equal(t, 2, x.Frames())

		var frames []*structpb.Struct
		require.NoError(t, ReadStream(&buf, func(s *structpb.Struct) error {
			frames = append(frames, s)
			return nil
		}))
		require.Len(t, frames, 2)

		single := frames[0].AsMap()
		assert.Equal(t, "latency", single["name"])
		assert.Equal(t, "min", single["statistic"])
		assert.Equal(t, 2.0, single["value"])
		assert.Equal(t, map[string]any{"host": "a"}, single["tags"])

		stats := frames[1].AsMap()["stats"].(map[string]any)
		assert.Equal(t, 2.0, stats["count"])
		assert.Equal(t, 3.0, stats["sum"])
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "metrics.bin")
		x, err := OpenStreamReporter(path)
		require.NoError(t, err)
		_, err = OpenStreamReporter(path)
		assert.ErrorIs(t, err, file.ErrLocked, "one writer per stream file")

		x.Report(newSingle(t, "a", metric.StatisticNone, 1, nil))
		require.NoError(t, x.Close())
		x.Report(newSingle(t, "b", metric.StatisticNone, 1, nil))

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		var names []string
		require.NoError(t, ReadStream(f, func(s *structpb.Struct) error {
			names = append(names, s.Fields["name"].GetStringValue())
			return nil
		}))
		assert.Equal(t, []string{"a"}, names)
	})

	t.Run("CallbackError", func(t *testing.T) {
		var buf bytes.Buffer
		x := NewStreamReporter(&buf)
		x.Report(newSingle(t, "a", metric.StatisticNone, 1, nil))

		stop := errors.New("stop")
		err := ReadStream(&buf, func(*structpb.Struct) error { return stop })
		assert.ErrorIs(t, err, stop)
	})

	t.Run("Truncated", func(t *testing.T) {
		var buf bytes.Buffer
		x := NewStreamReporter(&buf)
		x.Report(newSingle(t, "a", metric.StatisticNone, 1, nil))
		truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])

		err := ReadStream(truncated, func(*structpb.Struct) error { return nil })
		assert.Error(t, err)
	})
}
