package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleLoggerLevels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		level   string
		logFunc func(l Logger)
		wantOut bool
	}{
		{"debug suppressed at info", "info", func(l Logger) { l.Debug("hidden") }, false},
		{"info at info", "info", func(l Logger) { l.Info("shown") }, true},
		{"warn at error", "error", func(l Logger) { l.Warn("hidden") }, false},
		{"trace at trace", "trace", func(l Logger) { l.Trace("shown") }, true},
		{"explicit log level", "warn", func(l Logger) { l.Log(LogLevelError, "shown") }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			l := NewWriterLogger(&buf, tc.level).Module("test")
			tc.logFunc(l)
			assert.Equal(t, tc.wantOut, buf.Len() > 0, "output: %q", buf.String())
		})
	}
}

func TestTextHandlerFormatting(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "debug").Module("hostapi").Module("stream")
	l.With(String("direction", "output")).Info("latency increased",
		Duration("latency", 30*time.Millisecond),
		Int("underflows", 6),
		String("device", "Built-in Audio"))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "INFO [hostapi.stream] latency increased"), out)
	assert.Contains(t, out, "direction=output")
	assert.Contains(t, out, "latency=30ms")
	assert.Contains(t, out, "underflows=6")
	assert.Contains(t, out, `device="Built-in Audio"`)
}

func TestWithFieldsDoNotLeakToParent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	parent := NewWriterLogger(&buf, "info").Module("cli")
	child := parent.With(String("stream", "playback"))
	child.Info("started")
	assert.Contains(t, buf.String(), "stream=playback")

	buf.Reset()
	parent.Info("plain")
	assert.NotContains(t, buf.String(), "stream=")
}

func TestModuleLevelInheritance(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cl := NewWriterLogger(&buf, "info")
	cl.SetModuleLevel("audioserver", LogLevelError)

	cl.Module("audioserver.pulse").Warn("suppressed")
	assert.Empty(t, buf.String())

	cl.Module("hostapi").Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestFileOutputIsJSON(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "logs", "out.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: logPath, Level: "info"},
	})
	require.NoError(t, err)

	cl.Module("conf").Info("loaded", String("file", "config.yaml"))
	require.NoError(t, cl.Close())

	content, err := os.ReadFile(logPath) //nolint:gosec // test path
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(content), &record))
	assert.Equal(t, "loaded", record["msg"])
	assert.Equal(t, "conf", record["module"])
	assert.Equal(t, "config.yaml", record["file"])
}

func TestBufferedFileWriterFlushAndClose(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "test.log")
	writer, err := NewBufferedFileWriter(logPath, WithFlushInterval(0))
	require.NoError(t, err)

	testData := "Hello, buffered world!\n"
	n, err := writer.Write([]byte(testData))
	require.NoError(t, err)
	assert.Equal(t, len(testData), n)
	assert.Positive(t, writer.Buffered())

	require.NoError(t, writer.Flush())
	assert.Equal(t, 0, writer.Buffered())

	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())

	_, err = writer.Write([]byte("late"))
	require.Error(t, err)

	content, err := os.ReadFile(logPath) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Equal(t, testData, string(content))
}
