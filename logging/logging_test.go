package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn := Setup(Options{Level: slog.LevelInfo, Output: &buf})
	defer closeFn()

	logger.Debug("hidden")
	logger.Info("table written", slog.Int("rows", 3))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=\"table written\"")
	assert.Contains(t, out, "rows=3")
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn := Setup(Options{Level: slog.LevelDebug, Output: &buf, JSON: true})
	defer closeFn()

	logger.Debug("op applied", slog.String("op", "filter"))
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"op":"filter"`)
}

func TestMultiHandlerFansOut(t *testing.T) {
	var debug, warn bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With(slog.String("component", "reader"))

	logger.Info("file read")
	logger.Warn("skipped file")

	assert.Contains(t, debug.String(), "file read")
	assert.Contains(t, debug.String(), "skipped file")
	assert.NotContains(t, warn.String(), "file read")
	assert.Contains(t, warn.String(), "component=reader")

	assert.False(t, h.Enabled(t.Context(), slog.LevelDebug-1))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
