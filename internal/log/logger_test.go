package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rs/zerolog"
)

// decodeLines splits the buffer into one decoded JSON object per log line.
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestLogger(t *testing.T) {
	// Configure is once-per-process, so every subtest shares this sink.
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "focusync-test", Version: "test"})

	t.Run("base logger carries service and version", func(t *testing.T) {
		buf.Reset()
		base := L()
		base.Info().Msg("hello")
		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "focusync-test", lines[0]["service"])
		assert.Equal(t, "test", lines[0]["version"])
		assert.Equal(t, "hello", lines[0]["message"])
	})

	t.Run("with component", func(t *testing.T) {
		buf.Reset()
		logger := WithComponent("tracker")
		logger.Info().Msg("started")
		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "tracker", lines[0][FieldComponent])
	})

	t.Run("derive attaches builder fields", func(t *testing.T) {
		buf.Reset()
		logger := Derive(func(c *zerolog.Context) {
			*c = c.Str(FieldComponent, "transport").Str(FieldMode, "synthetic")
		})
		logger.Warn().Msg("degraded")
		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "transport", lines[0][FieldComponent])
		assert.Equal(t, "synthetic", lines[0][FieldMode])
	})

	t.Run("derive without builder matches base", func(t *testing.T) {
		buf.Reset()
		logger := Derive(nil)
		logger.Info().Msg("plain")
		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "focusync-test", lines[0]["service"])
	})

	t.Run("context ids enrich the derived logger", func(t *testing.T) {
		buf.Reset()
		ctx := ContextWithCorrelationID(context.Background(), "corr-1")
		ctx = ContextWithSessionID(ctx, "sess-1")
		assert.Equal(t, "sess-1", SessionIDFromContext(ctx))
		logger := FromContext(ctx)
		logger.Debug().Msg("dispatch")
		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "corr-1", lines[0][FieldCorrelationID])
		assert.Equal(t, "sess-1", lines[0][FieldSessionID])
	})

	t.Run("empty context adds no id fields", func(t *testing.T) {
		buf.Reset()
		logger := FromContext(context.Background())
		logger.Info().Msg("bare")
		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		_, hasCorr := lines[0][FieldCorrelationID]
		_, hasSess := lines[0][FieldSessionID]
		assert.False(t, hasCorr)
		assert.False(t, hasSess)
	})
}
