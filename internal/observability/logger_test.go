// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/roguesec/rogue/internal/config"
)

// syncBuffer adapts bytes.Buffer into a zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (*syncBuffer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("Writes To Console At Configured Level", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf syncBuffer
		Initialize(config.LoggerConfig{Level: "warn", Format: "json", ServiceName: "rogue-test"}, zapcore.Lock(&buf))

		logger := GetLogger()
		logger.Info("should be filtered")
		logger.Warn("should appear")
		require.NoError(t, logger.Sync())

		out := buf.String()
		assert.NotContains(t, out, "should be filtered")
		assert.Contains(t, out, "should appear")
		assert.Contains(t, out, "rogue-test")
	})

	t.Run("Invalid Level Falls Back To Info", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf syncBuffer
		Initialize(config.LoggerConfig{Level: "chatty", Format: "json", ServiceName: "rogue-test"}, zapcore.Lock(&buf))

		logger := GetLogger()
		logger.Debug("debug hidden")
		logger.Info("info shown")
		require.NoError(t, logger.Sync())

		assert.NotContains(t, buf.String(), "debug hidden")
		assert.Contains(t, buf.String(), "info shown")
	})

	t.Run("Second Initialize Is A No-Op", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var first, second syncBuffer
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "one"}, zapcore.Lock(&first))
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "two"}, zapcore.Lock(&second))

		GetLogger().Info("hello")
		assert.Contains(t, first.String(), "hello")
		assert.Empty(t, second.String())
	})
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	// Before initialization a usable logger must still come back.
	logger := GetLogger()
	require.NotNil(t, logger)
}
