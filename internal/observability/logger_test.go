// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/steadyhand/internal/config"
)

// lockedBuffer satisfies zapcore.WriteSyncer for in-memory console output.
type lockedBuffer struct {
	bytes.Buffer
}

func (b *lockedBuffer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("should initialize console logger with colors", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf := &lockedBuffer{}

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		}
		Initialize(cfg, buf)
		GetLogger().Info("This is a test message.")
		Sync()

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, "TestService.", "Console names carry a trailing dot")
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf := &lockedBuffer{}

		cfg := config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}
		Initialize(cfg, buf)
		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry), "Log output should be valid JSON")
		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("should write to a log file if configured", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		logFile := filepath.Join(t.TempDir(), "steadyhand.log")

		cfg := config.LoggerConfig{Level: "debug", Format: "json", LogFile: logFile, MaxSize: 1}
		Initialize(cfg, &lockedBuffer{})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("should tee extra cores", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		core, logs := observer.New(zapcore.InfoLevel)

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "tee"}, &lockedBuffer{}, core)
		GetLogger().Named("pipeline").Info("[browser] hello")

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "[browser] hello", entry.Message)
		assert.Equal(t, "tee.pipeline", entry.LoggerName)
	})

	t.Run("should only initialize once", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf := &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "First"}, buf)
		logger1 := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, buf)
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test")
		Sync()
		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.False(t, strings.Contains(buf.String(), "Second"))
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		assert.NotNil(t, GetLogger())
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		Initialize(config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"}, &lockedBuffer{})
		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn").Level())
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense").Level(), "Unknown names fall back to info")
}
