package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querymind/querymind/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"unknown", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "INFO", InfoLevel.String())
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestNewLoggerInvalidOutput(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "teletype",
	})
	assert.Error(t, err)
}

func TestNewLoggerFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "app.log")

	logger, err := NewLogger(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "file",
		File:   logPath,
	})
	require.NoError(t, err)

	logger.Info("hello from file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from file")
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  WarnLevel,
		format: "text",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  InfoLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	logger.WithField("connection", "prod-db").Info("index refreshed")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "index refreshed", entry.Message)
	assert.Equal(t, "prod-db", entry.Fields["connection"])
	assert.NotEmpty(t, entry.Timestamp)
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer

	parent := &Logger{
		level:  InfoLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	child := parent.WithFields(map[string]interface{}{
		"table": "orders",
		"rows":  42,
	})

	assert.Empty(t, parent.fields)
	assert.Len(t, child.fields, 2)
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  InfoLevel,
		format: "text",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	logger.WithError(errors.New("boom")).Error("query failed")
	assert.Contains(t, buf.String(), "boom")

	// nil error is a no-op
	assert.Same(t, logger, logger.WithError(nil))
}

func TestErrorWithErr(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  ErrorLevel,
		format: "text",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	logger.ErrorWithErr("execution failed", errors.New("statement timeout"))

	output := buf.String()
	assert.Contains(t, output, "execution failed")
	assert.Contains(t, output, "statement timeout")
}
