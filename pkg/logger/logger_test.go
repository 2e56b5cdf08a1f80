package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockLogger(t *testing.T) {
	mock := NewMockLogger()

	mock.Info("Test message", "key", "value")
	mock.Debug("Debug message")
	mock.Warn("Warning message")
	mock.Error("Error message", "error", "test error")

	require.Len(t, mock.Messages(), 4)
	assert.True(t, mock.HasMessage("INFO", "Test message"))
	assert.True(t, mock.HasMessageContaining("ERROR", "Error"))
	assert.Equal(t, 1, mock.Count("WARN"))

	scoped := mock.With("report_id", "r-1")
	scoped.Info("Context message")

	msgs := mock.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, "Context message", last.Msg)
	assert.Equal(t, []any{"report_id", "r-1"}, last.Args)

	mock.Clear()
	assert.Empty(t, mock.Messages())
}

func TestLoggerInterface(t *testing.T) {
	var _ Logger = &slogLogger{}
	var _ Logger = &MockLogger{}

	exercise := func(l Logger) {
		l.Info("test")
		l.Debug("debug")
		l.Warn("warn")
		l.Error("error")
		l.With("key", "value").WithGroup("grp").Info("with context")
	}

	exercise(NewMockLogger())
	exercise(Discard())
	exercise(GetGlobalLogger())
}

func TestSetupLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	SetupLoggerWithWriter(&buf, true, "json")
	t.Cleanup(func() { SetupLogger(false, "text") })

	Debug("hello", "n", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"n":1`)

	WithReport(GetGlobalLogger(), "abc").Info("scoped")
	assert.Contains(t, buf.String(), `"report_id":"abc"`)
}
