package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConsoleEncoder_LineFormat(t *testing.T) {
	enc := zapcore.NewConsoleEncoder(consoleEncoderConfig())

	ent := zapcore.Entry{
		Time:       time.Date(2026, 1, 2, 13, 4, 5, 0, time.UTC),
		LoggerName: "main.performance",
		Message:    "78°C fan:2400rpm ↓ 3.6→3.2 GHz",
	}

	buf, err := enc.EncodeEntry(ent, nil)
	require.NoError(t, err)
	assert.Equal(t, "[13:04:05] [performance] 78°C fan:2400rpm ↓ 3.6→3.2 GHz\n", buf.String())
}

func TestConsoleEncoder_RootScope(t *testing.T) {
	enc := zapcore.NewConsoleEncoder(consoleEncoderConfig())

	ent := zapcore.Entry{
		Time:       time.Date(2026, 1, 2, 9, 0, 1, 0, time.UTC),
		LoggerName: "main",
		Message:    "thermgovd running",
	}

	buf, err := enc.EncodeEntry(ent, nil)
	require.NoError(t, err)
	assert.Equal(t, "[09:00:01] [main] thermgovd running\n", buf.String())
}

func TestParseLogLevel_UnknownFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("verbose"))
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("debug"))
}
