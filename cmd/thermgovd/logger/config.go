// Package logger provides thermgovd's console logging setup: a compact
// "[HH:MM:SS] [scope] message" line, named after the active profile or
// component that emitted it.
package logger

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config holds the logger's configuration.
type Config struct {
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string
	// JSONOutput switches to structured JSON, for log collectors that
	// prefer it over the console line format.
	JSONOutput bool
}

// fromEnvironment fills in LogLevel from LOG_LEVEL if cfg didn't set one.
func (c Config) fromEnvironment() Config {
	if c.LogLevel == "" {
		c.LogLevel = os.Getenv("LOG_LEVEL")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if !c.JSONOutput {
		c.JSONOutput = os.Getenv("LOG_JSON") == "true"
	}
	return c
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// encodeBracketTime renders a timestamp as "[15:04:05]".
func encodeBracketTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + t.Format("15:04:05") + "]")
}

// encodeBracketName renders the logger name as "[name]". Nested Named
// loggers produce dotted paths ("main.performance"); only the last segment
// is the scope the console line wants.
func encodeBracketName(name string, enc zapcore.PrimitiveArrayEncoder) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	enc.AppendString("[" + name + "]")
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         zapcore.OmitKey,
		NameKey:          "scope",
		CallerKey:        zapcore.OmitKey,
		FunctionKey:      zapcore.OmitKey,
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeTime:       encodeBracketTime,
		EncodeName:       encodeBracketName,
		EncodeDuration:   zapcore.StringDurationEncoder,
	}
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "scope",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
