package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the root *zap.Logger for thermgovd. Per-component loggers are
// derived from it with Named, which becomes the "[scope]" segment of every
// console line.
func New(cfg Config) (*zap.Logger, error) {
	cfg = cfg.fromEnvironment()

	var encoder zapcore.Encoder
	if cfg.JSONOutput {
		encoder = zapcore.NewJSONEncoder(jsonEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(consoleEncoderConfig())
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), parseLogLevel(cfg.LogLevel))
	return zap.New(core).Named("main"), nil
}

// Sync flushes buffered log entries, swallowing the common stdout/stderr
// sync errors that occur when stdout is a terminal or pipe.
func Sync(l *zap.Logger) error {
	err := l.Sync()
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl for device") {
		return nil
	}
	return err
}
