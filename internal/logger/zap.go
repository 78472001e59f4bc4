package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap's SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

// Output encodings.
const (
	EncodingConsole = "console"
	EncodingJSON    = "json"
)

// defaultZapLevel defines the fallback log level when an unknown level string is provided.
const defaultZapLevel = zapcore.DebugLevel

// toZapLevel converts a textual level to zapcore.Level using known level constants.
func toZapLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return defaultZapLevel
	}
}

// newCore builds a zapcore.Core targeting stdout. JSON output keeps the
// timestamp for log shippers; the console encoder leaves it to the terminal.
func newCore(level zapcore.Level, encoding string) zapcore.Core {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if encoding == EncodingJSON {
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg.TimeKey = ""
		encoder = zapcore.NewConsoleEncoder(cfg)
	}
	ws := zapcore.Lock(os.Stdout) // thread-safe writer
	return zapcore.NewCore(encoder, zapcore.AddSync(ws), zap.NewAtomicLevelAt(level))
}

// newZapLogger constructs a sugared zap logger with the provided level string.
func newZapLogger(levelStr, encoding string) *Logger {
	core := newCore(toZapLevel(levelStr), encoding)
	return &Logger{
		SugaredLogger: zap.New(core).Sugar(),
	}
}
