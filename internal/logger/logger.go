package logger

import (
	"sync"

	"go.uber.org/zap"
)

// Log levels used across the application.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	// globalLogger holds the singleton logger instance.
	globalLogger *Logger
	once         sync.Once
)

// Get returns a singleton logger configured with the provided level.
// The first call initializes the logger; subsequent calls ignore the level
// and return the already initialized instance.
func Get(level string) *Logger {
	return Init(level, EncodingConsole)
}

// Init is Get with an explicit encoding ("console" or "json").
func Init(level, encoding string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level, encoding)
	})
	return globalLogger
}

// Wrap adapts an existing zap logger, e.g. zaptest.NewLogger in tests.
func Wrap(z *zap.Logger) *Logger {
	return &Logger{SugaredLogger: z.Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return Wrap(zap.NewNop())
}
