package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// L returns the process-wide logger, or nil before initialization.
func L() *zap.Logger {
	return log
}

// ParseLogLevel maps the LOG_LEVEL environment variable to a zap level.
func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "TRACE", "DEBUG":
		return zapcore.DebugLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitFallback makes sure a usable logger exists even when the full
// initialization in main has not run (tests, early failures). Safe to call
// repeatedly.
func InitFallback() {
	if log != nil {
		return
	}
	log = NewFallbackLogger()
	zap.ReplaceGlobals(log)
}

// Sync flushes buffered log entries. Errors are ignored: stdout sync fails
// on some platforms and there is nothing useful to do about it at exit.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

// GetLogFileWriter opens the log file for appending, creating parents.
func GetLogFileWriter(path string) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(dirOf(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}
