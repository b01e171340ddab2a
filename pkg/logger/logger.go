package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// std is the process-wide logger. Callers use the package-level helpers
// (Info, WarnX, ...) instead of threading a logger through every type.
var (
	std  = logrus.New()
	mu   sync.Mutex
	file *os.File
)

func init() {
	std.SetOutput(os.Stderr)
	std.SetLevel(logrus.InfoLevel)
	std.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
}

// InitLog routes log output to the given file path in addition to stderr.
// The parent directory is created if missing.
func InitLog(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	file = f
	std.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// FlushLog closes the log file, if any. Safe to call without InitLog.
func FlushLog() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		_ = file.Sync()
		_ = file.Close()
		file = nil
		std.SetOutput(os.Stderr)
	}
}

// SetLevel changes the minimum emitted level ("debug", "info", "warn", "error").
func SetLevel(level string) {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	std.SetLevel(lv)
}

// Debug logs at debug level with Printf-style formatting.
func Debug(format string, args ...interface{}) {
	std.Debugf(format, args...)
}

// Info logs at info level with Printf-style formatting.
func Info(format string, args ...interface{}) {
	std.Infof(format, args...)
}

// Warn logs at warn level with Printf-style formatting.
func Warn(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

// Error logs at error level with Printf-style formatting.
func Error(format string, args ...interface{}) {
	std.Errorf(format, args...)
}

// DebugX logs at debug level tagged with the owning module name.
func DebugX(module string, format string, args ...interface{}) {
	std.WithField("module", module).Debugf(format, args...)
}

// InfoX logs at info level tagged with the owning module name.
func InfoX(module string, format string, args ...interface{}) {
	std.WithField("module", module).Infof(format, args...)
}

// WarnX logs at warn level tagged with the owning module name.
func WarnX(module string, format string, args ...interface{}) {
	std.WithField("module", module).Warnf(format, args...)
}

// ErrorX logs at error level tagged with the owning module name.
func ErrorX(module string, format string, args ...interface{}) {
	std.WithField("module", module).Errorf(format, args...)
}
