package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ShayCichocki/autocoder/internal/workspace"
)

// DebugLogger provides debug logging for build operations.
// It wraps a rotating log file with thread-safe access.
type DebugLogger struct {
	mu  sync.Mutex
	out io.Writer
	c   io.Closer
}

// NewDebugLogger creates a logger writing to the specified path, rotated by
// size. If the path is empty, returns a no-op logger.
// Creates parent directories if they don't exist.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    15, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger := &DebugLogger{out: rotator, c: rotator}
	logger.Log("=== Build Debug Log Started at %s ===", time.Now().Format(time.RFC3339))
	return logger, nil
}

// LogPath returns the debug log location for a project home.
func LogPath(projectHome string) string {
	return filepath.Join(projectHome, workspace.StateDir, "logs", "build.log")
}

// NewDebugLoggerForProject creates a debug logger in the project's
// .autocoder/logs directory.
// Returns a no-op logger if the directory cannot be created.
func NewDebugLoggerForProject(projectHome string) *DebugLogger {
	logger, err := NewDebugLogger(LogPath(projectHome))
	if err != nil {
		return &DebugLogger{}
	}
	return logger
}

// NewWriterLogger creates a logger writing to w. The caller owns w.
func NewWriterLogger(w io.Writer) *DebugLogger {
	return &DebugLogger{out: w}
}

// NopLogger returns a no-op logger for testing or when logging is disabled.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes a timestamped message to the debug log.
// If the logger is nil or has no output, this is a no-op.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.out == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.out, "[%s] %s\n", timestamp, msg)
}

// Close closes the log file.
// Safe to call on nil logger or logger without file.
func (l *DebugLogger) Close() error {
	if l == nil || l.c == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.c.Close()
}
