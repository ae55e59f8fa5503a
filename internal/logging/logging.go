package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes debug traces to a log file and errors to stderr.
type Logger struct {
	mu          sync.Mutex
	out         io.Writer
	file        *os.File
	enabled     bool
	stderrMuted bool
	component   string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Get returns the process-wide logger, initializing it on first use.
func Get() *Logger {
	once.Do(func() {
		defaultLogger = &Logger{component: "client"}
		defaultLogger.init()
	})
	return defaultLogger
}

// New returns an enabled logger that writes every level to w.
// Errors are not echoed to stderr.
func New(w io.Writer, component string) *Logger {
	return &Logger{
		out:         w,
		enabled:     true,
		stderrMuted: true,
		component:   component,
	}
}

func (l *Logger) init() {
	debugEnv := os.Getenv("CHATC_DEBUG")

	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatc log: failed to get home dir: %v\n", err)
		return
	}

	debugFile := filepath.Join(home, ".chatc", "debug")
	_, debugFileErr := os.Stat(debugFile)
	debugFileExists := debugFileErr == nil

	if debugEnv != "1" && !debugFileExists {
		l.enabled = false
		return
	}

	l.enabled = true

	logsDir := filepath.Join(home, ".chatc", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "chatc log: failed to create logs dir %s: %v\n", logsDir, err)
		return
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logsDir, fmt.Sprintf("chatc-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatc log: failed to open log file %s: %v\n", logPath, err)
		return
	}

	l.file = file
	l.out = file

	if debugEnv == "1" {
		l.logf("INFO", "Logging started (CHATC_DEBUG=1)")
	} else {
		l.logf("INFO", "Logging started (~/.chatc/debug exists)")
	}
	l.logf("INFO", "Log file: %s", logPath)
}

// Enabled reports whether debug logging is on.
func (l *Logger) Enabled() bool {
	return l.enabled
}

// MuteStderr stops Error from echoing to stderr. The TUI sets this while it
// owns the terminal.
func (l *Logger) MuteStderr(muted bool) {
	l.mu.Lock()
	l.stderrMuted = muted
	l.mu.Unlock()
}

func (l *Logger) logf(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return
	}

	timestamp := time.Now().Format("15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.out, "[%s] %s [%s]: %s\n", timestamp, level, l.component, msg)
}

// Debug logs a debug message (file only).
func (l *Logger) Debug(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.logf("DEBUG", format, args...)
}

// Info logs an info message (file only).
func (l *Logger) Info(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.logf("INFO", format, args...)
}

// Warn logs a recoverable failure (file only).
func (l *Logger) Warn(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.logf("WARN", format, args...)
}

// Error logs an error message (file and stderr).
func (l *Logger) Error(format string, args ...any) {
	l.mu.Lock()
	muted := l.stderrMuted
	l.mu.Unlock()
	if !muted {
		fmt.Fprintf(os.Stderr, "chatc error: %s\n", fmt.Sprintf(format, args...))
	}
	if l.enabled {
		l.logf("ERROR", format, args...)
	}
}

// Request logs an outgoing HTTP request.
func (l *Logger) Request(method, url string) {
	if !l.enabled {
		return
	}
	l.logf("HTTP", "%s %s", method, url)
}

// Stream logs a streaming increment.
func (l *Logger) Stream(kind string, content string) {
	if !l.enabled {
		return
	}
	l.logf("STREAM", "[%s] %s", kind, truncate(content, 200))
}

// Close closes the log file.
func (l *Logger) Close() {
	if l.file != nil {
		l.file.Close()
	}
}

// Writer returns the log destination, or io.Discard when logging is off.
func (l *Logger) Writer() io.Writer {
	if l.out != nil && l.enabled {
		return l.out
	}
	return io.Discard
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
