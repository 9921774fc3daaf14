// Package logger configures engram's diagnostics. Stdout belongs to the MCP
// transport exclusively, so everything here writes to stderr or to files:
// the prefixed standard logger, an optional JSONL debug log under the logs
// directory, and crash reports for serve-loop panics.
package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StderrPrefix tags every standard-log line so MCP clients that surface
// stderr can attribute the noise.
const StderrPrefix = "[engram] "

// InitStderr routes the standard logger to stderr with the engram prefix.
// Call once at startup, before any transport is attached to stdout.
func InitStderr() {
	log.SetOutput(os.Stderr)
	log.SetPrefix(StderrPrefix)
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
}

// LogLevel represents the severity of a log entry.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry represents a single JSONL log entry.
type LogEntry struct {
	Timestamp  string         `json:"timestamp"`
	Level      LogLevel       `json:"level"`
	Component  string         `json:"component"`
	Event      string         `json:"event"`
	Message    string         `json:"message"`
	Phase      string         `json:"phase,omitempty"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Options configures the DebugLogger.
type Options struct {
	// OutputDir is the directory for log files.
	// Default: ".engram/logs"
	OutputDir string

	// Component is the default component name for log entries.
	// Default: "serve"
	Component string

	// RetentionCount is the number of log files to keep.
	// Default: 5
	RetentionCount int

	// EnableStderr controls whether entries are also echoed to stderr.
	// Off by default: the prefixed standard logger owns stderr in normal
	// operation and raw JSONL would interleave badly.
	EnableStderr bool

	// StderrWriter is the writer for the echo output (for testing).
	// Default: os.Stderr
	StderrWriter io.Writer
}

// DebugLogger writes structured JSONL diagnostics to a timestamped file.
// It activates only when ENGRAM_LOG_LEVEL=debug; normal runs carry no
// file-logging cost.
type DebugLogger struct {
	mu           sync.Mutex
	file         *os.File
	writer       *bufio.Writer
	opts         Options
	logPath      string
	closed       bool
	flushTicker  *time.Ticker
	flushDone    chan struct{}
	stderrWriter io.Writer
}

// NewDebugLogger creates a debug logger, creating the output directory if
// needed. A debug-latest.log symlink always points at the newest file.
func NewDebugLogger(opts Options) (*DebugLogger, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(".engram", "logs")
	}
	if opts.Component == "" {
		opts.Component = "serve"
	}
	if opts.RetentionCount == 0 {
		opts.RetentionCount = 5
	}
	stderrWriter := opts.StderrWriter
	if stderrWriter == nil {
		stderrWriter = os.Stderr
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}

	now := time.Now().UTC()
	filename := fmt.Sprintf("debug-%s.log", now.Format("20060102T150405Z"))
	logPath := filepath.Join(opts.OutputDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	latestLink := filepath.Join(opts.OutputDir, "debug-latest.log")
	_ = os.Remove(latestLink)
	_ = os.Symlink(filename, latestLink)

	l := &DebugLogger{
		file:         file,
		writer:       bufio.NewWriter(file),
		opts:         opts,
		logPath:      logPath,
		flushTicker:  time.NewTicker(1 * time.Second),
		flushDone:    make(chan struct{}),
		stderrWriter: stderrWriter,
	}

	go l.periodicFlush()

	return l, nil
}

func (l *DebugLogger) periodicFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			if !l.closed && l.writer != nil {
				_ = l.writer.Flush()
			}
			l.mu.Unlock()
		case <-l.flushDone:
			return
		}
	}
}

// Debug logs a debug-level entry.
func (l *DebugLogger) Debug(event, message string, metadata map[string]any) {
	l.write(LevelDebug, event, message, metadata, "", nil, nil)
}

// Info logs an info-level entry.
func (l *DebugLogger) Info(event, message string, metadata map[string]any) {
	l.write(LevelInfo, event, message, metadata, "", nil, nil)
}

// Warn logs a warning-level entry.
func (l *DebugLogger) Warn(event, message string, metadata map[string]any) {
	l.write(LevelWarn, event, message, metadata, "", nil, nil)
}

// Error logs an error-level entry.
func (l *DebugLogger) Error(event, message string, metadata map[string]any) {
	l.write(LevelError, event, message, metadata, "", nil, nil)
}

// ErrorWithErr logs an error-level entry carrying the error string.
func (l *DebugLogger) ErrorWithErr(event, message string, err error, metadata map[string]any) {
	l.write(LevelError, event, message, metadata, "", nil, err)
}

// StartPhase begins timing a phase and returns a stopper. The stopper logs
// phase completion with its duration, or phase failure when given an error.
func (l *DebugLogger) StartPhase(phase string, metadata map[string]any) func(err error) {
	start := time.Now()
	l.write(LevelDebug, "phase_start", fmt.Sprintf("Starting %s", phase), metadata, phase, nil, nil)

	return func(err error) {
		duration := time.Since(start).Milliseconds()
		if err != nil {
			l.write(LevelError, "phase_error", fmt.Sprintf("Phase %s failed", phase), metadata, phase, &duration, err)
			return
		}
		l.write(LevelDebug, "phase_end", fmt.Sprintf("Completed %s", phase), metadata, phase, &duration, nil)
	}
}

func (l *DebugLogger) write(level LogLevel, event, message string, metadata map[string]any, phase string, durationMs *int64, cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.opts.Component,
		Event:      event,
		Message:    message,
		Phase:      phase,
		DurationMs: durationMs,
		Metadata:   metadata,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"timestamp":%q,"level":"error","component":%q,"event":"marshal_error","message":"failed to marshal log entry"}`,
			entry.Timestamp, l.opts.Component))
	}

	if l.writer != nil {
		_, _ = l.writer.Write(data)
		_, _ = l.writer.Write([]byte("\n"))
	}

	if l.opts.EnableStderr && l.stderrWriter != nil {
		_, _ = l.stderrWriter.Write(data)
		_, _ = l.stderrWriter.Write([]byte("\n"))
	}
}

// LogPath returns the path to the current log file.
func (l *DebugLogger) LogPath() string {
	return l.logPath
}

// Close flushes buffers, closes the file, and prunes files beyond retention.
func (l *DebugLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true

	l.flushTicker.Stop()
	close(l.flushDone)

	var errs []error
	if l.writer != nil {
		if err := l.writer.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush: %w", err))
		}
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
	}
	l.mu.Unlock()

	if err := PruneLogFiles(l.opts.OutputDir, l.opts.RetentionCount); err != nil {
		errs = append(errs, fmt.Errorf("prune: %w", err))
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
