package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// MaxCrashReports is the maximum number of crash reports to keep.
const MaxCrashReports = 10

// CrashContext stores context stamped onto crash reports. Memory content
// never goes here: a crash report must be shareable without leaking what
// the graph stores.
type CrashContext struct {
	mu       sync.RWMutex
	version  string
	lastTool string
	basePath string
}

// globalContext is the singleton crash context.
var globalContext = &CrashContext{}

// SetBasePath sets the directory whose logs/ subdirectory receives crash
// reports (typically ~/.engram).
func SetBasePath(path string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.basePath = path
}

// SetVersion sets the application version for crash reports.
func SetVersion(version string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.version = version
}

// SetLastTool records the most recently dispatched MCP tool name.
// Only the name; arguments stay out of crash reports.
func SetLastTool(tool string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.lastTool = tool
}

// CrashReport represents one captured panic.
type CrashReport struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	LastTool   string    `json:"last_tool,omitempty"`
	PanicValue string    `json:"panic_value"`
	StackTrace string    `json:"stack_trace"`
	GoVersion  string    `json:"go_version"`
	OS         string    `json:"os"`
	Arch       string    `json:"arch"`
}

// HandlePanic is a deferred function that writes a crash report for a panic
// and then re-raises it, so the process still dies with the panic's exit
// status and stderr trace.
// Usage: defer logger.HandlePanic()
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}

	report := createCrashReport(r)
	if err := writeCrashReport(report); err != nil {
		fmt.Fprintf(os.Stderr, "%sfailed to write crash report: %v\n", StderrPrefix, err)
		fmt.Fprintf(os.Stderr, "%spanic: %v\n%s\n", StderrPrefix, r, debug.Stack())
	} else {
		fmt.Fprintf(os.Stderr, "%scrash report saved to %s\n", StderrPrefix, getCrashReportPath(report.Timestamp))
	}

	panic(r)
}

// createCrashReport builds a CrashReport from a panic value.
func createCrashReport(panicValue any) CrashReport {
	globalContext.mu.RLock()
	defer globalContext.mu.RUnlock()

	return CrashReport{
		Timestamp:  time.Now(),
		Version:    globalContext.version,
		LastTool:   globalContext.lastTool,
		PanicValue: fmt.Sprintf("%v", panicValue),
		StackTrace: string(debug.Stack()),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
}

// writeCrashReport writes a crash report to disk.
func writeCrashReport(report CrashReport) error {
	dir := getCrashReportDir()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create crash report dir: %w", err)
	}

	if err := cleanOldCrashReports(dir); err != nil {
		// Non-fatal, continue with writing
		fmt.Fprintf(os.Stderr, "%sfailed to clean old crash reports: %v\n", StderrPrefix, err)
	}

	path := getCrashReportPath(report.Timestamp)
	if err := os.WriteFile(path, []byte(formatCrashReport(report)), 0o644); err != nil {
		return fmt.Errorf("write crash report: %w", err)
	}

	return nil
}

// getCrashReportDir returns the directory for crash reports. They share the
// logs directory with the debug logger; the crash_ prefix tells them apart.
func getCrashReportDir() string {
	globalContext.mu.RLock()
	basePath := globalContext.basePath
	globalContext.mu.RUnlock()

	if basePath == "" {
		basePath = ".engram"
	}

	return filepath.Join(basePath, "logs")
}

// getCrashReportPath returns the path for a crash report file.
func getCrashReportPath(t time.Time) string {
	filename := fmt.Sprintf("crash_%s.log", t.Format("20060102_150405"))
	return filepath.Join(getCrashReportDir(), filename)
}

// formatCrashReport formats a CrashReport as human-readable text.
func formatCrashReport(report CrashReport) string {
	var sb strings.Builder

	rule := strings.Repeat("=", 80)
	bar := strings.Repeat("-", 80)

	sb.WriteString(rule + "\n")
	sb.WriteString("ENGRAM CRASH REPORT\n")
	sb.WriteString(rule + "\n\n")

	sb.WriteString(fmt.Sprintf("Timestamp: %s\n", report.Timestamp.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Version:   %s\n", report.Version))
	sb.WriteString(fmt.Sprintf("Go:        %s\n", report.GoVersion))
	sb.WriteString(fmt.Sprintf("OS/Arch:   %s/%s\n", report.OS, report.Arch))
	if report.LastTool != "" {
		sb.WriteString(fmt.Sprintf("Last tool: %s\n", report.LastTool))
	}

	sb.WriteString("\n" + bar + "\n")
	sb.WriteString("PANIC VALUE\n")
	sb.WriteString(bar + "\n")
	sb.WriteString(report.PanicValue + "\n")

	sb.WriteString("\n" + bar + "\n")
	sb.WriteString("STACK TRACE\n")
	sb.WriteString(bar + "\n")
	sb.WriteString(report.StackTrace)

	sb.WriteString("\n" + rule + "\n")
	sb.WriteString("END OF CRASH REPORT\n")
	sb.WriteString(rule + "\n")

	return sb.String()
}

// cleanOldCrashReports removes old reports, keeping MaxCrashReports most recent.
func cleanOldCrashReports(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var reports []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "crash_") && strings.HasSuffix(e.Name(), ".log") {
			reports = append(reports, e)
		}
	}

	if len(reports) <= MaxCrashReports {
		return nil
	}

	// os.ReadDir returns entries sorted by name; the timestamped names put
	// the oldest first
	toRemove := len(reports) - MaxCrashReports
	for i := range toRemove {
		path := filepath.Join(dir, reports[i].Name())
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove old crash report %s: %w", reports[i].Name(), err)
		}
	}

	return nil
}

// ListCrashReports returns the paths of all crash reports.
func ListCrashReports() ([]string, error) {
	dir := getCrashReportDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var reports []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "crash_") && strings.HasSuffix(e.Name(), ".log") {
			reports = append(reports, filepath.Join(dir, e.Name()))
		}
	}

	return reports, nil
}
