package logger

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PruneLogFiles removes old debug log files, keeping only the newest
// keepCount files. The debug-latest.log symlink is never touched.
func PruneLogFiles(dir string, keepCount int) error {
	if keepCount <= 0 {
		keepCount = 5
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var logFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "debug-") && strings.HasSuffix(name, ".log") && name != "debug-latest.log" {
			logFiles = append(logFiles, name)
		}
	}

	// Filenames embed the timestamp, so lexical order is age order
	sort.Sort(sort.Reverse(sort.StringSlice(logFiles)))

	for i := keepCount; i < len(logFiles); i++ {
		path := filepath.Join(dir, logFiles[i])
		if err := os.Remove(path); err != nil {
			continue
		}
	}

	return nil
}
