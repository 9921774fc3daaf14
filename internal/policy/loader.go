package policy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// PolicyFile is a loaded Rego policy file.
type PolicyFile struct {
	// Path is the path the file was loaded from, also used as the OPA module name.
	Path string `json:"path"`
	// Name is the base name of the file without the .rego extension.
	Name string `json:"name"`
	// Content is the raw Rego source.
	Content string `json:"content"`
}

// Loader scans a directory tree for .rego policy files. It works against an
// afero.Fs so tests can run on an in-memory filesystem.
type Loader struct {
	fs      afero.Fs
	baseDir string
}

// NewLoader creates a loader rooted at baseDir on the given filesystem.
func NewLoader(fs afero.Fs, baseDir string) *Loader {
	return &Loader{fs: fs, baseDir: baseDir}
}

// LoadAll loads every .rego file under the base directory, recursing into
// subdirectories. A missing directory yields an empty slice, not an error:
// operators who never created a policies directory have no policies.
func (l *Loader) LoadAll() ([]*PolicyFile, error) {
	exists, err := afero.DirExists(l.fs, l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("check policies directory: %w", err)
	}
	if !exists {
		return []*PolicyFile{}, nil
	}

	var policies []*PolicyFile
	err = afero.Walk(l.fs, l.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".rego") {
			return nil
		}
		policy, err := l.loadFile(path)
		if err != nil {
			return fmt.Errorf("load policy %s: %w", path, err)
		}
		policies = append(policies, policy)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk policies directory: %w", err)
	}

	return policies, nil
}

// Exists reports whether the policies directory exists.
func (l *Loader) Exists() (bool, error) {
	return afero.DirExists(l.fs, l.baseDir)
}

func (l *Loader) loadFile(path string) (*PolicyFile, error) {
	file, err := l.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return &PolicyFile{
		Path:    path,
		Name:    strings.TrimSuffix(filepath.Base(path), ".rego"),
		Content: string(content),
	}, nil
}
