package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode is the session mode, fixed once at startup.
type Mode int

const (
	// SingleFile sessions track exactly one file for the process
	// lifetime; the reconciler never adds or removes entries.
	SingleFile Mode = iota
	// Directory sessions track every markdown file directly inside the
	// base directory; the set may grow over time (deletions are kept
	// stale-but-present, see the reconciler).
	Directory
)

func (m Mode) String() string {
	switch m {
	case SingleFile:
		return "single-file"
	case Directory:
		return "directory"
	default:
		return "unknown"
	}
}

// Target is the resolved startup argument: the mode plus the directory the
// session watches. Immutable after ResolveTarget.
type Target struct {
	Mode    Mode
	BaseDir string
	// Entry is the fixed logical name in single-file mode, "" otherwise.
	Entry string
}

// markdownExts are the accepted markdown extensions, lowercase.
var markdownExts = map[string]bool{
	".md":       true,
	".markdown": true,
}

// IsMarkdown reports whether path has an accepted markdown extension.
func IsMarkdown(path string) bool {
	return markdownExts[strings.ToLower(filepath.Ext(path))]
}

// imageExts are extensions the serving layer passes through from disk and
// whose changes trigger a reload without entering the store.
var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".bmp": true, ".ico": true,
}

// IsImage reports whether path has a served image extension.
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// ResolveTarget decides the session mode from the startup path argument.
// A file argument fixes single-file mode with the parent as base dir; a
// directory argument fixes directory mode. Anything else is a startup error.
func ResolveTarget(path string) (Target, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Target{}, fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Target{}, fmt.Errorf("path not found: %s", path)
	}

	if info.IsDir() {
		return Target{Mode: Directory, BaseDir: abs}, nil
	}
	return Target{
		Mode:    SingleFile,
		BaseDir: filepath.Dir(abs),
		Entry:   filepath.Base(abs),
	}, nil
}

// Scan performs the initial population: the single fixed entry, or every
// immediate markdown file of the base directory (non-recursive). Directory
// mode tolerates individual unreadable files; single-file mode does not,
// since the whole session is that one file.
func (s *Store) Scan() error {
	if s.mode == SingleFile {
		path := filepath.Join(s.baseDir, s.entry)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		return s.Upsert(s.entry, path, data)
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", s.baseDir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !IsMarkdown(e.Name()) {
			continue
		}
		path := filepath.Join(s.baseDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			// A file that races the scan will be picked up by the
			// watcher once it settles.
			continue
		}
		if err := s.Upsert(e.Name(), path, data); err != nil {
			return err
		}
	}
	return nil
}
