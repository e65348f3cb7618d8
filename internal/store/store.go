// Package store holds the authoritative in-memory view of the session: which
// markdown files exist and their pre-rendered HTML. All mutation flows through
// the event reconciler (or the initial scan); readers get consistent
// snapshots and never touch the filesystem.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// RenderFunc converts raw markdown bytes to an HTML fragment. It must be pure
// and must not fail; the store caches its output verbatim.
type RenderFunc func([]byte) string

// TitleFunc extracts a display title from raw markdown bytes. May be nil;
// entries then carry their logical name as the title.
type TitleFunc func([]byte) string

// TrackedFile is one cached markdown file. Instances are immutable once
// inserted: an update replaces the whole entry, so a reader never observes an
// HTML/ModTime pairing from two different writes.
type TrackedFile struct {
	// Name is the logical name, the filename relative to the base
	// directory. Never contains path separators.
	Name string
	// Path is the resolved location on disk. Owned by the store; the
	// serving layer re-validates before any disk access.
	Path string
	// Title is the display title, falling back to Name when the content
	// yields none.
	Title string
	// ModTime is the wall-clock time of the write that produced HTML.
	ModTime time.Time
	// HTML is the rendered output served to viewers.
	HTML string
}

// Store maps logical names to tracked files for one session.
type Store struct {
	mode    Mode
	baseDir string
	entry   string // fixed logical name in single-file mode
	render  RenderFunc
	title   TitleFunc

	mu    sync.RWMutex
	files map[string]*TrackedFile
}

// New creates an empty store for the resolved target. Call Scan to populate
// it before serving.
func New(t Target, render RenderFunc, title TitleFunc) *Store {
	return &Store{
		mode:    t.Mode,
		baseDir: t.BaseDir,
		entry:   t.Entry,
		render:  render,
		title:   title,
		files:   make(map[string]*TrackedFile),
	}
}

// Mode reports the session mode fixed at startup.
func (s *Store) Mode() Mode { return s.mode }

// BaseDir reports the watched directory fixed at startup.
func (s *Store) BaseDir() string { return s.baseDir }

// Entry reports the fixed logical name in single-file mode, "" otherwise.
func (s *Store) Entry() string { return s.entry }

// Get returns the tracked file for a logical name. It never performs
// filesystem I/O.
func (s *Store) Get(name string) (*TrackedFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[name]
	return f, ok
}

// List returns a snapshot of all tracked files sorted by logical name
// ascending. This ordering is the navigation order and selects the default
// file.
func (s *Store) List() []*TrackedFile {
	s.mu.RLock()
	out := make([]*TrackedFile, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of tracked files.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Upsert renders bytes and inserts or replaces the entry for name. Names
// containing path separators are rejected: logical names are flat by
// construction. In single-file mode upserting any name other than the fixed
// entry is a programming error and panics.
func (s *Store) Upsert(name, absPath string, data []byte) error {
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("store: logical name %q contains a path separator", name)
	}
	if s.mode == SingleFile && name != s.entry {
		panic(fmt.Sprintf("store: upsert of %q in single-file session fixed to %q", name, s.entry))
	}

	// Render outside the lock; readers keep seeing the previous entry
	// until the new one is swapped in whole.
	f := &TrackedFile{
		Name:    name,
		Path:    absPath,
		Title:   name,
		ModTime: time.Now(),
		HTML:    s.render(data),
	}
	if s.title != nil {
		if t := s.title(data); t != "" {
			f.Title = t
		}
	}

	s.mu.Lock()
	s.files[name] = f
	s.mu.Unlock()
	return nil
}

// Remove deletes the entry for name. Forbidden in single-file mode: the
// reconciler never propagates deletions there, so a call is a programming
// error and panics.
func (s *Store) Remove(name string) {
	if s.mode == SingleFile {
		panic(fmt.Sprintf("store: remove of %q in single-file session", name))
	}
	s.mu.Lock()
	delete(s.files, name)
	s.mu.Unlock()
}
