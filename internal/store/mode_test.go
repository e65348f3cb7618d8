package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTargetFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes"), 0644))

	target, err := ResolveTarget(path)
	require.NoError(t, err)

	assert.Equal(t, SingleFile, target.Mode)
	assert.Equal(t, dir, target.BaseDir)
	assert.Equal(t, "notes.md", target.Entry)
}

func TestResolveTargetDirectory(t *testing.T) {
	dir := t.TempDir()

	target, err := ResolveTarget(dir)
	require.NoError(t, err)

	assert.Equal(t, Directory, target.Mode)
	assert.Equal(t, dir, target.BaseDir)
	assert.Empty(t, target.Entry)
}

func TestResolveTargetMissingPath(t *testing.T) {
	_, err := ResolveTarget(filepath.Join(t.TempDir(), "nope.md"))
	require.Error(t, err)
}

func TestScanSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readme.md")
	require.NoError(t, os.WriteFile(path, []byte("# Readme"), 0644))
	// Directory noise must not enter a single-file session.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.md"), []byte("x"), 0644))

	target, err := ResolveTarget(path)
	require.NoError(t, err)

	s := New(target, testRender, nil)
	require.NoError(t, s.Scan())

	assert.Equal(t, 1, s.Len())
	f, ok := s.Get("readme.md")
	require.True(t, ok)
	assert.Equal(t, testRender([]byte("# Readme")), f.HTML)
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.md":       "# B",
		"a.md":       "# A",
		"c.markdown": "# C",
		"skip.txt":   "not markdown",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	// Nested markdown is out of scope: the scan is non-recursive.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "nested.md"), []byte("x"), 0644))

	target, err := ResolveTarget(dir)
	require.NoError(t, err)

	s := New(target, testRender, nil)
	require.NoError(t, s.Scan())

	var names []string
	for _, f := range s.List() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.md", "b.md", "c.markdown"}, names)
}

func TestIsMarkdown(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a.md", true},
		{"a.MD", true},
		{"a.markdown", true},
		{"a.txt", false},
		{"a.md.bak", false},
		{"a", false},
	}
	for _, tt := range tests {
		if got := IsMarkdown(tt.path); got != tt.want {
			t.Errorf("IsMarkdown(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("pic.png"))
	assert.True(t, IsImage("pic.JPG"))
	assert.True(t, IsImage("pic.svg"))
	assert.False(t, IsImage("pic.md"))
	assert.False(t, IsImage("pic.txt"))
}
