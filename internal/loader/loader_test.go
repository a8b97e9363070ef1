package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func TestResolve_DirectoryWithExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.md":         "# A",
		"B.MD":         "# B",
		"notes.txt":    "notes",
		"nested/c.md":  "# C",
		"no-extension": "raw",
	})
	l := New(nil, nil)

	files, err := l.Resolve(context.Background(), Input{Dir: dir, Extensions: "md"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "B.MD"), filepath.Join(dir, "a.md")}, files)

	files, err = l.Resolve(context.Background(), Input{Dir: dir, Extensions: ".md, .TXT"})
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = l.Resolve(context.Background(), Input{Dir: dir})
	require.NoError(t, err)
	assert.Len(t, files, 4, "subdirectories are not scanned")
}

func TestResolve_Empty(t *testing.T) {
	l := New(nil, nil)

	_, err := l.Resolve(context.Background(), Input{Dir: t.TempDir()})
	assert.ErrorIs(t, err, ErrNoInputFiles)

	_, err = l.Resolve(context.Background(), Input{Files: []string{"", "  "}})
	assert.ErrorIs(t, err, ErrNoInputFiles)
}

func TestResolve_InvalidDirectory(t *testing.T) {
	l := New(nil, nil)

	_, err := l.Resolve(context.Background(), Input{Dir: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, ErrInvalidDirectory)
}

func TestResolve_RemoteWithoutFetcher(t *testing.T) {
	l := New(nil, nil)

	_, err := l.Resolve(context.Background(), Input{Dir: "github://acme/handbook/docs"})
	assert.ErrorIs(t, err, ErrRemoteDisabled)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"guide.md":  "# Guide\n\nbody",
		"plain.txt": "Paris is the capital of France.",
	})
	l := New(nil, nil)

	files, err := l.Resolve(context.Background(), Input{Files: []string{
		filepath.Join(dir, "plain.txt"),
		filepath.Join(dir, "guide.md"),
		filepath.Join(dir, "guide.md"),
	}})
	require.NoError(t, err)
	require.Len(t, files, 2)

	docs, err := l.Load(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.True(t, docs[0].Markdown)
	assert.False(t, docs[1].Markdown)
	assert.Equal(t, "Paris is the capital of France.", docs[1].Text)

	_, err = l.Load(context.Background(), []string{filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)
}

func TestIsMarkdown(t *testing.T) {
	assert.True(t, IsMarkdown("docs/README.Markdown"))
	assert.True(t, IsMarkdown("github://acme/handbook/docs/a.md@v1"))
	assert.False(t, IsMarkdown("notes.txt"))
}
