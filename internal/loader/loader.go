// Package loader resolves build inputs into a file set and reads them into
// documents. Local paths and github:// references are both accepted.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bull/docrag/internal/chunking"
	"github.com/bull/docrag/internal/github"
)

var (
	// ErrNoInputFiles is returned when the input resolves to an empty file set.
	ErrNoInputFiles = errors.New("no valid input files found")

	// ErrInvalidDirectory is returned when a directory input does not exist.
	ErrInvalidDirectory = errors.New("invalid directory path")

	// ErrRemoteDisabled is returned for github:// inputs when no fetcher is configured.
	ErrRemoteDisabled = errors.New("github sources are not configured")
)

// Input describes where documents come from. Exactly one of Dir or Files is
// used; Dir wins when both are set.
type Input struct {
	// Dir is scanned non-recursively for regular files (or walked
	// recursively when it is a github:// reference).
	Dir string
	// Files lists paths to load as given.
	Files []string
	// Extensions filters Dir entries, e.g. "md" or ".md,.txt". Case-insensitive.
	Extensions string
}

// Loader resolves and reads inputs.
type Loader struct {
	fetcher *github.Fetcher
	logger  *slog.Logger
}

// New creates a Loader. fetcher may be nil, which rejects github:// inputs.
func New(fetcher *github.Fetcher, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{fetcher: fetcher, logger: logger.With("component", "loader")}
}

// Resolve turns an Input into a sorted, de-duplicated file list. An empty
// result is reported as ErrNoInputFiles.
func (l *Loader) Resolve(ctx context.Context, in Input) ([]string, error) {
	var files []string
	var err error

	switch {
	case in.Dir != "":
		files, err = l.resolveDir(ctx, in.Dir, extensionMatcher(in.Extensions))
		if err != nil {
			return nil, err
		}
	default:
		for _, f := range in.Files {
			if f = strings.TrimSpace(f); f != "" {
				files = append(files, f)
			}
		}
	}

	if len(files) == 0 {
		return nil, ErrNoInputFiles
	}

	sort.Strings(files)
	files = compact(files)
	l.logger.Debug("resolved input files", "count", len(files))
	return files, nil
}

func (l *Loader) resolveDir(ctx context.Context, dir string, match func(string) bool) ([]string, error) {
	if github.IsSource(dir) {
		if l.fetcher == nil {
			return nil, ErrRemoteDisabled
		}
		src, err := github.ParseSource(dir)
		if err != nil {
			return nil, err
		}
		sources, err := l.fetcher.ListDocs(ctx, src, match)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(sources))
		for i, s := range sources {
			out[i] = s.String()
		}
		return out, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDirectory, dir)
	}

	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if match != nil && !match(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

// Load reads every file into a Document.
func (l *Loader) Load(ctx context.Context, files []string) ([]chunking.Document, error) {
	docs := make([]chunking.Document, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := l.read(ctx, f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, chunking.Document{
			Path:     f,
			Text:     text,
			Markdown: IsMarkdown(f),
		})
		l.logger.Debug("loaded document", "path", f, "size", len(text))
	}
	return docs, nil
}

func (l *Loader) read(ctx context.Context, f string) (string, error) {
	if !github.IsSource(f) {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f, err)
		}
		return string(data), nil
	}

	if l.fetcher == nil {
		return "", ErrRemoteDisabled
	}
	src, err := github.ParseSource(f)
	if err != nil {
		return "", err
	}
	doc, err := l.fetcher.FetchDoc(ctx, src)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

// IsMarkdown reports whether a path names a markdown file.
func IsMarkdown(p string) bool {
	if i := strings.LastIndexByte(p, '@'); i >= 0 && github.IsSource(p) {
		p = p[:i]
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// extensionMatcher builds a case-insensitive filter from a comma-separated
// extension list. Leading dots are optional. Empty accepts everything.
func extensionMatcher(list string) func(string) bool {
	exts := make(map[string]bool)
	for _, e := range strings.Split(list, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	if len(exts) == 0 {
		return nil
	}
	return func(name string) bool {
		return exts[strings.ToLower(filepath.Ext(name))]
	}
}

func compact(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
