// Package record persists question/answer transcripts as markdown files.
package record

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/bull/docrag/internal/retrieval"
)

// Kind prefixes the transcript file name.
type Kind string

const (
	KindQuery Kind = "RAG"
	KindChat  Kind = "Chat"
)

const (
	timestampLayout = "20060102-150405-"
	maxTitleRunes   = 30
)

// Transcript is one finished exchange.
type Transcript struct {
	Kind     Kind
	Question string
	Answer   string
	// Sources is only written for KindQuery.
	Sources []retrieval.SourceNode
}

// Writer writes transcripts into a directory.
type Writer struct {
	defaultDir string
	now        func() time.Time
	logger     *slog.Logger
}

// NewWriter creates a Writer that falls back to defaultDir.
func NewWriter(defaultDir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		defaultDir: defaultDir,
		now:        time.Now,
		logger:     logger.With("component", "record"),
	}
}

// Write stores t under dir (or the default directory when dir is empty)
// and returns the file path. Existing files are never overwritten.
func (w *Writer) Write(dir string, t Transcript) (string, error) {
	if dir == "" {
		dir = w.defaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create record dir: %w", err)
	}

	base := FileName(w.now(), t.Kind, t.Question)
	for attempt := 0; ; attempt++ {
		name := base
		if attempt > 0 {
			name = fmt.Sprintf("%s-%d", base, attempt)
		}
		path := filepath.Join(dir, name+".md")

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create record: %w", err)
		}

		_, werr := f.WriteString(Render(name, t))
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return "", fmt.Errorf("write record: %w", werr)
		}
		w.logger.Debug("wrote transcript", "path", path)
		return path, nil
	}
}

// FileName builds "<timestamp><kind>-<title>" without extension.
func FileName(ts time.Time, kind Kind, question string) string {
	return ts.Format(timestampLayout) + string(kind) + "-" + Sanitize(question)
}

// Sanitize keeps the first letters and digits of s, joining the words
// with '-', so the result is safe as a file name on any platform.
func Sanitize(s string) string {
	var b strings.Builder
	runes := 0
	pendingDash := false
	for _, r := range s {
		if runes >= maxTitleRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
				runes++
			}
			pendingDash = false
			b.WriteRune(r)
			runes++
			continue
		}
		pendingDash = true
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return strings.TrimRight(b.String(), "-")
}

// Render formats the file body.
func Render(name string, t Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n[question]:\n\n%s\n\n[answer]:\n\n%s", name, t.Question, t.Answer)
	if t.Kind == KindQuery {
		b.WriteString("\n\n[source_datas]:\n\n")
		b.WriteString(FormatSources(t.Sources))
	}
	return b.String()
}

// FormatSources lists each source with its score and origin.
func FormatSources(sources []retrieval.SourceNode) string {
	var b strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&b, "source %d: score=%.4f index=%s", i+1, s.Score, s.IndexName)
		if s.DocPath != "" {
			fmt.Fprintf(&b, " file=%s", s.DocPath)
		}
		fmt.Fprintf(&b, "\n%s\n\n", s.Text)
	}
	return b.String()
}
