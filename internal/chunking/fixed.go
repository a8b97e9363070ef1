package chunking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 200
)

// ErrInvalidChunking is returned for unusable size/overlap combinations.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// FixedSizeSplitter splits text into chunks of at most size characters,
// preferring paragraph, line and word boundaries, with overlap characters
// shared between neighbours.
type FixedSizeSplitter struct {
	size     int
	overlap  int
	sections *MarkdownSectioner
}

// NewFixedSizeSplitter validates the parameters and returns a splitter.
func NewFixedSizeSplitter(size, overlap int) (*FixedSizeSplitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", ErrInvalidChunking, overlap, size)
	}
	return &FixedSizeSplitter{
		size:     size,
		overlap:  overlap,
		sections: NewMarkdownSectioner(),
	}, nil
}

// Split implements Splitter.
func (s *FixedSizeSplitter) Split(docs []Document) ([]Node, error) {
	var nodes []Node
	for _, doc := range docs {
		sections, err := sectionsOf(s.sections, doc)
		if err != nil {
			return nil, err
		}

		position := 0
		for _, section := range sections {
			parts, err := splitText(section.Text, s.size, s.overlap)
			if err != nil {
				return nil, fmt.Errorf("split %s: %w", doc.Path, err)
			}
			for _, part := range parts {
				nodes = append(nodes, Node{
					ID:       uuid.New().String(),
					Text:     part,
					DocPath:  doc.Path,
					Position: position,
					Metadata: headerMeta(section),
				})
				position++
			}
		}
	}
	return nodes, nil
}

// splitText runs the recursive character splitter and drops blank pieces.
func splitText(text string, size, overlap int) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
