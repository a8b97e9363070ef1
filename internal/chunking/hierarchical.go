package chunking

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultChunkSizes are the hierarchy levels used when none are given.
var DefaultChunkSizes = []int{2048, 512, 128}

// DefaultHierarchyOverlap is the per-level chunk overlap.
const DefaultHierarchyOverlap = 20

// HierarchicalSplitter splits documents into a tree of nodes: level 0 uses
// sizes[0], and every node at level l is split again with sizes[l+1].
// Only the leaves are embedded; the whole tree goes to the document store so
// retrieval can merge leaves back into their parents.
type HierarchicalSplitter struct {
	sizes    []int
	overlap  int
	sections *MarkdownSectioner
}

// NewHierarchicalSplitter validates sizes (nil means DefaultChunkSizes).
func NewHierarchicalSplitter(sizes []int) (*HierarchicalSplitter, error) {
	if len(sizes) == 0 {
		sizes = DefaultChunkSizes
	}
	for i, size := range sizes {
		if size <= 0 {
			return nil, fmt.Errorf("%w: chunk_sizes[%d]=%d must be positive", ErrInvalidChunking, i, size)
		}
	}
	return &HierarchicalSplitter{
		sizes:    append([]int(nil), sizes...),
		overlap:  DefaultHierarchyOverlap,
		sections: NewMarkdownSectioner(),
	}, nil
}

// Depth is the number of levels.
func (s *HierarchicalSplitter) Depth() int { return len(s.sizes) }

// Sizes returns a copy of the per-level chunk sizes.
func (s *HierarchicalSplitter) Sizes() []int { return append([]int(nil), s.sizes...) }

// Split implements Splitter. Nodes are returned parents-first.
func (s *HierarchicalSplitter) Split(docs []Document) ([]Node, error) {
	var nodes []Node
	for _, doc := range docs {
		sections, err := sectionsOf(s.sections, doc)
		if err != nil {
			return nil, err
		}
		position := 0
		for _, section := range sections {
			roots, err := s.splitLevel(section.Text, 0)
			if err != nil {
				return nil, fmt.Errorf("split %s: %w", doc.Path, err)
			}
			for _, text := range roots {
				sub, err := s.build(doc.Path, section, text, "", 0, &position)
				if err != nil {
					return nil, fmt.Errorf("split %s: %w", doc.Path, err)
				}
				nodes = append(nodes, sub...)
			}
		}
	}
	return nodes, nil
}

// build creates the node for text at level and recursively its children.
// The returned slice starts with the node itself.
func (s *HierarchicalSplitter) build(docPath string, section Section, text, parentID string, level int, position *int) ([]Node, error) {
	node := Node{
		ID:       uuid.New().String(),
		Text:     text,
		DocPath:  docPath,
		Level:    level,
		ParentID: parentID,
		Metadata: headerMeta(section),
	}

	var parts []string
	if level+1 < len(s.sizes) {
		var err error
		if parts, err = s.splitLevel(text, level+1); err != nil {
			return nil, err
		}
	}

	// A node's position is that of its first leaf.
	node.Position = *position
	if len(parts) == 0 {
		*position++
		return []Node{node}, nil
	}

	out := []Node{node}
	for _, part := range parts {
		children, err := s.build(docPath, section, part, node.ID, level+1, position)
		if err != nil {
			return nil, err
		}
		out[0].ChildIDs = append(out[0].ChildIDs, children[0].ID)
		out = append(out, children...)
	}
	return out, nil
}

func (s *HierarchicalSplitter) splitLevel(text string, level int) ([]string, error) {
	size := s.sizes[level]
	overlap := s.overlap
	if overlap >= size {
		overlap = 0
	}
	return splitText(text, size, overlap)
}
