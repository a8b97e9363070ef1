// Package chunking splits loaded documents into nodes for embedding.
package chunking

import (
	"errors"
	"fmt"
	"strings"
)

// Metadata keys carried on nodes.
const (
	MetaHeaderPath   = "header_path"
	MetaWindow       = "window"
	MetaOriginalText = "original_text"
)

// Strategy selects how documents are split and how hits are post-processed
// at retrieval time.
type Strategy string

const (
	StrategyBasic          Strategy = "basic"
	StrategyAutoMerging    Strategy = "automerging"
	StrategySentenceWindow Strategy = "sentence_window"
)

// ErrInvalidStrategy is returned for unknown strategy names.
var ErrInvalidStrategy = errors.New("invalid index type")

// ParseStrategy maps an index type name onto a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.TrimSpace(s)) {
	case StrategyBasic:
		return StrategyBasic, nil
	case StrategyAutoMerging:
		return StrategyAutoMerging, nil
	case StrategySentenceWindow:
		return StrategySentenceWindow, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidStrategy, s)
}

// Document is the raw text of one input file.
type Document struct {
	Path     string
	Text     string
	Markdown bool
}

// Node is a contiguous span of a document's text.
type Node struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	DocPath  string            `json:"doc_path"`
	Position int               `json:"position"` // order within the document
	Level    int               `json:"level"`    // 0 is the coarsest level
	ParentID string            `json:"parent_id,omitempty"`
	ChildIDs []string          `json:"child_ids,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.ChildIDs) == 0 }

// Splitter turns documents into nodes.
type Splitter interface {
	Split(docs []Document) ([]Node, error)
}

// Leaves returns the nodes without children, preserving order.
func Leaves(nodes []Node) []Node {
	leaves := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n.IsLeaf() {
			leaves = append(leaves, n)
		}
	}
	return leaves
}
