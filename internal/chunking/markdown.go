package chunking

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Section is a slice of a document delimited by H1/H2 headings.
type Section struct {
	HeaderPath string // "# Doc Title > ## Section Name"
	Text       string
}

// MarkdownSectioner splits markdown at H1 and H2 boundaries so that nodes
// never straddle two sections and carry their header hierarchy.
type MarkdownSectioner struct {
	parser goldmark.Markdown
}

// NewMarkdownSectioner creates a sectioner configured with the goldmark parser.
func NewMarkdownSectioner() *MarkdownSectioner {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &MarkdownSectioner{parser: md}
}

// Sections splits source into heading-delimited sections. Text before the
// first heading becomes a section with an empty header path. A document
// without headings is returned as a single section.
func (m *MarkdownSectioner) Sections(source []byte) ([]Section, error) {
	doc := m.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var flat []tocEntry
	flatten(tree.Items, nil, &flat)

	type bound struct {
		start      int
		headerPath string
	}
	var bounds []bound
	for _, e := range flat {
		heading := findHeaderByID(doc, e.id)
		if heading == nil || heading.Lines().Len() == 0 {
			continue
		}
		bounds = append(bounds, bound{
			start:      lineStart(source, heading.Lines().At(0).Start),
			headerPath: e.headerPath,
		})
	}

	if len(bounds) == 0 {
		return []Section{{Text: strings.TrimSpace(string(source))}}, nil
	}

	var sections []Section
	if pre := strings.TrimSpace(string(source[:bounds[0].start])); pre != "" {
		sections = append(sections, Section{Text: pre})
	}
	for i, b := range bounds {
		end := len(source)
		if i+1 < len(bounds) {
			end = bounds[i+1].start
		}
		content := strings.TrimSpace(string(source[b.start:end]))
		if content == "" {
			continue
		}
		sections = append(sections, Section{HeaderPath: b.headerPath, Text: content})
	}
	return sections, nil
}

type tocEntry struct {
	id         string
	headerPath string
}

// flatten walks TOC items in document order, recording header paths.
func flatten(items toc.Items, ancestors []string, out *[]tocEntry) {
	for _, item := range items {
		path := append(append([]string(nil), ancestors...), string(item.Title))
		*out = append(*out, tocEntry{id: string(item.ID), headerPath: formatHeaderPath(path)})
		if len(item.Items) > 0 {
			flatten(item.Items, path, out)
		}
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	if len(path) == 0 {
		return ""
	}

	parts := make([]string, 0, len(path))
	for i, segment := range path {
		parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment))
	}
	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok {
				if b, isBytes := headingID.([]byte); isBytes && string(b) == id {
					found = n
					return ast.WalkStop, nil
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// lineStart moves pos back to the first byte of its line so that heading
// markers stay with their own section.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

// sectionsOf returns the sections of doc; non-markdown documents are a
// single untitled section.
func sectionsOf(m *MarkdownSectioner, doc Document) ([]Section, error) {
	if !doc.Markdown {
		return []Section{{Text: doc.Text}}, nil
	}
	sections, err := m.Sections([]byte(doc.Text))
	if err != nil {
		return nil, fmt.Errorf("section %s: %w", doc.Path, err)
	}
	return sections, nil
}

func headerMeta(s Section) map[string]string {
	if s.HeaderPath == "" {
		return map[string]string{}
	}
	return map[string]string{MetaHeaderPath: s.HeaderPath}
}
