package chunking

import (
	"strings"
	"testing"
)

// TestSections_BasicHeaders tests sectioning with H1 and multiple H2s.
func TestSections_BasicHeaders(t *testing.T) {
	input := `# Getting Started

Introduction text here.

## Installation

Install steps here.

## Configuration

Config details here.
`

	sections, err := NewMarkdownSectioner().Sections([]byte(input))
	if err != nil {
		t.Fatalf("Sections failed: %v", err)
	}

	expectedPaths := []string{
		"# Getting Started",
		"# Getting Started > ## Installation",
		"# Getting Started > ## Configuration",
	}
	if len(sections) != len(expectedPaths) {
		t.Fatalf("Expected %d sections, got %d", len(expectedPaths), len(sections))
	}
	for i, expectedPath := range expectedPaths {
		if sections[i].HeaderPath != expectedPath {
			t.Errorf("Section %d HeaderPath: expected %q, got %q", i, expectedPath, sections[i].HeaderPath)
		}
	}

	// Sections do not overlap: the H1 section stops at the first H2.
	if strings.Contains(sections[0].Text, "Install steps here") {
		t.Errorf("Section 0 leaked into the next section")
	}
	if !strings.HasPrefix(sections[1].Text, "## Installation") {
		t.Errorf("Section 1 should start with its heading line, got %q", sections[1].Text)
	}
	if strings.HasSuffix(sections[1].Text, "#") {
		t.Errorf("Section 1 should not end with the next heading marker")
	}
}

// TestSections_H3IsNotABoundary tests that deeper headings stay inside their H2.
func TestSections_H3IsNotABoundary(t *testing.T) {
	input := `# API Reference

Overview of the API.

## Methods

Available methods:

` + "```go" + `
func DoSomething() error {
    return nil
}
` + "```" + `

### Details

Some details here.
`

	sections, err := NewMarkdownSectioner().Sections([]byte(input))
	if err != nil {
		t.Fatalf("Sections failed: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("Expected 2 sections, got %d", len(sections))
	}
	if !strings.Contains(sections[1].Text, "func DoSomething()") {
		t.Errorf("Methods section missing code block")
	}
	if !strings.Contains(sections[1].Text, "### Details") {
		t.Errorf("Methods section missing H3 subsection")
	}
}

// TestSections_Preamble tests that text before the first heading is kept.
func TestSections_Preamble(t *testing.T) {
	input := `Front matter paragraph.

# Title

Body.
`

	sections, err := NewMarkdownSectioner().Sections([]byte(input))
	if err != nil {
		t.Fatalf("Sections failed: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("Expected 2 sections, got %d", len(sections))
	}
	if sections[0].HeaderPath != "" || sections[0].Text != "Front matter paragraph." {
		t.Errorf("Unexpected preamble section: %+v", sections[0])
	}
	if sections[1].HeaderPath != "# Title" {
		t.Errorf("Expected '# Title', got %q", sections[1].HeaderPath)
	}
}

// TestSections_NoHeaders tests document with no headers.
func TestSections_NoHeaders(t *testing.T) {
	input := `This is a document with no headers.

Just plain text content.
`

	sections, err := NewMarkdownSectioner().Sections([]byte(input))
	if err != nil {
		t.Fatalf("Sections failed: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("Expected 1 section, got %d", len(sections))
	}
	if sections[0].HeaderPath != "" {
		t.Errorf("Expected empty HeaderPath, got %q", sections[0].HeaderPath)
	}
}

// TestSections_MultipleH1s tests multiple top-level sections.
func TestSections_MultipleH1s(t *testing.T) {
	input := `# First Section

First content.

## First Subsection

First subsection content.

# Second Section

Second content.
`

	sections, err := NewMarkdownSectioner().Sections([]byte(input))
	if err != nil {
		t.Fatalf("Sections failed: %v", err)
	}

	expectedPaths := []string{
		"# First Section",
		"# First Section > ## First Subsection",
		"# Second Section",
	}
	if len(sections) != len(expectedPaths) {
		t.Fatalf("Expected %d sections, got %d", len(expectedPaths), len(sections))
	}
	for i, expectedPath := range expectedPaths {
		if sections[i].HeaderPath != expectedPath {
			t.Errorf("Section %d: expected path %q, got %q", i, expectedPath, sections[i].HeaderPath)
		}
	}
}
