package chunking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultWindowSize is the number of sentences kept on each side.
const DefaultWindowSize = 3

// sentencePattern matches a run of text up to and including its terminal
// punctuation (ASCII or CJK) and any closing quotes or brackets.
var sentencePattern = regexp.MustCompile(`[^.!?。！？]+(?:[.!?。！？]+["'”’)\]」』]*|$)`)

// SplitSentences breaks text into trimmed, non-empty sentences.
func SplitSentences(text string) []string {
	raw := sentencePattern.FindAllString(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// SentenceWindowSplitter produces one node per sentence. Each node keeps
// the surrounding window of sentences in its metadata so retrieval can
// return the wider context while matching on the single sentence.
type SentenceWindowSplitter struct {
	window   int
	sections *MarkdownSectioner
}

// NewSentenceWindowSplitter returns a splitter; window <= 0 means
// DefaultWindowSize.
func NewSentenceWindowSplitter(window int) *SentenceWindowSplitter {
	if window <= 0 {
		window = DefaultWindowSize
	}
	return &SentenceWindowSplitter{window: window, sections: NewMarkdownSectioner()}
}

// Window is the number of sentences kept on each side.
func (s *SentenceWindowSplitter) Window() int { return s.window }

// Split implements Splitter.
func (s *SentenceWindowSplitter) Split(docs []Document) ([]Node, error) {
	var nodes []Node
	for _, doc := range docs {
		sections, err := sectionsOf(s.sections, doc)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", doc.Path, err)
		}
		position := 0
		for _, section := range sections {
			sentences := SplitSentences(section.Text)
			for i, sentence := range sentences {
				lo := max(0, i-s.window)
				hi := min(len(sentences), i+s.window+1)

				meta := headerMeta(section)
				meta[MetaWindow] = strings.Join(sentences[lo:hi], " ")
				meta[MetaOriginalText] = sentence

				nodes = append(nodes, Node{
					ID:       uuid.New().String(),
					Text:     sentence,
					DocPath:  doc.Path,
					Position: position,
					Metadata: meta,
				})
				position++
			}
		}
	}
	return nodes, nil
}
