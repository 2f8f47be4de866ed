package splitter

import (
	"fmt"
	"strings"
)

// BracketMarker renders sentences with {N} bracket markers, one sentence
// per line. If no sentences exist but the raw text is non-empty, a single
// fallback line carries the whole text.
type BracketMarker struct{}

func NewBracketMarker() *BracketMarker { return &BracketMarker{} }

func (m *BracketMarker) Mark(text string, sentences []Sentence) MarkedText {
	lines := make([]string, 0, len(sentences))
	for _, s := range sentences {
		lines = append(lines, fmt.Sprintf("{%d} %s", s.Index, s.Text))
	}
	if len(lines) == 0 && strings.TrimSpace(text) != "" {
		lines = append(lines, fmt.Sprintf("{0} %s", text))
	}
	return MarkedText{
		TaggedText:    strings.Join(lines, "\n"),
		SentenceCount: len(lines),
	}
}
