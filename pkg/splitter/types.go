// Package splitter implements the multi-stage text splitting and topic
// labeling pipeline: sentence segmentation, length normalization, marker
// formatting, size-bounded chunking, LLM topic extraction, response parsing,
// gap handling, group joining, and HTML offset restoration.
package splitter

import (
	"context"
	"fmt"
	"sort"
)

// Sentence is a unit of text produced by a splitter. Start and End are byte
// offsets into the source text (half-open, slice convention). In the clean
// text stage Text equals source[Start:End]; after offset restoration the
// offsets point into the original HTML while Text stays tag-free.
type Sentence struct {
	Index int    `json:"index" bson:"index"`
	Start int    `json:"start" bson:"start"`
	End   int    `json:"end" bson:"end"`
	Text  string `json:"text" bson:"text"`
}

// MarkedText is sentence text rendered with {N} markers, one sentence per
// line. Marker IDs equal global sentence indices; chunking carries sub-ranges
// of those IDs without renumbering.
type MarkedText struct {
	TaggedText    string
	SentenceCount int
}

// SentenceRange is a pair of sentence indices, both inclusive.
type SentenceRange struct {
	Start int `json:"start" bson:"start"`
	End   int `json:"end" bson:"end"`
}

// SentenceGroup is a set of sentence ranges sharing one hierarchical topic
// label (1-4 segments, most general first).
type SentenceGroup struct {
	Label  []string
	Ranges []SentenceRange
}

// SplitResult is the final output of the pipeline.
type SplitResult struct {
	Sentences []Sentence
	Groups    []SentenceGroup
}

// OffsetSegment maps a contiguous run of clean text back to the original
// text it was extracted from.
type OffsetSegment struct {
	CleanOffset    int
	OriginalOffset int
	Length         int
}

// OffsetMapping translates clean-text positions to original-text positions.
// Segments are sorted by CleanOffset and tile [0, CleanLength) exactly.
type OffsetMapping struct {
	Segments       []OffsetSegment
	OriginalLength int
	CleanLength    int
}

// ToOriginal maps a clean-text position to the corresponding original-text
// position. cleanPos == CleanLength maps to OriginalLength. The mapping is
// monotone non-decreasing.
func (m OffsetMapping) ToOriginal(cleanPos int) (int, error) {
	if cleanPos < 0 {
		return 0, fmt.Errorf("clean position must be non-negative, got %d", cleanPos)
	}
	if cleanPos > m.CleanLength {
		return 0, fmt.Errorf("clean position %d exceeds clean length %d", cleanPos, m.CleanLength)
	}
	if cleanPos == m.CleanLength {
		return m.OriginalLength, nil
	}
	if len(m.Segments) == 0 {
		return 0, fmt.Errorf("cannot map position %d: mapping has no segments", cleanPos)
	}
	idx := sort.Search(len(m.Segments), func(i int) bool {
		return m.Segments[i].CleanOffset > cleanPos
	}) - 1
	if idx < 0 {
		return 0, fmt.Errorf("position %d precedes first segment", cleanPos)
	}
	seg := m.Segments[idx]
	return seg.OriginalOffset + (cleanPos - seg.CleanOffset), nil
}

// SentenceSplitter segments raw text into sentences. Splitting never fails;
// empty or whitespace-only input yields an empty slice.
type SentenceSplitter interface {
	Split(text string) []Sentence
}

// MarkerStrategy renders sentences into LLM-visible tagged form.
type MarkerStrategy interface {
	Mark(text string, sentences []Sentence) MarkedText
}

// LLMStrategy queries an LLM with marked text and returns the raw response.
type LLMStrategy interface {
	Query(ctx context.Context, marked MarkedText) (string, error)
}

// ResponseParser turns a raw LLM response into sentence groups. It does not
// validate coverage or resolve overlaps.
type ResponseParser interface {
	Parse(response string, sentenceCount int) ([]SentenceGroup, error)
}

// GapHandler enforces the global coverage invariant: every sentence index
// ends up in exactly one range of exactly one group.
type GapHandler interface {
	Handle(ctx context.Context, groups []SentenceGroup, sentenceCount int, sentences []Sentence) ([]SentenceGroup, error)
}

// Enhancer optionally refines group boundaries after gap handling.
type Enhancer interface {
	Enhance(ctx context.Context, groups []SentenceGroup, sentences []Sentence) ([]SentenceGroup, error)
}

// GroupJoiner merges adjacent groups sharing a label.
type GroupJoiner interface {
	Join(groups []SentenceGroup, sentences []Sentence) []SentenceGroup
}

// HTMLCleaner strips markup and records a clean-to-original offset mapping.
type HTMLCleaner interface {
	Clean(text string) (string, OffsetMapping)
}

// OffsetRestorer rewrites sentence offsets from clean-text coordinates back
// to original-text coordinates.
type OffsetRestorer interface {
	Restore(result SplitResult, mapping OffsetMapping) (SplitResult, error)
}

// Chunker splits marked text into size-bounded pieces along line boundaries.
type Chunker interface {
	Chunk(marked MarkedText) []MarkedText
}

// Caller is the minimal LLM client surface the pipeline depends on.
type Caller interface {
	Call(ctx context.Context, prompt string, temperature float64) (string, error)
}

// LabelEqual reports whether two labels are the same hierarchy.
func LabelEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
