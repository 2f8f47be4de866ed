package splitter

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

const (
	defaultMinSentenceLen = 40
	defaultMaxSentenceLen = 300
)

// Clause boundary patterns, ordered by priority.
var (
	semicolonRe        = regexp.MustCompile(`;`)
	commaConjunctionRe = regexp.MustCompile(`(?i),\s+(?:and|but|or|so|yet|however|moreover|furthermore|nevertheless)\s`)
	commaRe            = regexp.MustCompile(`,`)
)

// NormalizingSplitter wraps a SentenceSplitter, merging sentences shorter
// than minLength with a neighbour and splitting sentences longer than
// maxLength at clause boundaries, then re-indexing.
type NormalizingSplitter struct {
	inner     SentenceSplitter
	minLength int
	maxLength int
}

func NewNormalizingSplitter(inner SentenceSplitter, minLength, maxLength int) *NormalizingSplitter {
	if minLength <= 0 {
		minLength = defaultMinSentenceLen
	}
	if maxLength <= minLength {
		maxLength = defaultMaxSentenceLen
	}
	return &NormalizingSplitter{inner: inner, minLength: minLength, maxLength: maxLength}
}

func (n *NormalizingSplitter) Split(text string) []Sentence {
	sentences := n.inner.Split(text)
	if len(sentences) == 0 {
		return sentences
	}
	sentences = mergeShort(sentences, text, n.minLength)
	sentences = splitLong(sentences, text, n.maxLength)
	for i := range sentences {
		sentences[i].Index = i
	}
	return sentences
}

// mergeShort folds sentences shorter than minLength into the previous
// sentence; a short first sentence is held and merged with the next.
func mergeShort(sentences []Sentence, text string, minLength int) []Sentence {
	if len(sentences) <= 1 {
		return sentences
	}
	var merged []Sentence
	var pending *Sentence
	for _, s := range sentences {
		if pending != nil {
			merged = append(merged, combineSpan(*pending, s, text))
			pending = nil
			continue
		}
		if len(s.Text) < minLength {
			if len(merged) > 0 {
				merged[len(merged)-1] = combineSpan(merged[len(merged)-1], s, text)
			} else {
				s := s
				pending = &s
			}
		} else {
			merged = append(merged, s)
		}
	}
	if pending != nil {
		merged = append(merged, *pending)
	}
	return merged
}

// combineSpan merges two adjacent sentences by taking the outer span and
// re-slicing the canonical text, preserving internal whitespace.
func combineSpan(a, b Sentence, text string) Sentence {
	return Sentence{Start: a.Start, End: b.End, Text: text[a.Start:b.End]}
}

func splitLong(sentences []Sentence, text string, maxLength int) []Sentence {
	var result []Sentence
	for _, s := range sentences {
		result = append(result, splitSingle(s, text, maxLength)...)
	}
	return result
}

// splitSingle recursively splits one sentence at the clause boundary
// nearest the midpoint until every piece fits within maxLength.
func splitSingle(s Sentence, text string, maxLength int) []Sentence {
	if len(s.Text) <= maxLength {
		return []Sentence{s}
	}
	offset := findSplitPoint(s.Text)
	if offset <= 0 || offset >= len(s.Text) {
		return []Sentence{s}
	}

	absSplit := s.Start + offset
	firstEnd := absSplit
	for firstEnd > s.Start {
		r, size := utf8.DecodeLastRuneInString(text[s.Start:firstEnd])
		if !unicode.IsSpace(r) {
			break
		}
		firstEnd -= size
	}
	secondStart := absSplit
	for secondStart < s.End {
		r, size := utf8.DecodeRuneInString(text[secondStart:s.End])
		if !unicode.IsSpace(r) {
			break
		}
		secondStart += size
	}
	if firstEnd <= s.Start || secondStart >= s.End {
		return []Sentence{s}
	}

	first := Sentence{Start: s.Start, End: firstEnd, Text: text[s.Start:firstEnd]}
	second := Sentence{Start: secondStart, End: s.End, Text: text[secondStart:s.End]}
	return append(splitSingle(first, text, maxLength), splitSingle(second, text, maxLength)...)
}

// findSplitPoint picks the split offset within sentence text: the clause
// boundary nearest the midpoint with priority semicolon, comma followed by
// a conjunction, plain comma, then the space nearest the midpoint, then the
// raw midpoint.
func findSplitPoint(text string) int {
	mid := len(text) / 2
	for _, re := range []*regexp.Regexp{semicolonRe, commaConjunctionRe, commaRe} {
		matches := re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		best := matches[0][1]
		for _, m := range matches[1:] {
			if abs(m[1]-mid) < abs(best-mid) {
				best = m[1]
			}
		}
		return best
	}
	bestSpace := -1
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' {
			if bestSpace == -1 || abs(i-mid) < abs(bestSpace-mid) {
				bestSpace = i
			}
		}
	}
	if bestSpace >= 0 {
		return bestSpace + 1
	}
	return mid
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
