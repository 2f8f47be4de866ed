package splitter

import (
	"regexp"
	"sort"
	"unicode"
	"unicode/utf8"
)

// Boundary patterns. RE2 has no lookbehind/lookahead, so the punctuation
// boundary captures its whitespace run as a submatch and the three boundary
// kinds are matched independently, then merged with overlap resolution.
var (
	punctBoundaryRe  = regexp.MustCompile(`[.!?](\s+)[A-ZА-Я]`)
	newlineRe        = regexp.MustCompile(`\n+`)
	digestBoundaryRe = regexp.MustCompile(`\s+[·•|]\s+`)
	wordRe           = regexp.MustCompile(`\S+`)
	htmlTagRe        = regexp.MustCompile(`<(?:[^>"']|"[^"]*"|'[^']*')*>`)
)

type boundary struct {
	start, end int
	kind       int // 0 punctuation, 1 newline, 2 digest
}

// findBoundaries locates sentence boundaries in text. withDigest additionally
// treats digest separators (·, •, |) surrounded by whitespace as boundaries.
func findBoundaries(text string, withDigest bool) []boundary {
	var all []boundary
	for _, m := range punctBoundaryRe.FindAllStringSubmatchIndex(text, -1) {
		// boundary is the whitespace run between punctuation and the
		// following uppercase letter
		all = append(all, boundary{start: m[2], end: m[3], kind: 0})
	}
	for _, m := range newlineRe.FindAllStringIndex(text, -1) {
		all = append(all, boundary{start: m[0], end: m[1], kind: 1})
	}
	if withDigest {
		for _, m := range digestBoundaryRe.FindAllStringIndex(text, -1) {
			all = append(all, boundary{start: m[0], end: m[1], kind: 2})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].start != all[j].start {
			return all[i].start < all[j].start
		}
		return all[i].kind < all[j].kind
	})
	merged := all[:0]
	last := -1
	for _, b := range all {
		if b.start < last {
			continue
		}
		merged = append(merged, b)
		last = b.end
	}
	return merged
}

// trimSpan shrinks [start, end) past leading and trailing whitespace.
func trimSpan(text string, start, end int) (int, int) {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	return start, end
}

func sentencesFromSpans(text string, spans [][2]int) []Sentence {
	result := make([]Sentence, 0, len(spans))
	for i, sp := range spans {
		result = append(result, Sentence{
			Index: i,
			Start: sp[0],
			End:   sp[1],
			Text:  text[sp[0]:sp[1]],
		})
	}
	return result
}

func hasContent(text string) bool {
	for _, r := range text {
		if !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

// RegexSplitter splits text into sentences on punctuation followed by an
// uppercase letter (Latin or Cyrillic) and on newline runs.
type RegexSplitter struct{}

func NewRegexSplitter() *RegexSplitter { return &RegexSplitter{} }

func (s *RegexSplitter) Split(text string) []Sentence {
	if !hasContent(text) {
		return nil
	}
	var spans [][2]int
	start := 0
	for _, b := range findBoundaries(text, false) {
		if ts, te := trimSpan(text, start, b.start); ts < te {
			spans = append(spans, [2]int{ts, te})
		}
		start = b.end
	}
	if ts, te := trimSpan(text, start, len(text)); ts < te {
		spans = append(spans, [2]int{ts, te})
	}
	return sentencesFromSpans(text, spans)
}

// DenseSplitter produces denser marker units for topic labeling. It keeps
// the regex boundaries, adds digest separators, and inserts soft anchors
// roughly every anchorEveryWords words. Optional html-aware mode prevents
// cuts inside HTML tag spans.
type DenseSplitter struct {
	anchorEveryWords int
	htmlAware        bool
}

func NewDenseSplitter(anchorEveryWords int, htmlAware bool) *DenseSplitter {
	if anchorEveryWords <= 0 {
		anchorEveryWords = 24
	}
	return &DenseSplitter{anchorEveryWords: anchorEveryWords, htmlAware: htmlAware}
}

func (s *DenseSplitter) Split(text string) []Sentence {
	if !hasContent(text) {
		return nil
	}

	var tags tagSpans
	if s.htmlAware {
		tags = computeTagSpans(text)
	}

	var spans [][2]int
	start := 0
	for _, b := range findBoundaries(text, true) {
		if s.htmlAware && tags.overlapsRange(b.start, b.end) {
			continue
		}
		if ts, te := trimSpan(text, start, b.start); ts < te {
			spans = append(spans, [2]int{ts, te})
		}
		start = b.end
	}
	if ts, te := trimSpan(text, start, len(text)); ts < te {
		spans = append(spans, [2]int{ts, te})
	}

	var anchored [][2]int
	for _, sp := range spans {
		anchored = append(anchored, splitSpanByWordAnchor(text, sp[0], sp[1], s.anchorEveryWords, tags)...)
	}
	return sentencesFromSpans(text, anchored)
}

// tagSpans holds sorted, non-overlapping protected byte ranges (HTML tags,
// comments, raw element content). A zero value means no protected spans.
type tagSpans struct {
	starts []int
	ends   []int
}

func computeTagSpans(text string) tagSpans {
	var t tagSpans
	for _, m := range htmlTagRe.FindAllStringIndex(text, -1) {
		t.starts = append(t.starts, m[0])
		t.ends = append(t.ends, m[1])
	}
	return t
}

// contains reports whether pos falls inside a protected span.
func (t tagSpans) contains(pos int) bool {
	idx := sort.SearchInts(t.starts, pos+1) - 1
	return idx >= 0 && pos < t.ends[idx]
}

// overlapsRange reports whether [start, end) intersects any protected span.
func (t tagSpans) overlapsRange(start, end int) bool {
	if t.contains(start) {
		return true
	}
	if end > start && t.contains(end-1) {
		return true
	}
	idx := sort.SearchInts(t.starts, start)
	return idx < len(t.starts) && t.starts[idx] < end
}

// splitSpanByWordAnchor subdivides [start, end) at the nearest whitespace
// after every anchorEveryWords-th word. Words inside protected spans do not
// count and cuts never land inside them.
func splitSpanByWordAnchor(text string, start, end, anchorEveryWords int, tags tagSpans) [][2]int {
	var words [][2]int
	for _, m := range wordRe.FindAllStringIndex(text[start:end], -1) {
		ws, we := m[0]+start, m[1]+start
		if tags.contains(ws) {
			continue
		}
		words = append(words, [2]int{ws, we})
	}
	if len(words) <= anchorEveryWords {
		return [][2]int{{start, end}}
	}

	var cuts []int
	for wc := anchorEveryWords; wc < len(words); wc += anchorEveryWords {
		if cut, ok := findWhitespaceCut(text, words[wc-1][1], end, tags); ok {
			cuts = append(cuts, cut)
		}
	}
	if len(cuts) == 0 {
		return [][2]int{{start, end}}
	}

	var spans [][2]int
	spanStart := start
	for _, cut := range cuts {
		if ts, te := trimSpan(text, spanStart, cut); ts < te {
			spans = append(spans, [2]int{ts, te})
			spanStart = cut
		}
	}
	if ts, te := trimSpan(text, spanStart, end); ts < te {
		spans = append(spans, [2]int{ts, te})
	}
	if len(spans) == 0 {
		return [][2]int{{start, end}}
	}
	return spans
}

// findWhitespaceCut scans forward from start for a whitespace position not
// inside a protected span, falling back to a backward scan.
func findWhitespaceCut(text string, start, end int, tags tagSpans) (int, bool) {
	if start >= end {
		return 0, false
	}
	for right := start; right < end; {
		r, size := utf8.DecodeRuneInString(text[right:end])
		if unicode.IsSpace(r) && !tags.contains(right) {
			return right, true
		}
		right += size
	}
	for left := start; left > 0; {
		r, size := utf8.DecodeLastRuneInString(text[:left])
		left -= size
		if unicode.IsSpace(r) && !tags.contains(left) {
			return left + size, true
		}
	}
	return 0, false
}
