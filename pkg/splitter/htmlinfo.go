package splitter

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// blockTags are HTML elements whose edges act as zero-width sentence
// boundary points in html-aware splitting.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "details": true, "div": true, "dl": true,
	"dt": true, "fieldset": true, "figcaption": true, "figure": true,
	"footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hgroup": true,
	"hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "pre": true, "section": true, "summary": true, "table": true,
	"tbody": true, "td": true, "tfoot": true, "th": true, "thead": true,
	"tr": true, "ul": true,
}

var rawContentTags = map[string]bool{"script": true, "style": true}

// htmlInfo is the structural analysis of an HTML document: protected byte
// spans (tags, comments, doctypes, script/style content) and block-element
// boundary positions.
type htmlInfo struct {
	protected tagSpans
	blocks    []int
}

// analyzeHTML tokenizes text with the tolerant x/net tokenizer, tracking
// byte offsets via the cumulative length of each token's raw bytes.
func analyzeHTML(text string) htmlInfo {
	z := html.NewTokenizer(strings.NewReader(text))
	var spans [][2]int
	var blocks []int
	inRaw := false
	offset := 0
	for {
		tt := z.Next()
		raw := z.Raw()
		start, end := offset, offset+len(raw)
		offset = end
		switch tt {
		case html.ErrorToken:
			// EOF or unparseable trailing bytes; the remainder stays
			// unprotected text
			return buildHTMLInfo(spans, blocks)
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			spans = append(spans, [2]int{start, end})
			if blockTags[tag] {
				blocks = append(blocks, start)
			}
			if rawContentTags[tag] {
				inRaw = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			spans = append(spans, [2]int{start, end})
			if blockTags[tag] {
				blocks = append(blocks, end)
			}
			if rawContentTags[tag] {
				inRaw = false
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			spans = append(spans, [2]int{start, end})
			if blockTags[tag] {
				blocks = append(blocks, start, end)
			}
		case html.CommentToken, html.DoctypeToken:
			spans = append(spans, [2]int{start, end})
		case html.TextToken:
			if inRaw {
				spans = append(spans, [2]int{start, end})
			}
		}
	}
}

func buildHTMLInfo(spans [][2]int, blocks []int) htmlInfo {
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	var t tagSpans
	for _, sp := range spans {
		if n := len(t.ends); n > 0 && sp[0] <= t.ends[n-1] {
			if sp[1] > t.ends[n-1] {
				t.ends[n-1] = sp[1]
			}
			continue
		}
		t.starts = append(t.starts, sp[0])
		t.ends = append(t.ends, sp[1])
	}
	sort.Ints(blocks)
	uniq := blocks[:0]
	prev := -1
	for _, b := range blocks {
		if b != prev {
			uniq = append(uniq, b)
			prev = b
		}
	}
	return htmlInfo{protected: t, blocks: uniq}
}

// HTMLAwareSplitter splits HTML text into sentences using a tolerant
// tokenizer for tag detection. Block-level element edges become zero-width
// boundaries, script/style content is uncuttable, and comments and
// declarations are protected spans.
type HTMLAwareSplitter struct {
	anchorEveryWords int
	blockBoundaries  bool
}

func NewHTMLAwareSplitter(anchorEveryWords int, blockTagsAsBoundaries bool) *HTMLAwareSplitter {
	if anchorEveryWords <= 0 {
		anchorEveryWords = 24
	}
	return &HTMLAwareSplitter{
		anchorEveryWords: anchorEveryWords,
		blockBoundaries:  blockTagsAsBoundaries,
	}
}

func (s *HTMLAwareSplitter) Split(text string) []Sentence {
	if !hasContent(text) {
		return nil
	}

	info := analyzeHTML(text)

	var valid []boundary
	for _, b := range findBoundaries(text, true) {
		if !info.protected.overlapsRange(b.start, b.end) {
			valid = append(valid, b)
		}
	}

	all := valid
	if s.blockBoundaries && len(info.blocks) > 0 {
		all = mergeBlockBoundaries(valid, info.blocks)
	}

	var spans [][2]int
	start := 0
	for _, b := range all {
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
		anchored = append(anchored, splitSpanByWordAnchor(text, sp[0], sp[1], s.anchorEveryWords, info.protected)...)
	}
	return sentencesFromSpans(text, anchored)
}

// mergeBlockBoundaries folds block-element positions into the boundary list
// as zero-width boundaries, dropping positions a regex boundary already
// covers.
func mergeBlockBoundaries(boundaries []boundary, blocks []int) []boundary {
	merged := append([]boundary(nil), boundaries...)
	for _, pos := range blocks {
		covered := false
		for _, b := range boundaries {
			if b.start <= pos && pos <= b.end {
				covered = true
				break
			}
		}
		if !covered {
			merged = append(merged, boundary{start: pos, end: pos})
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].start != merged[j].start {
			return merged[i].start < merged[j].start
		}
		return merged[i].end < merged[j].end
	})
	return merged
}
