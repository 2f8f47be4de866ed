package splitter

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	rangePairRe    = regexp.MustCompile(`^(\d+)\s*-\s*(\d+)`)
	singleNumberRe = regexp.MustCompile(`^(\d+)`)
)

// TopicRangeParser parses LLM topic-range responses into sentence groups.
//
// Expected format per line:
//
//	Category>Subcategory>Topic: 0-5, 10-15
//
// Labels split on '>', ranges clamp to [0, sentenceCount-1] and sort by
// start. Coverage validation and gap filling belong to the gap handler.
type TopicRangeParser struct{}

func NewTopicRangeParser() *TopicRangeParser { return &TopicRangeParser{} }

func (p *TopicRangeParser) Parse(response string, sentenceCount int) ([]SentenceGroup, error) {
	if sentenceCount <= 0 {
		return nil, fmt.Errorf("%w: sentence count must be positive", ErrParse)
	}
	maxIndex := sentenceCount - 1

	var groups []SentenceGroup
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		topicPath, rangesStr, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		label := parseLabel(topicPath)
		if len(label) == 0 {
			continue
		}

		var clamped []SentenceRange
		for _, r := range parseRangeString(strings.TrimSpace(rangesStr)) {
			start := clamp(r[0], 0, maxIndex)
			end := clamp(r[1], 0, maxIndex)
			if start > end {
				start, end = end, start
			}
			clamped = append(clamped, SentenceRange{Start: start, End: end})
		}
		sort.Slice(clamped, func(i, j int) bool {
			if clamped[i].Start != clamped[j].Start {
				return clamped[i].Start < clamped[j].Start
			}
			return clamped[i].End < clamped[j].End
		})
		if len(clamped) > 0 {
			groups = append(groups, SentenceGroup{Label: label, Ranges: clamped})
		}
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no valid topic ranges found in response", ErrParse)
	}
	return groups, nil
}

// parseLabel splits a topic path on '>' into trimmed non-empty segments.
func parseLabel(topicPath string) []string {
	var label []string
	for _, part := range strings.Split(topicPath, ">") {
		if part = strings.TrimSpace(part); part != "" {
			label = append(label, part)
		}
	}
	return label
}

// parseRangeString parses "0-5, 10-15, 20" into start/end pairs. Single
// integers become (n, n). Unparseable parts are skipped.
func parseRangeString(rangesStr string) [][2]int {
	var results [][2]int
	for _, part := range strings.Split(rangesStr, ",") {
		part = strings.TrimSpace(part)
		if strings.Contains(part, "-") && !strings.HasPrefix(part, "-") {
			if m := rangePairRe.FindStringSubmatch(part); m != nil {
				a, _ := strconv.Atoi(m[1])
				b, _ := strconv.Atoi(m[2])
				results = append(results, [2]int{a, b})
				continue
			}
		}
		if m := singleNumberRe.FindStringSubmatch(part); m != nil {
			n, _ := strconv.Atoi(m[1])
			results = append(results, [2]int{n, n})
		}
	}
	return results
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
