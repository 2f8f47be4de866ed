package splitter

import (
	"fmt"
	"sort"
	"strings"
)

// AdjacentJoiner merges adjacent groups that share the same topic label
// when their ranges touch or overlap.
type AdjacentJoiner struct{}

func NewAdjacentJoiner() *AdjacentJoiner { return &AdjacentJoiner{} }

func (j *AdjacentJoiner) Join(groups []SentenceGroup, _ []Sentence) []SentenceGroup {
	if len(groups) == 0 {
		return nil
	}
	merged := []SentenceGroup{groups[0]}
	for _, g := range groups[1:] {
		prev := merged[len(merged)-1]
		if LabelEqual(prev.Label, g.Label) && touchesOrOverlaps(prev, g) {
			merged[len(merged)-1] = SentenceGroup{
				Label:  prev.Label,
				Ranges: coalesceRanges(append(append([]SentenceRange{}, prev.Ranges...), g.Ranges...)),
			}
			continue
		}
		merged = append(merged, g)
	}
	return merged
}

func touchesOrOverlaps(left, right SentenceGroup) bool {
	if len(left.Ranges) == 0 || len(right.Ranges) == 0 {
		return false
	}
	leftEnd := left.Ranges[0].End
	for _, r := range left.Ranges[1:] {
		if r.End > leftEnd {
			leftEnd = r.End
		}
	}
	rightStart := right.Ranges[0].Start
	for _, r := range right.Ranges[1:] {
		if r.Start < rightStart {
			rightStart = r.Start
		}
	}
	return rightStart <= leftEnd+1
}

func coalesceRanges(ranges []SentenceRange) []SentenceRange {
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Start != ranges[j].Start {
			return ranges[i].Start < ranges[j].Start
		}
		return ranges[i].End < ranges[j].End
	})
	coalesced := []SentenceRange{ranges[0]}
	for _, cur := range ranges[1:] {
		last := &coalesced[len(coalesced)-1]
		if cur.Start <= last.End+1 {
			if cur.End > last.End {
				last.End = cur.End
			}
			continue
		}
		coalesced = append(coalesced, cur)
	}
	return coalesced
}

// JoinSentencesByGroups rewrites the sentence list so each group range
// becomes one joined sentence, and remaps group ranges onto the new
// single-index form.
func JoinSentencesByGroups(groups []SentenceGroup, sentences []Sentence) ([]Sentence, []SentenceGroup, error) {
	var joined []Sentence
	var remapped []SentenceGroup
	for _, g := range groups {
		ranges := append([]SentenceRange(nil), g.Ranges...)
		sort.Slice(ranges, func(i, j int) bool {
			if ranges[i].Start != ranges[j].Start {
				return ranges[i].Start < ranges[j].Start
			}
			return ranges[i].End < ranges[j].End
		})
		var newRanges []SentenceRange
		for _, r := range ranges {
			js, err := joinSentenceRange(r, sentences, len(joined))
			if err != nil {
				return nil, nil, err
			}
			joined = append(joined, js)
			newRanges = append(newRanges, SentenceRange{Start: js.Index, End: js.Index})
		}
		remapped = append(remapped, SentenceGroup{Label: g.Label, Ranges: newRanges})
	}
	return joined, remapped, nil
}

func joinSentenceRange(r SentenceRange, sentences []Sentence, nextIndex int) (Sentence, error) {
	if r.Start < 0 {
		return Sentence{}, fmt.Errorf("sentence range start must be >= 0, got %d", r.Start)
	}
	if r.End < r.Start {
		return Sentence{}, fmt.Errorf("sentence range end must be >= start, got %d-%d", r.Start, r.End)
	}
	if r.End >= len(sentences) {
		return Sentence{}, fmt.Errorf("sentence range end exceeds sentence count: %d >= %d", r.End, len(sentences))
	}
	selected := sentences[r.Start : r.End+1]
	parts := make([]string, len(selected))
	for i, s := range selected {
		parts[i] = s.Text
	}
	return Sentence{
		Index: nextIndex,
		Start: selected[0].Start,
		End:   selected[len(selected)-1].End,
		Text:  strings.TrimSpace(strings.Join(parts, " ")),
	}, nil
}
