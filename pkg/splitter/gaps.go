package splitter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const gapContextSize = 3

var defaultNewTopic = []string{"Uncategorized"}

type flatRange struct {
	group int
	r     SentenceRange
}

func flattenRanges(groups []SentenceGroup) []flatRange {
	var flat []flatRange
	for gi, g := range groups {
		for _, r := range g.Ranges {
			flat = append(flat, flatRange{group: gi, r: r})
		}
	}
	sort.Slice(flat, func(i, j int) bool {
		if flat[i].r.Start != flat[j].r.Start {
			return flat[i].r.Start < flat[j].r.Start
		}
		return flat[i].r.End < flat[j].r.End
	})
	return flat
}

// buildResult assembles output groups preserving input order and dropping
// groups left without ranges.
func buildResult(groups []SentenceGroup, adjusted [][]SentenceRange) []SentenceGroup {
	var result []SentenceGroup
	for gi, g := range groups {
		if len(adjusted[gi]) > 0 {
			result = append(result, SentenceGroup{Label: g.Label, Ranges: adjusted[gi]})
		}
	}
	return result
}

// StrictGapHandler validates continuous coverage: overlaps are trimmed by
// advancing later ranges, and any uncovered sentence is an error.
type StrictGapHandler struct{}

func NewStrictGapHandler() *StrictGapHandler { return &StrictGapHandler{} }

func (h *StrictGapHandler) Handle(_ context.Context, groups []SentenceGroup, sentenceCount int, _ []Sentence) ([]SentenceGroup, error) {
	if sentenceCount <= 0 {
		return nil, fmt.Errorf("%w: sentence count must be positive", ErrGap)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no groups provided", ErrGap)
	}
	maxIndex := sentenceCount - 1

	adjusted := make([][]SentenceRange, len(groups))
	nextExpected := 0
	for _, fr := range flattenRanges(groups) {
		if fr.r.End < nextExpected {
			continue
		}
		start := max(fr.r.Start, nextExpected)
		if start > fr.r.End {
			continue
		}
		if start != nextExpected {
			return nil, fmt.Errorf("%w: sentences %d-%d are not covered", ErrGap, nextExpected, start-1)
		}
		adjusted[fr.group] = append(adjusted[fr.group], SentenceRange{Start: start, End: fr.r.End})
		nextExpected = fr.r.End + 1
	}
	if nextExpected <= maxIndex {
		return nil, fmt.Errorf("%w: incomplete coverage, sentences %d-%d are not covered", ErrGap, nextExpected, maxIndex)
	}
	return buildResult(groups, adjusted), nil
}

// RepairingGapHandler repairs coverage deterministically: overlaps are
// trimmed, a gap before the first range pulls it back to 0, mid gaps extend
// the preceding range forward, and a trailing gap extends the last range to
// the final sentence.
type RepairingGapHandler struct{}

func NewRepairingGapHandler() *RepairingGapHandler { return &RepairingGapHandler{} }

func (h *RepairingGapHandler) Handle(_ context.Context, groups []SentenceGroup, sentenceCount int, _ []Sentence) ([]SentenceGroup, error) {
	if sentenceCount <= 0 {
		return nil, fmt.Errorf("%w: sentence count must be positive", ErrGap)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no groups provided", ErrGap)
	}
	maxIndex := sentenceCount - 1

	adjusted := make([][]SentenceRange, len(groups))
	nextExpected := 0
	lastGroup, lastIdx := -1, -1

	for _, fr := range flattenRanges(groups) {
		if fr.r.End < nextExpected {
			continue
		}
		start := max(fr.r.Start, nextExpected)
		if start > fr.r.End {
			continue
		}
		if start > nextExpected {
			if lastGroup < 0 {
				start = 0
			} else {
				adjusted[lastGroup][lastIdx].End = start - 1
			}
		}
		adjusted[fr.group] = append(adjusted[fr.group], SentenceRange{Start: start, End: fr.r.End})
		lastGroup, lastIdx = fr.group, len(adjusted[fr.group])-1
		nextExpected = fr.r.End + 1
	}

	if nextExpected <= maxIndex {
		if lastGroup < 0 {
			return nil, fmt.Errorf("%w: unable to cover end gap, no ranges found", ErrGap)
		}
		adjusted[lastGroup][lastIdx].End = maxIndex
	}
	return buildResult(groups, adjusted), nil
}

// gapOwner identifies who a sentence belongs to: an existing group index or
// a synthetic id for an LLM-created group.
type gapOwner struct {
	group  int
	newKey string
}

func existingOwner(gi int) gapOwner { return gapOwner{group: gi} }

func (o gapOwner) isNew() bool { return o.newKey != "" }

// LLMGapHandler asks an LLM where each uncovered sentence belongs: the
// previous group, the next group, or a new group. Overlaps are trimmed the
// same way as the other handlers.
type LLMGapHandler struct {
	client      Caller
	temperature float64
	tracer      trace.Tracer
}

func NewLLMGapHandler(client Caller, temperature float64) *LLMGapHandler {
	return &LLMGapHandler{
		client:      client,
		temperature: temperature,
		tracer:      otel.Tracer("peruse/splitter"),
	}
}

type gap struct {
	start, end int
	prevOwner  int // -1 means none
	nextOwner  int // -1 means none
}

func (h *LLMGapHandler) Handle(ctx context.Context, groups []SentenceGroup, sentenceCount int, sentences []Sentence) ([]SentenceGroup, error) {
	ctx, span := h.tracer.Start(ctx, "gap_handler.llm_repair", trace.WithAttributes(
		attribute.Int("sentence_count", sentenceCount),
		attribute.Int("input_group_count", len(groups)),
	))
	defer span.End()

	if sentenceCount <= 0 {
		return nil, fmt.Errorf("%w: sentence count must be positive", ErrGap)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no groups provided", ErrGap)
	}
	if len(sentences) != sentenceCount {
		return nil, fmt.Errorf("%w: sentences length must match sentence count", ErrGap)
	}
	maxIndex := sentenceCount - 1

	ownership := make(map[int]gapOwner)
	nextExpected := 0
	lastOwner := -1
	var gaps []gap

	for _, fr := range flattenRanges(groups) {
		if fr.r.End < nextExpected {
			continue
		}
		start := max(fr.r.Start, nextExpected)
		if start > fr.r.End {
			continue
		}
		if start > nextExpected {
			gaps = append(gaps, gap{start: nextExpected, end: start - 1, prevOwner: lastOwner, nextOwner: fr.group})
		}
		for si := start; si <= fr.r.End; si++ {
			ownership[si] = existingOwner(fr.group)
		}
		lastOwner = fr.group
		nextExpected = fr.r.End + 1
	}
	if nextExpected <= maxIndex {
		gaps = append(gaps, gap{start: nextExpected, end: maxIndex, prevOwner: lastOwner, nextOwner: -1})
	}
	span.SetAttributes(attribute.Int("gap_count", len(gaps)))

	// new groups, deduplicated by label, in discovery order
	var newOrder []string
	newLabels := make(map[string][]string)
	newByLabel := make(map[string]string)

	for _, g := range gaps {
		for si := g.start; si <= g.end; si++ {
			owner, label, err := h.resolveOwner(ctx, sentences, ownership, si, groups, g.prevOwner, g.nextOwner)
			if err != nil {
				return nil, err
			}
			if label != nil {
				key := strings.Join(label, " > ")
				if _, ok := newByLabel[key]; !ok {
					id := fmt.Sprintf("new-%d", len(newOrder))
					newByLabel[key] = id
					newLabels[id] = label
					newOrder = append(newOrder, id)
				}
				ownership[si] = gapOwner{newKey: newByLabel[key]}
			} else {
				ownership[si] = existingOwner(owner)
			}
		}
	}

	for si := 0; si < sentenceCount; si++ {
		if _, ok := ownership[si]; !ok {
			return nil, fmt.Errorf("%w: unable to assign sentence %d", ErrGap, si)
		}
	}

	existingIdx := make([][]int, len(groups))
	newIdx := make(map[string][]int)
	for si := 0; si < sentenceCount; si++ {
		o := ownership[si]
		if o.isNew() {
			newIdx[o.newKey] = append(newIdx[o.newKey], si)
		} else {
			existingIdx[o.group] = append(existingIdx[o.group], si)
		}
	}

	var result []SentenceGroup
	for gi, g := range groups {
		if len(existingIdx[gi]) > 0 {
			result = append(result, SentenceGroup{Label: g.Label, Ranges: indicesToRanges(existingIdx[gi])})
		}
	}
	for _, id := range newOrder {
		if len(newIdx[id]) == 0 {
			continue
		}
		result = append(result, SentenceGroup{Label: newLabels[id], Ranges: indicesToRanges(newIdx[id])})
	}
	span.SetAttributes(
		attribute.Int("output_group_count", len(result)),
		attribute.Int("new_group_count", len(newOrder)),
	)
	return result, nil
}

// resolveOwner decides the owner of one uncovered sentence. It returns
// either an existing group index or a new-group label.
func (h *LLMGapHandler) resolveOwner(ctx context.Context, sentences []Sentence, ownership map[int]gapOwner, sentIdx int, groups []SentenceGroup, prevOwner, nextOwner int) (int, []string, error) {
	ctx, span := h.tracer.Start(ctx, "gap_handler.llm_repair.resolve_sentence", trace.WithAttributes(
		attribute.Int("sentence_index", sentIdx),
	))
	defer span.End()

	if prevOwner < 0 && nextOwner < 0 {
		return 0, nil, fmt.Errorf("%w: unable to resolve gap, no neighboring groups", ErrGap)
	}

	var prevLabel, nextLabel []string
	var prevContext, nextContext []string
	if prevOwner >= 0 {
		prevLabel = groups[prevOwner].Label
		prevContext = gatherContext(sentences, ownership, existingOwner(prevOwner), sentIdx, -1)
	}
	if nextOwner >= 0 {
		nextLabel = groups[nextOwner].Label
		nextContext = gatherContext(sentences, ownership, existingOwner(nextOwner), sentIdx, 1)
	}
	prompt := buildGapPrompt(sentences[sentIdx].Text, prevLabel, prevContext, nextLabel, nextContext)
	span.SetAttributes(
		attribute.String("prev_label", labelOrNone(prevLabel)),
		attribute.String("next_label", labelOrNone(nextLabel)),
		attribute.String("prompt", prompt),
	)

	response, err := h.client.Call(ctx, prompt, h.temperature)
	if err != nil {
		span.RecordError(err)
		return 0, nil, fmt.Errorf("%w: llm call failed during gap repair: %v", ErrGap, err)
	}
	span.SetAttributes(attribute.String("response", response))

	decision, label := parseGapResponse(response)
	switch decision {
	case "previous":
		if prevOwner >= 0 {
			return prevOwner, nil, nil
		}
	case "next":
		if nextOwner >= 0 {
			return nextOwner, nil, nil
		}
	case "new":
		return 0, label, nil
	}
	// ambiguous answers, and answers naming a side the gap does not have,
	// default to the previous group when one exists
	if prevOwner >= 0 {
		return prevOwner, nil, nil
	}
	return nextOwner, nil, nil
}

func labelOrNone(label []string) string {
	if len(label) == 0 {
		return "(none)"
	}
	return strings.Join(label, " > ")
}

// gatherContext collects up to gapContextSize sentences owned by owner,
// scanning outward from the anchor in the given direction.
func gatherContext(sentences []Sentence, ownership map[int]gapOwner, owner gapOwner, anchor, direction int) []string {
	var ctxSentences []string
	for idx := anchor + direction; idx >= 0 && idx < len(sentences) && len(ctxSentences) < gapContextSize; idx += direction {
		if o, ok := ownership[idx]; ok && o == owner {
			ctxSentences = append(ctxSentences, sentences[idx].Text)
		} else if len(ctxSentences) > 0 {
			break
		}
	}
	if direction < 0 {
		for i, j := 0, len(ctxSentences)-1; i < j; i, j = i+1, j-1 {
			ctxSentences[i], ctxSentences[j] = ctxSentences[j], ctxSentences[i]
		}
	}
	return ctxSentences
}

func buildGapPrompt(sentenceText string, prevLabel []string, prevContext []string, nextLabel []string, nextContext []string) string {
	block := func(ctxSentences []string) string {
		if len(ctxSentences) == 0 {
			return "  (no other sentences)"
		}
		lines := make([]string, len(ctxSentences))
		for i, s := range ctxSentences {
			lines[i] = "  - " + s
		}
		return strings.Join(lines, "\n")
	}
	return fmt.Sprintf(
		"You are resolving a sentence gap between two neighboring topic groups.\n\n"+
			"Gap sentence:\n  %q\n\n"+
			"Option A - Previous topic (%s):\n%s\n\n"+
			"Option B - Next topic (%s):\n%s\n\n"+
			"Decide where this sentence belongs.\n"+
			"Allowed answers:\n"+
			"PREVIOUS\n"+
			"NEXT\n"+
			"NEW: Level1 > Level2 > Topic\n"+
			"Reply using exactly one allowed answer.",
		sentenceText,
		labelOrNone(prevLabel), block(prevContext),
		labelOrNone(nextLabel), block(nextContext),
	)
}

// parseGapResponse classifies an LLM answer as previous, next, new (with a
// label), or unknown.
func parseGapResponse(response string) (string, []string) {
	cleaned := strings.TrimSpace(response)
	upper := strings.ToUpper(cleaned)

	switch {
	case strings.HasPrefix(upper, "PREVIOUS"):
		return "previous", nil
	case strings.HasPrefix(upper, "NEXT"):
		return "next", nil
	case strings.HasPrefix(upper, "NEW"):
		_, topicRaw, _ := strings.Cut(cleaned, ":")
		label := parseLabel(topicRaw)
		if len(label) == 0 {
			label = defaultNewTopic
		}
		return "new", label
	}

	hasPrev := strings.Contains(upper, "PREVIOUS")
	hasNext := strings.Contains(upper, "NEXT")
	if hasPrev && !hasNext {
		return "previous", nil
	}
	if hasNext && !hasPrev {
		return "next", nil
	}
	return "unknown", nil
}

// indicesToRanges coalesces a sorted index list into maximal contiguous
// runs.
func indicesToRanges(indices []int) []SentenceRange {
	if len(indices) == 0 {
		return nil
	}
	var ranges []SentenceRange
	start, end := indices[0], indices[0]
	for _, idx := range indices[1:] {
		if idx == end+1 {
			end = idx
			continue
		}
		ranges = append(ranges, SentenceRange{Start: start, End: end})
		start, end = idx, idx
	}
	return append(ranges, SentenceRange{Start: start, End: end})
}
