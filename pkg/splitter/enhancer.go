package splitter

import (
	"context"
	"fmt"
	"strings"
)

// ShortSentenceEnhancer reassigns short sentences at group boundaries using
// LLM judgment. For each boundary between adjacent groups, bordering
// sentences below the length threshold are offered to the LLM, which
// decides whether they stay with the previous topic or move to the next.
type ShortSentenceEnhancer struct {
	client      Caller
	minLength   int
	temperature float64
}

func NewShortSentenceEnhancer(client Caller, minLength int, temperature float64) *ShortSentenceEnhancer {
	if minLength <= 0 {
		minLength = defaultMinSentenceLen
	}
	return &ShortSentenceEnhancer{client: client, minLength: minLength, temperature: temperature}
}

func (e *ShortSentenceEnhancer) Enhance(ctx context.Context, groups []SentenceGroup, sentences []Sentence) ([]SentenceGroup, error) {
	sentenceCount := len(sentences)
	if sentenceCount <= 1 || len(groups) <= 1 {
		return groups, nil
	}

	ownership := make(map[int]int)
	for gi, g := range groups {
		for _, r := range g.Ranges {
			for si := r.Start; si <= r.End; si++ {
				ownership[si] = gi
			}
		}
	}

	type candidate struct {
		sentIdx, fromGroup, toGroup int
	}
	var candidates []candidate
	for i := 0; i < sentenceCount-1; i++ {
		if ownership[i] == ownership[i+1] {
			continue
		}
		giA, giB := ownership[i], ownership[i+1]
		if len(sentences[i].Text) < e.minLength {
			candidates = append(candidates, candidate{i, giA, giB})
		}
		if len(sentences[i+1].Text) < e.minLength {
			candidates = append(candidates, candidate{i + 1, giB, giA})
		}
	}

	for _, c := range candidates {
		if ownership[c.sentIdx] != c.fromGroup {
			// already reassigned by a prior candidate
			continue
		}
		prevGi, nextGi := c.fromGroup, c.toGroup
		if c.sentIdx > 0 {
			if owner, ok := ownership[c.sentIdx-1]; ok && owner == c.toGroup {
				prevGi, nextGi = c.toGroup, c.fromGroup
			}
		}

		prevContext := gatherGroupContext(sentences, ownership, prevGi, c.sentIdx, -1)
		nextContext := gatherGroupContext(sentences, ownership, nextGi, c.sentIdx, 1)
		prompt := buildReassignmentPrompt(sentences[c.sentIdx].Text, groups[prevGi].Label, prevContext, groups[nextGi].Label, nextContext)

		response, err := e.client.Call(ctx, prompt, e.temperature)
		if err != nil {
			return nil, fmt.Errorf("%w: llm call failed during enhancement: %v", ErrEnhancer, err)
		}

		switch parseReassignmentResponse(response) {
		case "previous":
			ownership[c.sentIdx] = prevGi
		case "next":
			ownership[c.sentIdx] = nextGi
		}
		// ambiguous answers keep the original assignment
	}

	groupIndices := make([][]int, len(groups))
	for si := 0; si < sentenceCount; si++ {
		gi := ownership[si]
		groupIndices[gi] = append(groupIndices[gi], si)
	}
	var result []SentenceGroup
	for gi, g := range groups {
		if len(groupIndices[gi]) == 0 {
			continue
		}
		result = append(result, SentenceGroup{Label: g.Label, Ranges: indicesToRanges(groupIndices[gi])})
	}
	return result, nil
}

// gatherGroupContext collects up to gapContextSize sentences owned by the
// group, scanning outward from the excluded index.
func gatherGroupContext(sentences []Sentence, ownership map[int]int, groupIdx, excludeIdx, direction int) []string {
	var collected []string
	for idx := excludeIdx + direction; idx >= 0 && idx < len(sentences) && len(collected) < gapContextSize; idx += direction {
		if ownership[idx] == groupIdx {
			collected = append(collected, sentences[idx].Text)
		} else if len(collected) > 0 {
			break
		}
	}
	if direction < 0 {
		for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
			collected[i], collected[j] = collected[j], collected[i]
		}
	}
	return collected
}

func buildReassignmentPrompt(sentenceText string, prevLabel []string, prevContext []string, nextLabel []string, nextContext []string) string {
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
		"You are deciding which topic a short sentence belongs to.\n\n"+
			"The sentence in question:\n  %q\n\n"+
			"Option A - Previous topic (%s):\n%s\n\n"+
			"Option B - Next topic (%s):\n%s\n\n"+
			"Does the sentence belong to the PREVIOUS topic or the NEXT topic?\n"+
			"Reply with exactly one word: PREVIOUS or NEXT",
		sentenceText,
		strings.Join(prevLabel, " > "), block(prevContext),
		strings.Join(nextLabel, " > "), block(nextContext),
	)
}

// parseReassignmentResponse returns "previous", "next", or "" when the
// answer is ambiguous.
func parseReassignmentResponse(response string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(response))
	hasPrev := strings.Contains(cleaned, "PREVIOUS")
	hasNext := strings.Contains(cleaned, "NEXT")
	if hasPrev && !hasNext {
		return "previous"
	}
	if hasNext && !hasPrev {
		return "next"
	}
	return ""
}
