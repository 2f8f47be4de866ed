package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/peruse-ai/peruse/pkg/store"
)

const summaryPromptTemplate = `Summarize the text within the <text> tags into a super brief summary (just a few words).
- Keep it objective and extremely concise.

Text:
<text>{sentence}</text>

Summary:`

// SummarizationHandler produces one brief summary per sentence group plus
// a concatenated per-topic summary.
type SummarizationHandler struct {
	env Env
}

func NewSummarizationHandler(env Env) *SummarizationHandler {
	return &SummarizationHandler{env: env}
}

func (h *SummarizationHandler) Name() string { return TaskSummarization }

func (h *SummarizationHandler) Run(ctx context.Context, sub *store.Submission) error {
	texts := sentenceTexts(sub)
	topics := sub.Results.Topics

	if len(texts) == 0 {
		return fmt.Errorf("split/topic generation must be completed first")
	}

	summary, mappings, err := h.summarizeGroups(ctx, texts)
	if err != nil {
		return err
	}

	topicSummaries := map[string]string{}
	for _, topic := range topics {
		name := topicName(topic)
		if name == "" || name == noTopicName {
			continue
		}
		topicTexts, _ := sentencesByIndices(topicSentenceIndices(topic), texts)
		if len(topicTexts) == 0 {
			continue
		}
		briefs, _, err := h.summarizeGroups(ctx, topicTexts)
		if err != nil {
			return err
		}
		topicSummaries[name] = strings.Join(briefs, " ")
	}

	err = h.env.Submissions.UpdateResults(ctx, sub.ID, store.ResultsPatch{
		Summary:         &summary,
		SummaryMappings: &mappings,
		TopicSummaries:  &topicSummaries,
	})
	if err != nil {
		return err
	}

	h.env.logger().Info("summarization completed",
		"submission_id", sub.ID,
		"summaries", len(summary),
		"topic_summaries", len(topicSummaries))
	return nil
}

// summarizeGroups produces one summary per input text so the summary list
// aligns one-to-one with the sentence groups. Empty LLM replies are
// skipped; mappings point at the 1-based group index.
func (h *SummarizationHandler) summarizeGroups(ctx context.Context, texts []string) ([]string, []store.SummaryMapping, error) {
	summary := []string{}
	mappings := []store.SummaryMapping{}
	for idx, text := range texts {
		prompt := strings.Replace(summaryPromptTemplate, "{sentence}", text, 1)
		response, err := h.env.LLM.Call(ctx, prompt, splitTemperature)
		if err != nil {
			return nil, nil, fmt.Errorf("summarize group %d: %w", idx, err)
		}
		brief := strings.TrimSpace(response)
		if brief == "" {
			continue
		}
		mappings = append(mappings, store.SummaryMapping{
			SummaryIndex:    len(summary),
			SummarySentence: brief,
			SourceSentences: []int{idx + 1},
		})
		summary = append(summary, brief)
	}
	return summary, mappings, nil
}
