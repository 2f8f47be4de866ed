package tasks

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/peruse-ai/peruse/pkg/store"
)

const noTopicName = "no_topic"

var subtopicNameCleanRe = regexp.MustCompile(`[^a-zA-Z0-9 ]+`)

const subtopicsPromptTemplate = `Group the following sentences into detailed sub-chapters for the topic "{topic_name}".
- For each sub-chapter, specify which sentences belong to it.
- Output format MUST be exactly:
<subtopic_name>: <comma-separated sentence numbers>

Important instructions:
- Use the exact sentence numbers as provided (e.g., if "15. Some text", use 15).
- Keep sub-chapters specific and meaningful.
- Aim for 2-5 subtopics per chapter.
- If a sentence doesn't fit, assign it to 'no_topic'.

Topic: {topic_name}
Sentences:
{sentences_text}`

// SubtopicsHandler asks the LLM to break each topic's sentence block into
// named sub-chapters.
type SubtopicsHandler struct {
	env Env
}

func NewSubtopicsHandler(env Env) *SubtopicsHandler {
	return &SubtopicsHandler{env: env}
}

func (h *SubtopicsHandler) Name() string { return TaskSubtopicsGeneration }

func (h *SubtopicsHandler) Run(ctx context.Context, sub *store.Submission) error {
	texts := sentenceTexts(sub)
	topics := sub.Results.Topics

	if len(texts) == 0 {
		return fmt.Errorf("split/topic generation must be completed first")
	}

	all := []store.Subtopic{}
	for _, topic := range topics {
		name := topicName(topic)
		if name == "" || name == noTopicName {
			continue
		}
		indices := topicSentenceIndices(topic)
		topicTexts, topicIndices := sentencesByIndices(indices, texts)
		if len(topicTexts) == 0 {
			continue
		}
		subtopics, err := h.generateForTopic(ctx, name, topicTexts, topicIndices)
		if err != nil {
			return err
		}
		all = append(all, subtopics...)
	}

	err := h.env.Submissions.UpdateResults(ctx, sub.ID, store.ResultsPatch{Subtopics: &all})
	if err != nil {
		return err
	}

	h.env.logger().Info("subtopics generation completed",
		"submission_id", sub.ID,
		"subtopics", len(all))
	return nil
}

func (h *SubtopicsHandler) generateForTopic(ctx context.Context, name string, texts []string, indices []int) ([]store.Subtopic, error) {
	numbered := make([]string, len(texts))
	for i, text := range texts {
		numbered[i] = fmt.Sprintf("%d. %s", indices[i], text)
	}

	prompt := strings.NewReplacer(
		"{topic_name}", name,
		"{sentences_text}", strings.Join(numbered, "\n"),
	).Replace(subtopicsPromptTemplate)

	response, err := h.env.LLM.Call(ctx, prompt, splitTemperature)
	if err != nil {
		return nil, fmt.Errorf("subtopics for %q: %w", name, err)
	}
	return parseSubtopics(response, name), nil
}

// parseSubtopics reads "name: n1, n2" lines, sanitizing names to
// alphanumerics and dropping lines without any valid sentence number.
func parseSubtopics(response, parentTopic string) []store.Subtopic {
	var out []store.Subtopic
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		name, numsStr, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		cleanName := strings.TrimSpace(subtopicNameCleanRe.ReplaceAllString(strings.TrimSpace(name), " "))

		var nums []int
		for _, part := range strings.Split(numsStr, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n >= 0 {
				nums = append(nums, n)
			}
		}
		if len(nums) > 0 {
			out = append(out, store.Subtopic{
				Name:        cleanName,
				Sentences:   nums,
				ParentTopic: parentTopic,
			})
		}
	}
	return out
}
