package tasks

import (
	"context"
	"log/slog"
	"strings"

	"github.com/peruse-ai/peruse/pkg/llm"
	"github.com/peruse-ai/peruse/pkg/store"
)

// Handler processes one task type for a claimed submission. Handlers read
// the accumulated results, call the LLM as needed, and write back only the
// result fields they own.
type Handler interface {
	Name() string
	Run(ctx context.Context, sub *store.Submission) error
}

// Env carries the shared dependencies of all handlers. The LLM caller is
// expected to already be wrapped with caching and tracing.
type Env struct {
	Submissions   store.SubmissionStore
	LLM           llm.Caller
	Logger        *slog.Logger
	MaxChunkChars int
}

func (e Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// NewHandlers builds the full handler set keyed by task name.
func NewHandlers(env Env) map[string]Handler {
	handlers := []Handler{
		NewSplitTopicHandler(env),
		NewSubtopicsHandler(env),
		NewSummarizationHandler(env),
		NewMindmapHandler(env),
		NewInsidesHandler(env),
		NewPrefixTreeHandler(env),
	}
	out := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		out[h.Name()] = h
	}
	return out
}

// topicName flattens a hierarchical topic label into its display form.
func topicName(t store.Topic) string {
	return strings.Join(t.Label, " > ")
}

// topicSentenceIndices expands a topic's ranges into 1-based sentence
// numbers, in range order.
func topicSentenceIndices(t store.Topic) []int {
	var out []int
	for _, r := range t.Ranges {
		for i := r.Start; i <= r.End; i++ {
			out = append(out, i+1)
		}
	}
	return out
}

// sentencesByIndices resolves 1-based indices to sentence texts, skipping
// out-of-bounds references and returning the surviving indices alongside.
func sentencesByIndices(indices []int, texts []string) ([]string, []int) {
	var outTexts []string
	var outIndices []int
	for _, idx := range indices {
		if idx-1 >= 0 && idx-1 < len(texts) {
			outTexts = append(outTexts, texts[idx-1])
			outIndices = append(outIndices, idx)
		}
	}
	return outTexts, outIndices
}

// sentenceTexts projects the stored sentences to their raw text.
func sentenceTexts(sub *store.Submission) []string {
	texts := make([]string, len(sub.Results.Sentences))
	for i, s := range sub.Results.Sentences {
		texts[i] = s.Text
	}
	return texts
}
