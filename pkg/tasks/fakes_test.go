package tasks

import (
	"context"
	"sync"

	"github.com/peruse-ai/peruse/pkg/splitter"
	"github.com/peruse-ai/peruse/pkg/store"
)

// fakeLLM answers prompts from a script, recording each prompt. When the
// script is exhausted the last response repeats. An optional respond
// function overrides the script entirely.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	respond   func(prompt string) (string, error)
	err       error
	prompts   []string
}

func (f *fakeLLM) Call(_ context.Context, prompt string, _ float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.respond != nil {
		return f.respond(prompt)
	}
	if f.err != nil {
		return "", f.err
	}
	idx := len(f.prompts) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// seedSplitSubmission creates a submission whose split artifacts are already
// populated, the precondition of every derived handler.
func seedSplitSubmission(ctx context.Context, mem *store.Memory, textContent string, sentences []string, topics []store.Topic) (*store.Submission, error) {
	sub, err := mem.Submissions().Create(ctx, "", textContent, "", AllTasks())
	if err != nil {
		return nil, err
	}
	stored := make([]splitter.Sentence, len(sentences))
	offset := 0
	for i, text := range sentences {
		stored[i] = splitter.Sentence{Index: i, Start: offset, End: offset + len(text), Text: text}
		offset += len(text) + 1
	}
	err = mem.Submissions().UpdateResults(ctx, sub.ID, store.ResultsPatch{
		Sentences: &stored,
		Topics:    &topics,
	})
	if err != nil {
		return nil, err
	}
	return mem.Submissions().GetByID(ctx, sub.ID)
}
