package splitter

import (
	"context"
	"sync"
)

// scriptedCaller returns canned responses in order, recording prompts.
// The last response repeats once the script runs out.
type scriptedCaller struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (c *scriptedCaller) Call(_ context.Context, prompt string, _ float64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	idx := len(c.prompts) - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

// callerFunc adapts a function to the Caller interface.
type callerFunc func(ctx context.Context, prompt string, temperature float64) (string, error)

func (f callerFunc) Call(ctx context.Context, prompt string, temperature float64) (string, error) {
	return f(ctx, prompt, temperature)
}

// mkSentences builds a sentence list from texts with synthetic contiguous
// offsets, one space between sentences.
func mkSentences(texts ...string) []Sentence {
	sentences := make([]Sentence, len(texts))
	offset := 0
	for i, text := range texts {
		sentences[i] = Sentence{Index: i, Start: offset, End: offset + len(text), Text: text}
		offset += len(text) + 1
	}
	return sentences
}
