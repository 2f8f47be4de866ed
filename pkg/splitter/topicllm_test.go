package splitter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peruse-ai/peruse/pkg/llm"
)

func TestTopicQuerier(t *testing.T) {
	ctx := context.Background()

	t.Run("small input is one call with the tagged text embedded", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"Technology>AI>GPT-4: 0-2"}}
		q := NewTopicQuerier(caller, 0, 1000)
		resp, err := q.Query(ctx, MarkedText{TaggedText: "{0} alpha\n{1} beta\n{2} gamma", SentenceCount: 3})
		require.NoError(t, err)
		assert.Equal(t, "Technology>AI>GPT-4: 0-2", resp)
		require.Len(t, caller.prompts, 1)
		assert.Contains(t, caller.prompts[0], "{1} beta")
		assert.Contains(t, caller.prompts[0], "<content>")
	})

	t.Run("oversize input is chunked and answers concatenated", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"A>B>C: 0-0", "A>B>D: 1-1"}}
		line1 := "{0} " + strings.Repeat("x", 30)
		line2 := "{1} " + strings.Repeat("y", 30)
		q := NewTopicQuerier(caller, 0, 40)
		resp, err := q.Query(ctx, MarkedText{TaggedText: line1 + "\n" + line2, SentenceCount: 2})
		require.NoError(t, err)
		assert.Equal(t, "A>B>C: 0-0\nA>B>D: 1-1", resp)
		assert.Len(t, caller.prompts, 2)
	})

	t.Run("request too large retries at half the cap", func(t *testing.T) {
		calls := 0
		caller := callerFunc(func(_ context.Context, _ string, _ float64) (string, error) {
			calls++
			if calls == 1 {
				return "", llm.ErrRequestTooLarge
			}
			return "A>B>C: 0-1", nil
		})
		line1 := "{0} " + strings.Repeat("x", 80)
		line2 := "{1} " + strings.Repeat("y", 80)
		q := NewTopicQuerier(caller, 0, 200)
		resp, err := q.Query(ctx, MarkedText{TaggedText: line1 + "\n" + line2, SentenceCount: 2})
		require.NoError(t, err)
		// one failed attempt, then one call per half-cap piece
		assert.Equal(t, 3, calls)
		assert.Equal(t, "A>B>C: 0-1\nA>B>C: 0-1", resp)
	})

	t.Run("irreducible chunk surfaces the too large error", func(t *testing.T) {
		caller := callerFunc(func(_ context.Context, _ string, _ float64) (string, error) {
			return "", llm.ErrRequestTooLarge
		})
		q := NewTopicQuerier(caller, 0, 200)
		_, err := q.Query(ctx, MarkedText{TaggedText: "{0} single line", SentenceCount: 1})
		require.Error(t, err)
		assert.ErrorIs(t, err, llm.ErrRequestTooLarge)
		assert.Contains(t, err.Error(), "cannot be reduced further")
	})

	t.Run("empty response is an llm error", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"   "}}
		q := NewTopicQuerier(caller, 0, 1000)
		_, err := q.Query(ctx, MarkedText{TaggedText: "{0} text", SentenceCount: 1})
		assert.ErrorIs(t, err, llm.ErrLLM)
	})

	t.Run("caller error is wrapped as an llm error", func(t *testing.T) {
		caller := &scriptedCaller{err: errScripted}
		q := NewTopicQuerier(caller, 0, 1000)
		_, err := q.Query(ctx, MarkedText{TaggedText: "{0} text", SentenceCount: 1})
		assert.ErrorIs(t, err, llm.ErrLLM)
	})
}
