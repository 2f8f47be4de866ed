package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peruse-ai/peruse/pkg/splitter"
	"github.com/peruse-ai/peruse/pkg/store"
)

func TestSubtopicsHandler_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("generates subtopics per topic", func(t *testing.T) {
		mem := store.NewMemory()
		sub, err := seedSplitSubmission(ctx, mem,
			"",
			[]string{"Model training advanced.", "Benchmarks improved.", "Costs went down."},
			[]store.Topic{{
				Label:  []string{"Technology", "AI"},
				Ranges: []splitter.SentenceRange{{Start: 0, End: 2}},
			}},
		)
		require.NoError(t, err)

		llm := &fakeLLM{responses: []string{"Training progress: 1, 2\nEconomics: 3"}}
		h := NewSubtopicsHandler(Env{Submissions: mem.Submissions(), LLM: llm})
		require.NoError(t, h.Run(ctx, sub))

		got, err := mem.Submissions().GetByID(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, got.Results.Subtopics, 2)
		assert.Equal(t, store.Subtopic{
			Name:        "Training progress",
			Sentences:   []int{1, 2},
			ParentTopic: "Technology > AI",
		}, got.Results.Subtopics[0])
		assert.Equal(t, []int{3}, got.Results.Subtopics[1].Sentences)

		require.Len(t, llm.prompts, 1)
		assert.Contains(t, llm.prompts[0], `"Technology > AI"`)
		assert.Contains(t, llm.prompts[0], "1. Model training advanced.")
		assert.Contains(t, llm.prompts[0], "3. Costs went down.")
	})

	t.Run("no_topic groups are skipped", func(t *testing.T) {
		mem := store.NewMemory()
		sub, err := seedSplitSubmission(ctx, mem, "",
			[]string{"Stray sentence."},
			[]store.Topic{{
				Label:  []string{noTopicName},
				Ranges: []splitter.SentenceRange{{Start: 0, End: 0}},
			}},
		)
		require.NoError(t, err)

		llm := &fakeLLM{err: errors.New("must not be called")}
		h := NewSubtopicsHandler(Env{Submissions: mem.Submissions(), LLM: llm})
		require.NoError(t, h.Run(ctx, sub))
		assert.Empty(t, llm.prompts)
	})

	t.Run("missing split results is an error", func(t *testing.T) {
		mem := store.NewMemory()
		sub, err := mem.Submissions().Create(ctx, "", "text", "", AllTasks())
		require.NoError(t, err)

		h := NewSubtopicsHandler(Env{Submissions: mem.Submissions(), LLM: &fakeLLM{}})
		assert.Error(t, h.Run(ctx, sub))
	})

	t.Run("llm failure propagates", func(t *testing.T) {
		mem := store.NewMemory()
		sub, err := seedSplitSubmission(ctx, mem, "",
			[]string{"A sentence."},
			[]store.Topic{{Label: []string{"T"}, Ranges: []splitter.SentenceRange{{Start: 0, End: 0}}}},
		)
		require.NoError(t, err)

		h := NewSubtopicsHandler(Env{Submissions: mem.Submissions(), LLM: &fakeLLM{err: errors.New("down")}})
		assert.Error(t, h.Run(ctx, sub))
	})
}

func TestParseSubtopics(t *testing.T) {
	t.Run("names are sanitized to alphanumerics", func(t *testing.T) {
		out := parseSubtopics("**Key findings!**: 1, 2", "parent")
		require.Len(t, out, 1)
		assert.Equal(t, "Key findings", out[0].Name)
		assert.Equal(t, []int{1, 2}, out[0].Sentences)
		assert.Equal(t, "parent", out[0].ParentTopic)
	})

	t.Run("lines without numbers are dropped", func(t *testing.T) {
		out := parseSubtopics("Intro text without colon\nEmpty: none at all\nGood: 4", "p")
		require.Len(t, out, 1)
		assert.Equal(t, []int{4}, out[0].Sentences)
	})

	t.Run("negative numbers are ignored", func(t *testing.T) {
		out := parseSubtopics("Mixed: -1, 2", "p")
		require.Len(t, out, 1)
		assert.Equal(t, []int{2}, out[0].Sentences)
	})

	t.Run("empty response yields nothing", func(t *testing.T) {
		assert.Empty(t, parseSubtopics("", "p"))
	})
}
