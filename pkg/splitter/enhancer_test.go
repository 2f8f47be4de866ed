package splitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortSentenceEnhancer(t *testing.T) {
	ctx := context.Background()
	sentences := mkSentences(
		"This opening sentence is comfortably over the threshold.",
		"Short.",
		"This closing sentence is comfortably over the threshold too.",
	)
	groups := []SentenceGroup{
		{Label: []string{"Alpha"}, Ranges: []SentenceRange{{Start: 0, End: 1}}},
		{Label: []string{"Beta"}, Ranges: []SentenceRange{{Start: 2, End: 2}}},
	}

	t.Run("short boundary sentence moves to the next group", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"NEXT"}}
		out, err := NewShortSentenceEnhancer(caller, 40, 0).Enhance(ctx, groups, sentences)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, []SentenceRange{{Start: 0, End: 0}}, out[0].Ranges)
		assert.Equal(t, []SentenceRange{{Start: 1, End: 2}}, out[1].Ranges)

		require.Len(t, caller.prompts, 1)
		assert.Contains(t, caller.prompts[0], "Short.")
	})

	t.Run("PREVIOUS keeps the sentence where it is", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"PREVIOUS"}}
		out, err := NewShortSentenceEnhancer(caller, 40, 0).Enhance(ctx, groups, sentences)
		require.NoError(t, err)
		assert.Equal(t, groups, out)
	})

	t.Run("ambiguous answer keeps the original assignment", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"PREVIOUS and NEXT both work"}}
		out, err := NewShortSentenceEnhancer(caller, 40, 0).Enhance(ctx, groups, sentences)
		require.NoError(t, err)
		assert.Equal(t, groups, out)
	})

	t.Run("long boundary sentences never trigger a call", func(t *testing.T) {
		caller := &scriptedCaller{err: errScripted}
		long := []SentenceGroup{
			{Label: []string{"Alpha"}, Ranges: []SentenceRange{{Start: 0, End: 0}}},
			{Label: []string{"Beta"}, Ranges: []SentenceRange{{Start: 1, End: 2}}},
		}
		longSentences := mkSentences(
			"This opening sentence is comfortably over the threshold.",
			"This middle sentence is comfortably over the threshold as well.",
			"This closing sentence is comfortably over the threshold too.",
		)
		out, err := NewShortSentenceEnhancer(caller, 40, 0).Enhance(ctx, long, longSentences)
		require.NoError(t, err)
		assert.Equal(t, long, out)
		assert.Empty(t, caller.prompts)
	})

	t.Run("single group passes through", func(t *testing.T) {
		caller := &scriptedCaller{err: errScripted}
		one := []SentenceGroup{{Label: []string{"Only"}, Ranges: []SentenceRange{{Start: 0, End: 2}}}}
		out, err := NewShortSentenceEnhancer(caller, 40, 0).Enhance(ctx, one, sentences)
		require.NoError(t, err)
		assert.Equal(t, one, out)
	})

	t.Run("llm error is wrapped", func(t *testing.T) {
		caller := &scriptedCaller{err: errScripted}
		_, err := NewShortSentenceEnhancer(caller, 40, 0).Enhance(ctx, groups, sentences)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEnhancer)
	})
}

func TestParseReassignmentResponse(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"PREVIOUS", "previous"},
		{"next", "next"},
		{"The NEXT topic fits better", "next"},
		{"PREVIOUS or NEXT", ""},
		{"no idea", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseReassignmentResponse(tt.input), "input %q", tt.input)
	}
}
