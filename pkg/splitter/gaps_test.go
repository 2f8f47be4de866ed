package splitter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errScripted = errors.New("scripted failure")

func TestStrictGapHandler(t *testing.T) {
	h := NewStrictGapHandler()
	ctx := context.Background()

	t.Run("full coverage passes through", func(t *testing.T) {
		groups := []SentenceGroup{
			{Label: []string{"A"}, Ranges: []SentenceRange{{Start: 0, End: 2}}},
			{Label: []string{"B"}, Ranges: []SentenceRange{{Start: 3, End: 4}}},
		}
		out, err := h.Handle(ctx, groups, 5, nil)
		require.NoError(t, err)
		assert.Equal(t, groups, out)
	})

	t.Run("overlap is trimmed from the later range", func(t *testing.T) {
		groups := []SentenceGroup{
			{Label: []string{"A"}, Ranges: []SentenceRange{{Start: 0, End: 3}}},
			{Label: []string{"B"}, Ranges: []SentenceRange{{Start: 2, End: 4}}},
		}
		out, err := h.Handle(ctx, groups, 5, nil)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, []SentenceRange{{Start: 0, End: 3}}, out[0].Ranges)
		assert.Equal(t, []SentenceRange{{Start: 4, End: 4}}, out[1].Ranges)
	})

	t.Run("mid gap is an error", func(t *testing.T) {
		groups := []SentenceGroup{
			{Label: []string{"A"}, Ranges: []SentenceRange{{Start: 0, End: 1}}},
			{Label: []string{"B"}, Ranges: []SentenceRange{{Start: 4, End: 5}}},
		}
		_, err := h.Handle(ctx, groups, 6, nil)
		assert.ErrorIs(t, err, ErrGap)
	})

	t.Run("trailing gap is an error", func(t *testing.T) {
		groups := []SentenceGroup{
			{Label: []string{"A"}, Ranges: []SentenceRange{{Start: 0, End: 2}}},
		}
		_, err := h.Handle(ctx, groups, 5, nil)
		assert.ErrorIs(t, err, ErrGap)
	})

	t.Run("no groups is an error", func(t *testing.T) {
		_, err := h.Handle(ctx, nil, 5, nil)
		assert.ErrorIs(t, err, ErrGap)
	})
}

func TestRepairingGapHandler(t *testing.T) {
	h := NewRepairingGapHandler()
	ctx := context.Background()

	t.Run("leading gap pulls the first range to zero", func(t *testing.T) {
		groups := []SentenceGroup{
			{Label: []string{"A"}, Ranges: []SentenceRange{{Start: 2, End: 4}}},
		}
		out, err := h.Handle(ctx, groups, 5, nil)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, []SentenceRange{{Start: 0, End: 4}}, out[0].Ranges)
	})

	t.Run("mid gap extends the preceding range", func(t *testing.T) {
		groups := []SentenceGroup{
			{Label: []string{"A"}, Ranges: []SentenceRange{{Start: 0, End: 1}}},
			{Label: []string{"B"}, Ranges: []SentenceRange{{Start: 4, End: 5}}},
		}
		out, err := h.Handle(ctx, groups, 6, nil)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, []SentenceRange{{Start: 0, End: 3}}, out[0].Ranges)
		assert.Equal(t, []SentenceRange{{Start: 4, End: 5}}, out[1].Ranges)
	})

	t.Run("trailing gap extends the last range", func(t *testing.T) {
		groups := []SentenceGroup{
			{Label: []string{"A"}, Ranges: []SentenceRange{{Start: 0, End: 2}}},
		}
		out, err := h.Handle(ctx, groups, 6, nil)
		require.NoError(t, err)
		assert.Equal(t, []SentenceRange{{Start: 0, End: 5}}, out[0].Ranges)
	})

	t.Run("fully swallowed range drops its group", func(t *testing.T) {
		groups := []SentenceGroup{
			{Label: []string{"A"}, Ranges: []SentenceRange{{Start: 0, End: 4}}},
			{Label: []string{"B"}, Ranges: []SentenceRange{{Start: 1, End: 3}}},
		}
		out, err := h.Handle(ctx, groups, 5, nil)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, []string{"A"}, out[0].Label)
	})
}

func TestLLMGapHandler(t *testing.T) {
	ctx := context.Background()
	sentences := mkSentences(
		"Alpha statement one.",
		"Alpha statement two.",
		"Floating sentence.",
		"Beta statement one.",
		"Beta statement two.",
	)
	groups := []SentenceGroup{
		{Label: []string{"Alpha"}, Ranges: []SentenceRange{{Start: 0, End: 1}}},
		{Label: []string{"Beta"}, Ranges: []SentenceRange{{Start: 3, End: 4}}},
	}

	t.Run("PREVIOUS extends the earlier group", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"PREVIOUS"}}
		out, err := NewLLMGapHandler(caller, 0).Handle(ctx, groups, 5, sentences)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, []SentenceRange{{Start: 0, End: 2}}, out[0].Ranges)
		assert.Equal(t, []SentenceRange{{Start: 3, End: 4}}, out[1].Ranges)

		require.Len(t, caller.prompts, 1)
		assert.Contains(t, caller.prompts[0], "Floating sentence.")
		assert.Contains(t, caller.prompts[0], "Alpha")
		assert.Contains(t, caller.prompts[0], "Beta")
	})

	t.Run("NEXT extends the later group", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"NEXT"}}
		out, err := NewLLMGapHandler(caller, 0).Handle(ctx, groups, 5, sentences)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, []SentenceRange{{Start: 0, End: 1}}, out[0].Ranges)
		assert.Equal(t, []SentenceRange{{Start: 2, End: 4}}, out[1].Ranges)
	})

	t.Run("NEW appends a fresh group", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"NEW: Misc > Asides"}}
		out, err := NewLLMGapHandler(caller, 0).Handle(ctx, groups, 5, sentences)
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, []string{"Misc", "Asides"}, out[2].Label)
		assert.Equal(t, []SentenceRange{{Start: 2, End: 2}}, out[2].Ranges)
	})

	t.Run("ambiguous answer defaults to previous", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"hmm, hard to say"}}
		out, err := NewLLMGapHandler(caller, 0).Handle(ctx, groups, 5, sentences)
		require.NoError(t, err)
		assert.Equal(t, []SentenceRange{{Start: 0, End: 2}}, out[0].Ranges)
	})

	t.Run("trailing gap asks per sentence and NEW builds one group", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"NEW: Misc"}}
		trailing := []SentenceGroup{
			{Label: []string{"Alpha"}, Ranges: []SentenceRange{{Start: 0, End: 1}}},
		}
		out, err := NewLLMGapHandler(caller, 0).Handle(ctx, trailing, 5, sentences)
		require.NoError(t, err)
		require.Len(t, caller.prompts, 3)
		require.Len(t, out, 2)
		assert.Equal(t, []SentenceRange{{Start: 0, End: 1}}, out[0].Ranges)
		assert.Equal(t, []string{"Misc"}, out[1].Label)
		assert.Equal(t, []SentenceRange{{Start: 2, End: 4}}, out[1].Ranges)
	})

	t.Run("leading gap consults the llm", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"NEXT"}}
		leading := []SentenceGroup{
			{Label: []string{"Alpha"}, Ranges: []SentenceRange{{Start: 1, End: 4}}},
		}
		out, err := NewLLMGapHandler(caller, 0).Handle(ctx, leading, 5, sentences)
		require.NoError(t, err)
		require.Len(t, caller.prompts, 1)
		assert.Contains(t, caller.prompts[0], "(none)")
		assert.Equal(t, []SentenceRange{{Start: 0, End: 4}}, out[0].Ranges)
	})

	t.Run("answer naming a missing side falls back to the neighbor", func(t *testing.T) {
		caller := &scriptedCaller{responses: []string{"PREVIOUS"}}
		leading := []SentenceGroup{
			{Label: []string{"Alpha"}, Ranges: []SentenceRange{{Start: 1, End: 4}}},
		}
		out, err := NewLLMGapHandler(caller, 0).Handle(ctx, leading, 5, sentences)
		require.NoError(t, err)
		assert.Equal(t, []SentenceRange{{Start: 0, End: 4}}, out[0].Ranges)
	})

	t.Run("llm error is wrapped as a gap error", func(t *testing.T) {
		caller := &scriptedCaller{err: errScripted}
		_, err := NewLLMGapHandler(caller, 0).Handle(ctx, groups, 5, sentences)
		assert.ErrorIs(t, err, ErrGap)
	})
}

func TestParseGapResponse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		decision  string
		wantLabel []string
	}{
		{"previous keyword", "PREVIOUS", "previous", nil},
		{"next keyword lowercase", "next", "next", nil},
		{"new with label", "NEW: A > B", "new", []string{"A", "B"}},
		{"new without label", "NEW:", "new", []string{"Uncategorized"}},
		{"previous mentioned inside prose", "I think the PREVIOUS topic fits", "previous", nil},
		{"both mentioned is unknown", "PREVIOUS or NEXT", "unknown", nil},
		{"empty is unknown", "", "unknown", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, label := parseGapResponse(tt.input)
			assert.Equal(t, tt.decision, decision)
			assert.Equal(t, tt.wantLabel, label)
		})
	}
}

func TestIndicesToRanges(t *testing.T) {
	assert.Nil(t, indicesToRanges(nil))
	assert.Equal(t, []SentenceRange{{Start: 2, End: 4}}, indicesToRanges([]int{2, 3, 4}))
	assert.Equal(t,
		[]SentenceRange{{Start: 0, End: 1}, {Start: 5, End: 5}, {Start: 8, End: 9}},
		indicesToRanges([]int{0, 1, 5, 8, 9}))
}
