package tasks

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peruse-ai/peruse/pkg/store"
)

func TestBuildMarkedDocument(t *testing.T) {
	t.Run("markers follow punctuation", func(t *testing.T) {
		doc := buildMarkedDocument("First part. Second part continues")
		assert.Equal(t, "First part. |#1#| Second part continues", doc.markedText)
		assert.Equal(t, []int{1}, doc.markerWordIndices)
	})

	t.Run("no marker after the last word", func(t *testing.T) {
		doc := buildMarkedDocument("Ends with punctuation.")
		assert.NotContains(t, doc.markedText, "|#")
		assert.Empty(t, doc.markerWordIndices)
	})

	t.Run("backup marker every fifteen words", func(t *testing.T) {
		words := make([]string, 20)
		for i := range words {
			words[i] = "word"
		}
		doc := buildMarkedDocument(strings.Join(words, " "))
		require.Len(t, doc.markerWordIndices, 1)
		assert.Equal(t, wordsPerMarker-1, doc.markerWordIndices[0])
		assert.Contains(t, doc.markedText, "|#1#|")
	})

	t.Run("paragraphs tracked per word", func(t *testing.T) {
		doc := buildMarkedDocument("one two\n\nthree four\n\n\n\nfive")
		assert.Equal(t, 3, doc.paragraphCount)
		assert.Equal(t, []int{0, 0, 1, 1, 2}, doc.wordToParagraph)
	})

	t.Run("empty text", func(t *testing.T) {
		doc := buildMarkedDocument("  \n\n  ")
		assert.Empty(t, doc.words)
		assert.Zero(t, doc.paragraphCount)
	})
}

func TestChunkMarkedText(t *testing.T) {
	t.Run("small text is one chunk", func(t *testing.T) {
		chunks := chunkMarkedText("short |#1#| text", 100)
		assert.Equal(t, []string{"short |#1#| text"}, chunks)
	})

	t.Run("cuts at marker boundaries", func(t *testing.T) {
		text := "aaaa bbbb. |#1#| cccc dddd. |#2#| eeee ffff"
		chunks := chunkMarkedText(text, 15)
		require.Greater(t, len(chunks), 1)
		for _, chunk := range chunks[1:] {
			assert.True(t, strings.HasPrefix(chunk, "|#"), "continuation chunks start at a marker: %q", chunk)
		}
		assert.Equal(t, strings.Join(chunks, " "), text)
	})

	t.Run("zero cap disables chunking", func(t *testing.T) {
		chunks := chunkMarkedText("anything goes here", 0)
		assert.Len(t, chunks, 1)
	})
}

func TestParseMarkerRanges(t *testing.T) {
	assert.Equal(t, [][2]int{{10, 25}, {42, 58}}, parseMarkerRanges("10-25\n42-58"))
	assert.Equal(t, [][2]int{{1, 2}}, parseMarkerRanges("noise\n1-2\nalso-noise"))
	assert.Empty(t, parseMarkerRanges(""))
	assert.Empty(t, parseMarkerRanges("no ranges here"))
}

func TestMarkedDocument_MarkerConversion(t *testing.T) {
	doc := buildMarkedDocument("alpha beta. gamma delta. epsilon")
	// markers: |#1#| after "beta." (word 1), |#2#| after "delta." (word 3)
	require.Equal(t, []int{1, 3}, doc.markerWordIndices)

	assert.Equal(t, 0, doc.markerToWordStart(0))
	assert.Equal(t, 2, doc.markerToWordStart(1))
	assert.Equal(t, 4, doc.markerToWordStart(2))

	assert.Equal(t, 1, doc.markerToWordEnd(1))
	assert.Equal(t, 3, doc.markerToWordEnd(2))
	assert.Equal(t, len(doc.words)-1, doc.markerToWordEnd(99))
}

func TestMarkedDocument_BuildPassages(t *testing.T) {
	longText := "alpha bravo charlie delta echo foxtrot. " +
		"golf hotel india juliet kilo lima. " +
		"mike november oscar papa quebec romeo"
	doc := buildMarkedDocument(longText)
	require.Equal(t, []int{5, 11}, doc.markerWordIndices)

	t.Run("covered range splits the text into passages", func(t *testing.T) {
		passages := doc.buildPassages([][2]int{{1, 2}})
		require.Len(t, passages, 3)
		assert.False(t, passages[0].IsInside)
		assert.True(t, passages[1].IsInside)
		assert.Equal(t, "golf hotel india juliet kilo lima.", passages[1].Text)
		assert.False(t, passages[2].IsInside)
	})

	t.Run("no ranges yields one plain passage", func(t *testing.T) {
		passages := doc.buildPassages(nil)
		require.Len(t, passages, 1)
		assert.False(t, passages[0].IsInside)
	})

	t.Run("range from the document start", func(t *testing.T) {
		passages := doc.buildPassages([][2]int{{0, 2}})
		require.Len(t, passages, 2)
		assert.True(t, passages[0].IsInside)
		assert.False(t, passages[1].IsInside)
	})

	t.Run("out of bounds ranges are ignored", func(t *testing.T) {
		passages := doc.buildPassages([][2]int{{5, 90}})
		require.Len(t, passages, 1)
		assert.False(t, passages[0].IsInside)
	})

	t.Run("short trailing segment merges into the previous passage", func(t *testing.T) {
		short := buildMarkedDocument("alpha bravo charlie delta echo foxtrot golf. tail")
		require.Equal(t, []int{6}, short.markerWordIndices)
		passages := short.buildPassages([][2]int{{0, 1}})
		require.Len(t, passages, 1)
		assert.True(t, passages[0].IsInside, "merge keeps the inside flag")
		assert.Contains(t, passages[0].Text, "tail")
	})
}

func TestInsidesHandler_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("text content drives extraction", func(t *testing.T) {
		mem := store.NewMemory()
		sub, err := seedSplitSubmission(ctx, mem,
			"alpha bravo charlie delta echo foxtrot. "+
				"golf hotel india juliet kilo lima. "+
				"mike november oscar papa quebec romeo",
			[]string{"unused"},
			nil,
		)
		require.NoError(t, err)

		llm := &fakeLLM{responses: []string{"1-2"}}
		h := NewInsidesHandler(Env{Submissions: mem.Submissions(), LLM: llm})
		require.NoError(t, h.Run(ctx, sub))

		got, err := mem.Submissions().GetByID(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, got.Results.Insides, 3)
		assert.False(t, got.Results.Insides[0].IsInside)
		assert.True(t, got.Results.Insides[1].IsInside)
		assert.False(t, got.Results.Insides[2].IsInside)

		require.Len(t, llm.prompts, 1)
		assert.Contains(t, llm.prompts[0], "|#1#|")
		assert.Contains(t, llm.prompts[0], "<content>")
	})

	t.Run("falls back to sentences when text content is empty", func(t *testing.T) {
		mem := store.NewMemory()
		sub, err := seedSplitSubmission(ctx, mem, "",
			[]string{"alpha bravo charlie delta echo foxtrot golf hotel"},
			nil,
		)
		require.NoError(t, err)

		llm := &fakeLLM{responses: []string{""}}
		h := NewInsidesHandler(Env{Submissions: mem.Submissions(), LLM: llm})
		require.NoError(t, h.Run(ctx, sub))

		got, err := mem.Submissions().GetByID(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, got.Results.Insides, 1)
		assert.False(t, got.Results.Insides[0].IsInside)
	})

	t.Run("no content at all is an error", func(t *testing.T) {
		mem := store.NewMemory()
		sub, err := mem.Submissions().Create(ctx, "", "", "", AllTasks())
		require.NoError(t, err)
		h := NewInsidesHandler(Env{Submissions: mem.Submissions(), LLM: &fakeLLM{}})
		assert.Error(t, h.Run(ctx, sub))
	})
}
