package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagStripCleaner(t *testing.T) {
	c := NewTagStripCleaner()

	t.Run("strips tags and maps offsets back", func(t *testing.T) {
		html := `<p>Hello <b>world</b></p>`
		clean, mapping := c.Clean(html)
		assert.Equal(t, "Hello world", clean)
		assert.Equal(t, len(html), mapping.OriginalLength)
		assert.Equal(t, len(clean), mapping.CleanLength)

		orig, err := mapping.ToOriginal(strings.Index(clean, "Hello"))
		require.NoError(t, err)
		assert.Equal(t, strings.Index(html, "Hello"), orig)

		orig, err = mapping.ToOriginal(strings.Index(clean, "world"))
		require.NoError(t, err)
		assert.Equal(t, strings.Index(html, "world"), orig)
	})

	t.Run("quoted attributes with angle brackets", func(t *testing.T) {
		html := `<a title="a > b">link</a> tail`
		clean, _ := c.Clean(html)
		assert.Equal(t, "link tail", clean)
	})

	t.Run("text without tags passes through", func(t *testing.T) {
		clean, mapping := c.Clean("plain text")
		assert.Equal(t, "plain text", clean)
		orig, err := mapping.ToOriginal(6)
		require.NoError(t, err)
		assert.Equal(t, 6, orig)
	})

	t.Run("empty input", func(t *testing.T) {
		clean, mapping := c.Clean("")
		assert.Empty(t, clean)
		assert.Zero(t, mapping.CleanLength)
	})
}

func TestStructuralTagStripCleaner(t *testing.T) {
	c := NewStructuralTagStripCleaner()

	t.Run("removes script and style content", func(t *testing.T) {
		html := `<html><head><style>body{color:red}</style></head>` +
			`<body><script>var x = 1;</script><p>Visible text</p></body></html>`
		clean, _ := c.Clean(html)
		assert.Contains(t, clean, "Visible text")
		assert.NotContains(t, clean, "color:red")
		assert.NotContains(t, clean, "var x = 1")
	})

	t.Run("removes comments", func(t *testing.T) {
		clean, _ := c.Clean(`before <!-- hidden --> after`)
		assert.Contains(t, clean, "before")
		assert.Contains(t, clean, "after")
		assert.NotContains(t, clean, "hidden")
	})

	t.Run("offset mapping points into the original", func(t *testing.T) {
		html := `<p>Alpha</p><p>Beta</p>`
		clean, mapping := c.Clean(html)
		idx := strings.Index(clean, "Beta")
		require.GreaterOrEqual(t, idx, 0)
		orig, err := mapping.ToOriginal(idx)
		require.NoError(t, err)
		assert.Equal(t, "Beta", html[orig:orig+4])
	})
}

func TestMappingOffsetRestorer(t *testing.T) {
	c := NewTagStripCleaner()
	r := NewMappingOffsetRestorer()

	t.Run("restored offsets point into the original html", func(t *testing.T) {
		html := `<p>First sentence. Second sentence.</p>`
		clean, mapping := c.Clean(html)
		sentences := NewRegexSplitter().Split(clean)
		require.Len(t, sentences, 2)

		result, err := r.Restore(SplitResult{Sentences: sentences}, mapping)
		require.NoError(t, err)
		require.Len(t, result.Sentences, 2)
		for _, s := range result.Sentences {
			assert.True(t, strings.HasPrefix(html[s.Start:], s.Text[:5]),
				"restored start of %q must land on the original text", s.Text)
		}
		// text stays tag-free
		assert.Equal(t, "First sentence.", result.Sentences[0].Text)
	})

	t.Run("out of range position is an error", func(t *testing.T) {
		_, mapping := c.Clean(`<p>short</p>`)
		bad := SplitResult{Sentences: []Sentence{{Index: 0, Start: 0, End: mapping.CleanLength + 10, Text: "x"}}}
		_, err := r.Restore(bad, mapping)
		assert.Error(t, err)
	})

	t.Run("empty result passes through", func(t *testing.T) {
		out, err := r.Restore(SplitResult{}, OffsetMapping{})
		require.NoError(t, err)
		assert.Empty(t, out.Sentences)
	})
}

func TestOffsetMapping_ToOriginal(t *testing.T) {
	m := OffsetMapping{
		Segments: []OffsetSegment{
			{CleanOffset: 0, OriginalOffset: 3, Length: 5},
			{CleanOffset: 5, OriginalOffset: 12, Length: 4},
		},
		OriginalLength: 20,
		CleanLength:    9,
	}

	tests := []struct {
		name    string
		in      int
		want    int
		wantErr bool
	}{
		{"first segment start", 0, 3, false},
		{"inside first segment", 4, 7, false},
		{"second segment start", 5, 12, false},
		{"inside second segment", 8, 15, false},
		{"clean length maps to original length", 9, 20, false},
		{"negative", -1, 0, true},
		{"beyond clean length", 10, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.ToOriginal(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
