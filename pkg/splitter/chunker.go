package splitter

import "strings"

// DefaultMaxChunkChars is the character cap per chunk, a simple proxy for
// the LLM's token budget.
const DefaultMaxChunkChars = 12000

// SizeChunker splits MarkedText into chunks whose tagged text does not
// exceed maxChars. Splits happen on line boundaries only; embedded {N}
// markers are preserved verbatim. A single oversize line is emitted as its
// own chunk rather than split mid-line.
type SizeChunker struct {
	maxChars int
}

func NewSizeChunker(maxChars int) *SizeChunker {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	return &SizeChunker{maxChars: maxChars}
}

func (c *SizeChunker) Chunk(marked MarkedText) []MarkedText {
	if len(marked.TaggedText) <= c.maxChars {
		return []MarkedText{marked}
	}

	lines := strings.Split(marked.TaggedText, "\n")
	var chunks []MarkedText
	var current []string
	currentChars := 0

	for _, line := range lines {
		added := len(line)
		if len(current) > 0 {
			added++ // joining newline
		}
		if len(current) > 0 && currentChars+added > c.maxChars {
			chunks = append(chunks, MarkedText{
				TaggedText:    strings.Join(current, "\n"),
				SentenceCount: len(current),
			})
			current = []string{line}
			currentChars = len(line)
		} else {
			current = append(current, line)
			currentChars += added
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, MarkedText{
			TaggedText:    strings.Join(current, "\n"),
			SentenceCount: len(current),
		})
	}
	if len(chunks) == 0 {
		return []MarkedText{marked}
	}
	return chunks
}
