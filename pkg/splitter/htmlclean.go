package splitter

import "strings"

// TagStripCleaner strips HTML tags from text, producing clean text and an
// offset mapping. Tags are identified with a quoted-attribute-aware pattern;
// non-tag segments keep their original offsets in the mapping.
type TagStripCleaner struct{}

func NewTagStripCleaner() *TagStripCleaner { return &TagStripCleaner{} }

func (c *TagStripCleaner) Clean(text string) (string, OffsetMapping) {
	if text == "" {
		return "", OffsetMapping{}
	}

	var segments []OffsetSegment
	var b strings.Builder
	cleanOffset := 0
	lastEnd := 0

	for _, m := range htmlTagRe.FindAllStringIndex(text, -1) {
		if m[0] > lastEnd {
			length := m[0] - lastEnd
			segments = append(segments, OffsetSegment{
				CleanOffset:    cleanOffset,
				OriginalOffset: lastEnd,
				Length:         length,
			})
			b.WriteString(text[lastEnd:m[0]])
			cleanOffset += length
		}
		lastEnd = m[1]
	}
	if lastEnd < len(text) {
		length := len(text) - lastEnd
		segments = append(segments, OffsetSegment{
			CleanOffset:    cleanOffset,
			OriginalOffset: lastEnd,
			Length:         length,
		})
		b.WriteString(text[lastEnd:])
	}

	clean := b.String()
	return clean, OffsetMapping{
		Segments:       segments,
		OriginalLength: len(text),
		CleanLength:    len(clean),
	}
}

// StructuralTagStripCleaner strips HTML using the tolerant tokenizer, which
// also removes comments, doctypes and script/style content.
type StructuralTagStripCleaner struct{}

func NewStructuralTagStripCleaner() *StructuralTagStripCleaner {
	return &StructuralTagStripCleaner{}
}

func (c *StructuralTagStripCleaner) Clean(text string) (string, OffsetMapping) {
	if text == "" {
		return "", OffsetMapping{}
	}

	info := analyzeHTML(text)
	if len(info.protected.starts) == 0 {
		return text, OffsetMapping{
			Segments:       []OffsetSegment{{CleanOffset: 0, OriginalOffset: 0, Length: len(text)}},
			OriginalLength: len(text),
			CleanLength:    len(text),
		}
	}

	var segments []OffsetSegment
	var b strings.Builder
	cleanOffset := 0
	lastEnd := 0

	for i, tagStart := range info.protected.starts {
		if tagStart > lastEnd {
			length := tagStart - lastEnd
			segments = append(segments, OffsetSegment{
				CleanOffset:    cleanOffset,
				OriginalOffset: lastEnd,
				Length:         length,
			})
			b.WriteString(text[lastEnd:tagStart])
			cleanOffset += length
		}
		if info.protected.ends[i] > lastEnd {
			lastEnd = info.protected.ends[i]
		}
	}
	if lastEnd < len(text) {
		length := len(text) - lastEnd
		segments = append(segments, OffsetSegment{
			CleanOffset:    cleanOffset,
			OriginalOffset: lastEnd,
			Length:         length,
		})
		b.WriteString(text[lastEnd:])
	}

	clean := b.String()
	return clean, OffsetMapping{
		Segments:       segments,
		OriginalLength: len(text),
		CleanLength:    len(clean),
	}
}

// MappingOffsetRestorer remaps sentence positions from clean-text to
// original-text coordinates. Sentence text stays tag-free even when the
// original slice would include markup.
type MappingOffsetRestorer struct{}

func NewMappingOffsetRestorer() *MappingOffsetRestorer { return &MappingOffsetRestorer{} }

func (r *MappingOffsetRestorer) Restore(result SplitResult, mapping OffsetMapping) (SplitResult, error) {
	if len(result.Sentences) == 0 {
		return result, nil
	}
	restored := make([]Sentence, 0, len(result.Sentences))
	for _, s := range result.Sentences {
		start, err := mapping.ToOriginal(s.Start)
		if err != nil {
			return SplitResult{}, err
		}
		end, err := mapping.ToOriginal(s.End)
		if err != nil {
			return SplitResult{}, err
		}
		restored = append(restored, Sentence{Index: s.Index, Start: start, End: end, Text: s.Text})
	}
	return SplitResult{Sentences: restored, Groups: result.Groups}, nil
}
