package chunker

import "strings"

// DefaultMinHeadingSize is the default min_size below which a
// heading-only chunk is folded into a neighbor.
const DefaultMinHeadingSize = 100

func isHeadingOnly(c Chunk) bool {
	return len(c.ContentTypes) == 1 && (c.ContentTypes[0] == BlockSectionHeader || c.ContentTypes[0] == BlockTitle)
}

// MergeHeadingOnlyChunks folds a chunk whose content_types is exactly
// ["SectionHeader"]/["Title"] and whose trimmed text is shorter than minSize
// into its successor (text prepended, offsets unioned, metadata preferring
// the heading's own heading/heading_level/section_path); chunks with no
// successor merge into their predecessor instead (text appended). The pass
// iterates to a fixed point, then chunks are reindexed.
func MergeHeadingOnlyChunks(chunks []Chunk, minSize int) []Chunk {
	if minSize <= 0 {
		minSize = DefaultMinHeadingSize
	}

	for {
		merged := false
		out := make([]Chunk, 0, len(chunks))
		i := 0
		for i < len(chunks) {
			c := chunks[i]
			if isHeadingOnly(c) && len(strings.TrimSpace(c.Text)) < minSize {
				if i+1 < len(chunks) {
					next := chunks[i+1]
					combined := mergeInto(c, next, true)
					out = append(out, combined)
					i += 2
					merged = true
					continue
				}
				if len(out) > 0 {
					prev := out[len(out)-1]
					combined := mergeInto(prev, c, false)
					out[len(out)-1] = combined
					i++
					merged = true
					continue
				}
			}
			out = append(out, c)
			i++
		}
		chunks = out
		if !merged {
			break
		}
	}

	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
	return chunks
}

// mergeInto folds the heading chunk into other. If headingFirst, the
// heading's text is prepended (heading precedes its successor); otherwise
// it's appended (heading follows its predecessor). Metadata prefers the
// heading's own heading/heading_level/section_path when set.
func mergeInto(heading, other Chunk, headingFirst bool) Chunk {
	result := other
	if headingFirst {
		result.Text = heading.Text + "\n" + other.Text
		result.CharacterStart = heading.CharacterStart
		if other.CharacterEnd > result.CharacterEnd {
			result.CharacterEnd = other.CharacterEnd
		}
	} else {
		result.Text = other.Text + "\n" + heading.Text
		result.CharacterEnd = heading.CharacterEnd
		if heading.CharacterStart < result.CharacterStart {
			result.CharacterStart = heading.CharacterStart
		}
	}

	if heading.Heading != nil {
		result.Heading = heading.Heading
		result.HeadingLevel = heading.HeadingLevel
		result.SectionPath = heading.SectionPath
	}

	types := map[string]bool{}
	var merged []string
	for _, t := range append(append([]string{}, heading.ContentTypes...), other.ContentTypes...) {
		if !types[t] {
			types[t] = true
			merged = append(merged, t)
		}
	}
	result.ContentTypes = merged
	result.IsAtomic = heading.IsAtomic || other.IsAtomic
	return result
}
