package chunker

import (
	"sort"
	"strings"

	"github.com/veridoc/veridoc-core/hashutil"
)

// Options tunes the chunk builder.
type Options struct {
	MinHeadingSize int // default DefaultMinHeadingSize
}

// Build turns markdown plus its block tree into a Result: ordered chunks
// with section metadata and atomicity flags, plus block-type statistics,
// repeated boilerplate texts, and table structures. Page numbers are
// taken directly from each block, since the upstream OCR pipeline already
// tags every block with the page it came from.
func Build(markdown string, tree BlockTree, opts Options) Result {
	minHeadingSize := opts.MinHeadingSize
	if minHeadingSize <= 0 {
		minHeadingSize = DefaultMinHeadingSize
	}

	regions := DiscoverRegions(markdown, tree)
	index := NewRegionIndex(regions)

	chunks, counts := buildChunks(markdown, tree, index)

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].CharacterStart < chunks[j].CharacterStart })
	for i := range chunks {
		chunks[i].ChunkIndex = i
	}

	chunks = MergeHeadingOnlyChunks(chunks, minHeadingSize)

	repeated := DetectRepeatedTexts(tree)
	MarkRepeatedBoilerplate(chunks, repeated)

	ApplyConfidence(chunks)

	for i := range chunks {
		chunks[i].TextHash = hashutil.HashText([]byte(chunks[i].Text))
	}

	tables := ExtractTableStructures(tree)

	return Result{
		Chunks:          chunks,
		BlockTypeCounts: counts,
		RepeatedTexts:   repeated,
		Tables:          tables,
	}
}

// headingFrame tracks the current section path while walking the tree.
type headingFrame struct {
	text  string
	level int
}

// buildChunks flattens the block tree into one Chunk per leaf-ish block
// (atomic blocks are never split further; structural groups recurse into
// their children), tracking a running heading stack for section_path,
// locating each block's span with the three-tier match, and marking a chunk
// atomic when its start offset falls inside an already-discovered region.
func buildChunks(markdown string, tree BlockTree, index *RegionIndex) ([]Chunk, map[string]int) {
	counts := map[string]int{}
	var chunks []Chunk
	var stack []headingFrame

	var walk func(blocks []Block)
	walk = func(blocks []Block) {
		for _, b := range blocks {
			counts[b.Type]++

			switch b.Type {
			case BlockSectionHeader, BlockTitle:
				level := HeadingLevel(firstLineOf(b.Text))
				frame := headingFrame{text: strings.TrimSpace(firstLineOf(b.Text)), level: level}
				for len(stack) > 0 && stack[len(stack)-1].level >= level {
					stack = stack[:len(stack)-1]
				}
				stack = append(stack, frame)
				chunks = append(chunks, makeChunk(markdown, b, stack, index))

			case BlockTableGroup, BlockFigureGroup:
				// Structural grouping blocks are atomic as a whole; emit one
				// chunk for the group rather than recursing into children,
				// since their children are fragments of the same table/figure.
				chunks = append(chunks, makeChunk(markdown, b, stack, index))

			default:
				if strings.TrimSpace(b.Text) != "" {
					chunks = append(chunks, makeChunk(markdown, b, stack, index))
				}
				if len(b.Children) > 0 {
					walk(b.Children)
				}
			}
		}
	}
	walk(tree)

	return chunks, counts
}

// semanticTags adds normative-language, standards-reference, clause, and
// definition markers to a block's content types, on top of its structural
// block type, so retrieval filters can target "requirement" text in
// engineering specs or a "clause"/"definition" in a contract without relying
// on heading structure alone.
func semanticTags(text string) []string {
	var tags []string
	if IsRequirement(text) {
		tags = append(tags, "requirement")
	}
	if HasStandardsReference(text) {
		tags = append(tags, "standards_reference")
	}
	if _, ok := ExtractClauseNumber(text); ok {
		tags = append(tags, "clause")
	}
	if len(ExtractDefinitions(text)) > 0 {
		tags = append(tags, "definition")
	}
	return tags
}

func makeChunk(markdown string, b Block, stack []headingFrame, index *RegionIndex) Chunk {
	var start, end int
	if r, ok := locateSpan(markdown, b); ok {
		start, end = r.Start, r.End
	} else {
		start, end = 0, len(b.Text)
	}

	page := b.PageNumber
	contentTypes := []string{b.Type}
	contentTypes = append(contentTypes, semanticTags(b.Text)...)

	c := Chunk{
		Text:           b.Text,
		CharacterStart: start,
		CharacterEnd:   end,
		PageNumber:     &page,
		ContentTypes:   contentTypes,
		IsAtomic:       atomicBlockTypes[b.Type],
		Strategy:       "block_tree",
	}

	if _, in := index.IsInRegion(start); in {
		c.IsAtomic = true
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		heading := top.text
		level := top.level
		c.Heading = &heading
		c.HeadingLevel = &level
		parts := make([]string, len(stack))
		for i, f := range stack {
			parts[i] = f.text
		}
		path := strings.Join(parts, " / ")
		c.SectionPath = &path
	}

	return c
}
