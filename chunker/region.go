package chunker

import (
	"regexp"
	"sort"
	"strings"
)

// Region is a located atomic span in the markdown, produced by walking the
// block tree for Table/TableGroup/Figure/FigureGroup/Code blocks.
type Region struct {
	Start     int
	End       int
	BlockType string
}

var atomicBlockTypes = map[string]bool{
	BlockTable:       true,
	BlockTableGroup:  true,
	BlockFigure:      true,
	BlockFigureGroup: true,
	BlockCode:        true,
}

// DiscoverRegions walks tree for atomic blocks and locates each one's span
// in markdown via the three-tier match: exact substring, then
// whitespace-normalized substring with index-remapping, then
// block-type-specific extent detection. Overlapping regions are merged,
// keeping the larger block_type (by span length) of the two.
func DiscoverRegions(markdown string, tree BlockTree) []Region {
	var regions []Region
	var walk func(blocks []Block)
	walk = func(blocks []Block) {
		for _, b := range blocks {
			if atomicBlockTypes[b.Type] {
				if r, ok := locateSpan(markdown, b); ok {
					regions = append(regions, r)
				}
			}
			if len(b.Children) > 0 {
				walk(b.Children)
			}
		}
	}
	walk(tree)

	return mergeRegions(regions)
}

// locateSpan finds b's span in markdown using the three-tier match.
func locateSpan(markdown string, b Block) (Region, bool) {
	text := b.Text

	// Tier 1: exact substring.
	if text != "" {
		if idx := strings.Index(markdown, text); idx >= 0 {
			return validatedRegion(idx, idx+len(text), b.Type)
		}
	}

	// Tier 2: whitespace-normalized substring, remapped back to original
	// offsets.
	if text != "" {
		if start, end, ok := locateNormalized(markdown, text); ok {
			return validatedRegion(start, end, b.Type)
		}
	}

	// Tier 3: block-type-specific extent detection.
	switch b.Type {
	case BlockTable, BlockTableGroup:
		if start, end, ok := locateTableExtent(markdown, text); ok {
			return validatedRegion(start, end, b.Type)
		}
	case BlockCode:
		if start, end, ok := locateFencedCode(markdown, text); ok {
			return validatedRegion(start, end, b.Type)
		}
	case BlockFigure, BlockFigureGroup:
		if start, end, ok := locateFigureExtent(markdown, text); ok {
			return validatedRegion(start, end, b.Type)
		}
	}

	return Region{}, false
}

func validatedRegion(start, end int, blockType string) (Region, bool) {
	if start < 0 || end < start {
		return Region{}, false
	}
	return Region{Start: start, End: end, BlockType: blockType}, true
}

var wsRun = regexp.MustCompile(`\s+`)

// locateNormalized finds needle in haystack after collapsing runs of
// whitespace to a single space in both, then remaps the match back to
// offsets in the original haystack.
func locateNormalized(haystack, needle string) (int, int, bool) {
	normHaystack, mapping := normalizeWithMapping(haystack)
	normNeedle := wsRun.ReplaceAllString(strings.TrimSpace(needle), " ")
	if normNeedle == "" {
		return 0, 0, false
	}
	idx := strings.Index(normHaystack, normNeedle)
	if idx < 0 {
		return 0, 0, false
	}
	start := mapping[idx]
	endNorm := idx + len(normNeedle) - 1
	var end int
	if endNorm < len(mapping) {
		end = mapping[endNorm] + 1
	} else {
		end = len(haystack)
	}
	return start, end, true
}

// normalizeWithMapping collapses whitespace runs in s to single spaces,
// returning the normalized string and a mapping from each normalized-string
// index back to its originating index in s.
func normalizeWithMapping(s string) (string, []int) {
	var b strings.Builder
	mapping := make([]int, 0, len(s))
	inWS := false
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !inWS {
				b.WriteByte(' ')
				mapping = append(mapping, i)
				inWS = true
			}
			continue
		}
		inWS = false
		b.WriteRune(r)
		mapping = append(mapping, i)
	}
	return b.String(), mapping
}

// locateTableExtent scans for a run of lines containing "|", extending
// outward until a blank, non-table line is reached on each side.
func locateTableExtent(markdown, hint string) (int, int, bool) {
	firstLine := hint
	if idx := strings.IndexByte(hint, '\n'); idx >= 0 {
		firstLine = hint[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	anchor := -1
	if firstLine != "" {
		anchor = strings.Index(markdown, firstLine)
	}
	if anchor < 0 {
		anchor = firstPipeLine(markdown)
		if anchor < 0 {
			return 0, 0, false
		}
	}

	lineStart, lineEnd := lineBounds(markdown, anchor)
	start, end := lineStart, lineEnd

	// Expand upward.
	for start > 0 {
		prevEnd := start - 1
		prevStart, _ := lineBounds(markdown, prevEnd)
		line := markdown[prevStart:prevEnd]
		if strings.TrimSpace(line) == "" || !strings.Contains(line, "|") {
			break
		}
		start = prevStart
	}
	// Expand downward.
	for end < len(markdown) {
		nextStart := end + 1 // skip the newline that ends the current line
		if nextStart >= len(markdown) {
			break
		}
		_, nextEnd := lineBounds(markdown, nextStart)
		line := markdown[nextStart:nextEnd]
		if strings.TrimSpace(line) == "" || !strings.Contains(line, "|") {
			break
		}
		end = nextEnd
	}
	return start, end, true
}

func firstPipeLine(markdown string) int {
	for i, line := range strings.Split(markdown, "\n") {
		if strings.Contains(line, "|") {
			// Recompute byte offset of this line.
			offset := 0
			lines := strings.SplitAfter(markdown, "\n")
			for j := 0; j < i; j++ {
				offset += len(lines[j])
			}
			return offset
		}
	}
	return -1
}

// lineBounds returns [start,end) of the line containing byte offset pos.
func lineBounds(s string, pos int) (int, int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(s) {
		pos = len(s)
	}
	start := strings.LastIndexByte(s[:pos], '\n') + 1
	relEnd := strings.IndexByte(s[pos:], '\n')
	var end int
	if relEnd < 0 {
		end = len(s)
	} else {
		end = pos + relEnd
	}
	return start, end
}

// locateFencedCode finds the fenced code block (```...```) nearest hint's
// content.
func locateFencedCode(markdown, hint string) (int, int, bool) {
	fence := "```"
	search := markdown
	offset := 0
	for {
		start := strings.Index(search, fence)
		if start < 0 {
			return 0, 0, false
		}
		closeRel := strings.Index(search[start+len(fence):], fence)
		if closeRel < 0 {
			return 0, 0, false
		}
		blockStart := offset + start
		blockEnd := offset + start + len(fence) + closeRel + len(fence)
		block := markdown[blockStart:blockEnd]
		if hint == "" || strings.Contains(block, firstNonEmptyLine(hint)) {
			return blockStart, blockEnd, true
		}
		advance := start + len(fence) + closeRel + len(fence)
		search = search[advance:]
		offset += advance
	}
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return s
}

// stripHTMLTags removes HTML tags, used to estimate a figure's span length
// from its stripped content.
var htmlTag = regexp.MustCompile(`<[^>]*>`)

func stripHTMLTags(s string) string {
	return htmlTag.ReplaceAllString(s, "")
}

// locateFigureExtent estimates a figure's span by the length of its
// stripped-HTML content, anchored at the first occurrence of any
// identifiable fragment of hint.
func locateFigureExtent(markdown, hint string) (int, int, bool) {
	stripped := strings.TrimSpace(stripHTMLTags(hint))
	if stripped == "" {
		return 0, 0, false
	}
	anchor := strings.Index(markdown, stripped)
	if anchor < 0 {
		first := firstNonEmptyLine(stripped)
		anchor = strings.Index(markdown, first)
		if anchor < 0 {
			return 0, 0, false
		}
	}
	end := anchor + len(stripped)
	if end > len(markdown) {
		end = len(markdown)
	}
	return anchor, end, true
}

// mergeRegions sorts regions and merges overlapping ones, keeping the
// larger (by span length) block_type of the two.
func mergeRegions(regions []Region) []Region {
	if len(regions) == 0 {
		return nil
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Start < regions[j].Start })

	merged := []Region{regions[0]}
	for _, r := range regions[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			lastLen := last.End - last.Start
			if r.End > last.End {
				last.End = r.End
			}
			if (r.End - r.Start) > lastLen {
				last.BlockType = r.BlockType
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// RegionIndex supports is_in_region(offset) via binary search over a
// pre-sorted region list.
type RegionIndex struct {
	regions []Region
}

func NewRegionIndex(regions []Region) *RegionIndex {
	return &RegionIndex{regions: regions}
}

// IsInRegion reports whether offset falls within any located region, and if
// so, the region itself.
func (ri *RegionIndex) IsInRegion(offset int) (Region, bool) {
	i := sort.Search(len(ri.regions), func(i int) bool { return ri.regions[i].End > offset })
	if i < len(ri.regions) && ri.regions[i].Start <= offset && offset < ri.regions[i].End {
		return ri.regions[i], true
	}
	return Region{}, false
}
