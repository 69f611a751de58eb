package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_SectionPathTracksHeadingStack(t *testing.T) {
	markdown := "# Scope\nThis standard applies to all pressure vessels.\n\n## Materials\nSteel SHALL conform to ASTM A516.\n"
	tree := BlockTree{
		{Type: BlockTitle, Text: "# Scope", PageNumber: 1},
		{Type: BlockText, Text: "This standard applies to all pressure vessels.", PageNumber: 1},
		{Type: BlockSectionHeader, Text: "## Materials", PageNumber: 1},
		{Type: BlockText, Text: "Steel SHALL conform to ASTM A516.", PageNumber: 1},
	}

	result := Build(markdown, tree, Options{MinHeadingSize: 1})
	require.Len(t, result.Chunks, 4)

	last := result.Chunks[3]
	require.NotNil(t, last.SectionPath)
	assert.Contains(t, *last.SectionPath, "Materials")
	assert.Contains(t, last.ContentTypes, "requirement")
	assert.Contains(t, last.ContentTypes, "standards_reference")
}

func TestBuild_TableGroupIsAtomicAndNotRecursed(t *testing.T) {
	markdown := "a table follows\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"
	tree := BlockTree{
		{
			Type:       BlockTableGroup,
			Text:       "| a | b |\n|---|---|\n| 1 | 2 |",
			PageNumber: 1,
			Children: []Block{
				{Type: BlockTable, Text: "| a | b |\n|---|---|\n| 1 | 2 |", PageNumber: 1},
			},
		},
	}

	result := Build(markdown, tree, Options{})
	require.Len(t, result.Chunks, 1)
	assert.True(t, result.Chunks[0].IsAtomic)
	assert.Equal(t, BlockTableGroup, result.Chunks[0].ContentTypes[0])
}

func TestBuild_HeadingOnlyChunkMergesIntoSuccessor(t *testing.T) {
	markdown := "# Title\nFollowing paragraph text that is not itself a heading.\n"
	tree := BlockTree{
		{Type: BlockTitle, Text: "# Title", PageNumber: 1},
		{Type: BlockText, Text: "Following paragraph text that is not itself a heading.", PageNumber: 1},
	}

	result := Build(markdown, tree, Options{MinHeadingSize: 1000})
	require.Len(t, result.Chunks, 1)
	assert.Contains(t, result.Chunks[0].Text, "Title")
	assert.Contains(t, result.Chunks[0].Text, "Following paragraph")
}

func TestBuild_ConfidenceFollowsPrimaryContentType(t *testing.T) {
	markdown := "some code\n"
	tree := BlockTree{
		{Type: BlockCode, Text: "func main() {}", PageNumber: 1},
	}

	result := Build(markdown, tree, Options{})
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, confidenceByBlockType[BlockCode], result.Chunks[0].Confidence)
}

func TestSemanticTags(t *testing.T) {
	assert.Contains(t, semanticTags("The contractor MUST NOT begin work before permitting."), "requirement")
	assert.Contains(t, semanticTags("See ISO 9001:2015 for quality management requirements."), "standards_reference")
	assert.Contains(t, semanticTags("1.2.3 The warranty period begins upon delivery."), "clause")
	assert.Contains(t, semanticTags(`"Effective Date" means the date first written above.`), "definition")
	assert.Empty(t, semanticTags("a plain unremarkable sentence"))
}

func TestIsHeadingLineAndHeadingLevel(t *testing.T) {
	assert.True(t, IsHeadingLine("## Materials"))
	assert.True(t, IsHeadingLine("1.2 Scope"))
	assert.False(t, IsHeadingLine("a normal sentence."))

	assert.Equal(t, 2, HeadingLevel("## Materials"))
	assert.Equal(t, 2, HeadingLevel("1.2. Scope"))
	assert.Equal(t, 1, HeadingLevel("# Title"))
}
