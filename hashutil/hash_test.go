package hashutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashText_DeterministicAndPrefixed(t *testing.T) {
	a := HashText([]byte("hello world"))
	b := HashText([]byte("hello world"))
	assert.Equal(t, a, b)
	assert.True(t, IsValidFormat(a))

	c := HashText([]byte("different"))
	assert.NotEqual(t, a, c)
}

func TestHashFile_MatchesHashTextOfContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("content on disk"), 0o644))

	fromFile, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashText([]byte("content on disk")), fromFile)
}

func TestHashFile_MissingFile(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, IsValidFormat(HashText([]byte("x"))))
	assert.False(t, IsValidFormat("not-a-hash"))
	assert.False(t, IsValidFormat("sha256:tooShort"))
	assert.False(t, IsValidFormat("sha256:"+strings.Repeat("g", 64))) // not hex
}
