//go:build cgo

package veridoc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(t *testing.T) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DefaultStoragePath = t.TempDir()
	return NewSession(cfg)
}

func TestSession_RequireBeforeSelectReturnsDatabaseNotSelected(t *testing.T) {
	s := testSession(t)
	_, err := s.Require()
	require.Error(t, err)
	cat, ok := CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, CategoryDatabaseNotSelected, cat)
}

func TestSession_SelectThenRequireSucceeds(t *testing.T) {
	s := testSession(t)
	require.NoError(t, s.Select("alpha"))
	t.Cleanup(func() { _ = s.Clear() })

	db, err := s.Require()
	require.NoError(t, err)
	assert.NotNil(t, db)
	assert.Equal(t, "alpha", s.Selected())
}

func TestSession_SelectReplacesPreviousSelection(t *testing.T) {
	s := testSession(t)
	require.NoError(t, s.Select("alpha"))
	require.NoError(t, s.Select("beta"))
	t.Cleanup(func() { _ = s.Clear() })

	assert.Equal(t, "beta", s.Selected())
}

func TestSession_CreateRefusesExistingDatabaseWithoutForce(t *testing.T) {
	s := testSession(t)
	require.NoError(t, s.Create("alpha", false))
	t.Cleanup(func() { _ = s.Clear() })

	s2 := testSession(t)
	s2.cfg.DefaultStoragePath = s.cfg.DefaultStoragePath
	err := s2.Create("alpha", false)
	require.Error(t, err)
	cat, ok := CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, CategoryDatabaseAlreadyExists, cat)
}

func TestSession_Clear(t *testing.T) {
	s := testSession(t)
	require.NoError(t, s.Select("alpha"))
	require.NoError(t, s.Clear())

	_, err := s.Require()
	require.Error(t, err)
	assert.Empty(t, s.Selected())
}

func TestSession_DBPathAcceptsBareNameAndAbsolutePath(t *testing.T) {
	s := testSession(t)
	assert.Equal(t, filepath.Join(s.cfg.DefaultStoragePath, "alpha.db"), s.dbPath("alpha"))
	assert.Equal(t, "/abs/path/db.sqlite", s.dbPath("/abs/path/db.sqlite"))
}
