package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T) (*LocalStore, string) {
	t.Helper()
	dir := t.TempDir()
	return NewLocalStore(dir, zap.NewNop()), dir
}

func TestSaveOriginalAndRead(t *testing.T) {
	store, dir := newStore(t)

	relPath, err := store.SaveOriginal("alice", ".txt", []byte("draft"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(relPath, filepath.Join("documents", "alice")))
	assert.True(t, strings.HasSuffix(relPath, ".txt"))

	content, err := store.Read(relPath)
	require.NoError(t, err)
	assert.Equal(t, "draft", string(content))

	_, err = os.Stat(filepath.Join(dir, relPath))
	assert.NoError(t, err)
}

func TestSaveProcessed(t *testing.T) {
	store, _ := newStore(t)

	relPath, err := store.SaveProcessed("alice", "txt", []byte("rewritten"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(relPath, filepath.Join("documents", "processed", "alice")))
	assert.Contains(t, filepath.Base(relPath), "processed_")
	assert.True(t, strings.HasSuffix(relPath, ".txt"))
}

func TestGeneratedNamesDoNotCollide(t *testing.T) {
	store, _ := newStore(t)

	first, err := store.SaveOriginal("alice", ".txt", []byte("a"))
	require.NoError(t, err)
	second, err := store.SaveOriginal("alice", ".txt", []byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestPathEscapeRejected(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Read(filepath.Join("..", "etc", "passwd"))
	assert.Error(t, err)

	_, err = store.Path(filepath.Join("..", "outside.txt"))
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	store, _ := newStore(t)

	relPath, err := store.SaveOriginal("alice", ".txt", []byte("draft"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(relPath))
	_, err = store.Read(relPath)
	assert.Error(t, err)

	// Removing a missing file is not an error
	assert.NoError(t, store.Remove(relPath))
}
