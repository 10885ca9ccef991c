package clients

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageURL_AbsoluteAndRelative(t *testing.T) {
	tmpDir := t.TempDir()

	c, err := NewLocalStorage(tmpDir, "/files", "http://example.com:8060/")
	require.NoError(t, err)
	got, _ := c.URL(context.Background(), "a.xlsx")
	assert.Equal(t, "http://example.com:8060/files/a.xlsx", got)

	c2, err := NewLocalStorage(tmpDir, "files/", "")
	require.NoError(t, err)
	got2, _ := c2.URL(context.Background(), "b.xlsx")
	assert.Equal(t, "/files/b.xlsx", got2)
}

func TestStorageSaveAndOpen(t *testing.T) {
	c, err := NewLocalStorage(t.TempDir(), "/files", "")
	require.NoError(t, err)

	saved, err := c.Save(context.Background(), "../../spending 2026-10.xlsx", []byte("hello"), "")
	require.NoError(t, err)
	assert.Equal(t, "spending 2026-10.xlsx", OriginalName(saved))

	path, err := c.Open(saved)
	require.NoError(t, err)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	_, err = c.Open("../" + saved)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = c.Open("missing.xlsx")
	assert.Error(t, err)
}

func TestStorageCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	c, err := NewLocalStorage(dir, "/files", "")
	require.NoError(t, err)

	oldName, err := c.Save(context.Background(), "old.xlsx", []byte("x"), "")
	require.NoError(t, err)
	freshName, err := c.Save(context.Background(), "fresh.xlsx", []byte("y"), "")
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, oldName), past, past))

	require.NoError(t, c.CleanupOlderThan(30*time.Minute))

	_, err = os.Stat(filepath.Join(dir, oldName))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, freshName))
	assert.NoError(t, err)
}
