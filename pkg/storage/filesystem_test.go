package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStorage(base)
	require.NoError(t, err)

	rel, err := store.SaveStream(SubdirCertificates, "Degree Certificate.PDF", strings.NewReader("%PDF-1.4 content"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, SubdirCertificates+string(filepath.Separator)))
	assert.True(t, strings.HasSuffix(rel, ".pdf"), "extension is lowercased: %s", rel)

	file, err := store.Open(rel)
	require.NoError(t, err)
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	assert.Equal(t, "%PDF-1.4 content", string(content))

	require.NoError(t, store.Delete(rel))
	_, err = store.Open(rel)
	assert.Error(t, err)

	// deleting a missing file is not an error
	assert.NoError(t, store.Delete(rel))
}

func TestLocalStorageGeneratesUniqueNames(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	first, err := store.SaveStream(SubdirReceipts, "receipt.pdf", strings.NewReader("a"))
	require.NoError(t, err)
	second, err := store.SaveStream(SubdirReceipts, "receipt.pdf", strings.NewReader("b"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestLocalStorageCreatesSubdirectories(t *testing.T) {
	base := t.TempDir()
	_, err := NewLocalStorage(base)
	require.NoError(t, err)

	for _, sub := range []string{SubdirCertificates, SubdirReceipts, SubdirProcessed} {
		info, err := os.Stat(filepath.Join(base, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLocalStorageResolveStaysUnderBase(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStorage(base)
	require.NoError(t, err)

	resolved := store.Path("../../etc/passwd")
	assert.True(t, strings.HasPrefix(resolved, base))
	resolved = store.Path("/etc/passwd")
	assert.True(t, strings.HasPrefix(resolved, base))
}
