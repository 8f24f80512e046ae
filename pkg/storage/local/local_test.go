package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-rag/pkg/logger"
)

func TestLocalStorage_StoreGetDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir(), logger.NewNop())
	require.NoError(t, err)

	key, err := store.Store(ctx, strings.NewReader("%PDF-1.4 body"), "abc_doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "abc_doc.pdf", key)

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "deleting twice is fine")

	_, err = store.Get(ctx, key)
	assert.Error(t, err)
}

func TestLocalStorage_RejectsUnsafeKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), logger.NewNop())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape.pdf", "a/b.pdf", ".hidden"} {
		_, err := store.Store(context.Background(), strings.NewReader("x"), key)
		assert.Error(t, err, key)
	}
}

func TestLocalStorage_CleanupBefore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, logger.NewNop())
	require.NoError(t, err)

	_, err = store.Store(ctx, strings.NewReader("old"), "old.pdf")
	require.NoError(t, err)
	_, err = store.Store(ctx, strings.NewReader("new"), "new.pdf")
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.pdf"), past, past))

	require.NoError(t, store.CleanupBefore(ctx, time.Now().Add(-time.Hour)))

	assert.NoFileExists(t, filepath.Join(dir, "old.pdf"))
	assert.FileExists(t, filepath.Join(dir, "new.pdf"))
}
