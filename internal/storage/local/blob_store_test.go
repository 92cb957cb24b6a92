package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	require.NoError(t, store.PutObject(context.Background(), "abc_240.png", "image/png", []byte("data")))

	raw, err := os.ReadFile(filepath.Join(dir, "abc_240.png"))
	require.NoError(t, err)
	require.Equal(t, []byte("data"), raw)
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	err = store.PutObject(context.Background(), "../escape.png", "image/png", []byte("data"))
	require.ErrorContains(t, err, "traversal")
}
