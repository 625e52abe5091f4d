package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	require.NoError(t, EnsureDir(dir), "existing directory is not an error")
}

func TestEnsureDir_FileInTheWay(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	require.Error(t, EnsureDir(filepath.Join(file, "sub")))
}

func TestWriteExclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.txt")
	write := func(f *os.File) error {
		_, err := f.WriteString("hello")
		return err
	}
	require.NoError(t, WriteExclusive(path, write))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))

	err = WriteExclusive(path, write)
	require.True(t, errors.Is(err, os.ErrExist), "existing files are never overwritten")
}
