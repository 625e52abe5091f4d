// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"os"
)

// EnsureDir creates dir and any missing parents. An existing directory is
// not an error.
func EnsureDir(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// CreateExclusive creates path for writing and fails if it already exists.
func CreateExclusive(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

// WriteExclusive creates path, writes the output of write into it and closes
// it. The file must not exist beforehand.
func WriteExclusive(path string, write func(f *os.File) error) (err error) {
	f, err := CreateExclusive(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return write(f)
}
