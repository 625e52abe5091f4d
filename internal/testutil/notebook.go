package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/regimerun/internal/notebook"
)

// Notebook builds an nbformat 4.5 document: every source becomes a code
// cell, preceded by a markdown title cell.
func Notebook(sources ...string) *notebook.Notebook {
	nb := &notebook.Notebook{
		NBFormat:      4,
		NBFormatMinor: 5,
		Metadata: map[string]any{
			"kernelspec": map[string]any{"name": "python3", "display_name": "Python 3", "language": "python"},
		},
	}
	nb.Cells = append(nb.Cells, &notebook.Cell{CellType: notebook.CellTypeMarkdown, Source: "# Unsupervised market regimes"})
	for _, src := range sources {
		nb.Cells = append(nb.Cells, &notebook.Cell{CellType: notebook.CellTypeCode, Source: notebook.MultilineString(src)})
	}
	return nb
}

// WriteNotebook stores nb under dir/name and returns the full path.
func WriteNotebook(t *testing.T, dir, name string, nb *notebook.Notebook) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, notebook.Write(f, nb))
	return path
}
