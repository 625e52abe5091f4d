package runner

import (
	"strings"

	"github.com/vk/regimerun/internal/notebook"
)

// Defaults for the result extraction.
const (
	DefaultMarker    = "Performance Summary by Regime"
	DefaultResultKey = "regime_summary"
)

// Results maps result keys to the text extracted from the notebook.
type Results map[string]string

// ExtractResults scans the stream outputs of all code cells in document
// order. Every stream whose text contains marker is stored under key, so the
// last match wins.
func ExtractResults(nb *notebook.Notebook, marker, key string) Results {
	results := Results{}
	for _, cell := range nb.Cells {
		if !cell.IsCode() {
			continue
		}
		for _, out := range cell.Outputs {
			if out.OutputType != notebook.OutputStream {
				continue
			}
			if text := out.Text.String(); strings.Contains(text, marker) {
				results[key] = text
			}
		}
	}
	return results
}
