package engine

import (
	"context"
	"time"

	"github.com/vk/regimerun/internal/notebook"
)

// Defaults used when an engine is configured without explicit values.
const (
	DefaultTimeout    = 600 * time.Second
	DefaultKernelName = "python3"
)

// Engine executes a notebook in place.
type Engine interface {
	// Execute runs all code cells of nb in order and fills in their outputs.
	// A cell error or a timeout is returned as *CellExecutionError or
	// *TimeoutError respectively.
	Execute(ctx context.Context, nb *notebook.Notebook, res Resources) error
}

// Resources is the per-run execution context handed to an engine.
type Resources struct {
	// WorkDir is the directory the notebook's code resolves relative paths
	// against, normally the notebook's own parent directory.
	WorkDir string
}

// Config holds the settings every engine understands.
type Config struct {
	// Timeout bounds the execution of a single cell.
	Timeout time.Duration
	// KernelName selects the interpreter, e.g. "python3".
	KernelName string
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.KernelName == "" {
		c.KernelName = DefaultKernelName
	}
	return c
}
