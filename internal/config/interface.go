package config

import "context"

// Loader is the interface for a format-specific run-file loader.
type Loader interface {
	// Load reads the run file at path and translates it into the
	// format-agnostic model.
	Load(ctx context.Context, path string) (*RunFile, error)
}
