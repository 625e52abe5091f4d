package config

import "time"

// RunFile is the unified, format-agnostic representation of a run file.
// Zero values mean "not set".
type RunFile struct {
	Notebook  string
	OutputDir string
	Engine    *Engine
	Extract   *Extract
	Publish   *Publish
}

// Engine selects and configures the notebook engine.
type Engine struct {
	Type       string
	Timeout    time.Duration
	KernelName string
	Jupyter    string
	ServerURL  string
	Token      string
	RootDir    string
}

// Extract configures result extraction and artifact naming.
type Extract struct {
	Marker         string
	Key            string
	ArtifactPrefix string
}

// Publish configures where artifacts are uploaded after a run.
type Publish struct {
	Type     string
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}
