package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/regimerun/internal/ctxlog"
	"github.com/vk/regimerun/internal/engine"
	"github.com/vk/regimerun/internal/fsutil"
	"github.com/vk/regimerun/internal/notebook"
)

// TimestampLayout names the artifacts of one run, e.g. 20240131_235959.
const TimestampLayout = "20060102_150405"

// DefaultArtifactPrefix is the common prefix of both artifact file names.
const DefaultArtifactPrefix = "regime_analysis"

// Runner executes notebooks and persists their results.
type Runner struct {
	engine engine.Engine
	marker string
	key    string
	prefix string
	now    func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithMarker sets the substring that identifies the summary output.
func WithMarker(marker string) Option {
	return func(r *Runner) {
		if marker != "" {
			r.marker = marker
		}
	}
}

// WithResultKey sets the key the summary is stored under.
func WithResultKey(key string) Option {
	return func(r *Runner) {
		if key != "" {
			r.key = key
		}
	}
}

// WithArtifactPrefix sets the prefix of the artifact file names.
func WithArtifactPrefix(prefix string) Option {
	return func(r *Runner) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithClock replaces time.Now for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// New creates a Runner that executes notebooks with e.
func New(e engine.Engine, opts ...Option) *Runner {
	r := &Runner{
		engine: e,
		marker: DefaultMarker,
		key:    DefaultResultKey,
		prefix: DefaultArtifactPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Artifacts describes the files written by one Persist call.
type Artifacts struct {
	Timestamp    string
	NotebookPath string
	ResultsPath  string
}

// Execute reads the notebook at path, runs it with the working directory set
// to the notebook's parent directory and extracts the results. Engine errors
// are returned as they are.
func (r *Runner) Execute(ctx context.Context, path string) (*notebook.Notebook, Results, error) {
	ctx = ctxlog.With(ctx, "notebook", path)
	logger := ctxlog.FromContext(ctx)
	logger.Info("Reading notebook.")

	nb, err := notebook.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Executing notebook...")
	if err := r.engine.Execute(ctx, nb, engine.Resources{WorkDir: filepath.Dir(abs)}); err != nil {
		return nil, nil, err
	}

	results := ExtractResults(nb, r.marker, r.key)
	logger.Debug("Results extracted.", "keys", len(results))
	return nb, results, nil
}

// Persist writes nb and results into outputDir under a shared timestamp,
// creating the directory if needed. Existing files are never overwritten.
func (r *Runner) Persist(ctx context.Context, nb *notebook.Notebook, results Results, outputDir string) (Artifacts, error) {
	logger := ctxlog.FromContext(ctx)

	if err := fsutil.EnsureDir(outputDir); err != nil {
		return Artifacts{}, err
	}

	ts := r.now().Format(TimestampLayout)
	art := Artifacts{
		Timestamp:    ts,
		NotebookPath: filepath.Join(outputDir, fmt.Sprintf("%s_executed_%s.ipynb", r.prefix, ts)),
		ResultsPath:  filepath.Join(outputDir, fmt.Sprintf("%s_results_%s.json", r.prefix, ts)),
	}

	logger.Info("Saving executed notebook.", "path", art.NotebookPath)
	err := fsutil.WriteExclusive(art.NotebookPath, func(f *os.File) error {
		return notebook.Write(f, nb)
	})
	if err != nil {
		return Artifacts{}, fmt.Errorf("failed to save executed notebook: %w", err)
	}

	logger.Info("Saving results.", "path", art.ResultsPath)
	body, err := encodeResults(results)
	if err == nil {
		err = fsutil.WriteExclusive(art.ResultsPath, func(f *os.File) error {
			_, err := f.Write(body)
			return err
		})
	}
	if err != nil {
		// Both artifacts or none.
		if rmErr := os.Remove(art.NotebookPath); rmErr != nil {
			logger.Warn("Failed to remove executed notebook.", "path", art.NotebookPath, "error", rmErr)
		}
		return Artifacts{}, fmt.Errorf("failed to save results: %w", err)
	}

	return art, nil
}

// encodeResults renders results as JSON indented by two spaces.
func encodeResults(results Results) ([]byte, error) {
	if results == nil {
		results = Results{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(results); err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
