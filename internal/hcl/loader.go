package hcl

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/regimerun/internal/config"
	"github.com/vk/regimerun/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	environ func() []string
}

// NewLoader creates a new HCL run-file loader.
func NewLoader() *Loader {
	return &Loader{environ: os.Environ}
}

// fileRoot mirrors the top level of a run file.
type fileRoot struct {
	Notebook  string        `hcl:"notebook,optional"`
	OutputDir string        `hcl:"output_dir,optional"`
	Engine    *engineBlock  `hcl:"engine,block"`
	Extract   *extractBlock `hcl:"extract,block"`
	Publish   *publishBlock `hcl:"publish,block"`
	Remain    hcl.Body      `hcl:",remain"`
}

type engineBlock struct {
	Type      string         `hcl:"type,label"`
	Timeout   hcl.Expression `hcl:"timeout,optional"`
	Kernel    string         `hcl:"kernel,optional"`
	Jupyter   string         `hcl:"jupyter,optional"`
	ServerURL string         `hcl:"server_url,optional"`
	Token     string         `hcl:"token,optional"`
	RootDir   string         `hcl:"root_dir,optional"`
}

type extractBlock struct {
	Marker         string `hcl:"marker,optional"`
	Key            string `hcl:"key,optional"`
	ArtifactPrefix string `hcl:"artifact_prefix,optional"`
}

type publishBlock struct {
	Type     string `hcl:"type,label"`
	Bucket   string `hcl:"bucket"`
	Prefix   string `hcl:"prefix,optional"`
	Region   string `hcl:"region,optional"`
	Endpoint string `hcl:"endpoint,optional"`
}

// Load parses and evaluates the run file at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.RunFile, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	evalCtx := l.evalContext()
	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, evalCtx, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	attrs, extra := root.Remain.JustAttributes()
	for name, attr := range attrs {
		logger.Warn("Ignoring unknown run file attribute.", "attribute", name, "range", attr.NameRange.String())
	}
	// Leftover blocks are reported by JustAttributes as diagnostics.
	for _, d := range extra {
		args := []any{"detail", d.Summary}
		if d.Subject != nil {
			args = append(args, "range", d.Subject.String())
		}
		logger.Warn("Ignoring unknown run file block.", args...)
	}

	model := &config.RunFile{
		Notebook:  root.Notebook,
		OutputDir: root.OutputDir,
	}
	if root.Engine != nil {
		eng, err := translateEngine(root.Engine, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		model.Engine = eng
	}
	if root.Extract != nil {
		model.Extract = &config.Extract{
			Marker:         root.Extract.Marker,
			Key:            root.Extract.Key,
			ArtifactPrefix: root.Extract.ArtifactPrefix,
		}
	}
	if root.Publish != nil {
		model.Publish = &config.Publish{
			Type:     root.Publish.Type,
			Bucket:   root.Publish.Bucket,
			Prefix:   root.Publish.Prefix,
			Region:   root.Publish.Region,
			Endpoint: root.Publish.Endpoint,
		}
	}

	logger.Debug("HCL loading complete.", "engine", model.Engine != nil, "publish", model.Publish != nil)
	return model, nil
}

// evalContext exposes the process environment as the `env` map.
func (l *Loader) evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	env := cty.MapValEmpty(cty.String)
	if len(vars) > 0 {
		env = cty.MapVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}

func translateEngine(b *engineBlock, evalCtx *hcl.EvalContext) (*config.Engine, error) {
	timeout, err := decodeDuration(b.Timeout, evalCtx)
	if err != nil {
		return nil, err
	}
	return &config.Engine{
		Type:       b.Type,
		Timeout:    timeout,
		KernelName: b.Kernel,
		Jupyter:    b.Jupyter,
		ServerURL:  b.ServerURL,
		Token:      b.Token,
		RootDir:    b.RootDir,
	}, nil
}

// decodeDuration accepts either a number of seconds or a Go duration string.
func decodeDuration(expr hcl.Expression, evalCtx *hcl.EvalContext) (time.Duration, error) {
	if expr == nil {
		return 0, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return 0, fmt.Errorf("invalid timeout: %w", diags)
	}
	if val.IsNull() {
		return 0, nil
	}
	if !val.IsKnown() {
		return 0, fmt.Errorf("invalid timeout: value is not known")
	}

	switch val.Type() {
	case cty.Number:
		seconds, _ := val.AsBigFloat().Float64()
		if seconds <= 0 {
			return 0, fmt.Errorf("invalid timeout: must be positive, got %v", seconds)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	case cty.String:
		d, err := time.ParseDuration(val.AsString())
		if err != nil {
			return 0, fmt.Errorf("invalid timeout: %w", err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("invalid timeout: must be positive, got %s", d)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("invalid timeout: must be a number of seconds or a duration string, got %s", val.Type().FriendlyName())
	}
}
