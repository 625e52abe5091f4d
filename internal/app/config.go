package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/vk/regimerun/internal/config"
	"github.com/vk/regimerun/internal/engine"
	"github.com/vk/regimerun/internal/runner"
)

// Defaults reproduce the behaviour of a bare invocation.
const (
	DefaultNotebookPath = "unsupervised_market_hidden_regime.ipynb"
	DefaultOutputDir    = "."
	DefaultLogFormat    = "text"
	DefaultLogLevel     = "info"
)

// Engine names.
const (
	EngineNbconvert = "nbconvert"
	EngineKernel    = "kernel"
)

// PublishS3 is the only supported publish target.
const PublishS3 = "s3"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	NotebookPath string
	OutputDir    string

	Engine        string
	Timeout       time.Duration
	KernelName    string
	JupyterBinary string // nbconvert engine
	ServerURL     string // kernel engine
	Token         string // kernel engine
	RootDir       string // kernel engine

	Marker         string
	ResultKey      string
	ArtifactPrefix string

	Publish *PublishConfig

	LogFormat string
	LogLevel  string
	LogFile   string
}

// PublishConfig enables uploading artifacts to an S3 bucket.
type PublishConfig struct {
	Type      string // empty means s3
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		NotebookPath:   DefaultNotebookPath,
		OutputDir:      DefaultOutputDir,
		Engine:         EngineNbconvert,
		Timeout:        engine.DefaultTimeout,
		KernelName:     engine.DefaultKernelName,
		Marker:         runner.DefaultMarker,
		ResultKey:      runner.DefaultResultKey,
		ArtifactPrefix: runner.DefaultArtifactPrefix,
		LogFormat:      DefaultLogFormat,
		LogLevel:       DefaultLogLevel,
	}
}

// NewConfig validates cfg and returns it. All problems are reported at once.
func NewConfig(cfg Config) (*Config, error) {
	var result *multierror.Error

	if cfg.NotebookPath == "" {
		result = multierror.Append(result, errors.New("notebook path is required"))
	}
	if cfg.OutputDir == "" {
		result = multierror.Append(result, errors.New("output directory is required"))
	}
	switch cfg.Engine {
	case EngineNbconvert:
	case EngineKernel:
		if cfg.ServerURL == "" {
			result = multierror.Append(result, errors.New("the kernel engine requires a server url"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("invalid engine %q: must be %q or %q", cfg.Engine, EngineNbconvert, EngineKernel))
	}
	if cfg.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("invalid timeout %s: must not be negative", cfg.Timeout))
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		result = multierror.Append(result, errors.New("invalid log-format: must be 'text' or 'json'"))
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, errors.New("invalid log-level: must be 'debug', 'info', 'warn', or 'error'"))
	}
	if cfg.Publish != nil {
		switch cfg.Publish.Type {
		case "", PublishS3:
		default:
			result = multierror.Append(result, fmt.Errorf("invalid publish type %q: only %q is supported", cfg.Publish.Type, PublishS3))
		}
		if cfg.Publish.Bucket == "" {
			result = multierror.Append(result, errors.New("publish requires a bucket"))
		}
		if cfg.Publish.AccessKey == "" || cfg.Publish.SecretKey == "" {
			result = multierror.Append(result, errors.New("publish requires AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY"))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyRunFile overlays the values set in a run file onto cfg.
func (cfg *Config) ApplyRunFile(rf *config.RunFile) {
	if rf == nil {
		return
	}
	setString(&cfg.NotebookPath, rf.Notebook)
	setString(&cfg.OutputDir, rf.OutputDir)
	if e := rf.Engine; e != nil {
		setString(&cfg.Engine, e.Type)
		if e.Timeout > 0 {
			cfg.Timeout = e.Timeout
		}
		setString(&cfg.KernelName, e.KernelName)
		setString(&cfg.JupyterBinary, e.Jupyter)
		setString(&cfg.ServerURL, e.ServerURL)
		setString(&cfg.Token, e.Token)
		setString(&cfg.RootDir, e.RootDir)
	}
	if x := rf.Extract; x != nil {
		setString(&cfg.Marker, x.Marker)
		setString(&cfg.ResultKey, x.Key)
		setString(&cfg.ArtifactPrefix, x.ArtifactPrefix)
	}
	if p := rf.Publish; p != nil {
		cfg.Publish = &PublishConfig{
			Type:     p.Type,
			Bucket:   p.Bucket,
			Prefix:   p.Prefix,
			Region:   p.Region,
			Endpoint: p.Endpoint,
		}
	}
}

// ApplyEnv fills secrets that were not configured explicitly.
func (cfg *Config) ApplyEnv(env Env) {
	if cfg.Token == "" {
		cfg.Token = env.JupyterToken
	}
	if p := cfg.Publish; p != nil {
		if p.AccessKey == "" {
			p.AccessKey = env.AWSAccessKeyID
		}
		if p.SecretKey == "" {
			p.SecretKey = env.AWSSecretAccessKey
		}
		if p.Region == "" {
			p.Region = env.AWSRegion
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
