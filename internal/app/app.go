package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vk/regimerun/internal/ctxlog"
	"github.com/vk/regimerun/internal/engine"
	"github.com/vk/regimerun/internal/engine/kernel"
	"github.com/vk/regimerun/internal/engine/nbconvert"
	"github.com/vk/regimerun/internal/publish"
	"github.com/vk/regimerun/internal/runner"
)

// Publisher uploads the artifacts of a finished run.
type Publisher interface {
	Publish(ctx context.Context, files ...string) ([]string, error)
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	logger    *slog.Logger
	config    *Config
	runner    *runner.Runner
	publisher Publisher
	closers   []io.Closer
}

// Option customizes how NewApp wires the application.
type Option func(*options)

type options struct {
	engine    engine.Engine
	publisher Publisher
	now       func() time.Time
}

// WithEngine replaces the engine selected by the configuration.
func WithEngine(e engine.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithPublisher replaces the publisher selected by the configuration.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithClock replaces time.Now for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewApp is the constructor for the main application. It builds the
// process-wide logger once and wires the engine, runner and publisher.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{config: cfg}

	logger, logFile := newLogger(cfg, outW)
	if logFile != nil {
		a.closers = append(a.closers, logFile)
	}
	a.logger = logger
	a.logger.Debug("Logger configured successfully.")

	eng := o.engine
	if eng == nil {
		var err error
		if eng, err = newEngine(cfg); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.logger.Debug("Engine configured.", "engine", cfg.Engine, "timeout", cfg.Timeout, "kernel", cfg.KernelName)

	runnerOpts := []runner.Option{
		runner.WithMarker(cfg.Marker),
		runner.WithResultKey(cfg.ResultKey),
		runner.WithArtifactPrefix(cfg.ArtifactPrefix),
	}
	if o.now != nil {
		runnerOpts = append(runnerOpts, runner.WithClock(o.now))
	}
	a.runner = runner.New(eng, runnerOpts...)

	a.publisher = o.publisher
	if a.publisher == nil && cfg.Publish != nil {
		p, err := publish.NewS3(publish.S3Config{
			Bucket:    cfg.Publish.Bucket,
			Prefix:    cfg.Publish.Prefix,
			Region:    cfg.Publish.Region,
			Endpoint:  cfg.Publish.Endpoint,
			AccessKey: cfg.Publish.AccessKey,
			SecretKey: cfg.Publish.SecretKey,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to configure publisher: %w", err)
		}
		a.publisher = p
	}

	return a, nil
}

// newEngine builds the engine named in the configuration.
func newEngine(cfg *Config) (engine.Engine, error) {
	engCfg := engine.Config{Timeout: cfg.Timeout, KernelName: cfg.KernelName}
	switch cfg.Engine {
	case EngineNbconvert:
		return nbconvert.New(engCfg, nbconvert.WithBinary(cfg.JupyterBinary)), nil
	case EngineKernel:
		return kernel.New(engCfg, cfg.ServerURL, cfg.Token, kernel.WithRootDir(cfg.RootDir))
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Context returns ctx carrying the application's logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Close releases the log file, if any.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
