// Package nbconvert executes notebooks by piping them through a local
// `jupyter nbconvert --execute` process.
package nbconvert

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strings"

	"github.com/vk/regimerun/internal/ctxlog"
	"github.com/vk/regimerun/internal/engine"
	"github.com/vk/regimerun/internal/notebook"
)

// DefaultBinary is the jupyter launcher looked up on PATH.
const DefaultBinary = "jupyter"

// Engine runs notebooks with nbconvert's ExecutePreprocessor.
type Engine struct {
	cfg    engine.Config
	binary string
}

// Option configures an Engine.
type Option func(*Engine)

// WithBinary overrides the jupyter executable.
func WithBinary(path string) Option {
	return func(e *Engine) {
		if path != "" {
			e.binary = path
		}
	}
}

// New creates an nbconvert engine.
func New(cfg engine.Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg.WithDefaults(), binary: DefaultBinary}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Args returns the command line passed to the jupyter binary.
func (e *Engine) Args() []string {
	seconds := int(math.Ceil(e.cfg.Timeout.Seconds()))
	return []string{
		"nbconvert",
		"--to", "notebook",
		"--execute",
		"--stdin",
		"--stdout",
		fmt.Sprintf("--ExecutePreprocessor.timeout=%d", seconds),
		fmt.Sprintf("--ExecutePreprocessor.kernel_name=%s", e.cfg.KernelName),
	}
}

// Execute implements engine.Engine. The notebook is written to the process'
// stdin and replaced by the executed document read from its stdout.
func (e *Engine) Execute(ctx context.Context, nb *notebook.Notebook, res engine.Resources) error {
	logger := ctxlog.FromContext(ctx).With("engine", "nbconvert")

	var stdin, stdout, stderr bytes.Buffer
	if err := notebook.Write(&stdin, nb); err != nil {
		return err
	}

	cmd := exec.Command(e.binary, e.Args()...)
	cmd.Dir = res.WorkDir
	cmd.Stdin = &stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureCommandProcess(cmd)

	logger.Debug("Starting nbconvert.", "binary", e.binary, "args", cmd.Args[1:], "work_dir", res.WorkDir)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.binary, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		terminateCommandProcess(cmd)
		<-done
		return ctx.Err()
	}
	if err != nil {
		logger.Debug("nbconvert exited with an error.", "error", err, "stderr", stderr.String())
		return e.classify(stderr.String(), err)
	}

	executed, err := notebook.Read(&stdout)
	if err != nil {
		return fmt.Errorf("failed to read executed notebook from nbconvert: %w", err)
	}
	*nb = *executed
	logger.Debug("nbconvert finished.", "cells", len(nb.Cells))
	return nil
}

var (
	ansiPattern      = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	exceptionPattern = regexp.MustCompile(`^([A-Za-z_][\w.]*(?:Error|Exception|Interrupt|Exit|Timeout|timeout))(?::\s*(.*))?$`)
)

// classify maps nbconvert's stderr onto the engine error types.
func (e *Engine) classify(stderr string, waitErr error) error {
	clean := ansiPattern.ReplaceAllString(stderr, "")

	// Exception names take precedence over the "timed out" text, which a
	// failing cell may print on its own (socket timeouts, HTTP clients).
	switch {
	case strings.Contains(clean, "CellTimeoutError"):
		return &engine.TimeoutError{CellIndex: -1, Timeout: e.cfg.Timeout}
	case strings.Contains(clean, "CellExecutionError"):
		lines := strings.Split(strings.TrimRight(clean, "\n"), "\n")
		cellErr := &engine.CellExecutionError{CellIndex: -1, EName: "CellExecutionError", Traceback: lines}
		for i := len(lines) - 1; i >= 0; i-- {
			m := exceptionPattern.FindStringSubmatch(strings.TrimSpace(lines[i]))
			if m == nil || strings.HasSuffix(m[1], "CellExecutionError") {
				continue
			}
			cellErr.EName, cellErr.EValue = m[1], m[2]
			break
		}
		return cellErr
	case strings.Contains(clean, "timed out"):
		return &engine.TimeoutError{CellIndex: -1, Timeout: e.cfg.Timeout}
	}
	return fmt.Errorf("nbconvert failed: %w: %s", waitErr, strings.TrimSpace(clean))
}
