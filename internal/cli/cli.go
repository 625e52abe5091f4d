package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/regimerun/internal/app"
	"github.com/vk/regimerun/internal/config"
	"github.com/vk/regimerun/internal/engine"
	"github.com/vk/regimerun/internal/engine/nbconvert"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// Precedence is flags, then the run file, then defaults; secrets not set
// anywhere are read from the environment.
func Parse(ctx context.Context, args []string, output io.Writer, loader config.Loader) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("regimerun", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
regimerun - Execute a market regime notebook and collect its summary.

Usage:
  regimerun [options] [NOTEBOOK]

Arguments:
  NOTEBOOK
    Path to the .ipynb file to execute (default "unsupervised_market_hidden_regime.ipynb").

Options:
`)
		flagSet.PrintDefaults()
	}

	defaults := app.DefaultConfig()
	notebookFlag := flagSet.String("notebook", "", "Path to the notebook to execute.")
	nFlag := flagSet.String("n", "", "Path to the notebook to execute (shorthand).")
	outputDirFlag := flagSet.String("output-dir", defaults.OutputDir, "Directory the executed notebook and results are written to.")
	oFlag := flagSet.String("o", "", "Output directory (shorthand).")
	configFlag := flagSet.String("config", "", "Path to an HCL run file.")
	envFileFlag := flagSet.String("env-file", "", "Path to a .env file with JUPYTER_TOKEN and AWS credentials.")
	engineFlag := flagSet.String("engine", defaults.Engine, "Execution engine. Options: 'nbconvert' or 'kernel'.")
	timeoutFlag := flagSet.Duration("timeout", engine.DefaultTimeout, "Maximum execution time of a single cell.")
	kernelFlag := flagSet.String("kernel", engine.DefaultKernelName, "Kernel used to execute the notebook.")
	jupyterFlag := flagSet.String("jupyter", nbconvert.DefaultBinary, "jupyter executable used by the nbconvert engine.")
	serverURLFlag := flagSet.String("server-url", "", "Jupyter Server URL used by the kernel engine.")
	rootDirFlag := flagSet.String("root-dir", "", "Local directory served by the Jupyter Server (kernel engine).")
	logFormatFlag := flagSet.String("log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFileFlag := flagSet.String("log-file", "", "Also write logs to this file, rotated by size.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	// The env file is loaded into the process first so that run files can
	// reference its variables through `env`.
	env, err := app.LoadEnv(*envFileFlag)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	cfg := defaults
	if *configFlag != "" {
		runFile, err := loader.Load(ctx, *configFlag)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		cfg.ApplyRunFile(runFile)
		slog.Debug("Run file applied.", "path", *configFlag)
	}

	set := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })

	switch {
	case *notebookFlag != "":
		cfg.NotebookPath = *notebookFlag
	case *nFlag != "":
		cfg.NotebookPath = *nFlag
	case flagSet.NArg() > 0:
		cfg.NotebookPath = flagSet.Arg(0)
	}
	switch {
	case set["output-dir"]:
		cfg.OutputDir = *outputDirFlag
	case *oFlag != "":
		cfg.OutputDir = *oFlag
	}
	if set["engine"] {
		cfg.Engine = strings.ToLower(*engineFlag)
	}
	if set["timeout"] {
		cfg.Timeout = *timeoutFlag
	}
	if set["kernel"] {
		cfg.KernelName = *kernelFlag
	}
	if set["jupyter"] {
		cfg.JupyterBinary = *jupyterFlag
	}
	if set["server-url"] {
		cfg.ServerURL = *serverURLFlag
	}
	if set["root-dir"] {
		cfg.RootDir = *rootDirFlag
	}
	if set["log-format"] {
		cfg.LogFormat = strings.ToLower(*logFormatFlag)
	}
	if set["log-level"] {
		cfg.LogLevel = strings.ToLower(*logLevelFlag)
	}
	if set["log-file"] {
		cfg.LogFile = *logFileFlag
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = engine.DefaultTimeout
	}

	cfg.ApplyEnv(env)
	slog.Debug("CLI parameter merging complete.", "notebook", cfg.NotebookPath, "engine", cfg.Engine)

	validated, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.")
	return validated, false, nil
}
