package app

import (
	"context"
	"errors"
	"strings"

	"github.com/vk/regimerun/internal/engine"
	"github.com/vk/regimerun/internal/fsutil"
)

// Run executes the analysis: prepare the output directory, execute the
// notebook, persist the artifacts and publish them when configured. Any
// error is logged with its details and returned unchanged.
func (a *App) Run(ctx context.Context) error {
	ctx = a.Context(ctx)
	a.logger.Debug("App.Run method started.")

	if err := a.run(ctx); err != nil {
		a.logger.Error("Error running analysis.", errorAttrs(err)...)
		return err
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) run(ctx context.Context) error {
	a.logger.Info("Ensuring output directory exists.", "path", a.config.OutputDir)
	if err := fsutil.EnsureDir(a.config.OutputDir); err != nil {
		return err
	}

	nb, results, err := a.runner.Execute(ctx, a.config.NotebookPath)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		a.logger.Warn("No regime summary found in notebook outputs.", "marker", a.config.Marker)
	}

	art, err := a.runner.Persist(ctx, nb, results, a.config.OutputDir)
	if err != nil {
		return err
	}

	if a.publisher != nil {
		a.logger.Info("Publishing artifacts...")
		if _, err := a.publisher.Publish(ctx, art.NotebookPath, art.ResultsPath); err != nil {
			return err
		}
	}

	a.logger.Info("Analysis complete! Check the output files for results.",
		"notebook", art.NotebookPath, "results", art.ResultsPath)
	return nil
}

// errorAttrs expands err into log attributes, including the kernel
// traceback for cell failures.
func errorAttrs(err error) []any {
	attrs := []any{"error", err}

	var cellErr *engine.CellExecutionError
	if errors.As(err, &cellErr) {
		attrs = append(attrs,
			"cell", cellErr.CellIndex,
			"ename", cellErr.EName,
			"evalue", cellErr.EValue,
			"traceback", strings.Join(cellErr.Traceback, "\n"),
		)
	}
	var timeoutErr *engine.TimeoutError
	if errors.As(err, &timeoutErr) {
		attrs = append(attrs, "cell", timeoutErr.CellIndex, "timeout", timeoutErr.Timeout)
	}
	return attrs
}
