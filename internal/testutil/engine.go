package testutil

import (
	"context"
	"sync"

	"github.com/vk/regimerun/internal/engine"
	"github.com/vk/regimerun/internal/notebook"
)

// FakeEngine stands in for a real notebook engine. Every code cell whose
// source has an entry in Outputs gets those outputs; Err, when set, is
// returned without touching the notebook.
type FakeEngine struct {
	Outputs map[string][]*notebook.Output
	Err     error

	mu    sync.Mutex
	calls []engine.Resources
}

// Execute implements engine.Engine.
func (f *FakeEngine) Execute(ctx context.Context, nb *notebook.Notebook, res engine.Resources) error {
	f.mu.Lock()
	f.calls = append(f.calls, res)
	f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	count := 0
	for _, cell := range nb.Cells {
		if !cell.IsCode() {
			continue
		}
		count++
		n := count
		cell.ExecutionCount = &n
		cell.Outputs = f.Outputs[cell.Source.String()]
	}
	return nil
}

// Calls returns the resources of every Execute call so far.
func (f *FakeEngine) Calls() []engine.Resources {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Resources(nil), f.calls...)
}
