package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.WithDefaults()
	require.Equal(t, 600*time.Second, cfg.Timeout)
	require.Equal(t, "python3", cfg.KernelName)

	cfg = Config{Timeout: time.Second, KernelName: "ir"}.WithDefaults()
	require.Equal(t, time.Second, cfg.Timeout)
	require.Equal(t, "ir", cfg.KernelName)
}

func TestErrors(t *testing.T) {
	t.Parallel()

	var err error = fmt.Errorf("execute: %w", &TimeoutError{CellIndex: 2, Timeout: time.Minute})
	require.True(t, errors.Is(err, ErrTimeout))
	require.EqualError(t, err, "execute: cell 2 timed out after 1m0s")

	err = fmt.Errorf("execute: %w", &CellExecutionError{CellIndex: 1, EName: "ValueError", EValue: "bad"})
	require.False(t, errors.Is(err, ErrTimeout))
	var cellErr *CellExecutionError
	require.True(t, errors.As(err, &cellErr))
	require.Equal(t, "cell 1 raised ValueError: bad", cellErr.Error())

	require.Equal(t, "a cell raised KeyError", (&CellExecutionError{CellIndex: -1, EName: "KeyError"}).Error())
}
