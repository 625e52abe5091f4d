package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeout matches any *TimeoutError via errors.Is.
var ErrTimeout = errors.New("cell execution timed out")

// CellExecutionError reports a cell that raised while executing.
type CellExecutionError struct {
	CellIndex int
	EName     string
	EValue    string
	Traceback []string
}

// Error implements the error interface.
func (e *CellExecutionError) Error() string {
	var b strings.Builder
	if e.CellIndex >= 0 {
		fmt.Fprintf(&b, "cell %d raised ", e.CellIndex)
	} else {
		b.WriteString("a cell raised ")
	}
	b.WriteString(e.EName)
	if e.EValue != "" {
		b.WriteString(": ")
		b.WriteString(e.EValue)
	}
	return b.String()
}

// TimeoutError reports a cell that did not finish within the configured timeout.
type TimeoutError struct {
	CellIndex int
	Timeout   time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.CellIndex < 0 {
		return fmt.Sprintf("cell execution timed out after %s", e.Timeout)
	}
	return fmt.Sprintf("cell %d timed out after %s", e.CellIndex, e.Timeout)
}

// Is makes errors.Is(err, ErrTimeout) true for timeout errors.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
