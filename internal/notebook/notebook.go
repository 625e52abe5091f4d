package notebook

import "encoding/json"

// Cell types.
const (
	CellTypeCode     = "code"
	CellTypeMarkdown = "markdown"
	CellTypeRaw      = "raw"
)

// Output types.
const (
	OutputStream        = "stream"
	OutputDisplayData   = "display_data"
	OutputExecuteResult = "execute_result"
	OutputError         = "error"
)

// SupportedVersion is the only nbformat major version the codec accepts.
const SupportedVersion = 4

// Notebook is a parsed notebook document.
type Notebook struct {
	Cells         []*Cell
	Metadata      map[string]any
	NBFormat      int
	NBFormatMinor int

	extra map[string]json.RawMessage
}

// Cell is a single notebook cell. ExecutionCount and Outputs are only
// meaningful for code cells.
type Cell struct {
	ID             string
	CellType       string
	Source         MultilineString
	Metadata       map[string]any
	Attachments    map[string]any
	ExecutionCount *int
	Outputs        []*Output

	extra map[string]json.RawMessage
}

// Output is one output record of a code cell, tagged by OutputType.
type Output struct {
	OutputType string

	// stream
	Name string
	Text MultilineString

	// display_data, execute_result
	Data           map[string]any
	Metadata       map[string]any
	ExecutionCount *int

	// error
	EName     string
	EValue    string
	Traceback []string

	extra map[string]json.RawMessage
}

// IsCode reports whether the cell is a code cell.
func (c *Cell) IsCode() bool {
	return c.CellType == CellTypeCode
}

// ClearOutputs drops all outputs and the execution count of a code cell.
func (c *Cell) ClearOutputs() {
	c.Outputs = nil
	c.ExecutionCount = nil
}

// NewStream returns a stream output for the given stream name ("stdout" or "stderr").
func NewStream(name, text string) *Output {
	return &Output{OutputType: OutputStream, Name: name, Text: MultilineString(text)}
}

// NewError returns an error output.
func NewError(ename, evalue string, traceback []string) *Output {
	return &Output{OutputType: OutputError, EName: ename, EValue: evalue, Traceback: traceback}
}
