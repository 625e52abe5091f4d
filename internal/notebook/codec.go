package notebook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrUnsupportedVersion is returned when a document is not nbformat v4.
var ErrUnsupportedVersion = errors.New("unsupported notebook format version")

// Read parses a notebook document from r.
func Read(r io.Reader) (*Notebook, error) {
	var nb Notebook
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&nb); err != nil {
		return nil, fmt.Errorf("failed to parse notebook: %w", err)
	}
	if nb.NBFormat != SupportedVersion {
		return nil, fmt.Errorf("%w: nbformat %d (want %d)", ErrUnsupportedVersion, nb.NBFormat, SupportedVersion)
	}
	return &nb, nil
}

// ReadFile opens and parses the notebook at path.
func ReadFile(path string) (*Notebook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	nb, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nb, nil
}

// Write serializes nb the way nbformat does: one-space indentation, sorted
// keys, non-ASCII left unescaped and a trailing newline.
func Write(w io.Writer, nb *Notebook) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(nb); err != nil {
		return fmt.Errorf("failed to encode notebook: %w", err)
	}
	return nil
}

// decode unmarshals raw into v keeping numbers as json.Number so that
// metadata integers survive a round trip untouched.
func decode(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// marshal is json.Marshal without HTML escaping; the outer encoder cannot
// undo escaping done inside a Marshaler.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func withExtra(m map[string]any, extra map[string]json.RawMessage) map[string]any {
	for k, v := range extra {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return m
}

// MarshalJSON implements json.Marshaler. Maps are used so that the encoder
// emits keys in sorted order.
func (nb *Notebook) MarshalJSON() ([]byte, error) {
	cells := nb.Cells
	if cells == nil {
		cells = []*Cell{}
	}
	return marshal(withExtra(map[string]any{
		"cells":          cells,
		"metadata":       emptyIfNil(nb.Metadata),
		"nbformat":       nb.NBFormat,
		"nbformat_minor": nb.NBFormatMinor,
	}, nb.extra))
}

// UnmarshalJSON implements json.Unmarshaler.
func (nb *Notebook) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*nb = Notebook{}
	for k, v := range raw {
		var err error
		switch k {
		case "cells":
			err = json.Unmarshal(v, &nb.Cells)
		case "metadata":
			err = decode(v, &nb.Metadata)
		case "nbformat":
			err = json.Unmarshal(v, &nb.NBFormat)
		case "nbformat_minor":
			err = json.Unmarshal(v, &nb.NBFormatMinor)
		default:
			if nb.extra == nil {
				nb.extra = make(map[string]json.RawMessage)
			}
			nb.extra[k] = v
		}
		if err != nil {
			return fmt.Errorf("notebook field %q: %w", k, err)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c *Cell) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"cell_type": c.CellType,
		"metadata":  emptyIfNil(c.Metadata),
		"source":    c.Source,
	}
	if c.ID != "" {
		m["id"] = c.ID
	}
	if c.Attachments != nil {
		m["attachments"] = c.Attachments
	}
	if c.IsCode() {
		m["execution_count"] = c.ExecutionCount
		outputs := c.Outputs
		if outputs == nil {
			outputs = []*Output{}
		}
		m["outputs"] = outputs
	}
	return marshal(withExtra(m, c.extra))
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Cell) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = Cell{}
	for k, v := range raw {
		var err error
		switch k {
		case "id":
			err = json.Unmarshal(v, &c.ID)
		case "cell_type":
			err = json.Unmarshal(v, &c.CellType)
		case "source":
			err = json.Unmarshal(v, &c.Source)
		case "metadata":
			err = decode(v, &c.Metadata)
		case "attachments":
			err = decode(v, &c.Attachments)
		case "execution_count":
			err = json.Unmarshal(v, &c.ExecutionCount)
		case "outputs":
			err = json.Unmarshal(v, &c.Outputs)
		default:
			if c.extra == nil {
				c.extra = make(map[string]json.RawMessage)
			}
			c.extra[k] = v
		}
		if err != nil {
			return fmt.Errorf("cell field %q: %w", k, err)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o *Output) MarshalJSON() ([]byte, error) {
	m := map[string]any{"output_type": o.OutputType}
	switch o.OutputType {
	case OutputStream:
		m["name"] = o.Name
		m["text"] = o.Text
	case OutputDisplayData, OutputExecuteResult:
		m["data"] = splitMimeBundle(o.Data)
		m["metadata"] = emptyIfNil(o.Metadata)
		if o.OutputType == OutputExecuteResult {
			m["execution_count"] = o.ExecutionCount
		}
	case OutputError:
		traceback := o.Traceback
		if traceback == nil {
			traceback = []string{}
		}
		m["ename"] = o.EName
		m["evalue"] = o.EValue
		m["traceback"] = traceback
	}
	return marshal(withExtra(m, o.extra))
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Output) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*o = Output{}
	for k, v := range raw {
		var err error
		switch k {
		case "output_type":
			err = json.Unmarshal(v, &o.OutputType)
		case "name":
			err = json.Unmarshal(v, &o.Name)
		case "text":
			err = json.Unmarshal(v, &o.Text)
		case "data":
			err = decode(v, &o.Data)
		case "metadata":
			err = decode(v, &o.Metadata)
		case "execution_count":
			err = json.Unmarshal(v, &o.ExecutionCount)
		case "ename":
			err = json.Unmarshal(v, &o.EName)
		case "evalue":
			err = json.Unmarshal(v, &o.EValue)
		case "traceback":
			err = json.Unmarshal(v, &o.Traceback)
		default:
			if o.extra == nil {
				o.extra = make(map[string]json.RawMessage)
			}
			o.extra[k] = v
		}
		if err != nil {
			return fmt.Errorf("output field %q: %w", k, err)
		}
	}
	return nil
}

// splitMimeBundle writes string payloads of non-JSON mime types as lists of
// lines, matching nbformat's on-disk layout.
func splitMimeBundle(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for mime, v := range data {
		if s, ok := v.(string); ok && !isJSONMime(mime) {
			out[mime] = splitLines(s)
			continue
		}
		out[mime] = v
	}
	return out
}

func isJSONMime(mime string) bool {
	return mime == "application/json" || (strings.HasPrefix(mime, "application/") && strings.HasSuffix(mime, "+json"))
}
