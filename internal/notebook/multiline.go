package notebook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MultilineString is the nbformat "multiline string": stored on disk either as
// a single string or as a list of lines, held in memory as one string.
type MultilineString string

// UnmarshalJSON accepts both the string and the list-of-lines form.
func (m *MultilineString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = MultilineString(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(b, &lines); err != nil {
		return fmt.Errorf("multiline string must be a string or a list of strings: %w", err)
	}
	*m = MultilineString(strings.Join(lines, ""))
	return nil
}

// MarshalJSON always writes the list-of-lines form, each line keeping its
// trailing newline.
func (m MultilineString) MarshalJSON() ([]byte, error) {
	return marshal(splitLines(string(m)))
}

// String returns the joined text.
func (m MultilineString) String() string {
	return string(m)
}

func splitLines(s string) []string {
	lines := []string{}
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}
	return lines
}
