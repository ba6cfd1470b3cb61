package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Encode writes ev as one "data: <json>" record followed by a blank line.
func Encode(w io.Writer, ev Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	payload := bytes.TrimRight(buf.Bytes(), "\n")
	if bytes.Contains(payload, []byte("\n")) {
		return fmt.Errorf("event payload must be single-line JSON")
	}

	if _, err := io.WriteString(w, Prefix); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n\n")
	return err
}
