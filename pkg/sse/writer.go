package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Writer frames values as SSE "data:" events.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer over w. If w is a *bufio.Writer it is flushed
// after every event so clients see each chunk as it is produced.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteJSON writes v as a single JSON data event.
func (w *Writer) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return w.WriteEvent(Event{Data: string(data)})
}

// WriteEvent writes ev. Multi-line data is split across data fields.
func (w *Writer) WriteEvent(ev Event) error {
	var b strings.Builder
	if ev.ID != "" {
		b.WriteString("id: " + ev.ID + "\n")
	}
	if ev.Type != "" {
		b.WriteString("event: " + ev.Type + "\n")
	}
	for line := range strings.SplitSeq(ev.Data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")

	if _, err := io.WriteString(w.w, b.String()); err != nil {
		return err
	}

	if bw, ok := w.w.(*bufio.Writer); ok {
		return bw.Flush()
	}
	return nil
}
