package sse

import (
	"bufio"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE line. Provider chunks carrying base64
// images can be large.
const maxLineSize = 4 * 1024 * 1024

// Reader parses SSE events from a source io.Reader. When built with
// NewTeeReader every raw line is also copied verbatim to a destination,
// which lets a caller inspect events while relaying the exact stream.
type Reader struct {
	scanner *bufio.Scanner
	dest    io.Writer

	// current accumulates fields for the event being built.
	current Event
	hasData bool
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader) *Reader {
	return NewTeeReader(src, nil)
}

// NewTeeReader returns a Reader that also writes every raw line to dest.
func NewTeeReader(src io.Reader, dest io.Writer) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	return &Reader{
		scanner: scanner,
		dest:    dest,
	}
}

// Next blocks until a complete event is available and returns it.
// It returns nil, nil once the source is exhausted. An event left open at
// end of input is still returned.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()

		if r.dest != nil {
			// bufio.Scanner strips the newline, reinsert it.
			if _, err := io.WriteString(r.dest, raw+"\n"); err != nil {
				return nil, err
			}
		}

		switch {
		case raw == "":
			if r.hasData {
				return r.take(), nil
			}
			// keep-alive or leading blank line
		case strings.HasPrefix(raw, ":"):
			// comment
		default:
			r.parseLine(raw)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	if r.hasData {
		return r.take(), nil
	}

	return nil, nil
}

// parseLine accumulates a "field:value" line into the current event.
// A single space after the colon is stripped; a line without a colon is a
// field with an empty value.
func (r *Reader) parseLine(line string) {
	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "data":
		if r.hasData && r.current.Data != "" {
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.hasData = true
	case "event":
		r.current.Type = value
		r.hasData = true
	case "id":
		r.current.ID = value
		r.hasData = true
	}
}

// take returns the accumulated event and starts a new one.
func (r *Reader) take() *Event {
	ev := r.current
	r.current = Event{}
	r.hasData = false
	return &ev
}
