package sse

import (
	"errors"
	"strings"
)

// Field is a single "name: value" line of a frame.
type Field struct {
	Name  string
	Value string
}

// Event represents a Server-Sent Event.
type Event struct {
	ID     string
	Event  string
	Data   string
	Fields []Field // every field line in arrival order
	// HasData is true when the frame carried at least one data line.
	HasData bool
}

// DefaultMaxFrameSize bounds the bytes a single frame may occupy before its
// terminating blank line arrives.
const DefaultMaxFrameSize = 64 << 10

// maxBoundaryWidth is the longest blank-line boundary ("\r\n\r\n").
const maxBoundaryWidth = 4

// ErrFrameTooLarge is returned by Feed when a frame grows past the reader's
// size limit without being terminated.
var ErrFrameTooLarge = errors.New("sse frame exceeds size limit")

// FrameReader incrementally splits a byte stream into events. Partial frames
// are kept until a later Feed completes them. A FrameReader belongs to one
// connection and is not safe for concurrent use.
type FrameReader struct {
	buf     []byte
	scanned int // bytes of buf already searched for a boundary
	limit   int
}

// NewFrameReader returns an empty reader limited to DefaultMaxFrameSize.
func NewFrameReader() *FrameReader {
	return NewFrameReaderSize(DefaultMaxFrameSize)
}

// NewFrameReaderSize returns an empty reader that rejects frames longer than
// limit bytes. A non-positive limit selects DefaultMaxFrameSize.
func NewFrameReaderSize(limit int) *FrameReader {
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}
	return &FrameReader{limit: limit}
}

// Feed appends chunk and returns every event completed by it. Once a pending
// or completed frame exceeds the size limit Feed drops the buffered bytes and
// returns ErrFrameTooLarge along with the events completed before it.
func (r *FrameReader) Feed(chunk []byte) ([]Event, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	r.buf = append(r.buf, chunk...)

	var events []Event
	consumed := 0
	for {
		pending := r.buf[consumed:]
		// Back off a few bytes so a boundary split across chunks is still found.
		from := r.scanned - consumed - maxBoundaryWidth + 1
		if from < 0 {
			from = 0
		}
		end, width := findBoundary(pending, from)
		if end < 0 {
			r.scanned = len(r.buf)
			break
		}
		if end > r.limit {
			r.Reset()
			return events, ErrFrameTooLarge
		}
		if ev, ok := parseFrame(pending[:end]); ok {
			events = append(events, ev)
		}
		consumed += end + width
		r.scanned = consumed
	}

	if len(r.buf)-consumed > r.limit {
		r.Reset()
		return events, ErrFrameTooLarge
	}
	if consumed > 0 {
		n := copy(r.buf, r.buf[consumed:])
		r.buf = r.buf[:n]
		r.scanned -= consumed
		if r.scanned < 0 {
			r.scanned = 0
		}
	}
	return events, nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (r *FrameReader) Buffered() int {
	return len(r.buf)
}

// Reset drops any partial frame.
func (r *FrameReader) Reset() {
	r.buf = r.buf[:0]
	r.scanned = 0
}

// findBoundary returns the offset of the earliest blank line at or after
// from, and the width of the two line endings that form it. A line ends with
// "\r\n", "\n" or "\r". A trailing "\r" that could still pair with a "\n"
// in the next chunk is not treated as a line ending yet.
func findBoundary(b []byte, from int) (int, int) {
	if from > len(b) {
		return -1, 0
	}
	for i := from; i < len(b); {
		first := eolWidth(b, i)
		if first == 0 {
			i++
			continue
		}
		if b[i] == '\r' && i+1 == len(b) {
			return -1, 0
		}
		j := i + first
		if j == len(b) {
			return -1, 0
		}
		if second := eolWidth(b, j); second > 0 {
			return i, first + second
		}
		i = j
	}
	return -1, 0
}

// eolWidth reports the length of the line ending at b[i], or 0 if there is
// none.
func eolWidth(b []byte, i int) int {
	switch b[i] {
	case '\n':
		return 1
	case '\r':
		if i+1 < len(b) && b[i+1] == '\n' {
			return 2
		}
		return 1
	}
	return 0
}

// splitLines splits a frame on any of the three line endings.
func splitLines(s string) []string {
	var lines []string
	for len(s) > 0 {
		i := strings.IndexAny(s, "\r\n")
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i])
		if s[i] == '\r' && i+1 < len(s) && s[i+1] == '\n' {
			i++
		}
		s = s[i+1:]
	}
	return lines
}

func parseFrame(frame []byte) (Event, bool) {
	text := strings.ToValidUTF8(string(frame), "�")

	var ev Event
	var dataLines []string
	for _, line := range splitLines(text) {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		name, value := line, ""
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			name = line[:idx]
			value = line[idx+1:]
			// Strip leading space
			value = strings.TrimPrefix(value, " ")
		}

		ev.Fields = append(ev.Fields, Field{Name: name, Value: value})
		switch name {
		case "id":
			ev.ID = value
		case "event":
			ev.Event = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}

	if len(ev.Fields) == 0 {
		return Event{}, false
	}
	if len(dataLines) > 0 {
		ev.HasData = true
		ev.Data = strings.Join(dataLines, "\n")
	}
	return ev, true
}
