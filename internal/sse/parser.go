// Package sse implements a tolerant Server-Sent-Events line framer and
// JSON chunk iterator over an arbitrary byte stream: the Agent Execution
// Core's C2 component. It never assumes frames align with underlying
// reads, accepts both "\n" and "\r\n" line endings, skips SSE comment
// lines (a leading ':'), and recognizes the "[DONE]" sentinel used by
// every OpenAI-compatible vendor.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// ErrStreamClosed is returned by Next for the "[DONE]" sentinel and on
// every call after it. A stream that ends without "[DONE]" yields io.EOF
// instead, as does a "[DONE]" line with no line ending at the very end of
// the stream.
var ErrStreamClosed = errors.New("sse: stream closed")

// Event is one decoded SSE event: its event name (if any) and raw data
// payload, already joined across multi-line "data:" fields per the SSE
// spec (each "data:" line's content is concatenated with "\n").
type Event struct {
	Name string
	Data []byte
}

// Reader incrementally frames an SSE byte stream into Events. It is
// tolerant of the underlying io.Reader handing back partial frames
// split at arbitrary byte boundaries — each Read call's bytes are
// buffered until a full "\n\n" (or "\r\n\r\n") frame terminator appears.
type Reader struct {
	br   *bufio.Reader
	done bool
}

// NewReader wraps r for SSE framing.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next decoded Event, or io.EOF when the stream ends
// cleanly, or ErrStreamClosed once a "[DONE]" sentinel has already been
// observed and consumed. Blank lines (keep-alives) and comment lines
// ("^:") are skipped transparently; callers only ever see data events.
func (r *Reader) Next() (*Event, error) {
	for {
		if r.done {
			return nil, ErrStreamClosed
		}

		var dataLines []string
		var eventName string

		for {
			line, err := r.br.ReadString('\n')
			if line != "" {
				trimmed := strings.TrimRight(line, "\r\n")

				if trimmed == "" {
					// Blank line: frame terminator, only meaningful if we
					// collected at least one data line.
					if len(dataLines) > 0 {
						return &Event{Name: eventName, Data: []byte(strings.Join(dataLines, "\n"))}, nil
					}
					// Pure keep-alive blank line between frames; keep reading.
					if err != nil {
						return nil, translateReadErr(err)
					}
					continue
				}

				if strings.HasPrefix(trimmed, ":") {
					// Comment / keep-alive line, ignored.
					if err != nil {
						return nil, translateReadErr(err)
					}
					continue
				}

				if strings.HasPrefix(trimmed, "{") {
					// A bare JSON object with no "data:" prefix is still a
					// data payload per spec.md section 4.2. Cutting on the
					// first ':' here would split inside the JSON body
					// itself (e.g. `{"id":"x"}`), so the whole line is
					// taken as-is instead of going through the field/value
					// split below.
					dataLines = append(dataLines, trimmed)
					if err != nil {
						return nil, translateReadErr(err)
					}
					continue
				}

				field, value, _ := strings.Cut(trimmed, ":")
				value = strings.TrimPrefix(value, " ")

				switch field {
				case "event":
					eventName = value
				case "data":
					if value == "[DONE]" {
						r.done = true
						if err != nil {
							return nil, io.EOF
						}
						// Lines after the sentinel are never read; later
						// calls return ErrStreamClosed.
						return nil, ErrStreamClosed
					}
					dataLines = append(dataLines, value)
				}
			}

			if err != nil {
				if len(dataLines) > 0 {
					// Vendor closed the connection mid-frame without a
					// trailing blank line; still surface the collected data
					// as a final event rather than dropping it.
					return &Event{Name: eventName, Data: []byte(strings.Join(dataLines, "\n"))}, nil
				}
				return nil, translateReadErr(err)
			}
		}
	}
}

func translateReadErr(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return err
}

// DecodeJSON is a convenience helper used by provider adapters: decode an
// Event's Data field into v, skipping entirely empty frames (pure
// keep-alive pings some vendors send as "data: {}" or "data:").
func DecodeJSON(ev *Event, v any) error {
	data := bytes.TrimSpace(ev.Data)
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
