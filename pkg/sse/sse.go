// package sse provides SSE (server-sent-event) parsing.
package sse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// maxLineSize bounds a single line of the stream. Events from the model
// providers can carry large JSON payloads.
const maxLineSize = 4 * 1024 * 1024

// Event is an event sent from the server.
type Event struct {
	// The name of the event.
	Event string `json:"event"`
	// The payload.
	Data string `json:"data"`
	// The ID of the event.
	ID string `json:"id"`
}

// Scanner offers the functionality to receive events from
// the input.
type Scanner struct {
	scanner *bufio.Scanner
}

// NewScanner creates a new scanner instance.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Scanner{scanner: s}
}

// fieldValue strips the single optional space after the colon.
func fieldValue(l string, colonPos int) string {
	v := l[colonPos+1:]
	return strings.TrimPrefix(v, " ")
}

// Scan reads a new event from the input. It returns
// nil with io.EOF error if it reaches to the end. Blocks which only
// consist of comments are skipped.
func (s *Scanner) Scan() (*Event, error) {
	for {
		ev, read, err := s.scanBlock()
		if err != nil || ev != nil {
			return ev, err
		}
		if !read {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
	}
}

func (s *Scanner) scanBlock() (*Event, bool, error) {
	ev := &Event{}
	var err error
	var read1, field bool
	var data []string
	for s.scanner.Scan() {
		l := s.scanner.Text()
		if l == "" {
			if read1 {
				break
			}
			continue
		}
		read1 = true
		colonPos := strings.Index(l, ":")
		if colonPos < 0 {
			// Invalid format -- still it should keep reading
			// for this block.
			err = errors.Join(err, fmt.Errorf("colon not found: %s", l))
			continue
		}
		if colonPos == 0 {
			// comment.
			continue
		}
		field = true
		switch l[:colonPos] {
		case "event":
			ev.Event = fieldValue(l, colonPos)
		case "data":
			data = append(data, fieldValue(l, colonPos))
		case "id":
			ev.ID = fieldValue(l, colonPos)
		default:
			// ignore others, including retry.
		}
	}
	if err != nil {
		return nil, read1, err
	}
	if !field {
		return nil, read1, nil
	}
	ev.Data = strings.Join(data, "\n")
	return ev, true, nil
}

// Events iterates over the events of r until the end of the input. A
// malformed block is reported as an error and the iteration continues.
func Events(r io.Reader) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		s := NewScanner(r)
		for {
			ev, err := s.Scan()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(ev, err) {
				return
			}
			if err != nil && s.scanner.Err() != nil {
				return
			}
		}
	}
}
