package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sseEvent is one dispatched Server-Sent Event.
type sseEvent struct {
	name string
	data string
}

// eventSource reads SSE frames whose data is a JSON streamFrame.
type eventSource struct {
	closer
	ctx      context.Context
	reader   *bufio.Reader
	terminal *Increment
}

func newEventSource(ctx context.Context, body io.ReadCloser) *eventSource {
	return &eventSource{
		closer: closer{fn: body.Close},
		ctx:    ctx,
		reader: bufio.NewReaderSize(body, 64*1024),
	}
}

func (s *eventSource) Next() Increment {
	if s.terminal != nil {
		return *s.terminal
	}

	for {
		ev, err := s.readEvent()
		if err != nil {
			return s.finish(failure(s.streamErr(err)))
		}

		if ev.name == "error" {
			var ef streamErrorFrame
			msg := ev.data
			if json.Unmarshal([]byte(ev.data), &ef) == nil && ef.Message != "" {
				msg = ef.Message
			}
			return s.finish(failure(fmt.Errorf("%w: %s", ErrStreamError, msg)))
		}

		var frame streamFrame
		if err := json.Unmarshal([]byte(ev.data), &frame); err != nil {
			log.Error("Malformed SSE frame %q: %v", truncateFrame(ev.data), err)
			return s.finish(failure(fmt.Errorf("%w: %v", ErrMalformedFrame, err)))
		}
		if frame.Done {
			log.Debug("SSE stream received done marker")
			return s.finish(done())
		}
		if frame.Text == nil {
			return s.finish(failure(fmt.Errorf("%w: frame has neither text nor done: %s", ErrMalformedFrame, truncateFrame(ev.data))))
		}
		return content(*frame.Text)
	}
}

func (s *eventSource) finish(inc Increment) Increment {
	s.terminal = &inc
	return inc
}

func (s *eventSource) streamErr(err error) error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	if errors.Is(err, io.EOF) {
		return ErrStreamClosed
	}
	log.Error("SSE read error: %v", err)
	return fmt.Errorf("%w: %v", ErrStreamError, err)
}

// readEvent reads lines until a blank line dispatches an event with data.
// Comment lines and unknown fields are skipped. An event cut off by EOF is
// discarded and io.EOF returned.
func (s *eventSource) readEvent() (sseEvent, error) {
	var (
		ev      sseEvent
		data    strings.Builder
		hasData bool
	)
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return sseEvent{}, err
		}
		if err != nil {
			// Final line without a terminator cannot complete an event.
			return sseEvent{}, io.EOF
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !hasData {
				ev = sseEvent{}
				continue
			}
			ev.data = data.String()
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			ev.name = value
		}
	}
}

func truncateFrame(s string) string {
	if len(s) <= 120 {
		return s
	}
	return s[:120] + "..."
}
