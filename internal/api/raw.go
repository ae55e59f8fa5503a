package api

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const rawReadSize = 32 * 1024

// rawSource turns an unframed chunked body into content increments. Each
// read is one increment; closure of the body is the terminal signal.
type rawSource struct {
	closer
	ctx      context.Context
	body     io.Reader
	buf      []byte
	dec      *Decoder
	pending  *Increment // terminal to deliver after a final content increment
	terminal *Increment
}

func newRawSource(ctx context.Context, body io.ReadCloser) *rawSource {
	return &rawSource{
		closer: closer{fn: body.Close},
		ctx:    ctx,
		body:   body,
		buf:    make([]byte, rawReadSize),
		dec:    NewDecoder(),
	}
}

func (s *rawSource) Next() Increment {
	if s.terminal != nil {
		return *s.terminal
	}
	if s.pending != nil {
		return s.finish(*s.pending)
	}

	for {
		n, err := s.body.Read(s.buf)
		eof := errors.Is(err, io.EOF)

		if n > 0 || eof {
			text, decErr := s.dec.Decode(s.buf[:n], eof)
			if decErr != nil {
				return s.finish(failure(decErr))
			}

			var after *Increment
			switch {
			case eof:
				d := done()
				after = &d
			case err != nil:
				f := failure(s.readErr(err))
				after = &f
			}

			if text != "" {
				s.pending = after
				return content(text)
			}
			if after != nil {
				return s.finish(*after)
			}
			// The chunk held only part of a code point.
			continue
		}

		if err != nil {
			return s.finish(failure(s.readErr(err)))
		}
	}
}

func (s *rawSource) finish(inc Increment) Increment {
	s.pending = nil
	s.terminal = &inc
	if inc.Kind == KindDone {
		log.Debug("Raw stream closed by server")
	}
	return inc
}

func (s *rawSource) readErr(err error) error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	log.Error("Raw stream read error: %v", err)
	return fmt.Errorf("%w: %v", ErrStreamError, err)
}
