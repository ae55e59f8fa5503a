package api

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder turns a sequence of byte chunks into UTF-8 text. A code point split
// across chunk boundaries is held back until the rest of it arrives, so
// callers never see a replacement character for valid input. Ill-formed
// bytes decode to U+FFFD.
type Decoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

// NewDecoder returns a Decoder with no buffered state.
func NewDecoder() *Decoder {
	return &Decoder{t: unicode.UTF8.NewDecoder()}
}

// Decode decodes chunk. final must be true for the last chunk of the
// stream; any incomplete trailing sequence is then flushed as U+FFFD.
func (d *Decoder) Decode(chunk []byte, final bool) (string, error) {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}

	// Each input byte expands to at most three output bytes (U+FFFD).
	if need := 3*len(src) + 4; cap(d.dst) < need {
		d.dst = make([]byte, need)
	}
	dst := d.dst[:cap(d.dst)]

	var out []byte
	for {
		nDst, nSrc, err := d.t.Transform(dst, src, final)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]

		switch err {
		case nil:
			if final {
				d.Reset()
			}
			return string(out), nil
		case transform.ErrShortSrc:
			d.pending = append([]byte(nil), src...)
			return string(out), nil
		case transform.ErrShortDst:
			if nSrc == 0 && nDst == 0 {
				dst = make([]byte, 2*len(dst)+4)
			}
		default:
			d.Reset()
			return string(out), fmt.Errorf("%w: decode: %v", ErrStreamError, err)
		}
	}
}

// Pending reports how many bytes of an incomplete code point are buffered.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Reset discards buffered state.
func (d *Decoder) Reset() {
	d.pending = nil
	d.t.Reset()
}
