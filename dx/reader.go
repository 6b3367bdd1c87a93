package dx

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dhamidi/dexpack/dex"
)

// Reader holds the most recent image captured from a source. Every Capture
// replaces the previous image. A Reader is not safe for concurrent use.
type Reader struct {
	buf bytes.Buffer
}

func NewReader() *Reader {
	return &Reader{}
}

// Capture reads src to the end into the reader, replacing what was captured
// before. When close is true and src is an io.Closer it is closed, also when
// reading fails. A failed read leaves the reader empty.
func (r *Reader) Capture(src io.Reader, close bool) error {
	if src == nil {
		return fmt.Errorf("%w: nil source", ErrInvalidArgument)
	}
	r.Reset()

	_, err := io.Copy(&r.buf, src)
	if err != nil {
		r.Reset()
		err = fmt.Errorf("failed to capture source: %w", err)
	}
	if close {
		if c, ok := src.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	}
	return err
}

// CaptureFrom is Capture without closing src.
func (r *Reader) CaptureFrom(src io.Reader) error {
	return r.Capture(src, false)
}

// Size is the number of bytes captured.
func (r *Reader) Size() int {
	return r.buf.Len()
}

// ReadInto copies min(off+n, Size()) bytes from the start of the captured
// image into dst[off:] and returns the number of bytes copied, which is less
// when dst[off:] is shorter.
func (r *Reader) ReadInto(dst []byte, off, n int) (int, error) {
	if r.buf.Len() == 0 {
		return 0, ErrEmptySource
	}
	if off < 0 || n < 0 {
		return 0, fmt.Errorf("%w: negative offset %d or length %d", ErrInvalidArgument, off, n)
	}
	if dst == nil || off > len(dst) {
		return 0, fmt.Errorf("%w: offset %d outside destination of %d bytes", ErrInvalidArgument, off, len(dst))
	}
	count := min(off+n, r.buf.Len())
	return copy(dst[off:], r.buf.Bytes()[:count]), nil
}

// Materialize decodes the captured image.
func (r *Reader) Materialize() (*dex.Dex, error) {
	if r.buf.Len() == 0 {
		return nil, ErrEmptySource
	}
	return dex.Parse(r.buf.Bytes())
}

// Bytes returns a copy of the captured image.
func (r *Reader) Bytes() []byte {
	return bytes.Clone(r.buf.Bytes())
}

// Reset zeroes and discards the captured image.
func (r *Reader) Reset() {
	clear(r.buf.Bytes())
	r.buf.Reset()
}
