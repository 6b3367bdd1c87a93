package dx

import (
	"errors"
	"io"
	"io/fs"
)

// maxSizeHint bounds the first allocation taken from a size hint, so a lying
// zip header cannot reserve arbitrary memory.
const maxSizeHint = 64 << 20

// readAllScrubbed reads r to EOF like io.ReadAll, but every buffer it
// outgrows is zeroed before being dropped. A positive hint sizes the first
// buffer so a correctly sized input is read without regrowing.
func readAllScrubbed(r io.Reader, hint int64) ([]byte, error) {
	size := 512
	if hint > 0 && hint < maxSizeHint {
		size = int(hint) + 1
	}
	b := make([]byte, 0, size)
	for {
		if len(b) == cap(b) {
			b = growScrubbed(b)
		}
		n, err := r.Read(b[len(b):cap(b)])
		b = b[:len(b)+n]
		if errors.Is(err, io.EOF) {
			return b, nil
		}
		if err != nil {
			return b, err
		}
	}
}

// growScrubbed returns a copy of b with twice the capacity and zeroes b.
func growScrubbed(b []byte) []byte {
	grown := make([]byte, len(b), 2*cap(b)+1)
	copy(grown, b)
	clear(b[:cap(b)])
	return grown
}

// sizeHint guesses how many bytes r holds, or returns 0.
func sizeHint(r io.Reader) int64 {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len())
	case interface{ Stat() (fs.FileInfo, error) }:
		if fi, err := v.Stat(); err == nil {
			return fi.Size()
		}
	}
	return 0
}
