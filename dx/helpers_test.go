package dx_test

import (
	"io"

	"github.com/dhamidi/dexpack/classfile"
	"github.com/dhamidi/dexpack/dex"
	"github.com/dhamidi/dexpack/dx"
)

// newTestFactory returns a factory that collects reported errors instead of
// printing them.
func newTestFactory(opts ...dx.FactoryOption) (*dx.Factory, *dex.Collector) {
	c := &dex.Collector{}
	return dx.NewFactory(append([]dx.FactoryOption{dx.WithReporter(c)}, opts...)...), c
}

// recordingParser remembers every filename it was asked to parse.
type recordingParser struct {
	dx.ClassParser
	names []string
}

func newRecordingParser() *recordingParser {
	return &recordingParser{ClassParser: dx.NewClassParser()}
}

func (p *recordingParser) Parse(filename string, data []byte) (*classfile.ClassFile, error) {
	p.names = append(p.names, filename)
	return p.ClassParser.Parse(filename, data)
}

type closeTracker struct {
	io.Reader
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return nil
}

type nopWriteCloser struct {
	io.Writer
	closed bool
}

func (w *nopWriteCloser) Close() error {
	w.closed = true
	return nil
}
