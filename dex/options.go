package dex

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tliron/commonlog"
)

// Options are the container-wide settings of a File. They are copied into the
// File by NewFile and cannot change afterwards.
type Options struct {
	// MinSdkVersion is the lowest Android API level the output must run on.
	MinSdkVersion int

	// Reporter receives per-class processing errors. Nil reports to stderr.
	Reporter ErrorReporter
}

// Magic returns the eight magic bytes for the dex format version implied by
// MinSdkVersion.
func (o Options) Magic() [8]byte {
	var version string
	switch {
	case o.MinSdkVersion >= 28:
		version = "039"
	case o.MinSdkVersion >= 26:
		version = "038"
	case o.MinSdkVersion >= 24:
		version = "037"
	default:
		version = "035"
	}
	var magic [8]byte
	copy(magic[:], "dex\n"+version+"\x00")
	return magic
}

// Report hands err to the configured reporter.
func (o Options) Report(err error) {
	if err == nil {
		return
	}
	if o.Reporter == nil {
		stderrReporter.Report(err)
		return
	}
	o.Reporter.Report(err)
}

// ErrorReporter is the sink for errors that do not stop a batch.
type ErrorReporter interface {
	Report(err error)
}

type ReporterFunc func(err error)

func (f ReporterFunc) Report(err error) {
	f(err)
}

var stderrReporter = WriterReporter(os.Stderr)

// WriterReporter prints one "Error processing: <err>" line per error to w.
func WriterReporter(w io.Writer) ErrorReporter {
	return &writerReporter{w: w}
}

type writerReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func (r *writerReporter) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "Error processing: %s\n", err)
}

// LogReporter reports errors at error level on log.
func LogReporter(log commonlog.Logger) ErrorReporter {
	return ReporterFunc(func(err error) {
		log.Errorf("Error processing: %s", err)
	})
}

// MultiReporter fans each error out to every non-nil reporter.
func MultiReporter(reporters ...ErrorReporter) ErrorReporter {
	return ReporterFunc(func(err error) {
		for _, r := range reporters {
			if r != nil {
				r.Report(err)
			}
		}
	})
}

// Collector records every reported error. It is safe for concurrent use.
type Collector struct {
	mu   sync.Mutex
	errs []error
}

func (c *Collector) Report(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

// Errors returns a copy of the recorded errors in report order.
func (c *Collector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}
