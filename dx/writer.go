package dx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dhamidi/dexpack/dex"
	"github.com/tliron/commonlog"
)

// WriterState is the entry state of a Writer.
type WriterState int

const (
	StateIdle WriterState = iota
	StateEntryOpen
)

func (s WriterState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEntryOpen:
		return "entry open"
	default:
		return fmt.Sprintf("WriterState(%d)", int(s))
	}
}

// openEntry is the class entry between PutNextClass and CloseClass.
type openEntry struct {
	filename string
	consumed bool
}

// Writer assembles a dex file from class entries. Each entry is opened with
// PutNextClass, receives its bytes in a single Write and is closed with
// CloseClass. Entries that fail to parse or translate are reported to the
// file's ErrorReporter and left out; they do not fail the Write.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	file       *dex.File
	parser     ClassParser
	translator Translator
	log        commonlog.Logger

	opts  *TranslateOptions
	entry *openEntry

	added  int
	failed int
}

func newWriter(file *dex.File, parser ClassParser, translator Translator, opts *TranslateOptions, log commonlog.Logger) *Writer {
	return &Writer{
		file:       file,
		parser:     parser,
		translator: translator,
		opts:       opts,
		log:        log,
	}
}

func (w *Writer) State() WriterState {
	if w.entry == nil {
		return StateIdle
	}
	return StateEntryOpen
}

func (w *Writer) File() *dex.File {
	return w.file
}

// TranslateOptions returns the options the next entry will be translated
// with, or nil if none have been set yet.
func (w *Writer) TranslateOptions() *TranslateOptions {
	return w.opts
}

// Added is the number of classes added to the file.
func (w *Writer) Added() int {
	return w.added
}

// Failed is the number of entries that were reported and skipped.
func (w *Writer) Failed() int {
	return w.failed
}

// PutNextClass opens an entry for filename, keeping the current translate
// options.
func (w *Writer) PutNextClass(filename string) error {
	return w.PutNextClassWithOptions(filename, nil)
}

// PutNextClassWithOptions opens an entry for filename. Non-nil opts replace
// the writer's translate options for this and all later entries.
func (w *Writer) PutNextClassWithOptions(filename string, opts *TranslateOptions) error {
	if w.entry != nil {
		return fmt.Errorf("%w: PutNextClass(%q) while %s is open", ErrLifecycle, filename, w.entry.filename)
	}
	if err := checkFilename(filename); err != nil {
		return err
	}
	if opts != nil {
		w.opts = opts
	} else if w.opts == nil {
		w.opts = DefaultTranslateOptions()
	}
	w.entry = &openEntry{filename: filename}
	return nil
}

// CloseClass closes the open entry.
func (w *Writer) CloseClass() error {
	if w.entry == nil {
		return fmt.Errorf("%w: CloseClass without an open entry", ErrLifecycle)
	}
	w.entry = nil
	return nil
}

// Write processes p as the complete class file of the open entry. Writing
// nothing is a no-op; a second non-empty Write to the same entry is an error.
// Parse and translation failures are reported, not returned.
func (w *Writer) Write(p []byte) (int, error) {
	if w.entry == nil {
		return 0, fmt.Errorf("%w: Write without an open entry", ErrLifecycle)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if w.entry.consumed {
		return 0, fmt.Errorf("%w: %s already written", ErrLifecycle, w.entry.filename)
	}
	w.entry.consumed = true

	data := bytes.Clone(p)
	defer clear(data)

	if err := w.process(w.entry.filename, data); err != nil {
		w.failed++
		w.log.Warningf("skipping %s: %s", w.entry.filename, err)
		w.file.Options().Report(err)
	} else {
		w.added++
		w.log.Debugf("added %s", w.entry.filename)
	}
	return len(p), nil
}

func (w *Writer) process(filename string, data []byte) error {
	cf, err := w.parser.Parse(filename, data)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return err
		}
		return &ParseError{Filename: filename, Err: err}
	}

	if w.opts.StrictNameCheck && !nameMatches(filename, cf.ClassName()) {
		return &TranslationError{
			Filename: filename,
			Err:      fmt.Errorf("class name (%s) does not match path (%s)", cf.ClassName(), filename),
		}
	}

	item, err := w.translator.Translate(cf, data, w.opts, w.file.Options(), w.file)
	if err != nil {
		return &TranslationError{Filename: filename, Err: err}
	}
	if err := w.file.Add(item); err != nil {
		return &TranslationError{Filename: filename, Err: err}
	}
	return nil
}

// ReadFrom reads r to the end and writes the result as the open entry.
func (w *Writer) ReadFrom(r io.Reader) (int64, error) {
	if r == nil {
		return 0, fmt.Errorf("%w: nil reader", ErrInvalidArgument)
	}
	if w.entry == nil {
		return 0, fmt.Errorf("%w: ReadFrom without an open entry", ErrLifecycle)
	}
	data, err := readAllScrubbed(r, sizeHint(r))
	defer clear(data)
	if err != nil {
		return int64(len(data)), fmt.Errorf("failed to read %s: %w", w.entry.filename, err)
	}
	n, err := w.Write(data)
	return int64(n), err
}

// WriteStream is ReadFrom followed, when close is true, by closing r.
func (w *Writer) WriteStream(r io.Reader, close bool) error {
	_, err := w.ReadFrom(r)
	if close {
		if c, ok := r.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	}
	return err
}

// WriteAll adds every class file in a. Directories and names without the
// class suffix are skipped without being read. Reading the archive is the
// only way WriteAll fails; bad class files are reported and skipped.
func (w *Writer) WriteAll(a Archive) error {
	if a == nil {
		return fmt.Errorf("%w: nil archive", ErrInvalidArgument)
	}
	if w.entry != nil {
		return fmt.Errorf("%w: WriteAll while %s is open", ErrLifecycle, w.entry.filename)
	}
	for {
		e, err := a.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		if e.Dir || !strings.HasSuffix(e.Name, ClassSuffix) {
			w.log.Debugf("ignoring %s", e.Name)
			continue
		}
		if err := w.writeEntry(e); err != nil {
			return err
		}
	}
}

func (w *Writer) writeEntry(e *ArchiveEntry) error {
	rc, err := e.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", e.Name, err)
	}
	data, err := readAllScrubbed(rc, e.Size)
	defer clear(data)
	if err = errors.Join(err, rc.Close()); err != nil {
		return fmt.Errorf("failed to read %s: %w", e.Name, err)
	}

	if err := w.PutNextClass(e.Name); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.CloseClass()
}

// WriteTo serializes the dex file to out. It does not change the writer's
// state.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	if out == nil {
		return 0, fmt.Errorf("%w: nil output", ErrInvalidArgument)
	}
	n, err := w.file.WriteTo(out)
	if err != nil {
		return n, err
	}
	w.log.Infof("wrote %d classes (%d bytes), %d skipped", w.file.Len(), n, w.failed)
	return n, nil
}

// Flush is WriteTo followed, when close is true, by closing out.
func (w *Writer) Flush(out io.Writer, close bool) error {
	_, err := w.WriteTo(out)
	if close {
		if c, ok := out.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	}
	return err
}

// Bytes returns the serialized dex file, or an empty slice if serialization
// fails.
func (w *Writer) Bytes() []byte {
	data, err := w.file.Bytes()
	if err != nil {
		w.log.Errorf("failed to serialize dex file: %s", err)
		return []byte{}
	}
	return data
}
