package dx

import (
	"io"
	"os"
	"sync"

	"github.com/dhamidi/dexpack/classfile"
	"github.com/dhamidi/dexpack/dex"
	"github.com/tliron/commonlog"
)

// Factory builds files, parsers, writers and readers that agree with each
// other on reporter, strictness and translation settings. A Factory is
// immutable once built and safe for concurrent use.
type Factory struct {
	reporter      dex.ErrorReporter
	translator    Translator
	strict        bool
	attrs         classfile.AttributeFactory
	translateOpts *TranslateOptions
	log           commonlog.Logger
}

type FactoryOption func(*Factory)

// WithReporter sets the reporter of every file the factory creates.
func WithReporter(r dex.ErrorReporter) FactoryOption {
	return func(f *Factory) {
		f.reporter = r
	}
}

func WithTranslator(t Translator) FactoryOption {
	return func(f *Factory) {
		f.translator = t
	}
}

// WithStrictParsing makes every parser from the factory start in strict mode.
func WithStrictParsing(strict bool) FactoryOption {
	return func(f *Factory) {
		f.strict = strict
	}
}

func WithAttributeFactory(a classfile.AttributeFactory) FactoryOption {
	return func(f *Factory) {
		f.attrs = a
	}
}

// WithTranslateOptions sets the options writers start with.
func WithTranslateOptions(opts *TranslateOptions) FactoryOption {
	return func(f *Factory) {
		f.translateOpts = opts
	}
}

func WithLogger(log commonlog.Logger) FactoryOption {
	return func(f *Factory) {
		f.log = log
	}
}

func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{}
	for _, opt := range opts {
		opt(f)
	}
	if f.reporter == nil {
		f.reporter = dex.WriterReporter(os.Stderr)
	}
	if f.translator == nil {
		f.translator = DeclarationTranslator{}
	}
	if f.attrs == nil {
		f.attrs = classfile.StdAttributes
	}
	if f.log == nil {
		f.log = commonlog.GetLogger("dexpack.dx")
	}
	return f
}

var (
	defaultFactory     *Factory
	defaultFactoryOnce sync.Once
)

// Default returns the process-wide factory, creating it on first use.
func Default() *Factory {
	defaultFactoryOnce.Do(func() {
		defaultFactory = NewFactory()
	})
	return defaultFactory
}

// NewOptions returns options targeting API level sdk with the factory's
// reporter.
func (f *Factory) NewOptions(sdk int) dex.Options {
	return dex.Options{MinSdkVersion: sdk, Reporter: f.reporter}
}

// PreferredOptions targets SDK26.
func (f *Factory) PreferredOptions() dex.Options {
	return f.NewOptions(SDK26)
}

// NewFile returns an empty file with the preferred options.
func (f *Factory) NewFile() *dex.File {
	return f.NewFileWithOptions(f.PreferredOptions())
}

func (f *Factory) NewFileWithVersion(sdk int) *dex.File {
	return f.NewFileWithOptions(f.NewOptions(sdk))
}

// NewFileWithOptions is the single place files are created.
func (f *Factory) NewFileWithOptions(opts dex.Options) *dex.File {
	return dex.NewFile(opts)
}

func (f *Factory) NewParser() ClassParser {
	return f.NewParserWithAttributes(f.attrs)
}

func (f *Factory) NewParserWithAttributes(attrs classfile.AttributeFactory) ClassParser {
	p := NewClassParser()
	p.SetAttributeFactory(attrs)
	p.SetStrict(f.strict)
	return p
}

// NewWriter returns a writer over a new preferred file and a new parser.
func (f *Factory) NewWriter() *Writer {
	return f.NewWriterWith(nil, nil)
}

func (f *Factory) NewWriterForFile(file *dex.File) *Writer {
	return f.NewWriterWith(file, nil)
}

// NewWriterWith returns a writer over file using parser. A nil file or parser
// is replaced by a new one from the factory.
func (f *Factory) NewWriterWith(file *dex.File, parser ClassParser) *Writer {
	if file == nil {
		file = f.NewFile()
	}
	if parser == nil {
		parser = f.NewParser()
	}
	var opts *TranslateOptions
	if f.translateOpts != nil {
		copied := *f.translateOpts
		opts = &copied
	}
	return newWriter(file, parser, f.translator, opts, f.log)
}

func (f *Factory) NewReader() *Reader {
	return NewReader()
}

// NewReaderFrom returns a reader that has captured src. A nil src gives an
// empty reader.
func (f *Factory) NewReaderFrom(src io.Reader, close bool) (*Reader, error) {
	r := NewReader()
	if src == nil {
		return r, nil
	}
	if err := r.Capture(src, close); err != nil {
		return nil, err
	}
	return r, nil
}
