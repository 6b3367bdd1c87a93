package dx

import (
	"fmt"
	"io"
	"strings"

	"github.com/dhamidi/dexpack/classfile"
)

// ClassSuffix is the file name suffix every class entry must carry.
const ClassSuffix = ".class"

// ClassParser decodes class files. Strict mode and the attribute factory are
// properties of the parser and apply to every later call to Parse.
type ClassParser interface {
	Parse(filename string, data []byte) (*classfile.ClassFile, error)
	ParseReader(filename string, r io.Reader) (*classfile.ClassFile, error)

	SetStrict(strict bool)
	Strict() bool

	SetAttributeFactory(f classfile.AttributeFactory)
	AttributeFactory() classfile.AttributeFactory

	// Version is the tool version the parser implements.
	Version() string
}

type classParser struct {
	strict bool
	attrs  classfile.AttributeFactory
}

// NewClassParser returns a lenient parser using the standard attribute set.
func NewClassParser() ClassParser {
	return &classParser{attrs: classfile.StdAttributes}
}

func (p *classParser) SetStrict(strict bool) {
	p.strict = strict
}

func (p *classParser) Strict() bool {
	return p.strict
}

// SetAttributeFactory replaces the attribute strategy. Nil restores the
// standard one.
func (p *classParser) SetAttributeFactory(f classfile.AttributeFactory) {
	if f == nil {
		f = classfile.StdAttributes
	}
	p.attrs = f
}

func (p *classParser) AttributeFactory() classfile.AttributeFactory {
	return p.attrs
}

func (p *classParser) Version() string {
	return ToolVersion
}

func (p *classParser) ParseReader(filename string, r io.Reader) (*classfile.ClassFile, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil reader for %q", ErrInvalidArgument, filename)
	}
	if err := checkFilename(filename); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return p.Parse(filename, data)
}

// Parse decodes data as the class stored under filename. In strict mode the
// class version must lie in classfile.DefaultStrictRange and the class name
// must equal filename without its suffix.
func (p *classParser) Parse(filename string, data []byte) (*classfile.ClassFile, error) {
	if err := checkFilename(filename); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: nil data for %q", ErrInvalidArgument, filename)
	}

	opts := []classfile.Option{classfile.WithAttributeFactory(p.attrs)}
	if p.strict {
		opts = append(opts, classfile.WithStrictVersion())
	}
	cf, err := classfile.ParseBytes(data, opts...)
	if err != nil {
		return nil, &ParseError{Filename: filename, Err: err}
	}

	if p.strict {
		name := cf.ClassName()
		if strings.TrimSuffix(filename, ClassSuffix) != name {
			return nil, &ParseError{
				Filename: filename,
				Err:      fmt.Errorf("class name (%s) does not match path (%s)", name, filename),
			}
		}
	}
	return cf, nil
}

func checkFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("%w: empty filename", ErrInvalidArgument)
	}
	if !strings.HasSuffix(filename, ClassSuffix) {
		return fmt.Errorf("%w: %q does not end in %s", ErrInvalidArgument, filename, ClassSuffix)
	}
	return nil
}
