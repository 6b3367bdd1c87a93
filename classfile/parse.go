package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	ErrBadMagic           = errors.New("classfile: bad magic")
	ErrTruncated          = errors.New("classfile: truncated class file")
	ErrMalformed          = errors.New("classfile: malformed class file")
	ErrTrailingData       = errors.New("classfile: trailing bytes after class file")
	ErrUnsupportedVersion = errors.New("classfile: unsupported class file version")
)

type Option func(*decoder)

// WithAttributeFactory sets the strategy used to decode attributes.
// A nil factory selects StdAttributes.
func WithAttributeFactory(f AttributeFactory) Option {
	return func(d *decoder) {
		d.attrs = f
	}
}

// WithVersionRange rejects class files whose version lies outside r.
func WithVersionRange(r VersionRange) Option {
	return func(d *decoder) {
		d.versions = &r
	}
}

// WithStrictVersion is WithVersionRange(DefaultStrictRange).
func WithStrictVersion() Option {
	return WithVersionRange(DefaultStrictRange)
}

type decoder struct {
	attrs    AttributeFactory
	versions *VersionRange
}

// reader is a bounds-checked cursor over a class file image. Once a read
// fails every later read returns zero values and err stays set.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = ErrTruncated
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) readU1() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) readU2() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) readU4() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) readBytes(n int) []byte {
	return r.take(n)
}

func (r *reader) readU2s() []uint16 {
	count := int(r.readU2())
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < 2*count {
		r.err = ErrTruncated
		return nil
	}
	values := make([]uint16, count)
	for i := range values {
		values[i] = r.readU2()
	}
	return values
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

// Parse reads the whole of rd and decodes it as a class file.
func Parse(rd io.Reader, opts ...Option) (*ClassFile, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to read class file: %w", err)
	}
	return ParseBytes(data, opts...)
}

// ParseBytes decodes data as a class file. Raw attribute bytes in the result
// alias data.
func ParseBytes(data []byte, opts ...Option) (*ClassFile, error) {
	d := &decoder{}
	for _, opt := range opts {
		opt(d)
	}
	if d.attrs == nil {
		d.attrs = StdAttributes
	}
	return d.decode(data)
}

func (d *decoder) decode(data []byte) (*ClassFile, error) {
	r := &reader{buf: data}

	magic := r.readU4()
	if r.err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", r.err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: 0x%X (expected 0xCAFEBABE)", ErrBadMagic, magic)
	}

	cf := &ClassFile{
		MinorVersion: r.readU2(),
		MajorVersion: r.readU2(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("failed to read version: %w", r.err)
	}
	if d.versions != nil && !d.versions.Contains(cf.Version()) {
		return nil, fmt.Errorf("%w: %s (accepted %s)", ErrUnsupportedVersion, cf.Version(), d.versions)
	}

	constantPoolCount := r.readU2()
	if r.err != nil {
		return nil, fmt.Errorf("failed to read constant pool count: %w", r.err)
	}
	if constantPoolCount == 0 {
		return nil, fmt.Errorf("%w: constant pool count is zero", ErrMalformed)
	}

	cf.ConstantPool = make(ConstantPool, constantPoolCount-1)
	for i := uint16(1); i < constantPoolCount; i++ {
		entry, wide, err := readConstantPoolEntry(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read constant pool entry %d: %w", i, err)
		}
		cf.ConstantPool[i-1] = entry
		if wide {
			i++
		}
	}

	cf.AccessFlags = AccessFlags(r.readU2())
	cf.ThisClass = r.readU2()
	cf.SuperClass = r.readU2()
	if r.err != nil {
		return nil, fmt.Errorf("failed to read class info: %w", r.err)
	}
	if cf.ClassName() == "" {
		return nil, fmt.Errorf("%w: this_class #%d is not a class constant", ErrMalformed, cf.ThisClass)
	}
	if cf.SuperClass != 0 && cf.SuperClassName() == "" {
		return nil, fmt.Errorf("%w: super_class #%d is not a class constant", ErrMalformed, cf.SuperClass)
	}

	cf.Interfaces = r.readU2s()
	if r.err != nil {
		return nil, fmt.Errorf("failed to read interfaces: %w", r.err)
	}

	fieldsCount := r.readU2()
	if r.err != nil {
		return nil, fmt.Errorf("failed to read fields count: %w", r.err)
	}
	cf.Fields = make([]FieldInfo, 0, fieldsCount)
	for i := uint16(0); i < fieldsCount; i++ {
		member, err := d.readMember(r, cf.ConstantPool, FieldContext)
		if err != nil {
			return nil, fmt.Errorf("failed to read field %d: %w", i, err)
		}
		cf.Fields = append(cf.Fields, FieldInfo(member))
	}

	methodsCount := r.readU2()
	if r.err != nil {
		return nil, fmt.Errorf("failed to read methods count: %w", r.err)
	}
	cf.Methods = make([]MethodInfo, 0, methodsCount)
	for i := uint16(0); i < methodsCount; i++ {
		member, err := d.readMember(r, cf.ConstantPool, MethodContext)
		if err != nil {
			return nil, fmt.Errorf("failed to read method %d: %w", i, err)
		}
		cf.Methods = append(cf.Methods, MethodInfo(member))
	}

	attrs, err := d.readAttributes(r, cf.ConstantPool, ClassContext)
	if err != nil {
		return nil, fmt.Errorf("failed to read class attributes: %w", err)
	}
	cf.Attributes = attrs

	if n := r.remaining(); n != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, n)
	}
	return cf, nil
}

func readConstantPoolEntry(r *reader) (ConstantPoolEntry, bool, error) {
	tag := ConstantTag(r.readU1())
	if r.err != nil {
		return nil, false, r.err
	}

	var entry ConstantPoolEntry
	wide := false

	switch tag {
	case ConstantUtf8:
		length := r.readU2()
		entry = &ConstantUtf8Info{Value: decodeModifiedUtf8(r.readBytes(int(length)))}
	case ConstantInteger:
		entry = &ConstantIntegerInfo{Value: int32(r.readU4())}
	case ConstantFloat:
		entry = &ConstantFloatInfo{Value: math.Float32frombits(r.readU4())}
	case ConstantLong:
		high, low := r.readU4(), r.readU4()
		entry = &ConstantLongInfo{Value: int64(uint64(high)<<32 | uint64(low))}
		wide = true
	case ConstantDouble:
		high, low := r.readU4(), r.readU4()
		entry = &ConstantDoubleInfo{Value: math.Float64frombits(uint64(high)<<32 | uint64(low))}
		wide = true
	case ConstantClass:
		entry = &ConstantClassInfo{NameIndex: r.readU2()}
	case ConstantString:
		entry = &ConstantStringInfo{StringIndex: r.readU2()}
	case ConstantFieldref, ConstantMethodref, ConstantInterfaceMethodref:
		entry = &ConstantRefInfo{Kind: tag, ClassIndex: r.readU2(), NameAndTypeIndex: r.readU2()}
	case ConstantNameAndType:
		entry = &ConstantNameAndTypeInfo{NameIndex: r.readU2(), DescriptorIndex: r.readU2()}
	case ConstantMethodHandle:
		entry = &ConstantMethodHandleInfo{ReferenceKind: r.readU1(), ReferenceIndex: r.readU2()}
	case ConstantMethodType:
		entry = &ConstantMethodTypeInfo{DescriptorIndex: r.readU2()}
	case ConstantDynamic, ConstantInvokeDynamic:
		entry = &ConstantDynamicInfo{Kind: tag, BootstrapMethodAttrIndex: r.readU2(), NameAndTypeIndex: r.readU2()}
	case ConstantModule, ConstantPackage:
		entry = &ConstantNamedInfo{Kind: tag, NameIndex: r.readU2()}
	default:
		return nil, false, fmt.Errorf("%w: unknown constant pool tag %d", ErrMalformed, tag)
	}

	if r.err != nil {
		return nil, false, r.err
	}
	return entry, wide, nil
}

// member is the shared layout of field_info and method_info.
type member struct {
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []AttributeInfo
}

func (d *decoder) readMember(r *reader, cp ConstantPool, ctx AttributeContext) (member, error) {
	m := member{
		AccessFlags:     AccessFlags(r.readU2()),
		NameIndex:       r.readU2(),
		DescriptorIndex: r.readU2(),
	}
	if r.err != nil {
		return m, r.err
	}
	if cp.GetUtf8(m.NameIndex) == "" || cp.GetUtf8(m.DescriptorIndex) == "" {
		return m, fmt.Errorf("%w: name #%d or descriptor #%d is not a utf8 constant", ErrMalformed, m.NameIndex, m.DescriptorIndex)
	}

	attrs, err := d.readAttributes(r, cp, ctx)
	if err != nil {
		return m, err
	}
	m.Attributes = attrs
	return m, nil
}

func (d *decoder) readAttributes(r *reader, cp ConstantPool, ctx AttributeContext) ([]AttributeInfo, error) {
	return readAttributeTable(r, cp, ctx, d.attrs)
}

func readAttributeTable(r *reader, cp ConstantPool, ctx AttributeContext, f AttributeFactory) ([]AttributeInfo, error) {
	count := r.readU2()
	if r.err != nil {
		return nil, r.err
	}

	attrs := make([]AttributeInfo, 0, count)
	for i := uint16(0); i < count; i++ {
		nameIndex := r.readU2()
		length := r.readU4()
		if r.err != nil {
			return nil, r.err
		}
		if uint64(length) > uint64(r.remaining()) {
			return nil, fmt.Errorf("attribute #%d length %d: %w", nameIndex, length, ErrTruncated)
		}
		info := r.readBytes(int(length))

		name := cp.GetUtf8(nameIndex)
		if name == "" {
			return nil, fmt.Errorf("%w: attribute name #%d is not a utf8 constant", ErrMalformed, nameIndex)
		}

		parsed, err := f.ParseAttribute(ctx, name, info, cp)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		attrs = append(attrs, AttributeInfo{
			NameIndex: nameIndex,
			Info:      info,
			Parsed:    parsed,
		})
	}
	return attrs, nil
}

func decodeModifiedUtf8(bytes []byte) string {
	runes := make([]rune, 0, len(bytes))
	i := 0
	for i < len(bytes) {
		b := bytes[i]
		switch {
		case b&0x80 == 0:
			runes = append(runes, rune(b))
			i++
		case b&0xE0 == 0xC0 && i+1 < len(bytes):
			runes = append(runes, rune(b&0x1F)<<6|rune(bytes[i+1]&0x3F))
			i += 2
		case b&0xF0 == 0xE0 && i+2 < len(bytes):
			r := rune(b&0x0F)<<12 | rune(bytes[i+1]&0x3F)<<6 | rune(bytes[i+2]&0x3F)
			if r >= 0xD800 && r <= 0xDBFF && i+5 < len(bytes) && bytes[i+3] == 0xED {
				low := rune(bytes[i+3]&0x0F)<<12 | rune(bytes[i+4]&0x3F)<<6 | rune(bytes[i+5]&0x3F)
				if low >= 0xDC00 && low <= 0xDFFF {
					runes = append(runes, 0x10000+((r-0xD800)<<10)+(low-0xDC00))
					i += 6
					continue
				}
			}
			runes = append(runes, r)
			i += 3
		default:
			runes = append(runes, rune(b))
			i++
		}
	}
	return string(runes)
}
