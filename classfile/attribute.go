package classfile

import "fmt"

// AttributeContext tells an AttributeFactory where an attribute was found.
type AttributeContext int

const (
	ClassContext AttributeContext = iota
	FieldContext
	MethodContext
	CodeContext
)

func (c AttributeContext) String() string {
	switch c {
	case ClassContext:
		return "class"
	case FieldContext:
		return "field"
	case MethodContext:
		return "method"
	case CodeContext:
		return "code"
	default:
		return fmt.Sprintf("AttributeContext(%d)", int(c))
	}
}

// AttributeFactory decodes the body of a named attribute. Returning (nil, nil)
// keeps the attribute raw; returning an error fails the whole parse.
type AttributeFactory interface {
	ParseAttribute(ctx AttributeContext, name string, info []byte, cp ConstantPool) (any, error)
}

type AttributeFactoryFunc func(ctx AttributeContext, name string, info []byte, cp ConstantPool) (any, error)

func (f AttributeFactoryFunc) ParseAttribute(ctx AttributeContext, name string, info []byte, cp ConstantPool) (any, error) {
	return f(ctx, name, info, cp)
}

var (
	// StdAttributes decodes the standard attributes a translator needs and
	// keeps everything else raw.
	StdAttributes AttributeFactory = stdAttributes{}

	// RawAttributes decodes nothing.
	RawAttributes AttributeFactory = AttributeFactoryFunc(func(AttributeContext, string, []byte, ConstantPool) (any, error) {
		return nil, nil
	})
)

type AttributeInfo struct {
	NameIndex uint16
	Info      []byte
	Parsed    any
}

type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionTableEntry
	Attributes     []AttributeInfo
}

type ExceptionTableEntry struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

type LineNumberTableAttribute struct {
	LineNumberTable []LineNumberEntry
}

type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

// LocalVariableTableAttribute also holds LocalVariableTypeTable, where
// DescriptorIndex points at a generic signature.
type LocalVariableTableAttribute struct {
	LocalVariableTable []LocalVariableEntry
}

type LocalVariableEntry struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

type SourceFileAttribute struct {
	SourceFileIndex uint16
}

type ConstantValueAttribute struct {
	ConstantValueIndex uint16
}

type SignatureAttribute struct {
	SignatureIndex uint16
}

// ClassListAttribute holds Exceptions, NestMembers and PermittedSubclasses.
type ClassListAttribute struct {
	Classes []uint16
}

type NestHostAttribute struct {
	HostClassIndex uint16
}

type InnerClassesAttribute struct {
	Classes []InnerClassEntry
}

type InnerClassEntry struct {
	InnerClassInfoIndex   uint16
	OuterClassInfoIndex   uint16
	InnerNameIndex        uint16
	InnerClassAccessFlags AccessFlags
}

type EnclosingMethodAttribute struct {
	ClassIndex  uint16
	MethodIndex uint16
}

type MethodParametersAttribute struct {
	Parameters []MethodParameter
}

type MethodParameter struct {
	NameIndex   uint16
	AccessFlags AccessFlags
}

type BootstrapMethodsAttribute struct {
	BootstrapMethods []BootstrapMethod
}

type BootstrapMethod struct {
	BootstrapMethodRef uint16
	BootstrapArguments []uint16
}

// MarkerAttribute is the decoded form of Synthetic and Deprecated.
type MarkerAttribute struct {
	Name string
}

// ParsedAs returns the decoded attribute body when it has type *T.
func ParsedAs[T any](a *AttributeInfo) *T {
	if a == nil {
		return nil
	}
	v, _ := a.Parsed.(*T)
	return v
}

func (a *AttributeInfo) AsCode() *CodeAttribute {
	return ParsedAs[CodeAttribute](a)
}

func (a *AttributeInfo) AsSourceFile() *SourceFileAttribute {
	return ParsedAs[SourceFileAttribute](a)
}

type stdAttributes struct{}

func (f stdAttributes) ParseAttribute(ctx AttributeContext, name string, info []byte, cp ConstantPool) (any, error) {
	r := &reader{buf: info}
	var parsed any

	switch ctx {
	case ClassContext:
		switch name {
		case "SourceFile":
			parsed = &SourceFileAttribute{SourceFileIndex: r.readU2()}
		case "InnerClasses":
			parsed = parseInnerClasses(r)
		case "EnclosingMethod":
			parsed = &EnclosingMethodAttribute{ClassIndex: r.readU2(), MethodIndex: r.readU2()}
		case "NestHost":
			parsed = &NestHostAttribute{HostClassIndex: r.readU2()}
		case "NestMembers", "PermittedSubclasses":
			parsed = &ClassListAttribute{Classes: r.readU2s()}
		case "BootstrapMethods":
			parsed = parseBootstrapMethods(r)
		}
	case FieldContext:
		if name == "ConstantValue" {
			parsed = &ConstantValueAttribute{ConstantValueIndex: r.readU2()}
		}
	case MethodContext:
		switch name {
		case "Code":
			code, err := f.parseCode(r, cp)
			if err != nil {
				return nil, err
			}
			parsed = code
		case "Exceptions":
			parsed = &ClassListAttribute{Classes: r.readU2s()}
		case "MethodParameters":
			parsed = parseMethodParameters(r)
		}
	case CodeContext:
		switch name {
		case "LineNumberTable":
			parsed = parseLineNumberTable(r)
		case "LocalVariableTable", "LocalVariableTypeTable":
			parsed = parseLocalVariableTable(r)
		}
	}

	if parsed == nil {
		switch name {
		case "Signature":
			if ctx != CodeContext {
				parsed = &SignatureAttribute{SignatureIndex: r.readU2()}
			}
		case "Synthetic", "Deprecated":
			if ctx != CodeContext {
				parsed = &MarkerAttribute{Name: name}
			}
		}
	}
	if parsed == nil {
		return nil, nil
	}

	if r.err != nil {
		return nil, r.err
	}
	if n := r.remaining(); n != 0 {
		return nil, fmt.Errorf("%w: %d unread bytes in %s attribute", ErrMalformed, n, name)
	}
	return parsed, nil
}

func (f stdAttributes) parseCode(r *reader, cp ConstantPool) (*CodeAttribute, error) {
	code := &CodeAttribute{
		MaxStack:  r.readU2(),
		MaxLocals: r.readU2(),
	}
	codeLength := r.readU4()
	if r.err != nil {
		return nil, r.err
	}
	if codeLength == 0 || uint64(codeLength) > uint64(r.remaining()) {
		return nil, fmt.Errorf("%w: code length %d", ErrMalformed, codeLength)
	}
	code.Code = r.readBytes(int(codeLength))

	count := int(r.readU2())
	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() < 8*count {
		return nil, ErrTruncated
	}
	code.ExceptionTable = make([]ExceptionTableEntry, count)
	for i := range code.ExceptionTable {
		code.ExceptionTable[i] = ExceptionTableEntry{
			StartPC:   r.readU2(),
			EndPC:     r.readU2(),
			HandlerPC: r.readU2(),
			CatchType: r.readU2(),
		}
	}

	attrs, err := readAttributeTable(r, cp, CodeContext, f)
	if err != nil {
		return nil, err
	}
	code.Attributes = attrs
	return code, nil
}

func parseInnerClasses(r *reader) *InnerClassesAttribute {
	count := int(r.readU2())
	if r.remaining() < 8*count {
		r.err = ErrTruncated
		return nil
	}
	attr := &InnerClassesAttribute{Classes: make([]InnerClassEntry, count)}
	for i := range attr.Classes {
		attr.Classes[i] = InnerClassEntry{
			InnerClassInfoIndex:   r.readU2(),
			OuterClassInfoIndex:   r.readU2(),
			InnerNameIndex:        r.readU2(),
			InnerClassAccessFlags: AccessFlags(r.readU2()),
		}
	}
	return attr
}

func parseBootstrapMethods(r *reader) *BootstrapMethodsAttribute {
	count := int(r.readU2())
	attr := &BootstrapMethodsAttribute{}
	for i := 0; i < count && r.err == nil; i++ {
		attr.BootstrapMethods = append(attr.BootstrapMethods, BootstrapMethod{
			BootstrapMethodRef: r.readU2(),
			BootstrapArguments: r.readU2s(),
		})
	}
	return attr
}

func parseMethodParameters(r *reader) *MethodParametersAttribute {
	count := int(r.readU1())
	attr := &MethodParametersAttribute{Parameters: make([]MethodParameter, 0, count)}
	for i := 0; i < count && r.err == nil; i++ {
		attr.Parameters = append(attr.Parameters, MethodParameter{
			NameIndex:   r.readU2(),
			AccessFlags: AccessFlags(r.readU2()),
		})
	}
	return attr
}

func parseLineNumberTable(r *reader) *LineNumberTableAttribute {
	count := int(r.readU2())
	if r.remaining() < 4*count {
		r.err = ErrTruncated
		return nil
	}
	attr := &LineNumberTableAttribute{LineNumberTable: make([]LineNumberEntry, count)}
	for i := range attr.LineNumberTable {
		attr.LineNumberTable[i] = LineNumberEntry{
			StartPC:    r.readU2(),
			LineNumber: r.readU2(),
		}
	}
	return attr
}

func parseLocalVariableTable(r *reader) *LocalVariableTableAttribute {
	count := int(r.readU2())
	if r.remaining() < 10*count {
		r.err = ErrTruncated
		return nil
	}
	attr := &LocalVariableTableAttribute{LocalVariableTable: make([]LocalVariableEntry, count)}
	for i := range attr.LocalVariableTable {
		attr.LocalVariableTable[i] = LocalVariableEntry{
			StartPC:         r.readU2(),
			Length:          r.readU2(),
			NameIndex:       r.readU2(),
			DescriptorIndex: r.readU2(),
			Index:           r.readU2(),
		}
	}
	return attr
}
