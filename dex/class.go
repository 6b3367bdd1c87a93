package dex

import (
	"errors"
	"fmt"
	"strings"
)

// Access flags that only exist in dex. The remaining bits share their
// meaning with the class file format.
const (
	AccPublic               uint32 = 0x0001
	AccPrivate              uint32 = 0x0002
	AccProtected            uint32 = 0x0004
	AccStatic               uint32 = 0x0008
	AccFinal                uint32 = 0x0010
	AccSynchronized         uint32 = 0x0020
	AccVolatile             uint32 = 0x0040
	AccBridge               uint32 = 0x0040
	AccTransient            uint32 = 0x0080
	AccVarargs              uint32 = 0x0080
	AccNative               uint32 = 0x0100
	AccInterface            uint32 = 0x0200
	AccAbstract             uint32 = 0x0400
	AccStrict               uint32 = 0x0800
	AccSynthetic            uint32 = 0x1000
	AccAnnotation           uint32 = 0x2000
	AccEnum                 uint32 = 0x4000
	AccConstructor          uint32 = 0x10000
	AccDeclaredSynchronized uint32 = 0x20000
)

var ErrInvalidItem = errors.New("dex: invalid class definition")

// ClassDefItem is the declaration of one class as stored in a dex file.
// Descriptors use the type descriptor syntax ("Ljava/lang/Object;", "I", "[B").
type ClassDefItem struct {
	Descriptor  string
	AccessFlags uint32
	// Superclass is empty only for java.lang.Object.
	Superclass string
	Interfaces []string
	SourceFile string

	StaticFields   []EncodedField
	InstanceFields []EncodedField
	DirectMethods  []EncodedMethod
	VirtualMethods []EncodedMethod
}

type EncodedField struct {
	Name        string
	Type        string
	AccessFlags uint32
}

type EncodedMethod struct {
	Name        string
	Proto       Proto
	AccessFlags uint32
}

// Proto is a method prototype. Return is "V" for void.
type Proto struct {
	Return string
	Params []string
}

func (p Proto) String() string {
	return "(" + strings.Join(p.Params, "") + ")" + p.Return
}

// Shorty is the short-form descriptor: one character per type, with every
// reference type collapsed to 'L'.
func (p Proto) Shorty() string {
	var sb strings.Builder
	sb.WriteByte(shortyChar(p.Return))
	for _, param := range p.Params {
		sb.WriteByte(shortyChar(param))
	}
	return sb.String()
}

func shortyChar(desc string) byte {
	if desc[0] == '[' {
		return 'L'
	}
	return desc[0]
}

// Name returns the binary name of the class, e.g. "java.lang.String".
func (c *ClassDefItem) Name() string {
	return SourceName(c.Descriptor)
}

func (c *ClassDefItem) IsInterface() bool {
	return c.AccessFlags&AccInterface != 0
}

// Methods returns direct methods followed by virtual methods.
func (c *ClassDefItem) Methods() []EncodedMethod {
	methods := make([]EncodedMethod, 0, len(c.DirectMethods)+len(c.VirtualMethods))
	methods = append(methods, c.DirectMethods...)
	return append(methods, c.VirtualMethods...)
}

// Fields returns static fields followed by instance fields.
func (c *ClassDefItem) Fields() []EncodedField {
	fields := make([]EncodedField, 0, len(c.StaticFields)+len(c.InstanceFields))
	fields = append(fields, c.StaticFields...)
	return append(fields, c.InstanceFields...)
}

// Validate checks that every descriptor and name in c is well formed and that
// no member is declared twice.
func (c *ClassDefItem) Validate() error {
	if !isClassDescriptor(c.Descriptor) {
		return fmt.Errorf("%w: class descriptor %q", ErrInvalidItem, c.Descriptor)
	}
	if c.Superclass != "" && !isClassDescriptor(c.Superclass) {
		return fmt.Errorf("%w: %s: superclass %q", ErrInvalidItem, c.Descriptor, c.Superclass)
	}
	if c.Superclass == c.Descriptor {
		return fmt.Errorf("%w: %s extends itself", ErrInvalidItem, c.Descriptor)
	}
	for _, iface := range c.Interfaces {
		if !isClassDescriptor(iface) {
			return fmt.Errorf("%w: %s: interface %q", ErrInvalidItem, c.Descriptor, iface)
		}
	}

	seen := map[string]bool{}
	for _, f := range c.Fields() {
		if !isMemberName(f.Name) || !IsTypeDescriptor(f.Type) || f.Type == "V" {
			return fmt.Errorf("%w: %s: field %s %q", ErrInvalidItem, c.Descriptor, f.Name, f.Type)
		}
		key := f.Name + ":" + f.Type
		if seen[key] {
			return fmt.Errorf("%w: %s: duplicate field %s", ErrInvalidItem, c.Descriptor, key)
		}
		seen[key] = true
	}
	for _, m := range c.Methods() {
		if !isMethodName(m.Name) || !isProto(m.Proto) {
			return fmt.Errorf("%w: %s: method %s%s", ErrInvalidItem, c.Descriptor, m.Name, m.Proto)
		}
		key := m.Name + m.Proto.String()
		if seen[key] {
			return fmt.Errorf("%w: %s: duplicate method %s", ErrInvalidItem, c.Descriptor, key)
		}
		seen[key] = true
	}
	return nil
}

func isProto(p Proto) bool {
	if !IsTypeDescriptor(p.Return) {
		return false
	}
	for _, param := range p.Params {
		if param == "V" || !IsTypeDescriptor(param) {
			return false
		}
	}
	return true
}

func isMemberName(name string) bool {
	return name != "" && !strings.ContainsAny(name, ".;[/<>")
}

func isMethodName(name string) bool {
	return name == "<init>" || name == "<clinit>" || isMemberName(name)
}

func isClassDescriptor(desc string) bool {
	return len(desc) > 2 && desc[0] == 'L' && desc[len(desc)-1] == ';' &&
		!strings.ContainsAny(desc[1:len(desc)-1], ";[.") &&
		!strings.HasPrefix(desc, "L/") && !strings.HasSuffix(desc, "/;") && !strings.Contains(desc, "//")
}

// IsTypeDescriptor reports whether desc is a primitive, void, class or array
// type descriptor.
func IsTypeDescriptor(desc string) bool {
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	if dims > 255 {
		return false
	}
	rest := desc[dims:]
	switch {
	case len(rest) == 1:
		if rest == "V" {
			return dims == 0
		}
		return strings.Contains("ZBSCIJFD", rest)
	default:
		return isClassDescriptor(rest)
	}
}

// DescriptorFromInternal converts an internal name ("a/b/C") or an array
// descriptor ("[I") to a type descriptor.
func DescriptorFromInternal(name string) string {
	if strings.HasPrefix(name, "[") {
		return name
	}
	return "L" + name + ";"
}

// InternalFromDescriptor is the inverse of DescriptorFromInternal.
func InternalFromDescriptor(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// SourceName converts a class descriptor to a dotted binary name.
func SourceName(desc string) string {
	return strings.ReplaceAll(InternalFromDescriptor(desc), "/", ".")
}
