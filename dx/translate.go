package dx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dhamidi/dexpack/classfile"
	"github.com/dhamidi/dexpack/dex"
)

// TranslateOptions configure how one class entry is translated. A writer
// keeps the last options it was given until new ones are supplied.
type TranslateOptions struct {
	// StrictNameCheck requires the entry name to end with the class's
	// internal name, e.g. "out/com/a/B.class" for com/a/B.
	StrictNameCheck bool

	// StripDebugInfo drops the SourceFile attribute.
	StripDebugInfo bool

	// SkipSynthetic drops compiler generated fields and methods.
	SkipSynthetic bool
}

func DefaultTranslateOptions() *TranslateOptions {
	return &TranslateOptions{StrictNameCheck: true}
}

// Translator turns a decoded class into a class definition for file. It must
// not add the result to file; the caller does.
type Translator interface {
	Translate(cf *classfile.ClassFile, data []byte, opts *TranslateOptions, dexOpts dex.Options, file *dex.File) (*dex.ClassDefItem, error)
}

type TranslatorFunc func(cf *classfile.ClassFile, data []byte, opts *TranslateOptions, dexOpts dex.Options, file *dex.File) (*dex.ClassDefItem, error)

func (f TranslatorFunc) Translate(cf *classfile.ClassFile, data []byte, opts *TranslateOptions, dexOpts dex.Options, file *dex.File) (*dex.ClassDefItem, error) {
	return f(cf, data, opts, dexOpts, file)
}

// Minimum API level for non-abstract interface methods.
const minSdkInterfaceMethods = 24

var (
	ErrModuleInfo           = errors.New("module-info classes are not supported")
	ErrInterfaceMethodLevel = errors.New("default and static interface methods need --min-sdk 24 or later")
)

const classAccessMask = classfile.AccPublic | classfile.AccFinal | classfile.AccInterface |
	classfile.AccAbstract | classfile.AccSynthetic | classfile.AccAnnotation | classfile.AccEnum

// DeclarationTranslator translates class, field and method declarations.
// Method bodies are not translated.
type DeclarationTranslator struct{}

func (DeclarationTranslator) Translate(cf *classfile.ClassFile, data []byte, opts *TranslateOptions, dexOpts dex.Options, file *dex.File) (*dex.ClassDefItem, error) {
	if opts == nil {
		opts = DefaultTranslateOptions()
	}
	name := cf.ClassName()
	if cf.IsModule() || name == "module-info" || strings.HasSuffix(name, "/module-info") {
		return nil, ErrModuleInfo
	}

	item := &dex.ClassDefItem{
		Descriptor:  dex.DescriptorFromInternal(name),
		AccessFlags: uint32(cf.AccessFlags & classAccessMask),
	}
	if file != nil && file.Has(item.Descriptor) {
		return nil, fmt.Errorf("%w: %s", dex.ErrDuplicateClass, classfile.InternalToSourceName(name))
	}
	if super := cf.SuperClassName(); super != "" {
		item.Superclass = dex.DescriptorFromInternal(super)
	}
	for _, iface := range cf.InterfaceNames() {
		item.Interfaces = append(item.Interfaces, dex.DescriptorFromInternal(iface))
	}
	if !opts.StripDebugInfo {
		item.SourceFile = cf.SourceFile()
	}

	for i := range cf.Fields {
		f := &cf.Fields[i]
		if opts.SkipSynthetic && f.IsSynthetic() {
			continue
		}
		field := dex.EncodedField{
			Name:        f.Name(cf.ConstantPool),
			Type:        f.Descriptor(cf.ConstantPool),
			AccessFlags: uint32(f.AccessFlags),
		}
		if f.IsStatic() {
			item.StaticFields = append(item.StaticFields, field)
		} else {
			item.InstanceFields = append(item.InstanceFields, field)
		}
	}

	for i := range cf.Methods {
		m := &cf.Methods[i]
		if opts.SkipSynthetic && m.IsSynthetic() {
			continue
		}
		method, direct, err := translateMethod(cf, m, dexOpts)
		if err != nil {
			return nil, err
		}
		if direct {
			item.DirectMethods = append(item.DirectMethods, method)
		} else {
			item.VirtualMethods = append(item.VirtualMethods, method)
		}
	}
	return item, nil
}

func translateMethod(cf *classfile.ClassFile, m *classfile.MethodInfo, dexOpts dex.Options) (dex.EncodedMethod, bool, error) {
	cp := cf.ConstantPool
	name := m.Name(cp)
	desc := m.ParsedDescriptor(cp)
	if desc == nil {
		return dex.EncodedMethod{}, false, fmt.Errorf("method %s: malformed descriptor %q", name, m.Descriptor(cp))
	}

	access := uint32(m.AccessFlags)
	constructor := m.IsConstructor(cp) || m.IsStaticInitializer(cp)
	if constructor {
		access |= dex.AccConstructor
	}
	if m.IsSynchronized() {
		access |= dex.AccDeclaredSynchronized
		if !m.IsNative() {
			access &^= dex.AccSynchronized
		}
	}

	if cf.AccessFlags.IsInterface() && !m.IsAbstract() && !m.IsStaticInitializer(cp) &&
		dexOpts.MinSdkVersion < minSdkInterfaceMethods {
		return dex.EncodedMethod{}, false, fmt.Errorf("%w: %s.%s", ErrInterfaceMethodLevel, classfile.InternalToSourceName(cf.ClassName()), name)
	}

	proto := dex.Proto{Return: desc.ReturnDescriptor()}
	for _, p := range desc.Parameters {
		proto.Params = append(proto.Params, p.Descriptor)
	}
	direct := m.IsStatic() || m.IsPrivate() || constructor
	return dex.EncodedMethod{Name: name, Proto: proto, AccessFlags: access}, direct, nil
}

// nameMatches reports whether the entry name, without its suffix, ends with
// the internal class name at a path boundary.
func nameMatches(filename, className string) bool {
	path := strings.TrimSuffix(filename, ClassSuffix)
	return path == className || strings.HasSuffix(path, "/"+className)
}
