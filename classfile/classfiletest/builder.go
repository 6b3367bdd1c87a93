// Package classfiletest assembles small, valid class files for tests.
package classfiletest

import (
	"encoding/binary"
	"strings"
)

// Member describes a field or method.
type Member struct {
	Name       string
	Descriptor string
	Access     uint16
}

// Builder collects the declaration of one class. Zero values pick sensible
// defaults: public class, super java/lang/Object, version 52.0.
type Builder struct {
	Name       string
	Super      string
	NoSuper    bool
	Interfaces []string
	Access     uint16
	Major      uint16
	Minor      uint16
	SourceFile string
	Fields     []Member
	Methods    []Member
}

// Class returns the bytes of "public class <name> extends java.lang.Object"
// with a default constructor and a SourceFile attribute.
func Class(name string) []byte {
	return New(name).Bytes()
}

// New returns a builder for name with a default constructor.
func New(name string) *Builder {
	simple := name[strings.LastIndex(name, "/")+1:]
	return &Builder{
		Name:       name,
		SourceFile: simple + ".java",
		Methods: []Member{
			{Name: "<init>", Descriptor: "()V", Access: 0x0001},
		},
	}
}

func (b *Builder) Field(name, descriptor string, access uint16) *Builder {
	b.Fields = append(b.Fields, Member{Name: name, Descriptor: descriptor, Access: access})
	return b
}

func (b *Builder) Method(name, descriptor string, access uint16) *Builder {
	b.Methods = append(b.Methods, Member{Name: name, Descriptor: descriptor, Access: access})
	return b
}

func (b *Builder) Implements(names ...string) *Builder {
	b.Interfaces = append(b.Interfaces, names...)
	return b
}

type pool struct {
	entries [][]byte
	utf8    map[string]uint16
	classes map[string]uint16
}

func (p *pool) add(entry []byte) uint16 {
	p.entries = append(p.entries, entry)
	return uint16(len(p.entries))
}

func (p *pool) utf(s string) uint16 {
	if idx, ok := p.utf8[s]; ok {
		return idx
	}
	entry := []byte{1}
	entry = binary.BigEndian.AppendUint16(entry, uint16(len(s)))
	entry = append(entry, s...)
	idx := p.add(entry)
	p.utf8[s] = idx
	return idx
}

func (p *pool) class(name string) uint16 {
	if idx, ok := p.classes[name]; ok {
		return idx
	}
	nameIdx := p.utf(name)
	idx := p.add(binary.BigEndian.AppendUint16([]byte{7}, nameIdx))
	p.classes[name] = idx
	return idx
}

// Bytes encodes the class file.
func (b *Builder) Bytes() []byte {
	p := &pool{utf8: map[string]uint16{}, classes: map[string]uint16{}}

	access := b.Access
	if access == 0 {
		access = 0x0021
	}
	major := b.Major
	if major == 0 {
		major = 52
	}
	super := b.Super
	if super == "" {
		super = "java/lang/Object"
	}

	thisIdx := p.class(b.Name)
	var superIdx uint16
	if !b.NoSuper {
		superIdx = p.class(super)
	}
	ifaces := make([]uint16, len(b.Interfaces))
	for i, name := range b.Interfaces {
		ifaces[i] = p.class(name)
	}

	var body []byte
	u2 := func(v uint16) { body = binary.BigEndian.AppendUint16(body, v) }
	u4 := func(v uint32) { body = binary.BigEndian.AppendUint32(body, v) }

	u2(access)
	u2(thisIdx)
	u2(superIdx)
	u2(uint16(len(ifaces)))
	for _, idx := range ifaces {
		u2(idx)
	}

	u2(uint16(len(b.Fields)))
	for _, f := range b.Fields {
		u2(f.Access)
		u2(p.utf(f.Name))
		u2(p.utf(f.Descriptor))
		u2(0)
	}

	u2(uint16(len(b.Methods)))
	for _, m := range b.Methods {
		u2(m.Access)
		u2(p.utf(m.Name))
		u2(p.utf(m.Descriptor))
		if m.Access&(0x0400|0x0100) != 0 {
			u2(0)
			continue
		}
		u2(1)
		u2(p.utf("Code"))
		// max_stack, max_locals, code_length, code, exception table, attributes
		u4(2 + 2 + 4 + 1 + 2 + 2)
		u2(1)
		u2(1)
		u4(1)
		body = append(body, 0xB1)
		u2(0)
		u2(0)
	}

	if b.SourceFile != "" {
		u2(1)
		u2(p.utf("SourceFile"))
		u4(2)
		u2(p.utf(b.SourceFile))
	} else {
		u2(0)
	}

	out := binary.BigEndian.AppendUint32(nil, 0xCAFEBABE)
	out = binary.BigEndian.AppendUint16(out, b.Minor)
	out = binary.BigEndian.AppendUint16(out, major)
	out = binary.BigEndian.AppendUint16(out, uint16(len(p.entries)+1))
	for _, e := range p.entries {
		out = append(out, e...)
	}
	return append(out, body...)
}
