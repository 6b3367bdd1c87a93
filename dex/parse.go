package dex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/adler32"
)

var (
	ErrBadMagic    = errors.New("dex: bad magic")
	ErrBadChecksum = errors.New("dex: checksum mismatch")
	ErrMalformed   = errors.New("dex: malformed file")
)

// Dex is a decoded dex file.
type Dex struct {
	// Version is the three digit format version from the magic, e.g. "035".
	Version string
	Classes []*ClassDefItem
	Strings []string
	Types   []string
}

// Class returns the class with the given descriptor, or nil.
func (d *Dex) Class(descriptor string) *ClassDefItem {
	for _, c := range d.Classes {
		if c.Descriptor == descriptor {
			return c
		}
	}
	return nil
}

type section struct {
	size uint32
	off  uint32
}

type dexReader struct {
	data []byte
	le   binary.ByteOrder

	strings []string
	types   []string
	protos  []Proto
	fields  []memberRef
	methods []memberRef
}

type memberRef struct {
	class string
	name  string
	typ   string
	proto Proto
}

// Parse decodes a dex file image. The checksum is verified; the signature is
// not.
func Parse(data []byte) (*Dex, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(data))
	}
	if !bytes.HasPrefix(data, []byte("dex\n")) || data[7] != 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, data[:8])
	}
	for _, c := range data[4:7] {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: %q", ErrBadMagic, data[:8])
		}
	}

	r := &dexReader{data: data, le: binary.LittleEndian}
	if r.u32(40) != EndianConstant {
		return nil, fmt.Errorf("%w: unsupported endian tag 0x%08x", ErrMalformed, r.u32(40))
	}
	if size := r.u32(32); int64(size) != int64(len(data)) {
		return nil, fmt.Errorf("%w: header file size %d, have %d bytes", ErrMalformed, size, len(data))
	}
	if want, got := r.u32(8), adler32.Checksum(data[12:]); want != got {
		return nil, fmt.Errorf("%w: header 0x%08x, computed 0x%08x", ErrBadChecksum, want, got)
	}

	d := &Dex{Version: string(data[4:7])}
	steps := []struct {
		name string
		fn   func(section) error
		at   int
	}{
		{"string_ids", r.readStrings, 56},
		{"type_ids", r.readTypes, 64},
		{"proto_ids", r.readProtos, 72},
		{"field_ids", r.readFields, 80},
		{"method_ids", r.readMethods, 88},
	}
	for _, step := range steps {
		if err := step.fn(r.section(step.at)); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", step.name, err)
		}
	}
	classes, err := r.readClassDefs(r.section(96))
	if err != nil {
		return nil, fmt.Errorf("failed to read class_defs: %w", err)
	}

	d.Classes = classes
	d.Strings = r.strings
	d.Types = r.types
	return d, nil
}

func (r *dexReader) u32(off uint32) uint32 {
	return r.le.Uint32(r.data[off:])
}

func (r *dexReader) section(at int) section {
	return section{size: r.u32(uint32(at)), off: r.u32(uint32(at + 4))}
}

// check verifies that count items of itemSize bytes fit at off.
func (r *dexReader) check(off uint32, count uint32, itemSize uint32) error {
	end := uint64(off) + uint64(count)*uint64(itemSize)
	if end > uint64(len(r.data)) {
		return fmt.Errorf("%w: %d items at 0x%x run past end of file", ErrMalformed, count, off)
	}
	return nil
}

func (r *dexReader) readStrings(s section) error {
	if err := r.check(s.off, s.size, 4); err != nil {
		return err
	}
	r.strings = make([]string, s.size)
	for i := range r.strings {
		dataOff := r.u32(s.off + uint32(4*i))
		if int(dataOff) >= len(r.data) {
			return fmt.Errorf("%w: string %d data offset 0x%x", ErrMalformed, i, dataOff)
		}
		_, n, err := readUleb128(r.data[dataOff:])
		if err != nil {
			return err
		}
		str, _, err := decodeMutf8(r.data[int(dataOff)+n:])
		if err != nil {
			return fmt.Errorf("string %d: %w", i, err)
		}
		r.strings[i] = str
	}
	return nil
}

func (r *dexReader) stringAt(idx uint32) (string, error) {
	if int64(idx) >= int64(len(r.strings)) {
		return "", fmt.Errorf("%w: string index %d out of range", ErrMalformed, idx)
	}
	return r.strings[idx], nil
}

func (r *dexReader) typeAt(idx uint32) (string, error) {
	if int64(idx) >= int64(len(r.types)) {
		return "", fmt.Errorf("%w: type index %d out of range", ErrMalformed, idx)
	}
	return r.types[idx], nil
}

func (r *dexReader) readTypes(s section) error {
	if err := r.check(s.off, s.size, 4); err != nil {
		return err
	}
	r.types = make([]string, s.size)
	for i := range r.types {
		str, err := r.stringAt(r.u32(s.off + uint32(4*i)))
		if err != nil {
			return err
		}
		r.types[i] = str
	}
	return nil
}

func (r *dexReader) readTypeList(off uint32) ([]string, error) {
	if off == 0 {
		return nil, nil
	}
	if err := r.check(off, 1, 4); err != nil {
		return nil, err
	}
	count := r.u32(off)
	if err := r.check(off+4, count, 2); err != nil {
		return nil, err
	}
	list := make([]string, count)
	for i := range list {
		t, err := r.typeAt(uint32(r.le.Uint16(r.data[off+4+uint32(2*i):])))
		if err != nil {
			return nil, err
		}
		list[i] = t
	}
	return list, nil
}

func (r *dexReader) readProtos(s section) error {
	if err := r.check(s.off, s.size, 12); err != nil {
		return err
	}
	r.protos = make([]Proto, s.size)
	for i := range r.protos {
		at := s.off + uint32(12*i)
		ret, err := r.typeAt(r.u32(at + 4))
		if err != nil {
			return err
		}
		params, err := r.readTypeList(r.u32(at + 8))
		if err != nil {
			return err
		}
		r.protos[i] = Proto{Return: ret, Params: params}
	}
	return nil
}

func (r *dexReader) readMemberIDs(s section, method bool) ([]memberRef, error) {
	if err := r.check(s.off, s.size, 8); err != nil {
		return nil, err
	}
	refs := make([]memberRef, s.size)
	for i := range refs {
		at := s.off + uint32(8*i)
		class, err := r.typeAt(uint32(r.le.Uint16(r.data[at:])))
		if err != nil {
			return nil, err
		}
		name, err := r.stringAt(r.u32(at + 4))
		if err != nil {
			return nil, err
		}
		ref := memberRef{class: class, name: name}
		second := uint32(r.le.Uint16(r.data[at+2:]))
		if method {
			if int64(second) >= int64(len(r.protos)) {
				return nil, fmt.Errorf("%w: proto index %d out of range", ErrMalformed, second)
			}
			ref.proto = r.protos[second]
		} else if ref.typ, err = r.typeAt(second); err != nil {
			return nil, err
		}
		refs[i] = ref
	}
	return refs, nil
}

func (r *dexReader) readFields(s section) (err error) {
	r.fields, err = r.readMemberIDs(s, false)
	return err
}

func (r *dexReader) readMethods(s section) (err error) {
	r.methods, err = r.readMemberIDs(s, true)
	return err
}

func (r *dexReader) readClassDefs(s section) ([]*ClassDefItem, error) {
	if err := r.check(s.off, s.size, 32); err != nil {
		return nil, err
	}
	classes := make([]*ClassDefItem, s.size)
	for i := range classes {
		at := s.off + uint32(32*i)
		desc, err := r.typeAt(r.u32(at))
		if err != nil {
			return nil, err
		}
		c := &ClassDefItem{Descriptor: desc, AccessFlags: r.u32(at + 4)}
		if idx := r.u32(at + 8); idx != NoIndex {
			if c.Superclass, err = r.typeAt(idx); err != nil {
				return nil, err
			}
		}
		if c.Interfaces, err = r.readTypeList(r.u32(at + 12)); err != nil {
			return nil, err
		}
		if idx := r.u32(at + 16); idx != NoIndex {
			if c.SourceFile, err = r.stringAt(idx); err != nil {
				return nil, err
			}
		}
		if off := r.u32(at + 24); off != 0 {
			if err := r.readClassData(off, c); err != nil {
				return nil, fmt.Errorf("class data of %s: %w", desc, err)
			}
		}
		classes[i] = c
	}
	return classes, nil
}

func (r *dexReader) readClassData(off uint32, c *ClassDefItem) error {
	if int64(off) >= int64(len(r.data)) {
		return fmt.Errorf("%w: offset 0x%x", ErrMalformed, off)
	}
	b := r.data[off:]
	next := func() (uint32, error) {
		v, n, err := readUleb128(b)
		if err != nil {
			return 0, err
		}
		b = b[n:]
		return v, nil
	}

	var counts [4]uint32
	for i := range counts {
		v, err := next()
		if err != nil {
			return err
		}
		counts[i] = v
	}

	readFields := func(count uint32) ([]EncodedField, error) {
		var fields []EncodedField
		idx := uint32(0)
		for i := uint32(0); i < count; i++ {
			diff, err := next()
			if err != nil {
				return nil, err
			}
			access, err := next()
			if err != nil {
				return nil, err
			}
			idx += diff
			if int64(idx) >= int64(len(r.fields)) {
				return nil, fmt.Errorf("%w: field index %d out of range", ErrMalformed, idx)
			}
			f := r.fields[idx]
			fields = append(fields, EncodedField{Name: f.name, Type: f.typ, AccessFlags: access})
		}
		return fields, nil
	}
	readMethods := func(count uint32) ([]EncodedMethod, error) {
		var methods []EncodedMethod
		idx := uint32(0)
		for i := uint32(0); i < count; i++ {
			diff, err := next()
			if err != nil {
				return nil, err
			}
			access, err := next()
			if err != nil {
				return nil, err
			}
			if _, err := next(); err != nil { // code_off
				return nil, err
			}
			idx += diff
			if int64(idx) >= int64(len(r.methods)) {
				return nil, fmt.Errorf("%w: method index %d out of range", ErrMalformed, idx)
			}
			m := r.methods[idx]
			methods = append(methods, EncodedMethod{Name: m.name, Proto: m.proto, AccessFlags: access})
		}
		return methods, nil
	}

	var err error
	if c.StaticFields, err = readFields(counts[0]); err != nil {
		return err
	}
	if c.InstanceFields, err = readFields(counts[1]); err != nil {
		return err
	}
	if c.DirectMethods, err = readMethods(counts[2]); err != nil {
		return err
	}
	c.VirtualMethods, err = readMethods(counts[3])
	return err
}
