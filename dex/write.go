package dex

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"sort"
	"strconv"
	"strings"
)

const (
	HeaderSize     = 0x70
	EndianConstant = 0x12345678
	NoIndex        = 0xffffffff
)

// Map item type codes.
const (
	TypeHeaderItem     uint16 = 0x0000
	TypeStringIDItem   uint16 = 0x0001
	TypeTypeIDItem     uint16 = 0x0002
	TypeProtoIDItem    uint16 = 0x0003
	TypeFieldIDItem    uint16 = 0x0004
	TypeMethodIDItem   uint16 = 0x0005
	TypeClassDefItem   uint16 = 0x0006
	TypeMapList        uint16 = 0x1000
	TypeTypeList       uint16 = 0x1001
	TypeClassDataItem  uint16 = 0x2000
	TypeStringDataItem uint16 = 0x2002
)

type protoID struct {
	proto  Proto
	shorty uint32
	ret    uint32
	params []uint32
}

type memberID struct {
	class uint32
	typ   uint32 // type index for fields, proto index for methods
	name  uint32
}

// layout holds the index tables of a file about to be encoded.
type layout struct {
	opts    Options
	classes []*ClassDefItem

	strings   []string
	stringIdx map[string]uint32
	types     []string
	typeIdx   map[string]uint32
	protos    []protoID
	protoIdx  map[string]uint32
	fields    []memberID
	fieldIdx  map[string]uint32
	methods   []memberID
	methodIdx map[string]uint32
}

func fieldKey(class string, f EncodedField) string {
	return class + "->" + f.Name + ":" + f.Type
}

func methodKey(class string, m EncodedMethod) string {
	return class + "->" + m.Name + m.Proto.String()
}

func newLayout(opts Options, classes map[string]*ClassDefItem) *layout {
	l := &layout{
		opts:      opts,
		classes:   classOrder(classes),
		stringIdx: map[string]uint32{},
		typeIdx:   map[string]uint32{},
		protoIdx:  map[string]uint32{},
		fieldIdx:  map[string]uint32{},
		methodIdx: map[string]uint32{},
	}

	typeSet := map[string]bool{}
	stringSet := map[string]bool{}
	protoSet := map[string]Proto{}
	addType := func(desc string) {
		typeSet[desc] = true
		stringSet[desc] = true
	}
	for _, c := range l.classes {
		addType(c.Descriptor)
		if c.Superclass != "" {
			addType(c.Superclass)
		}
		for _, iface := range c.Interfaces {
			addType(iface)
		}
		if c.SourceFile != "" {
			stringSet[c.SourceFile] = true
		}
		for _, f := range c.Fields() {
			stringSet[f.Name] = true
			addType(f.Type)
		}
		for _, m := range c.Methods() {
			stringSet[m.Name] = true
			stringSet[m.Proto.Shorty()] = true
			addType(m.Proto.Return)
			for _, p := range m.Proto.Params {
				addType(p)
			}
			protoSet[m.Proto.String()] = m.Proto
		}
	}

	l.strings = sortedKeys(stringSet, compareUTF16)
	for i, s := range l.strings {
		l.stringIdx[s] = uint32(i)
	}
	l.types = sortedKeys(typeSet, compareUTF16)
	for i, t := range l.types {
		l.typeIdx[t] = uint32(i)
	}

	for _, p := range protoSet {
		id := protoID{
			proto:  p,
			shorty: l.stringIdx[p.Shorty()],
			ret:    l.typeIdx[p.Return],
			params: make([]uint32, len(p.Params)),
		}
		for i, param := range p.Params {
			id.params[i] = l.typeIdx[param]
		}
		l.protos = append(l.protos, id)
	}
	sort.Slice(l.protos, func(i, j int) bool {
		a, b := l.protos[i], l.protos[j]
		if a.ret != b.ret {
			return a.ret < b.ret
		}
		return lessIndexList(a.params, b.params)
	})
	for i, p := range l.protos {
		l.protoIdx[p.proto.String()] = uint32(i)
	}

	fieldKeys := map[string]memberID{}
	methodKeys := map[string]memberID{}
	for _, c := range l.classes {
		class := l.typeIdx[c.Descriptor]
		for _, f := range c.Fields() {
			fieldKeys[fieldKey(c.Descriptor, f)] = memberID{class: class, typ: l.typeIdx[f.Type], name: l.stringIdx[f.Name]}
		}
		for _, m := range c.Methods() {
			methodKeys[methodKey(c.Descriptor, m)] = memberID{class: class, typ: l.protoIdx[m.Proto.String()], name: l.stringIdx[m.Name]}
		}
	}
	l.fields, l.fieldIdx = sortMembers(fieldKeys)
	l.methods, l.methodIdx = sortMembers(methodKeys)
	return l
}

func sortedKeys(set map[string]bool, cmp func(a, b string) int) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return cmp(keys[i], keys[j]) < 0 })
	return keys
}

func lessIndexList(a, b []uint32) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// sortMembers orders field or method ids by defining class, then name, then
// type or proto, and returns the index of every key.
func sortMembers(keys map[string]memberID) ([]memberID, map[string]uint32) {
	type keyed struct {
		key string
		id  memberID
	}
	all := make([]keyed, 0, len(keys))
	for k, id := range keys {
		all = append(all, keyed{k, id})
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].id, all[j].id
		if a.class != b.class {
			return a.class < b.class
		}
		if a.name != b.name {
			return a.name < b.name
		}
		return a.typ < b.typ
	})
	ids := make([]memberID, len(all))
	index := make(map[string]uint32, len(all))
	for i, k := range all {
		ids[i] = k.id
		index[k.key] = uint32(i)
	}
	return ids, index
}

// classOrder sorts classes so that a superclass or interface defined in the
// same file precedes every class that extends or implements it.
func classOrder(classes map[string]*ClassDefItem) []*ClassDefItem {
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(classes))
	order := make([]*ClassDefItem, 0, len(classes))

	var visit func(desc string)
	visit = func(desc string) {
		c, ok := classes[desc]
		if !ok || state[desc] != 0 {
			return
		}
		state[desc] = visiting
		if c.Superclass != "" {
			visit(c.Superclass)
		}
		ifaces := append([]string(nil), c.Interfaces...)
		sort.Strings(ifaces)
		for _, iface := range ifaces {
			visit(iface)
		}
		state[desc] = done
		order = append(order, c)
	}
	for _, name := range names {
		visit(name)
	}
	return order
}

type mapItem struct {
	typ    uint16
	size   uint32
	offset uint32
}

func (l *layout) checkLimits() error {
	for _, t := range []struct {
		name string
		n    int
	}{
		{"type", len(l.types)},
		{"proto", len(l.protos)},
		{"field", len(l.fields)},
		{"method", len(l.methods)},
	} {
		if err := checkTableSize(t.name, t.n); err != nil {
			return err
		}
	}
	return nil
}

func (l *layout) encode() ([]byte, error) {
	if err := l.checkLimits(); err != nil {
		return nil, err
	}
	off := uint32(HeaderSize)
	section := func(count, size int) uint32 {
		if count == 0 {
			return 0
		}
		start := off
		off += uint32(count * size)
		return start
	}
	stringIDsOff := section(len(l.strings), 4)
	typeIDsOff := section(len(l.types), 4)
	protoIDsOff := section(len(l.protos), 12)
	fieldIDsOff := section(len(l.fields), 8)
	methodIDsOff := section(len(l.methods), 8)
	classDefsOff := section(len(l.classes), 32)
	dataOff := off

	var items []mapItem
	addItem := func(typ uint16, size int, offset uint32) {
		if size > 0 {
			items = append(items, mapItem{typ, uint32(size), offset})
		}
	}
	addItem(TypeHeaderItem, 1, 0)
	addItem(TypeStringIDItem, len(l.strings), stringIDsOff)
	addItem(TypeTypeIDItem, len(l.types), typeIDsOff)
	addItem(TypeProtoIDItem, len(l.protos), protoIDsOff)
	addItem(TypeFieldIDItem, len(l.fields), fieldIDsOff)
	addItem(TypeMethodIDItem, len(l.methods), methodIDsOff)
	addItem(TypeClassDefItem, len(l.classes), classDefsOff)

	var data []byte
	pos := func() uint32 { return dataOff + uint32(len(data)) }
	align4 := func() {
		for len(data)%4 != 0 {
			data = append(data, 0)
		}
	}

	// type_list items, shared between protos and interface lists.
	typeLists := map[string]uint32{}
	typeListCount := 0
	var typeListStart uint32
	typeList := func(idx []uint32) uint32 {
		if len(idx) == 0 {
			return 0
		}
		key := indexKey(idx)
		if off, ok := typeLists[key]; ok {
			return off
		}
		align4()
		if typeListCount == 0 {
			typeListStart = pos()
		}
		typeListCount++
		off := pos()
		data = binary.LittleEndian.AppendUint32(data, uint32(len(idx)))
		for _, i := range idx {
			data = binary.LittleEndian.AppendUint16(data, uint16(i))
		}
		typeLists[key] = off
		return off
	}
	protoParamsOff := make([]uint32, len(l.protos))
	for i, p := range l.protos {
		protoParamsOff[i] = typeList(p.params)
	}
	interfacesOff := make([]uint32, len(l.classes))
	for i, c := range l.classes {
		idx := make([]uint32, len(c.Interfaces))
		for j, iface := range c.Interfaces {
			idx[j] = l.typeIdx[iface]
		}
		interfacesOff[i] = typeList(idx)
	}
	addItem(TypeTypeList, typeListCount, typeListStart)

	stringDataOff := make([]uint32, len(l.strings))
	stringDataStart := pos()
	for i, s := range l.strings {
		stringDataOff[i] = pos()
		data = appendUleb128(data, uint32(utf16Len(s)))
		data = appendMutf8(data, s)
		data = append(data, 0)
	}
	addItem(TypeStringDataItem, len(l.strings), stringDataStart)

	classDataOff := make([]uint32, len(l.classes))
	classDataCount := 0
	var classDataStart uint32
	for i, c := range l.classes {
		if len(c.StaticFields)+len(c.InstanceFields)+len(c.DirectMethods)+len(c.VirtualMethods) == 0 {
			continue
		}
		if classDataCount == 0 {
			classDataStart = pos()
		}
		classDataCount++
		classDataOff[i] = pos()
		data = l.appendClassData(data, c)
	}
	addItem(TypeClassDataItem, classDataCount, classDataStart)

	align4()
	mapOff := pos()
	addItem(TypeMapList, 1, mapOff)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(items)))
	for _, item := range items {
		data = binary.LittleEndian.AppendUint16(data, item.typ)
		data = binary.LittleEndian.AppendUint16(data, 0)
		data = binary.LittleEndian.AppendUint32(data, item.size)
		data = binary.LittleEndian.AppendUint32(data, item.offset)
	}

	if uint64(dataOff)+uint64(len(data)) > 0xffffffff {
		return nil, fmt.Errorf("dex: file too large")
	}
	out := make([]byte, dataOff, int(dataOff)+len(data))

	le := binary.LittleEndian
	magic := l.opts.Magic()
	copy(out, magic[:])
	le.PutUint32(out[32:], uint32(len(out)+len(data)))
	le.PutUint32(out[36:], HeaderSize)
	le.PutUint32(out[40:], EndianConstant)
	le.PutUint32(out[52:], mapOff)
	putSection := func(at int, count int, offset uint32) {
		le.PutUint32(out[at:], uint32(count))
		le.PutUint32(out[at+4:], offset)
	}
	putSection(56, len(l.strings), stringIDsOff)
	putSection(64, len(l.types), typeIDsOff)
	putSection(72, len(l.protos), protoIDsOff)
	putSection(80, len(l.fields), fieldIDsOff)
	putSection(88, len(l.methods), methodIDsOff)
	putSection(96, len(l.classes), classDefsOff)
	putSection(104, len(data), dataOff)

	for i := range l.strings {
		le.PutUint32(out[stringIDsOff+uint32(4*i):], stringDataOff[i])
	}
	for i, t := range l.types {
		le.PutUint32(out[typeIDsOff+uint32(4*i):], l.stringIdx[t])
	}
	for i, p := range l.protos {
		at := protoIDsOff + uint32(12*i)
		le.PutUint32(out[at:], p.shorty)
		le.PutUint32(out[at+4:], p.ret)
		le.PutUint32(out[at+8:], protoParamsOff[i])
	}
	putMember := func(at uint32, m memberID) {
		le.PutUint16(out[at:], uint16(m.class))
		le.PutUint16(out[at+2:], uint16(m.typ))
		le.PutUint32(out[at+4:], m.name)
	}
	for i, f := range l.fields {
		putMember(fieldIDsOff+uint32(8*i), f)
	}
	for i, m := range l.methods {
		putMember(methodIDsOff+uint32(8*i), m)
	}
	for i, c := range l.classes {
		at := classDefsOff + uint32(32*i)
		superIdx := uint32(NoIndex)
		if c.Superclass != "" {
			superIdx = l.typeIdx[c.Superclass]
		}
		sourceIdx := uint32(NoIndex)
		if c.SourceFile != "" {
			sourceIdx = l.stringIdx[c.SourceFile]
		}
		le.PutUint32(out[at:], l.typeIdx[c.Descriptor])
		le.PutUint32(out[at+4:], c.AccessFlags)
		le.PutUint32(out[at+8:], superIdx)
		le.PutUint32(out[at+12:], interfacesOff[i])
		le.PutUint32(out[at+16:], sourceIdx)
		le.PutUint32(out[at+20:], 0)
		le.PutUint32(out[at+24:], classDataOff[i])
		le.PutUint32(out[at+28:], 0)
	}

	out = append(out, data...)
	sum := sha1.Sum(out[32:])
	copy(out[12:32], sum[:])
	le.PutUint32(out[8:], adler32.Checksum(out[12:]))
	return out, nil
}

func indexKey(idx []uint32) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ",")
}

func (l *layout) appendClassData(b []byte, c *ClassDefItem) []byte {
	b = appendUleb128(b, uint32(len(c.StaticFields)))
	b = appendUleb128(b, uint32(len(c.InstanceFields)))
	b = appendUleb128(b, uint32(len(c.DirectMethods)))
	b = appendUleb128(b, uint32(len(c.VirtualMethods)))

	b = l.appendFields(b, c.Descriptor, c.StaticFields)
	b = l.appendFields(b, c.Descriptor, c.InstanceFields)
	b = l.appendMethods(b, c.Descriptor, c.DirectMethods)
	b = l.appendMethods(b, c.Descriptor, c.VirtualMethods)
	return b
}

type encodedMember struct {
	idx    uint32
	access uint32
}

func appendEncodedMembers(b []byte, members []encodedMember, withCode bool) []byte {
	sort.Slice(members, func(i, j int) bool { return members[i].idx < members[j].idx })
	prev := uint32(0)
	for _, m := range members {
		b = appendUleb128(b, m.idx-prev)
		b = appendUleb128(b, m.access)
		if withCode {
			b = appendUleb128(b, 0)
		}
		prev = m.idx
	}
	return b
}

func (l *layout) appendFields(b []byte, class string, fields []EncodedField) []byte {
	members := make([]encodedMember, len(fields))
	for i, f := range fields {
		members[i] = encodedMember{idx: l.fieldIdx[fieldKey(class, f)], access: f.AccessFlags}
	}
	return appendEncodedMembers(b, members, false)
}

func (l *layout) appendMethods(b []byte, class string, methods []EncodedMethod) []byte {
	members := make([]encodedMember, len(methods))
	for i, m := range methods {
		members[i] = encodedMember{idx: l.methodIdx[methodKey(class, m)], access: m.AccessFlags}
	}
	return appendEncodedMembers(b, members, true)
}
