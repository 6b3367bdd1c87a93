package dex

import (
	"errors"
	"fmt"
)

// MaxReferences is the size limit of the type, proto, field and method id
// tables. Their indexes are stored in 16 bits.
const MaxReferences = 1 << 16

var ErrTooManyReferences = errors.New("dex: too many references")

type refSet map[string]struct{}

// refTables tracks the keys every id table would hold.
type refTables struct {
	types   refSet
	protos  refSet
	fields  refSet
	methods refSet
}

func newRefTables() refTables {
	return refTables{types: refSet{}, protos: refSet{}, fields: refSet{}, methods: refSet{}}
}

// itemRefs returns the table keys c contributes.
func itemRefs(c *ClassDefItem) refTables {
	r := newRefTables()
	r.types[c.Descriptor] = struct{}{}
	if c.Superclass != "" {
		r.types[c.Superclass] = struct{}{}
	}
	for _, iface := range c.Interfaces {
		r.types[iface] = struct{}{}
	}
	for _, f := range c.Fields() {
		r.types[f.Type] = struct{}{}
		r.fields[fieldKey(c.Descriptor, f)] = struct{}{}
	}
	for _, m := range c.Methods() {
		r.types[m.Proto.Return] = struct{}{}
		for _, p := range m.Proto.Params {
			r.types[p] = struct{}{}
		}
		r.protos[m.Proto.String()] = struct{}{}
		r.methods[methodKey(c.Descriptor, m)] = struct{}{}
	}
	return r
}

func (t refTables) each(fn func(name string, set refSet)) {
	fn("type", t.types)
	fn("proto", t.protos)
	fn("field", t.fields)
	fn("method", t.methods)
}

// admit reports an error if merging add into t would push any table past
// MaxReferences.
func (t refTables) admit(add refTables) error {
	have := map[string]refSet{}
	t.each(func(name string, set refSet) { have[name] = set })

	var err error
	add.each(func(name string, set refSet) {
		if err != nil {
			return
		}
		n := len(have[name])
		for k := range set {
			if _, ok := have[name][k]; !ok {
				n++
			}
		}
		err = checkTableSize(name, n)
	})
	return err
}

func (t refTables) merge(add refTables) {
	have := map[string]refSet{}
	t.each(func(name string, set refSet) { have[name] = set })
	add.each(func(name string, set refSet) {
		for k := range set {
			have[name][k] = struct{}{}
		}
	})
}

func checkTableSize(name string, n int) error {
	if n > MaxReferences {
		return fmt.Errorf("%w: %d %s references, max is %d", ErrTooManyReferences, n, name, MaxReferences)
	}
	return nil
}
