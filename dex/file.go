// Package dex builds and reads Dalvik executable files.
//
// Only declarations are stored: classes, their fields and the signatures of
// their methods. Every method is written without a code item.
package dex

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
)

var ErrDuplicateClass = errors.New("dex: duplicate class definition")

// File accumulates class definitions and serializes them as one dex file.
// A File is not safe for concurrent use.
type File struct {
	opts    Options
	classes map[string]*ClassDefItem
	refs    refTables
}

func NewFile(opts Options) *File {
	return &File{
		opts:    opts,
		classes: make(map[string]*ClassDefItem),
		refs:    newRefTables(),
	}
}

func (f *File) Options() Options {
	return f.opts
}

// Add validates item and stores it. Adding a second class with the same
// descriptor fails with ErrDuplicateClass; an item that would overflow one of
// the 16-bit id tables fails with ErrTooManyReferences and is not stored.
func (f *File) Add(item *ClassDefItem) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidItem)
	}
	if err := item.Validate(); err != nil {
		return err
	}
	if _, ok := f.classes[item.Descriptor]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateClass, item.Descriptor)
	}
	refs := itemRefs(item)
	if err := f.refs.admit(refs); err != nil {
		return fmt.Errorf("%s: %w", item.Descriptor, err)
	}
	f.refs.merge(refs)
	f.classes[item.Descriptor] = item
	return nil
}

func (f *File) Has(descriptor string) bool {
	_, ok := f.classes[descriptor]
	return ok
}

func (f *File) Len() int {
	return len(f.classes)
}

// Classes returns the stored classes sorted by descriptor.
func (f *File) Classes() []*ClassDefItem {
	items := make([]*ClassDefItem, 0, len(f.classes))
	for _, item := range f.classes {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Descriptor < items[j].Descriptor
	})
	return items
}

// WriteTo serializes the file to w.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	data, err := f.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, bytes.NewReader(data))
	if err != nil {
		return n, fmt.Errorf("failed to write dex file: %w", err)
	}
	return n, nil
}

// Bytes serializes the file. The output depends only on the set of classes,
// not on the order they were added in.
func (f *File) Bytes() ([]byte, error) {
	return newLayout(f.opts, f.classes).encode()
}
