package dx_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhamidi/dexpack/classfile"
	"github.com/dhamidi/dexpack/classfile/classfiletest"
	"github.com/dhamidi/dexpack/dex"
	"github.com/dhamidi/dexpack/dx"
)

func writeClass(t *testing.T, w *dx.Writer, filename string, data []byte) {
	t.Helper()
	require.NoError(t, w.PutNextClass(filename))
	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, w.CloseClass())
}

// A single valid entry ends up as the only class in the flushed file.
func TestWriterSingleClass(t *testing.T) {
	f, reports := newTestFactory()
	w := f.NewWriter()

	writeClass(t, w, "Foo.class", classfiletest.Class("Foo"))

	var out bytes.Buffer
	require.NoError(t, w.Flush(&out, false))

	d, err := dex.Parse(out.Bytes())
	require.NoError(t, err)
	require.Len(t, d.Classes, 1)
	assert.Equal(t, "LFoo;", d.Classes[0].Descriptor)
	assert.Equal(t, "Foo", d.Classes[0].Name())
	assert.Equal(t, 1, w.Added())
	assert.Zero(t, reports.Len())
}

// Writing N classes in any order gives the same file with N classes.
func TestWriterRoundTripOrderIndependent(t *testing.T) {
	names := []string{"a/A", "a/B", "b/C", "b/D", "E"}

	build := func(order []string) []byte {
		f, reports := newTestFactory()
		w := f.NewWriter()
		for _, name := range order {
			writeClass(t, w, name+".class", classfiletest.Class(name))
		}
		require.Zero(t, reports.Len())
		return w.Bytes()
	}

	forward := build(names)
	reversed := build([]string{"E", "b/D", "b/C", "a/B", "a/A"})
	assert.Equal(t, forward, reversed)

	r := dx.NewReader()
	require.NoError(t, r.Capture(bytes.NewReader(forward), false))
	d, err := r.Materialize()
	require.NoError(t, err)
	require.Len(t, d.Classes, len(names))
	for _, name := range names {
		assert.NotNil(t, d.Class(dex.DescriptorFromInternal(name)), name)
	}
}

// K malformed entries out of N leave N-K classes and K reports.
func TestWriterPartialFailure(t *testing.T) {
	f, reports := newTestFactory()
	w := f.NewWriter()

	valid := classfiletest.Class("Good")
	entries := []struct {
		name string
		data []byte
	}{
		{"One.class", classfiletest.Class("One")},
		{"Truncated.class", classfiletest.Class("Truncated")[:30]},
		{"Two.class", classfiletest.Class("Two")},
		{"Garbage.class", []byte("not a class file at all")},
		{"Good.class", valid},
	}
	for _, e := range entries {
		writeClass(t, w, e.name, e.data)
	}

	assert.Equal(t, 3, w.Added())
	assert.Equal(t, 2, w.Failed())
	assert.Equal(t, 3, w.File().Len())
	require.Equal(t, 2, reports.Len())

	for _, err := range reports.Errors() {
		var parseErr *dx.ParseError
		require.True(t, errors.As(err, &parseErr), "%v", err)
	}
	var first *dx.ParseError
	require.True(t, errors.As(reports.Errors()[0], &first))
	assert.Equal(t, "Truncated.class", first.Filename)
	assert.ErrorIs(t, first, classfile.ErrTruncated)
	assert.ErrorIs(t, reports.Errors()[1], classfile.ErrBadMagic)
}

func TestWriterReportsToWriter(t *testing.T) {
	var buf bytes.Buffer
	w := dx.NewFactory(dx.WithReporter(dex.WriterReporter(&buf))).NewWriter()
	writeClass(t, w, "Bad.class", []byte{0xCA, 0xFE})
	assert.True(t, strings.HasPrefix(buf.String(), "Error processing: parse error in Bad.class"), buf.String())
}

func TestWriterLifecycle(t *testing.T) {
	f, _ := newTestFactory()
	data := classfiletest.Class("Foo")

	t.Run("write while idle", func(t *testing.T) {
		w := f.NewWriter()
		_, err := w.Write(data)
		assert.ErrorIs(t, err, dx.ErrLifecycle)
		_, err = w.Write(nil)
		assert.ErrorIs(t, err, dx.ErrLifecycle)
		assert.Equal(t, dx.StateIdle, w.State())
		assert.Zero(t, w.File().Len())
	})

	t.Run("close while idle", func(t *testing.T) {
		w := f.NewWriter()
		assert.ErrorIs(t, w.CloseClass(), dx.ErrLifecycle)
		assert.Equal(t, dx.StateIdle, w.State())
	})

	t.Run("put while open", func(t *testing.T) {
		w := f.NewWriter()
		require.NoError(t, w.PutNextClass("Foo.class"))
		assert.ErrorIs(t, w.PutNextClass("Bar.class"), dx.ErrLifecycle)
		assert.Equal(t, dx.StateEntryOpen, w.State())

		// The original entry is still the open one.
		_, err := w.Write(data)
		require.NoError(t, err)
		assert.Equal(t, 1, w.Added())
		assert.True(t, w.File().Has("LFoo;"))
	})

	t.Run("second write", func(t *testing.T) {
		w := f.NewWriter()
		require.NoError(t, w.PutNextClass("Foo.class"))
		_, err := w.Write(data)
		require.NoError(t, err)
		_, err = w.Write(data)
		assert.ErrorIs(t, err, dx.ErrLifecycle)
		assert.Equal(t, dx.StateEntryOpen, w.State())
		assert.Equal(t, 1, w.File().Len())
	})

	t.Run("empty write is a no-op", func(t *testing.T) {
		w := f.NewWriter()
		require.NoError(t, w.PutNextClass("Foo.class"))
		n, err := w.Write([]byte{})
		require.NoError(t, err)
		assert.Zero(t, n)
		_, err = w.Write(data)
		require.NoError(t, err)
		assert.Equal(t, 1, w.Added())
	})

	t.Run("write all while open", func(t *testing.T) {
		w := f.NewWriter()
		require.NoError(t, w.PutNextClass("Foo.class"))
		assert.ErrorIs(t, w.WriteAll(dx.DirArchive(nil)), dx.ErrLifecycle)
	})

	t.Run("bad filenames", func(t *testing.T) {
		w := f.NewWriter()
		assert.ErrorIs(t, w.PutNextClass(""), dx.ErrInvalidArgument)
		assert.ErrorIs(t, w.PutNextClass("Foo.java"), dx.ErrInvalidArgument)
		assert.Equal(t, dx.StateIdle, w.State())
	})

	t.Run("flush keeps state", func(t *testing.T) {
		w := f.NewWriter()
		require.NoError(t, w.PutNextClass("Foo.class"))
		require.NoError(t, w.Flush(&bytes.Buffer{}, false))
		assert.NotEmpty(t, w.Bytes())
		assert.Equal(t, dx.StateEntryOpen, w.State())
	})
}

func TestWriterScrubsEntryBuffer(t *testing.T) {
	var seen []byte
	tr := dx.TranslatorFunc(func(cf *classfile.ClassFile, data []byte, opts *dx.TranslateOptions, dexOpts dex.Options, file *dex.File) (*dex.ClassDefItem, error) {
		seen = data
		return dx.DeclarationTranslator{}.Translate(cf, data, opts, dexOpts, file)
	})
	f, _ := newTestFactory(dx.WithTranslator(tr))
	w := f.NewWriter()

	input := classfiletest.Class("Foo")
	writeClass(t, w, "Foo.class", input)

	require.NotEmpty(t, seen)
	assert.Equal(t, make([]byte, len(seen)), seen, "entry buffer must be zeroed")
	assert.Equal(t, classfiletest.Class("Foo"), input, "caller's bytes must be untouched")
	assert.Equal(t, 1, w.Added())
}

func TestWriterStickyOptions(t *testing.T) {
	f, _ := newTestFactory()
	w := f.NewWriter()
	assert.Nil(t, w.TranslateOptions())

	stripped := &dx.TranslateOptions{StripDebugInfo: true}
	require.NoError(t, w.PutNextClassWithOptions("A.class", stripped))
	_, err := w.Write(classfiletest.Class("A"))
	require.NoError(t, err)
	require.NoError(t, w.CloseClass())

	writeClass(t, w, "B.class", classfiletest.Class("B"))
	assert.Same(t, stripped, w.TranslateOptions())

	d, err := dex.Parse(w.Bytes())
	require.NoError(t, err)
	assert.Empty(t, d.Class("LA;").SourceFile)
	assert.Empty(t, d.Class("LB;").SourceFile)

	w2 := f.NewWriter()
	writeClass(t, w2, "C.class", classfiletest.Class("C"))
	assert.Equal(t, dx.DefaultTranslateOptions(), w2.TranslateOptions())
}

func TestWriterNameCheck(t *testing.T) {
	f, reports := newTestFactory()
	w := f.NewWriter()

	writeClass(t, w, "Bar.class", classfiletest.Class("Foo"))
	require.Equal(t, 1, reports.Len())
	var trErr *dx.TranslationError
	assert.True(t, errors.As(reports.Errors()[0], &trErr))

	writeClass(t, w, "build/classes/com/a/Foo.class", classfiletest.Class("com/a/Foo"))
	assert.Equal(t, 1, w.Added())

	require.NoError(t, w.PutNextClassWithOptions("Bar.class", &dx.TranslateOptions{}))
	_, err := w.Write(classfiletest.Class("Foo"))
	require.NoError(t, err)
	assert.Equal(t, 2, w.Added())
}

func TestWriterDuplicateClass(t *testing.T) {
	f, reports := newTestFactory()
	w := f.NewWriter()

	writeClass(t, w, "Foo.class", classfiletest.Class("Foo"))
	writeClass(t, w, "Foo.class", classfiletest.Class("Foo"))

	assert.Equal(t, 1, w.Added())
	assert.Equal(t, 1, w.Failed())
	require.Equal(t, 1, reports.Len())
	assert.ErrorIs(t, reports.Errors()[0], dex.ErrDuplicateClass)
}

func TestWriterReadFrom(t *testing.T) {
	f, _ := newTestFactory()
	w := f.NewWriter()

	require.NoError(t, w.PutNextClass("Foo.class"))
	src := &closeTracker{Reader: bytes.NewReader(classfiletest.Class("Foo"))}
	require.NoError(t, w.WriteStream(src, true))
	require.NoError(t, w.CloseClass())
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, w.Added())

	require.NoError(t, w.PutNextClass("Bar.class"))
	boom := errors.New("boom")
	_, err := w.ReadFrom(iotest.ErrReader(boom))
	assert.ErrorIs(t, err, boom)

	_, err = w.ReadFrom(nil)
	assert.ErrorIs(t, err, dx.ErrInvalidArgument)
}

// A class that arrives in small chunks of unknown total length reads whole.
func TestWriterReadFromChunked(t *testing.T) {
	f, _ := newTestFactory()
	w := f.NewWriter()

	input := classfiletest.Class("Chunked")
	require.NoError(t, w.PutNextClass("Chunked.class"))
	n, err := w.ReadFrom(iotest.OneByteReader(bytes.NewReader(input)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(input)), n)
	require.NoError(t, w.CloseClass())

	assert.Equal(t, 1, w.Added())
	assert.Equal(t, classfiletest.Class("Chunked"), input)
}

func TestWriterFlush(t *testing.T) {
	f, _ := newTestFactory()
	w := f.NewWriter()
	writeClass(t, w, "Foo.class", classfiletest.Class("Foo"))

	out := &nopWriteCloser{Writer: &bytes.Buffer{}}
	require.NoError(t, w.Flush(out, true))
	assert.True(t, out.closed)

	_, err := w.WriteTo(nil)
	assert.ErrorIs(t, err, dx.ErrInvalidArgument)

	boom := errors.New("disk full")
	err = w.Flush(writerFunc(func([]byte) (int, error) { return 0, boom }), false)
	assert.ErrorIs(t, err, boom)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// A class that would overflow the 16-bit id tables is reported and skipped;
// the rest of the file still flushes.
func TestWriterReferenceOverflow(t *testing.T) {
	widen := dx.TranslatorFunc(func(cf *classfile.ClassFile, data []byte, opts *dx.TranslateOptions, dexOpts dex.Options, file *dex.File) (*dex.ClassDefItem, error) {
		item, err := dx.DeclarationTranslator{}.Translate(cf, data, opts, dexOpts, file)
		if err != nil || cf.ClassName() != "Wide" {
			return item, err
		}
		for i := 0; i < dex.MaxReferences+1; i++ {
			item.InstanceFields = append(item.InstanceFields, dex.EncodedField{
				Name: fmt.Sprintf("f%d", i),
				Type: fmt.Sprintf("Lwide/T%d;", i),
			})
		}
		return item, nil
	})

	f, reports := newTestFactory(dx.WithTranslator(widen))
	w := f.NewWriter()
	writeClass(t, w, "Foo.class", classfiletest.Class("Foo"))
	writeClass(t, w, "Wide.class", classfiletest.Class("Wide"))

	assert.Equal(t, 1, w.Added())
	assert.Equal(t, 1, w.Failed())
	require.Equal(t, 1, reports.Len())
	assert.ErrorIs(t, reports.Errors()[0], dex.ErrTooManyReferences)

	var buf bytes.Buffer
	require.NoError(t, w.Flush(&buf, false))
	d, err := dex.Parse(buf.Bytes())
	require.NoError(t, err)
	assert.NotNil(t, d.Class("LFoo;"))
	assert.Nil(t, d.Class("LWide;"))
}
