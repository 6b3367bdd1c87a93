package dex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func richClass() *ClassDefItem {
	return &ClassDefItem{
		Descriptor:  "Lcom/example/Widget;",
		AccessFlags: AccPublic | AccFinal,
		Superclass:  "Lcom/example/Base;",
		Interfaces:  []string{"Ljava/lang/Runnable;", "Ljava/io/Serializable;"},
		SourceFile:  "Widget.java",
		StaticFields: []EncodedField{
			{Name: "COUNT", Type: "I", AccessFlags: AccPublic | AccStatic | AccFinal},
			{Name: "INSTANCE", Type: "Lcom/example/Widget;", AccessFlags: AccPrivate | AccStatic},
		},
		InstanceFields: []EncodedField{
			{Name: "name", Type: "Ljava/lang/String;", AccessFlags: AccPrivate},
			{Name: "data", Type: "[B", AccessFlags: AccPrivate},
		},
		DirectMethods: []EncodedMethod{
			{Name: "<init>", Proto: Proto{Return: "V"}, AccessFlags: AccPublic | AccConstructor},
			{Name: "<clinit>", Proto: Proto{Return: "V"}, AccessFlags: AccStatic | AccConstructor},
			{Name: "helper", Proto: Proto{Return: "I", Params: []string{"I", "J"}}, AccessFlags: AccPrivate | AccStatic},
		},
		VirtualMethods: []EncodedMethod{
			{Name: "run", Proto: Proto{Return: "V"}, AccessFlags: AccPublic | AccDeclaredSynchronized},
			{Name: "getName", Proto: Proto{Return: "Ljava/lang/String;"}, AccessFlags: AccPublic},
			{Name: "setName", Proto: Proto{Return: "V", Params: []string{"Ljava/lang/String;"}}, AccessFlags: AccPublic},
		},
	}
}

func TestParseRoundTrip(t *testing.T) {
	f := NewFile(Options{MinSdkVersion: 26})
	require.NoError(t, f.Add(richClass()))
	require.NoError(t, f.Add(&ClassDefItem{
		Descriptor:  "Lcom/example/Base;",
		AccessFlags: AccPublic | AccAbstract,
		Superclass:  "Ljava/lang/Object;",
	}))

	data, err := f.Bytes()
	require.NoError(t, err)

	d, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "038", d.Version)
	require.Len(t, d.Classes, 2)
	assert.Equal(t, "Lcom/example/Base;", d.Classes[0].Descriptor, "superclass is defined first")

	base := d.Class("Lcom/example/Base;")
	require.NotNil(t, base)
	assert.Empty(t, base.SourceFile)
	assert.Empty(t, base.Methods())

	got := d.Class("Lcom/example/Widget;")
	require.NotNil(t, got)
	want := richClass()
	assert.Equal(t, want.AccessFlags, got.AccessFlags)
	assert.Equal(t, want.Superclass, got.Superclass)
	assert.Equal(t, want.Interfaces, got.Interfaces)
	assert.Equal(t, want.SourceFile, got.SourceFile)
	assert.ElementsMatch(t, want.StaticFields, got.StaticFields)
	assert.ElementsMatch(t, want.InstanceFields, got.InstanceFields)
	assert.ElementsMatch(t, want.DirectMethods, got.DirectMethods)
	assert.ElementsMatch(t, want.VirtualMethods, got.VirtualMethods)

	assert.Contains(t, d.Types, "Ljava/lang/Runnable;")
	assert.Contains(t, d.Strings, "IIJ")
	for i := 1; i < len(d.Strings); i++ {
		assert.Negative(t, compareUTF16(d.Strings[i-1], d.Strings[i]))
	}
}

func TestParseEmptyFile(t *testing.T) {
	data, err := NewFile(Options{MinSdkVersion: 13}).Bytes()
	require.NoError(t, err)

	d, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "035", d.Version)
	assert.Empty(t, d.Classes)
}

func TestParseErrors(t *testing.T) {
	f := NewFile(Options{MinSdkVersion: 26})
	require.NoError(t, f.Add(richClass()))
	valid, err := f.Bytes()
	require.NoError(t, err)

	corrupt := func(mutate func(b []byte) []byte) []byte {
		return mutate(append([]byte(nil), valid...))
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", valid[:40], ErrMalformed},
		{"magic", corrupt(func(b []byte) []byte { b[0] = 'D'; return b }), ErrBadMagic},
		{"version", corrupt(func(b []byte) []byte { b[5] = 'x'; return b }), ErrBadMagic},
		{"size", valid[:len(valid)-4], ErrMalformed},
		{"checksum", corrupt(func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }), ErrBadChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUleb128(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 300, 16384, 0xffffffff} {
		b := appendUleb128(nil, v)
		got, n, err := readUleb128(b)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(b), n)
	}
	assert.Equal(t, []byte{0xac, 0x02}, appendUleb128(nil, 300))

	_, _, err := readUleb128([]byte{0x80, 0x80})
	assert.Error(t, err)
}

func TestMutf8(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"abc", []byte("abc")},
		{"\x00", []byte{0xC0, 0x80}},
		{"é", []byte{0xC3, 0xA9}},
		{"\U0001F600", []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}
	for _, tt := range tests {
		b := appendMutf8(nil, tt.in)
		assert.Equal(t, tt.want, b, "%q", tt.in)

		got, n, err := decodeMutf8(append(b, 0))
		require.NoError(t, err)
		assert.Equal(t, tt.in, got)
		assert.Equal(t, len(b)+1, n)
	}
	assert.Equal(t, 2, utf16Len("\U0001F600"))
}

func TestCompareUTF16(t *testing.T) {
	assert.Negative(t, compareUTF16("a", "b"))
	assert.Negative(t, compareUTF16("a", "ab"))
	assert.Zero(t, compareUTF16("xyz", "xyz"))
	// U+FFFD sorts after a surrogate pair in UTF-16 but before it in UTF-8.
	assert.Negative(t, compareUTF16("\U0001F600", "�"))
	assert.Positive(t, compareUTF16("�", "\U0001F600"))
}
