// Package format renders dex class definitions for humans and tools.
package format

import (
	"encoding"
	"io"
	"strings"

	"github.com/dhamidi/dexpack/dex"
)

type Encoder interface {
	encoding.TextMarshaler
	Encode(class *dex.ClassDefItem) error
}

// New returns the encoder registered under name ("line" or "json"), or nil.
func New(name string, w io.Writer) Encoder {
	switch name {
	case "line":
		return NewLineEncoder(w)
	case "json":
		return NewJSONEncoder(w)
	}
	return nil
}

func classKind(c *dex.ClassDefItem) string {
	switch {
	case c.AccessFlags&dex.AccAnnotation != 0:
		return "annotation"
	case c.AccessFlags&dex.AccEnum != 0:
		return "enum"
	case c.IsInterface():
		return "interface"
	default:
		return "class"
	}
}

func visibility(flags uint32) string {
	switch {
	case flags&dex.AccPublic != 0:
		return "public"
	case flags&dex.AccProtected != 0:
		return "protected"
	case flags&dex.AccPrivate != 0:
		return "private"
	default:
		return "package"
	}
}

type modifier struct {
	flag uint32
	name string
}

var classModifiers = []modifier{
	{dex.AccFinal, "final"},
	{dex.AccAbstract, "abstract"},
	{dex.AccSynthetic, "synthetic"},
}

var fieldModifiers = []modifier{
	{dex.AccStatic, "static"},
	{dex.AccFinal, "final"},
	{dex.AccVolatile, "volatile"},
	{dex.AccTransient, "transient"},
	{dex.AccSynthetic, "synthetic"},
	{dex.AccEnum, "enum"},
}

var methodModifiers = []modifier{
	{dex.AccStatic, "static"},
	{dex.AccFinal, "final"},
	{dex.AccAbstract, "abstract"},
	{dex.AccDeclaredSynchronized, "synchronized"},
	{dex.AccNative, "native"},
	{dex.AccBridge, "bridge"},
	{dex.AccVarargs, "varargs"},
	{dex.AccSynthetic, "synthetic"},
	{dex.AccConstructor, "constructor"},
}

func modifierNames(flags uint32, table []modifier) []string {
	var mods []string
	for _, m := range table {
		if flags&m.flag != 0 {
			mods = append(mods, m.name)
		}
	}
	return mods
}

// TypeName converts a type descriptor to its source spelling, e.g. "[I" to
// "int[]" and "Ljava/lang/String;" to "java.lang.String".
func TypeName(desc string) string {
	depth := 0
	for depth < len(desc) && desc[depth] == '[' {
		depth++
	}
	name := primitiveName(desc[depth:])
	return name + strings.Repeat("[]", depth)
}

func primitiveName(desc string) string {
	switch desc {
	case "V":
		return "void"
	case "Z":
		return "boolean"
	case "B":
		return "byte"
	case "S":
		return "short"
	case "C":
		return "char"
	case "I":
		return "int"
	case "J":
		return "long"
	case "F":
		return "float"
	case "D":
		return "double"
	}
	return dex.SourceName(desc)
}
