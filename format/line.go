package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/dhamidi/dexpack/dex"
)

// LineEncoder writes one tab separated line per class, field and method.
type LineEncoder struct {
	w     io.Writer
	class *dex.ClassDefItem
}

func NewLineEncoder(w io.Writer) *LineEncoder {
	return &LineEncoder{w: w}
}

func (e *LineEncoder) Encode(class *dex.ClassDefItem) error {
	e.class = class
	text, err := e.MarshalText()
	if err != nil {
		return err
	}
	_, err = e.w.Write(text)
	return err
}

func (e *LineEncoder) MarshalText() ([]byte, error) {
	c := e.class
	if c == nil {
		return nil, fmt.Errorf("format: no class to encode")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\t%s\t%s\n", classKind(c), c.Name(), e.classModifiersStr())

	for _, f := range c.Fields() {
		fmt.Fprintf(&sb, "field\t%s\t%s\t%s\t%s\n",
			f.Name,
			TypeName(f.Type),
			visibility(f.AccessFlags),
			joinOrDash(modifierNames(f.AccessFlags, fieldModifiers)),
		)
	}

	for _, m := range c.Methods() {
		fmt.Fprintf(&sb, "method\t%s\t%s\t%s\t%s\t%s\n",
			m.Name,
			TypeName(m.Proto.Return),
			e.parametersStr(m.Proto.Params),
			visibility(m.AccessFlags),
			joinOrDash(modifierNames(m.AccessFlags, methodModifiers)),
		)
	}

	return []byte(sb.String()), nil
}

func (e *LineEncoder) classModifiersStr() string {
	flags := e.class.AccessFlags
	mods := []string{visibility(flags)}
	mods = append(mods, modifierNames(flags, classModifiers)...)
	return strings.Join(mods, ",")
}

func (e *LineEncoder) parametersStr(params []string) string {
	if len(params) == 0 {
		return "-"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = TypeName(p)
	}
	return strings.Join(parts, ",")
}

func joinOrDash(mods []string) string {
	if len(mods) == 0 {
		return "-"
	}
	return strings.Join(mods, ",")
}
