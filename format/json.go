package format

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dhamidi/dexpack/dex"
)

type JSONEncoder struct {
	w     io.Writer
	class *dex.ClassDefItem
}

func NewJSONEncoder(w io.Writer) *JSONEncoder {
	return &JSONEncoder{w: w}
}

// Encode writes one indented JSON document followed by a newline.
func (e *JSONEncoder) Encode(class *dex.ClassDefItem) error {
	e.class = class
	text, err := e.MarshalText()
	if err != nil {
		return err
	}
	_, err = e.w.Write(append(text, '\n'))
	return err
}

func (e *JSONEncoder) MarshalText() ([]byte, error) {
	if e.class == nil {
		return nil, fmt.Errorf("format: no class to encode")
	}
	return json.MarshalIndent(e.buildClassData(), "", "  ")
}

type jsonClass struct {
	Name        string       `json:"name"`
	Descriptor  string       `json:"descriptor"`
	SuperClass  string       `json:"superClass,omitempty"`
	Interfaces  []string     `json:"interfaces,omitempty"`
	SourceFile  string       `json:"sourceFile,omitempty"`
	Visibility  string       `json:"visibility"`
	Kind        string       `json:"kind"`
	AccessFlags uint32       `json:"accessFlags"`
	Modifiers   []string     `json:"modifiers,omitempty"`
	Fields      []jsonField  `json:"fields,omitempty"`
	Methods     []jsonMethod `json:"methods,omitempty"`
}

type jsonField struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Visibility string   `json:"visibility"`
	Modifiers  []string `json:"modifiers,omitempty"`
}

type jsonMethod struct {
	Name       string   `json:"name"`
	ReturnType string   `json:"returnType"`
	Parameters []string `json:"parameters,omitempty"`
	Shorty     string   `json:"shorty"`
	Direct     bool     `json:"direct"`
	Visibility string   `json:"visibility"`
	Modifiers  []string `json:"modifiers,omitempty"`
}

func (e *JSONEncoder) buildClassData() jsonClass {
	c := e.class
	data := jsonClass{
		Name:        c.Name(),
		Descriptor:  c.Descriptor,
		SourceFile:  c.SourceFile,
		Visibility:  visibility(c.AccessFlags),
		Kind:        classKind(c),
		AccessFlags: c.AccessFlags,
		Modifiers:   modifierNames(c.AccessFlags, classModifiers),
	}
	if c.Superclass != "" {
		data.SuperClass = TypeName(c.Superclass)
	}
	for _, iface := range c.Interfaces {
		data.Interfaces = append(data.Interfaces, TypeName(iface))
	}
	for _, f := range c.Fields() {
		data.Fields = append(data.Fields, jsonField{
			Name:       f.Name,
			Type:       TypeName(f.Type),
			Visibility: visibility(f.AccessFlags),
			Modifiers:  modifierNames(f.AccessFlags, fieldModifiers),
		})
	}
	e.appendMethods(&data, c.DirectMethods, true)
	e.appendMethods(&data, c.VirtualMethods, false)
	return data
}

func (e *JSONEncoder) appendMethods(data *jsonClass, methods []dex.EncodedMethod, direct bool) {
	for _, m := range methods {
		jm := jsonMethod{
			Name:       m.Name,
			ReturnType: TypeName(m.Proto.Return),
			Shorty:     m.Proto.Shorty(),
			Direct:     direct,
			Visibility: visibility(m.AccessFlags),
			Modifiers:  modifierNames(m.AccessFlags, methodModifiers),
		}
		for _, p := range m.Proto.Params {
			jm.Parameters = append(jm.Parameters, TypeName(p))
		}
		data.Methods = append(data.Methods, jm)
	}
}
