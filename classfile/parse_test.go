package classfile_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dhamidi/dexpack/classfile"
	"github.com/dhamidi/dexpack/classfile/classfiletest"
)

func testClass() []byte {
	b := classfiletest.New("testdata/TestClass").
		Implements("java/lang/Runnable").
		Field("CONSTANT_VALUE", "I", 0x0019).
		Field("name", "Ljava/lang/String;", 0x0002).
		Method("getName", "()Ljava/lang/String;", 0x0001).
		Method("helper", "(II)I", 0x000A).
		Method("run", "()V", 0x0001)
	return b.Bytes()
}

func TestParseClassFile(t *testing.T) {
	cf, err := classfile.Parse(bytes.NewReader(testClass()))
	if err != nil {
		t.Fatalf("Failed to parse class file: %v", err)
	}

	t.Run("class name", func(t *testing.T) {
		expected := "testdata/TestClass"
		if got := cf.ClassName(); got != expected {
			t.Errorf("ClassName() = %q, want %q", got, expected)
		}
	})

	t.Run("super class", func(t *testing.T) {
		expected := "java/lang/Object"
		if got := cf.SuperClassName(); got != expected {
			t.Errorf("SuperClassName() = %q, want %q", got, expected)
		}
	})

	t.Run("interfaces", func(t *testing.T) {
		interfaces := cf.InterfaceNames()
		if len(interfaces) != 1 {
			t.Fatalf("Expected 1 interface, got %d", len(interfaces))
		}
		if interfaces[0] != "java/lang/Runnable" {
			t.Errorf("Interface[0] = %q, want %q", interfaces[0], "java/lang/Runnable")
		}
	})

	t.Run("version", func(t *testing.T) {
		if got := cf.Version().String(); got != "52.0" {
			t.Errorf("Version() = %q, want %q", got, "52.0")
		}
	})

	t.Run("fields", func(t *testing.T) {
		if len(cf.Fields) != 2 {
			t.Fatalf("Expected 2 fields, got %d", len(cf.Fields))
		}
		constant := cf.GetField("CONSTANT_VALUE")
		if constant == nil {
			t.Fatal("Expected to find CONSTANT_VALUE field")
		}
		if !constant.IsStatic() || !constant.AccessFlags.IsFinal() {
			t.Error("CONSTANT_VALUE should be static final")
		}
		if got := constant.Descriptor(cf.ConstantPool); got != "I" {
			t.Errorf("CONSTANT_VALUE descriptor = %q, want %q", got, "I")
		}
	})

	t.Run("methods", func(t *testing.T) {
		if cf.GetMethod("<init>", "()V") == nil {
			t.Fatal("Expected to find constructor")
		}
		helper := cf.GetMethod("helper", "(II)I")
		if helper == nil {
			t.Fatal("Expected to find helper method")
		}
		if !helper.IsPrivate() || !helper.IsStatic() {
			t.Error("helper should be private static")
		}
		if cf.GetMethod("helper", "()V") != nil {
			t.Error("GetMethod should match the descriptor")
		}
	})

	t.Run("method code attribute", func(t *testing.T) {
		run := cf.GetMethod("run", "()V")
		code := run.GetCodeAttribute(cf.ConstantPool)
		if code == nil {
			t.Fatal("Expected run to have Code attribute")
		}
		if len(code.Code) != 1 || code.Code[0] != 0xB1 {
			t.Errorf("Code = %x, want b1", code.Code)
		}
	})

	t.Run("source file attribute", func(t *testing.T) {
		if got := cf.SourceFile(); got != "TestClass.java" {
			t.Errorf("SourceFile() = %q, want %q", got, "TestClass.java")
		}
	})
}

func TestParseErrors(t *testing.T) {
	valid := classfiletest.Class("Foo")

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, classfile.ErrTruncated},
		{"bad magic", append([]byte{0xCA, 0xFE, 0xBA, 0xBF}, valid[4:]...), classfile.ErrBadMagic},
		{"truncated header", valid[:6], classfile.ErrTruncated},
		{"truncated body", valid[:len(valid)-3], classfile.ErrTruncated},
		{"trailing data", append(append([]byte{}, valid...), 0, 0), classfile.ErrTrailingData},
		{"zero constant pool", []byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0, 0, 52, 0, 0}, classfile.ErrMalformed},
		{"unknown tag", []byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0, 0, 52, 0, 2, 99}, classfile.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := classfile.ParseBytes(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseBytes() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStrictVersion(t *testing.T) {
	tests := []struct {
		major, minor uint16
		ok           bool
	}{
		{45, 3, true},
		{50, 0, true},
		{52, 0, true},
		{52, 1, false},
		{55, 0, false},
		{44, 0, false},
	}

	for _, tt := range tests {
		b := classfiletest.New("Foo")
		b.Major, b.Minor = tt.major, tt.minor
		data := b.Bytes()

		t.Run(classfile.Version{Major: tt.major, Minor: tt.minor}.String(), func(t *testing.T) {
			_, err := classfile.ParseBytes(data, classfile.WithStrictVersion())
			if tt.ok && err != nil {
				t.Errorf("strict parse failed: %v", err)
			}
			if !tt.ok && !errors.Is(err, classfile.ErrUnsupportedVersion) {
				t.Errorf("strict parse error = %v, want ErrUnsupportedVersion", err)
			}

			if _, err := classfile.ParseBytes(data); err != nil {
				t.Errorf("lenient parse failed: %v", err)
			}
		})
	}
}

func TestAttributeFactory(t *testing.T) {
	data := testClass()

	t.Run("raw attributes", func(t *testing.T) {
		cf, err := classfile.ParseBytes(data, classfile.WithAttributeFactory(classfile.RawAttributes))
		if err != nil {
			t.Fatalf("ParseBytes: %v", err)
		}
		attr := cf.GetAttribute("SourceFile")
		if attr == nil {
			t.Fatal("Expected SourceFile attribute")
		}
		if attr.Parsed != nil {
			t.Errorf("Parsed = %#v, want nil", attr.Parsed)
		}
		if len(attr.Info) != 2 {
			t.Errorf("len(Info) = %d, want 2", len(attr.Info))
		}
		if cf.SourceFile() != "" {
			t.Errorf("SourceFile() = %q, want empty", cf.SourceFile())
		}
	})

	t.Run("custom factory sees contexts", func(t *testing.T) {
		seen := map[string]classfile.AttributeContext{}
		f := classfile.AttributeFactoryFunc(func(ctx classfile.AttributeContext, name string, info []byte, cp classfile.ConstantPool) (any, error) {
			seen[name] = ctx
			return classfile.StdAttributes.ParseAttribute(ctx, name, info, cp)
		})
		cf, err := classfile.ParseBytes(data, classfile.WithAttributeFactory(f))
		if err != nil {
			t.Fatalf("ParseBytes: %v", err)
		}
		if seen["SourceFile"] != classfile.ClassContext {
			t.Errorf("SourceFile context = %v, want class", seen["SourceFile"])
		}
		if seen["Code"] != classfile.MethodContext {
			t.Errorf("Code context = %v, want method", seen["Code"])
		}
		if cf.SourceFile() != "TestClass.java" {
			t.Errorf("SourceFile() = %q", cf.SourceFile())
		}
	})

	t.Run("factory error fails parse", func(t *testing.T) {
		boom := errors.New("boom")
		f := classfile.AttributeFactoryFunc(func(classfile.AttributeContext, string, []byte, classfile.ConstantPool) (any, error) {
			return nil, boom
		})
		if _, err := classfile.ParseBytes(data, classfile.WithAttributeFactory(f)); !errors.Is(err, boom) {
			t.Errorf("ParseBytes() error = %v, want %v", err, boom)
		}
	})
}

func TestParseFieldDescriptor(t *testing.T) {
	tests := []struct {
		desc       string
		baseType   string
		className  string
		arrayDepth int
	}{
		{"I", "int", "", 0},
		{"Z", "boolean", "", 0},
		{"Ljava/lang/String;", "", "java/lang/String", 0},
		{"[I", "int", "", 1},
		{"[[D", "double", "", 2},
		{"[Ljava/lang/Object;", "", "java/lang/Object", 1},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			ft := classfile.ParseFieldDescriptor(tt.desc)
			if ft == nil {
				t.Fatalf("ParseFieldDescriptor(%q) returned nil", tt.desc)
			}
			if ft.BaseType != tt.baseType {
				t.Errorf("BaseType = %q, want %q", ft.BaseType, tt.baseType)
			}
			if ft.ClassName != tt.className {
				t.Errorf("ClassName = %q, want %q", ft.ClassName, tt.className)
			}
			if ft.ArrayDepth != tt.arrayDepth {
				t.Errorf("ArrayDepth = %d, want %d", ft.ArrayDepth, tt.arrayDepth)
			}
			if ft.Descriptor != tt.desc {
				t.Errorf("Descriptor = %q, want %q", ft.Descriptor, tt.desc)
			}
		})
	}

	for _, bad := range []string{"", "L;", "Ljava/lang/String", "II", "[", "X"} {
		if ft := classfile.ParseFieldDescriptor(bad); ft != nil {
			t.Errorf("ParseFieldDescriptor(%q) = %+v, want nil", bad, ft)
		}
	}
}

func TestParseMethodDescriptor(t *testing.T) {
	tests := []struct {
		desc   string
		params []string
		ret    string
	}{
		{"()V", nil, "V"},
		{"(II)I", []string{"I", "I"}, "I"},
		{"(Ljava/lang/String;[J)[Ljava/lang/Object;", []string{"Ljava/lang/String;", "[J"}, "[Ljava/lang/Object;"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			md := classfile.ParseMethodDescriptor(tt.desc)
			if md == nil {
				t.Fatalf("ParseMethodDescriptor(%q) returned nil", tt.desc)
			}
			if len(md.Parameters) != len(tt.params) {
				t.Fatalf("len(Parameters) = %d, want %d", len(md.Parameters), len(tt.params))
			}
			for i, p := range md.Parameters {
				if p.Descriptor != tt.params[i] {
					t.Errorf("Parameters[%d] = %q, want %q", i, p.Descriptor, tt.params[i])
				}
			}
			if got := md.ReturnDescriptor(); got != tt.ret {
				t.Errorf("ReturnDescriptor() = %q, want %q", got, tt.ret)
			}
		})
	}

	for _, bad := range []string{"", "V", "(", "()", "(I", "()VV", "(Q)V"} {
		if md := classfile.ParseMethodDescriptor(bad); md != nil {
			t.Errorf("ParseMethodDescriptor(%q) = %+v, want nil", bad, md)
		}
	}
}

func TestModifiedUtf8(t *testing.T) {
	b := classfiletest.New("Foo")
	b.SourceFile = "Café.java"
	cf, err := classfile.ParseBytes(b.Bytes())
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if got := cf.SourceFile(); got != "Café.java" {
		t.Errorf("SourceFile() = %q, want %q", got, "Café.java")
	}
}
