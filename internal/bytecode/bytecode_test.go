package bytecode

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

const addProgram = `
; 两数相加
.func add a b
    LOAD_FAST a
    LOAD_FAST b
    BINARY_ADD
    RETURN_VALUE
.end

    LOAD_CONST @add
    MAKE_FUNCTION
    STORE_GLOBAL add
    LOAD_GLOBAL print
    LOAD_GLOBAL add
    LOAD_CONST 1
    LOAD_CONST 2
    CALL_FUNCTION 2
    CALL_FUNCTION 1
    POP_TOP
`

func TestOpcodeEncodingIsFixed(t *testing.T) {
	if OpNop != 0 || OpReturnValue != 44 {
		t.Fatalf("OpNop = %d, OpReturnValue = %d", OpNop, OpReturnValue)
	}
	for op := OpNop; op < numOpcodes; op++ {
		got, ok := Lookup(op.String())
		if !ok || got != op {
			t.Errorf("Lookup(%s) = %v, %v", op, got, ok)
		}
	}
	if OpCode(200).Valid() {
		t.Error("opcode 200 should be invalid")
	}
}

func TestAssemble(t *testing.T) {
	code, err := Assemble(addProgram, "add.nasm")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if code.Name != ModuleName || code.MaxStack != 4 {
		t.Errorf("module %s MaxStack = %d, want 4", code.Name, code.MaxStack)
	}
	if last := code.Instructions[len(code.Instructions)-1]; last.Op != OpReturnValue {
		t.Errorf("implicit return missing, last = %v", last)
	}
	if len(code.Lines) != len(code.Instructions) {
		t.Errorf("lines = %d, instructions = %d", len(code.Lines), len(code.Instructions))
	}

	fn := code.Consts[0].Code
	if fn == nil || fn.Name != "add" {
		t.Fatalf("first const = %v", code.Consts[0])
	}
	if fn.ArgCount != 2 || fn.NLocals != 2 || fn.MaxStack != 2 {
		t.Errorf("add: args=%d locals=%d stack=%d", fn.ArgCount, fn.NLocals, fn.MaxStack)
	}
	if !reflect.DeepEqual(code.Names, []string{"add", "print"}) {
		t.Errorf("Names = %v", code.Names)
	}
}

func TestAssembleErrors(t *testing.T) {
	src := `
    JUMP_ABSOLUTE nowhere
    FROB 1
    LOAD_CONST "unterminated
.func f
`
	_, err := Assemble(src, "bad.nasm")
	if err == nil {
		t.Fatal("expected errors")
	}
	if n := len(multierr.Errors(err)); n != 4 {
		t.Errorf("got %d errors, want 4: %v", n, err)
	}
	var ae *AsmError
	if !errors.As(err, &ae) || ae.File != "bad.nasm" {
		t.Errorf("error %v is not an AsmError", err)
	}
}

func TestAssembleRejectsSelfReference(t *testing.T) {
	src := `
.func f
    LOAD_CONST @f
    RETURN_VALUE
.end
    LOAD_CONST @f
    POP_TOP
`
	if _, err := Assemble(src, "loop.nasm"); err == nil || !strings.Contains(err.Error(), "itself") {
		t.Errorf("err = %v", err)
	}
}

func TestVerifyAggregatesErrors(t *testing.T) {
	code := &Code{
		Name: "bad",
		Instructions: []Instruction{
			{Op: OpLoadConst, Arg: 5},
			{Op: OpLoadFast, Arg: 3},
			{Op: OpJumpAbsolute, Arg: 99},
		},
	}
	err := Verify(code)
	if n := len(multierr.Errors(err)); n != 3 {
		t.Errorf("got %d errors, want 3: %v", n, err)
	}
}

func TestVerifyStackDepth(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"inconsistent", `
    LOAD_CONST 1
    POP_JUMP_IF_FALSE end
    LOAD_CONST 2
end:
    LOAD_CONST None
    RETURN_VALUE
`, "inconsistent stack depth"},
		{"underflow", `
    POP_TOP
    LOAD_CONST None
    RETURN_VALUE
`, "underflow"},
		{"rotate short stack", `
    LOAD_CONST 1
    ROT_TWO
    RETURN_VALUE
`, "needs 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.src, tt.name)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}

	code, err := Assemble(".stack 1\n LOAD_CONST 1\n LOAD_CONST 2\n BINARY_ADD\n RETURN_VALUE\n", "declared")
	if err == nil || !strings.Contains(err.Error(), "declared max stack") {
		t.Errorf("declared too small: code=%v err=%v", code, err)
	}
}

func TestFinallyReservesHeadroom(t *testing.T) {
	src := `
    SETUP_FINALLY fin
    LOAD_CONST 1
    POP_TOP
    POP_BLOCK
    LOAD_CONST None
fin:
    END_FINALLY
    LOAD_CONST None
    RETURN_VALUE
`
	code, err := Assemble(src, "finally.nasm")
	if err != nil {
		t.Fatal(err)
	}
	if code.MaxStack != 2 {
		t.Errorf("MaxStack = %d, want 2", code.MaxStack)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	code, err := Assemble(addProgram, "add.nasm")
	if err != nil {
		t.Fatal(err)
	}
	data, err := Marshal(code)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := Marshal(code)
	if !bytes.Equal(data, again) {
		t.Error("encoding is not deterministic")
	}

	path := filepath.Join(t.TempDir(), "add"+CompiledFileExtension)
	if err := WriteFile(path, code); err != nil {
		t.Fatal(err)
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(code, back) {
		t.Errorf("round trip mismatch:\n%s\n%s", Disassemble(code), Disassemble(back))
	}
}

func TestUnmarshalRejectsForeignData(t *testing.T) {
	data, err := encMode.Marshal(&unitFile{Magic: "XXXX", Version: FormatVersion, Code: &Code{Name: "x"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, ErrBadMagic) {
		t.Errorf("err = %v, want ErrBadMagic", err)
	}
	data, _ = encMode.Marshal(&unitFile{Magic: Magic, Version: 99, Code: &Code{Name: "x"}})
	if _, err := Unmarshal(data); !errors.Is(err, ErrVersion) {
		t.Errorf("err = %v, want ErrVersion", err)
	}
	if _, err := Unmarshal([]byte("not cbor")); err == nil {
		t.Error("garbage accepted")
	}
}

func TestDisassemble(t *testing.T) {
	code, err := Assemble(`
top:
    LOAD_GLOBAL x
    POP_JUMP_IF_FALSE top
    LOAD_CONST "hi"
    RETURN_VALUE
`, "dis.nasm")
	if err != nil {
		t.Fatal(err)
	}
	out := Disassemble(code)
	for _, want := range []string{"=== <module> (dis.nasm:1) ===", ">> 0000", `LOAD_CONST`, `("hi")`, "(x)", "(to 0)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
