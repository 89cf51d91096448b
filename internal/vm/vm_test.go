package vm

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tangzhangming/novacore/internal/bytecode"
	"github.com/tangzhangming/novacore/internal/config"
	"github.com/tangzhangming/novacore/internal/errors"
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 测试辅助
// ============================================================================

func newTestInterp(t *testing.T, cfg *config.Config, opts ...Option) (*Interpreter, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	in, err := New(cfg, append([]Option{WithOutput(&out)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return in, &out
}

func closeInterp(t *testing.T, in *Interpreter) {
	t.Helper()
	if err := in.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func assemble(t *testing.T, src string) *bytecode.Code {
	t.Helper()
	code, err := bytecode.Assemble(src, "test.nasm")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return code
}

// exec 在新线程上执行 src，返回值的 repr
func exec(t *testing.T, in *Interpreter, src string) (string, error) {
	t.Helper()
	return execContext(context.Background(), t, in, src)
}

func execContext(ctx context.Context, t *testing.T, in *Interpreter, src string) (string, error) {
	t.Helper()
	code := assemble(t, src)
	ts, err := in.NewThread()
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	defer ts.Close()

	res, err := ts.Exec(ctx, code)
	if ts.Frame() != nil || ts.Depth() != 0 {
		t.Errorf("frames left after Exec: depth %d", ts.Depth())
	}
	if s := ts.Stats(); s.FramesPushed != s.FramesPopped {
		t.Errorf("frames pushed %d, popped %d", s.FramesPushed, s.FramesPopped)
	}
	if err != nil {
		return "", err
	}
	r := object.Repr(res)
	ts.Object().Decref(res)
	return r, nil
}

func expectException(t *testing.T, err error, typ string) *ExceptionError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got no error", typ)
	}
	ee, ok := AsException(err)
	if !ok {
		t.Fatalf("expected *ExceptionError, got %T: %v", err, err)
	}
	if ee.Type != typ {
		t.Fatalf("exception type = %s (%s), want %s", ee.Type, ee.Message, typ)
	}
	return ee
}

func expectFatal(t *testing.T, code string, fn func()) {
	t.Helper()
	old := errors.SetFatalHandler(errors.PanicOnFatal)
	defer errors.SetFatalHandler(old)
	defer func() {
		r := recover()
		fe, ok := r.(*errors.FatalError)
		if !ok {
			t.Fatalf("expected fatal %s, recovered %v", code, r)
		}
		if fe.Code != code {
			t.Errorf("fatal code = %s, want %s", fe.Code, code)
		}
	}()
	fn()
}

// ============================================================================
// 基本执行
// ============================================================================

func TestExecExpressions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"add", "LOAD_CONST 2\nLOAD_CONST 3\nBINARY_ADD\nRETURN_VALUE", "5"},
		{"subtract", "LOAD_CONST 2\nLOAD_CONST 3\nBINARY_SUBTRACT\nRETURN_VALUE", "-1"},
		{"multiply", "LOAD_CONST 6\nLOAD_CONST 7\nBINARY_MULTIPLY\nRETURN_VALUE", "42"},
		{"floor divide", "LOAD_CONST -7\nLOAD_CONST 2\nBINARY_FLOOR_DIVIDE\nRETURN_VALUE", "-4"},
		{"modulo", "LOAD_CONST 7\nLOAD_CONST 3\nBINARY_MODULO\nRETURN_VALUE", "1"},
		{"negate", "LOAD_CONST 9\nUNARY_NEGATIVE\nRETURN_VALUE", "-9"},
		{"not", "LOAD_CONST 0\nUNARY_NOT\nRETURN_VALUE", "True"},
		{"compare", "LOAD_CONST 1\nLOAD_CONST 2\nCOMPARE_OP <\nRETURN_VALUE", "True"},
		{"is none", "LOAD_CONST None\nLOAD_CONST None\nIS_OP 0\nRETURN_VALUE", "True"},
		{"concat", "LOAD_CONST \"ab\"\nLOAD_CONST \"cd\"\nBINARY_ADD\nRETURN_VALUE", `"abcd"`},
		{"rot two", "LOAD_CONST 1\nLOAD_CONST 2\nROT_TWO\nBINARY_SUBTRACT\nRETURN_VALUE", "1"},
		{"implicit none", "NOP", "None"},
		{"subscript", "LOAD_CONST 10\nLOAD_CONST 20\nBUILD_LIST 2\nLOAD_CONST 1\nBINARY_SUBSCR\nRETURN_VALUE", "20"},
		{"contains", "LOAD_CONST 2\nLOAD_CONST 1\nLOAD_CONST 2\nBUILD_TUPLE 2\nCONTAINS_OP 0\nRETURN_VALUE", "True"},
		{"len", "LOAD_GLOBAL len\nLOAD_CONST \"hello\"\nCALL_FUNCTION 1\nRETURN_VALUE", "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, _ := newTestInterp(t, nil)
			defer closeInterp(t, in)

			got, err := exec(t, in, tt.src)
			if err != nil {
				t.Fatalf("Exec: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

const fibProgram = `
.func fib n
    LOAD_FAST n
    LOAD_CONST 2
    COMPARE_OP <
    POP_JUMP_IF_FALSE recurse
    LOAD_FAST n
    RETURN_VALUE
recurse:
    LOAD_GLOBAL fib
    LOAD_FAST n
    LOAD_CONST 1
    BINARY_SUBTRACT
    CALL_FUNCTION 1
    LOAD_GLOBAL fib
    LOAD_FAST n
    LOAD_CONST 2
    BINARY_SUBTRACT
    CALL_FUNCTION 1
    BINARY_ADD
    RETURN_VALUE
.end

    LOAD_CONST @fib
    MAKE_FUNCTION
    STORE_GLOBAL fib
    LOAD_GLOBAL fib
    LOAD_CONST %d
    CALL_FUNCTION 1
    RETURN_VALUE
`

func TestRecursiveCalls(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	got, err := exec(t, in, fmt.Sprintf(fibProgram, 15))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got != "610" {
		t.Errorf("fib(15) = %s, want 610", got)
	}

	s := in.Stats()
	if s.Eval.Calls < 1973 {
		t.Errorf("calls = %d, want at least 1973", s.Eval.Calls)
	}
	if s.Eval.FramesPushed != s.Eval.FramesPopped {
		t.Errorf("frames pushed %d, popped %d", s.Eval.FramesPushed, s.Eval.FramesPopped)
	}
}

func TestLoopAndPrint(t *testing.T) {
	src := `
    LOAD_CONST 0
    STORE_GLOBAL total
    SETUP_LOOP done
    LOAD_GLOBAL range
    LOAD_CONST 10
    CALL_FUNCTION 1
    GET_ITER
loop:
    FOR_ITER end
    STORE_GLOBAL i
    LOAD_GLOBAL total
    LOAD_GLOBAL i
    BINARY_ADD
    STORE_GLOBAL total
    JUMP_ABSOLUTE loop
end:
    POP_BLOCK
done:
    LOAD_GLOBAL print
    LOAD_CONST "total"
    LOAD_GLOBAL total
    CALL_FUNCTION 2
    POP_TOP
`
	in, out := newTestInterp(t, nil)
	defer closeInterp(t, in)

	if _, err := exec(t, in, src); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got := out.String(); got != "total 45\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunModuleCode(t *testing.T) {
	src := `
    LOAD_GLOBAL print
    LOAD_CONST "hello"
    CALL_FUNCTION 1
    POP_TOP
    LOAD_CONST 1
    RETURN_VALUE
`
	in, out := newTestInterp(t, nil)
	defer closeInterp(t, in)

	if err := in.Run(context.Background(), assemble(t, src)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.String(); got != "hello\n" {
		t.Errorf("output = %q", got)
	}
	s := in.Stats()
	if s.Eval.FramesPushed != 1 || s.Eval.FramesPopped != 1 {
		t.Errorf("frames pushed %d, popped %d, want 1 each", s.Eval.FramesPushed, s.Eval.FramesPopped)
	}
}

func TestArgumentCount(t *testing.T) {
	src := `
.func two a b
    LOAD_FAST a
    RETURN_VALUE
.end
    LOAD_CONST @two
    MAKE_FUNCTION
    LOAD_CONST 1
    CALL_FUNCTION 1
`
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	_, err := exec(t, in, src)
	ee := expectException(t, err, "TypeError")
	if !strings.Contains(ee.Message, "two()") {
		t.Errorf("message = %q", ee.Message)
	}
}

func TestUndefinedName(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	_, err := exec(t, in, "LOAD_GLOBAL nope\nRETURN_VALUE")
	ee := expectException(t, err, "NameError")
	if ee.Message != "name 'nope' is not defined" {
		t.Errorf("message = %q", ee.Message)
	}
	if !stderrors.Is(err, &ExceptionError{Type: "NameError"}) {
		t.Error("errors.Is should match by exception type")
	}
}

// ============================================================================
// 帧
// ============================================================================

func TestFrameDiscipline(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	ts, err := in.NewThread()
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	defer ts.Close()

	th := ts.Object()
	code, err := th.NewCode(assemble(t, "LOAD_CONST 1\nRETURN_VALUE"))
	if err != nil {
		t.Fatalf("NewCode: %v", err)
	}
	defer th.Decref(code)
	globals, err := th.NewDict()
	if err != nil {
		t.Fatalf("NewDict: %v", err)
	}
	defer th.Decref(globals)

	f1, err := ts.PushFrame(code, nil, globals, nil)
	if err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	f2, err := ts.PushFrame(code, nil, globals, nil)
	if err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	if ts.Frame() != f2 || f2.Back() != f1 || ts.Depth() != 2 {
		t.Fatalf("frame chain broken: depth %d", ts.Depth())
	}
	if f1.Name() != bytecode.ModuleName {
		t.Errorf("frame name = %s", f1.Name())
	}

	f2.push(object.SmallInt(7))
	if f2.StackDepth() != 1 {
		t.Errorf("stack depth = %d, want 1", f2.StackDepth())
	}

	// 只能弹出当前帧
	expectFatal(t, errors.F0202, func() { ts.PopFrame(f1) })

	ts.PopFrame(f2)
	if ts.Frame() != f1 || ts.Depth() != 1 {
		t.Fatalf("after pop: depth %d", ts.Depth())
	}
	ts.PopFrame(f1)
	if ts.Frame() != nil || ts.Depth() != 0 {
		t.Errorf("after pop: depth %d", ts.Depth())
	}
}

func TestFrameStackBounds(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	ts, err := in.NewThread()
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	defer ts.Close()

	th := ts.Object()
	code, _ := th.NewCode(assemble(t, "LOAD_CONST 1\nRETURN_VALUE"))
	defer th.Decref(code)
	globals, _ := th.NewDict()
	defer th.Decref(globals)

	f, err := ts.PushFrame(code, nil, globals, nil)
	if err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	defer ts.PopFrame(f)

	expectFatal(t, errors.F0201, func() { f.pop() })
	f.push(object.SmallInt(1))
	expectFatal(t, errors.F0200, func() { f.push(object.SmallInt(2)) })
	expectFatal(t, errors.F0202, func() { f.unwindStack(th, 5) })
	expectFatal(t, errors.F0201, func() { f.rot(2) })
}

func TestExecRejectsUnverifiedCode(t *testing.T) {
	tests := []struct {
		name string
		code *bytecode.Code
		want string
	}{
		{"rotate empty stack", &bytecode.Code{
			Name:     "rot",
			MaxStack: 2,
			Instructions: []bytecode.Instruction{
				{Op: bytecode.OpRotTwo},
				{Op: bytecode.OpReturnValue},
			},
		}, "underflow"},
		{"constant out of range", &bytecode.Code{
			Name:     "const",
			MaxStack: 1,
			Instructions: []bytecode.Instruction{
				{Op: bytecode.OpLoadConst, Arg: 3},
				{Op: bytecode.OpReturnValue},
			},
		}, "out of range"},
		{"local out of range", &bytecode.Code{
			Name:     "local",
			MaxStack: 1,
			Instructions: []bytecode.Instruction{
				{Op: bytecode.OpLoadFast, Arg: 0},
				{Op: bytecode.OpReturnValue},
			},
		}, "out of range"},
	}

	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := in.NewThread()
			if err != nil {
				t.Fatalf("NewThread: %v", err)
			}
			defer ts.Close()

			_, err = ts.Exec(context.Background(), tt.code)
			ee := expectException(t, err, "SystemError")
			if !strings.Contains(ee.Message, tt.want) {
				t.Errorf("message = %q, want %q", ee.Message, tt.want)
			}
			if s := ts.Stats(); s.FramesPushed != 0 {
				t.Errorf("frames pushed for unverified code: %d", s.FramesPushed)
			}
		})
	}
}

func TestRecursionLimit(t *testing.T) {
	src := `
.func down
    LOAD_GLOBAL down
    CALL_FUNCTION 0
    RETURN_VALUE
.end
    LOAD_CONST @down
    MAKE_FUNCTION
    STORE_GLOBAL down
    LOAD_GLOBAL down
    CALL_FUNCTION 0
`
	cfg := config.Default()
	cfg.Eval.RecursionLimit = 50
	in, _ := newTestInterp(t, cfg)
	defer closeInterp(t, in)

	_, err := exec(t, in, src)
	ee := expectException(t, err, "RecursionError")
	if len(ee.Traceback) != 50 {
		t.Errorf("traceback has %d entries, want 50", len(ee.Traceback))
	}
}

func TestTooManyBlocks(t *testing.T) {
	var sb strings.Builder
	for i := 0; i <= MaxBlocks; i++ {
		sb.WriteString("    SETUP_LOOP end\n")
	}
	sb.WriteString("end:\n    NOP\n")

	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	_, err := exec(t, in, sb.String())
	expectException(t, err, "SystemError")
}

// ============================================================================
// 异常与块
// ============================================================================

func TestUncaughtTraceback(t *testing.T) {
	src := `
.func inner
    LOAD_GLOBAL KeyError
    LOAD_CONST "missing"
    CALL_FUNCTION 1
    RAISE_VARARGS 1
.end
.func outer
    LOAD_GLOBAL inner
    CALL_FUNCTION 0
    RETURN_VALUE
.end
    LOAD_CONST @inner
    MAKE_FUNCTION
    STORE_GLOBAL inner
    LOAD_CONST @outer
    MAKE_FUNCTION
    STORE_GLOBAL outer
    LOAD_GLOBAL outer
    CALL_FUNCTION 0
`
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	_, err := exec(t, in, src)
	ee := expectException(t, err, "KeyError")
	if ee.Message != "missing" {
		t.Errorf("message = %q", ee.Message)
	}

	var names []string
	for _, e := range ee.Traceback {
		names = append(names, e.Function)
	}
	if got := strings.Join(names, ","); got != "<module>,outer,inner" {
		t.Errorf("traceback = %s, want <module>,outer,inner", got)
	}
	if !strings.Contains(ee.Format(), "KeyError: missing") {
		t.Errorf("Format() = %q", ee.Format())
	}
}

func TestExceptHandler(t *testing.T) {
	src := `
    SETUP_EXCEPT handler
    LOAD_CONST 1
    LOAD_CONST 0
    BINARY_FLOOR_DIVIDE
    POP_TOP
    POP_BLOCK
    JUMP_ABSOLUTE end
handler:
    DUP_TOP
    LOAD_GLOBAL ArithmeticError
    JUMP_IF_NOT_EXC_MATCH reraise
    POP_TOP
    LOAD_GLOBAL print
    LOAD_CONST "caught"
    CALL_FUNCTION 1
    POP_TOP
    POP_EXCEPT
    JUMP_ABSOLUTE end
reraise:
    END_FINALLY
end:
    LOAD_CONST "after"
    RETURN_VALUE
`
	in, out := newTestInterp(t, nil)
	defer closeInterp(t, in)

	got, err := exec(t, in, src)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got != `"after"` || out.String() != "caught\n" {
		t.Errorf("result %s, output %q", got, out.String())
	}
}

func TestExceptNoMatchReraises(t *testing.T) {
	src := `
    SETUP_EXCEPT handler
    LOAD_GLOBAL nope
    POP_TOP
    POP_BLOCK
    JUMP_ABSOLUTE end
handler:
    DUP_TOP
    LOAD_GLOBAL ZeroDivisionError
    LOAD_GLOBAL KeyError
    BUILD_TUPLE 2
    JUMP_IF_NOT_EXC_MATCH reraise
    POP_TOP
    POP_EXCEPT
    JUMP_ABSOLUTE end
reraise:
    END_FINALLY
end:
    NOP
`
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	_, err := exec(t, in, src)
	ee := expectException(t, err, "NameError")
	if len(ee.Traceback) != 1 {
		t.Errorf("re-raise should not add traceback entries: %d", len(ee.Traceback))
	}
}

func TestReturnThroughFinally(t *testing.T) {
	src := `
.func f
    SETUP_FINALLY fin
    LOAD_CONST 1
    RETURN_VALUE
fin:
    LOAD_GLOBAL print
    LOAD_CONST "finally"
    CALL_FUNCTION 1
    POP_TOP
    END_FINALLY
.end
    LOAD_GLOBAL print
    LOAD_CONST @f
    MAKE_FUNCTION
    CALL_FUNCTION 0
    CALL_FUNCTION 1
    POP_TOP
`
	in, out := newTestInterp(t, nil)
	defer closeInterp(t, in)

	if _, err := exec(t, in, src); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got := out.String(); got != "finally\n1\n" {
		t.Errorf("output = %q", got)
	}
}

func TestExceptionThroughFinally(t *testing.T) {
	src := `
    SETUP_FINALLY fin
    LOAD_GLOBAL ValueError
    LOAD_CONST "bad"
    CALL_FUNCTION 1
    RAISE_VARARGS 1
fin:
    LOAD_GLOBAL print
    LOAD_CONST "cleanup"
    CALL_FUNCTION 1
    POP_TOP
    END_FINALLY
`
	in, out := newTestInterp(t, nil)
	defer closeInterp(t, in)

	_, err := exec(t, in, src)
	ee := expectException(t, err, "ValueError")
	if ee.Message != "bad" {
		t.Errorf("message = %q", ee.Message)
	}
	if got := out.String(); got != "cleanup\n" {
		t.Errorf("output = %q", got)
	}
}

func TestBreakAndContinueThroughFinally(t *testing.T) {
	// 偶数 continue（经过 finally），奇数累加，等于 5 时 break
	src := `
    LOAD_CONST 0
    STORE_GLOBAL total
    LOAD_CONST 0
    STORE_GLOBAL fins
    SETUP_LOOP done
    LOAD_GLOBAL range
    LOAD_CONST 10
    CALL_FUNCTION 1
    GET_ITER
loop:
    FOR_ITER end
    STORE_GLOBAL i
    LOAD_GLOBAL i
    LOAD_CONST 5
    COMPARE_OP ==
    POP_JUMP_IF_FALSE body
    BREAK_LOOP
body:
    SETUP_FINALLY fin
    LOAD_GLOBAL i
    LOAD_CONST 2
    BINARY_MODULO
    POP_JUMP_IF_TRUE odd
    CONTINUE_LOOP loop
odd:
    LOAD_GLOBAL total
    LOAD_GLOBAL i
    BINARY_ADD
    STORE_GLOBAL total
    POP_BLOCK
    LOAD_CONST None
fin:
    LOAD_GLOBAL fins
    LOAD_CONST 1
    BINARY_ADD
    STORE_GLOBAL fins
    END_FINALLY
    JUMP_ABSOLUTE loop
end:
    POP_BLOCK
done:
    LOAD_GLOBAL total
    LOAD_GLOBAL fins
    BUILD_TUPLE 2
    RETURN_VALUE
`
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	got, err := exec(t, in, src)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got != "(4, 5)" {
		t.Errorf("(total, fins) = %s, want (4, 5)", got)
	}
}

func TestBareRaiseWithoutActiveException(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	_, err := exec(t, in, "RAISE_VARARGS 0")
	expectException(t, err, "RuntimeError")
}

func TestMemoryErrorIsCatchable(t *testing.T) {
	src := `
    BUILD_LIST 0
    STORE_GLOBAL keep
    SETUP_EXCEPT handler
grow:
    LOAD_GLOBAL keep
    BUILD_LIST 0
    LIST_APPEND 1
    POP_TOP
    JUMP_ABSOLUTE grow
handler:
    DUP_TOP
    LOAD_GLOBAL MemoryError
    JUMP_IF_NOT_EXC_MATCH reraise
    POP_TOP
    POP_EXCEPT
    LOAD_CONST None
    STORE_GLOBAL keep
    LOAD_CONST "caught"
    RETURN_VALUE
reraise:
    END_FINALLY
`
	cfg := config.Default()
	cfg.Alloc.ArenaSize = 64 << 10
	cfg.Alloc.MaxArenas = 4
	cfg.GC.Enabled = false
	in, _ := newTestInterp(t, cfg)
	defer closeInterp(t, in)

	got, err := exec(t, in, src)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got != `"caught"` {
		t.Errorf("result = %s", got)
	}
	s := in.Stats()
	if s.Alloc.ArenasHighWater != cfg.Alloc.MaxArenas {
		t.Errorf("arena highwater = %d, want the limit %d", s.Alloc.ArenasHighWater, cfg.Alloc.MaxArenas)
	}
	if s.Eval.Exceptions == 0 {
		t.Error("MemoryError was not counted as an exception")
	}
}

// ============================================================================
// 回收
// ============================================================================

func TestCollectBuiltinFindsCycle(t *testing.T) {
	src := `
    BUILD_LIST 0
    STORE_GLOBAL a
    LOAD_GLOBAL a
    LOAD_GLOBAL a
    LIST_APPEND 1
    POP_TOP
    LOAD_CONST None
    STORE_GLOBAL a
    LOAD_GLOBAL collect
    CALL_FUNCTION 0
    RETURN_VALUE
`
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	got, err := exec(t, in, src)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got != "1" {
		t.Errorf("collect() = %s, want 1", got)
	}
}

func TestScheduledCollection(t *testing.T) {
	src := `
    SETUP_LOOP done
    LOAD_GLOBAL range
    LOAD_CONST 500
    CALL_FUNCTION 1
    GET_ITER
loop:
    FOR_ITER end
    POP_TOP
    BUILD_LIST 0
    DUP_TOP
    DUP_TOP
    LIST_APPEND 1
    POP_TOP
    POP_TOP
    JUMP_ABSOLUTE loop
end:
    POP_BLOCK
done:
    NOP
`
	cfg := config.Default()
	cfg.GC.Thresholds = [3]int{50, 5, 5}
	cfg.Eval.CheckInterval = 10
	in, _ := newTestInterp(t, cfg)
	defer closeInterp(t, in)

	if _, err := exec(t, in, src); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	s := in.Stats()
	if s.Eval.Collections == 0 || s.GC.Epoch == 0 {
		t.Errorf("no scheduled collection ran: %+v", s.GC)
	}
	if s.GC.Generations[0].Collected == 0 {
		t.Errorf("scheduled collections reclaimed nothing: %+v", s.GC.Generations)
	}
}

func TestNoLeaksAfterCollect(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	base := in.Stats().Live
	if _, err := exec(t, in, fmt.Sprintf(fibProgram, 10)); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	// 函数与全局名字空间互相引用
	ts, err := in.NewThread()
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	if _, err := ts.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	ts.Close()

	if live := in.Stats().Live; live != base {
		t.Errorf("live objects = %d, want %d", live, base)
	}
}

func TestWeakRefCallback(t *testing.T) {
	src := `
.func cb w
    LOAD_GLOBAL print
    LOAD_CONST "dead"
    CALL_FUNCTION 1
    POP_TOP
.end
    BUILD_LIST 0
    STORE_GLOBAL x
    LOAD_GLOBAL weakref
    LOAD_GLOBAL x
    LOAD_CONST @cb
    MAKE_FUNCTION
    CALL_FUNCTION 2
    STORE_GLOBAL w
    LOAD_GLOBAL w
    CALL_FUNCTION 0
    LOAD_GLOBAL x
    IS_OP 0
    POP_JUMP_IF_FALSE fail
    LOAD_CONST None
    STORE_GLOBAL x
    LOAD_GLOBAL w
    CALL_FUNCTION 0
    LOAD_CONST None
    IS_OP 0
    RETURN_VALUE
fail:
    LOAD_CONST "alive referent not returned"
    RETURN_VALUE
`
	in, out := newTestInterp(t, nil)
	defer closeInterp(t, in)

	got, err := exec(t, in, src)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got != "True" {
		t.Errorf("w() after death = %s", got)
	}
	if out.String() != "dead\n" {
		t.Errorf("callback output = %q", out.String())
	}
}

// ============================================================================
// 中断
// ============================================================================

const spinProgram = `
loop:
    JUMP_ABSOLUTE loop
`

func TestInterrupt(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	code := assemble(t, spinProgram)
	started := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- func() error {
			ts, err := in.NewThread()
			if err != nil {
				close(started)
				return err
			}
			defer ts.Close()
			close(started)
			_, err = ts.Exec(context.Background(), code)
			return err
		}()
	}()

	<-started
	in.Interrupt()
	select {
	case err := <-errc:
		expectException(t, err, "KeyboardInterrupt")
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt was not delivered")
	}
	if in.Stats().Eval.Interruptions != 1 {
		t.Errorf("interruptions = %d", in.Stats().Eval.Interruptions)
	}
}

func TestContextCancel(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := execContext(ctx, t, in, spinProgram)
	expectException(t, err, "KeyboardInterrupt")
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("errors.Is(err, DeadlineExceeded) = false: %v", err)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := execContext(ctx, t, in, "LOAD_GLOBAL sleep\nLOAD_CONST 10000\nCALL_FUNCTION 1\nRETURN_VALUE")
	expectException(t, err, "KeyboardInterrupt")
	if time.Since(start) > 5*time.Second {
		t.Error("sleep ignored cancellation")
	}
}

// ============================================================================
// 生命周期
// ============================================================================

func TestCloseWithLiveThread(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	ts, err := in.NewThread()
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	if err := in.Close(); err == nil {
		t.Error("Close should fail while a thread is attached")
	}
	ts.Close()
}

func TestNewThreadAfterClose(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	closeInterp(t, in)
	if _, err := in.NewThread(); err == nil {
		t.Error("NewThread on a closed interpreter should fail")
	}
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Eval.CheckInterval = 0
	if _, err := New(cfg); err == nil {
		t.Error("New should reject an invalid config")
	}
}

// ============================================================================
// 执行档案
// ============================================================================

func TestProfileReport(t *testing.T) {
	in, _ := newTestInterp(t, nil, WithProfile(true))
	defer closeInterp(t, in)

	if _, err := exec(t, in, fmt.Sprintf(fibProgram, 17)); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	r := in.Profile().Report()
	if len(r.Functions) != 1 || r.Functions[0].Name != "fib" || r.Functions[0].Calls != 5167 {
		t.Errorf("functions = %+v, want fib with 5167 calls", r.Functions)
	}
	if r.Functions[0].State != HotspotWarm {
		t.Errorf("fib state = %s, want warm", r.Functions[0].State)
	}
	if len(r.Opcodes) == 0 || r.Opcodes[0].Count < r.Opcodes[len(r.Opcodes)-1].Count {
		t.Errorf("opcodes not sorted: %+v", r.Opcodes)
	}
}

func TestProfileDisabled(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)
	if in.Profile() != nil {
		t.Error("profile should be nil unless enabled")
	}
}
