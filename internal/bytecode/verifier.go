package bytecode

import (
	"fmt"

	"go.uber.org/multierr"
)

// MaxBlocks 每帧块栈的容量
const MaxBlocks = 20

// VerifyError 校验错误
type VerifyError struct {
	Code  string // 代码对象名
	Index int    // 指令下标，-1 表示与具体指令无关
	Op    OpCode
	Msg   string
}

func (e *VerifyError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s: %s", e.Code, e.Index, e.Op, e.Msg)
}

// Verify 校验代码对象及其嵌套的代码常量
//
// 检查操作数范围、跳转目标与静态栈深度。所有问题汇总为一个 multierr 错误返回。
// MaxStack 为 0 时填入计算出的深度，否则要求声明值不小于计算值。
func Verify(code *Code) error {
	return verify(code, 0)
}

func verify(code *Code, depth int) error {
	if code == nil {
		return &VerifyError{Code: "<nil>", Index: -1, Msg: "nil code object"}
	}
	if depth > 64 {
		return &VerifyError{Code: code.Name, Index: -1, Msg: "code constants nested too deeply"}
	}

	var err error
	fail := func(ip int, format string, args ...interface{}) {
		e := &VerifyError{Code: code.Name, Index: ip, Msg: fmt.Sprintf(format, args...)}
		if ip >= 0 {
			e.Op = code.Instructions[ip].Op
		}
		err = multierr.Append(err, e)
	}

	n := len(code.Instructions)
	if n == 0 {
		fail(-1, "empty code")
	}
	if len(code.Lines) != 0 && len(code.Lines) != n {
		fail(-1, "line table has %d entries for %d instructions", len(code.Lines), n)
	}
	if code.ArgCount < 0 || code.NLocals < 0 || code.MaxStack < 0 {
		fail(-1, "negative counts")
	}
	if code.ArgCount > code.NLocals {
		fail(-1, "argcount %d exceeds nlocals %d", code.ArgCount, code.NLocals)
	}
	if len(code.VarNames) > code.NLocals {
		fail(-1, "%d variable names for %d locals", len(code.VarNames), code.NLocals)
	}

	for ip, in := range code.Instructions {
		if !in.Op.Valid() {
			fail(ip, "unknown opcode")
			continue
		}
		arg := int(in.Arg)
		switch in.Op {
		case OpLoadConst:
			if arg < 0 || arg >= len(code.Consts) {
				fail(ip, "constant index %d out of range [0, %d)", arg, len(code.Consts))
			}
		case OpLoadFast, OpStoreFast, OpDeleteFast:
			if arg < 0 || arg >= code.NLocals {
				fail(ip, "local slot %d out of range [0, %d)", arg, code.NLocals)
			}
		case OpLoadGlobal, OpStoreGlobal:
			if arg < 0 || arg >= len(code.Names) {
				fail(ip, "name index %d out of range [0, %d)", arg, len(code.Names))
			}
		case OpCompareOp:
			if arg < CmpLT || arg > CmpGE {
				fail(ip, "bad comparison %d", arg)
			}
		case OpIsOp, OpContainsOp, OpRaiseVarargs:
			if arg != 0 && arg != 1 {
				fail(ip, "argument must be 0 or 1, got %d", arg)
			}
		case OpBuildList, OpBuildTuple, OpBuildMap, OpCallFunction:
			if arg < 0 {
				fail(ip, "negative count %d", arg)
			}
		case OpListAppend:
			if arg < 1 {
				fail(ip, "list depth must be positive, got %d", arg)
			}
		}
		if in.Op.IsJump() && (arg < 0 || arg >= n) {
			fail(ip, "jump target %d out of range [0, %d)", arg, n)
		}
	}

	if err == nil {
		computed, errs := StackDepth(code)
		err = multierr.Combine(errs...)
		switch {
		case code.MaxStack == 0:
			code.MaxStack = computed
		case code.MaxStack < computed:
			fail(-1, "declared max stack %d below computed %d", code.MaxStack, computed)
		}
	}

	for i, c := range code.Consts {
		switch c.Kind {
		case ConstNone, ConstBool, ConstInt, ConstStr:
		case ConstCode:
			if c.Code == nil {
				fail(-1, "constant %d: nil code", i)
				continue
			}
			err = multierr.Append(err, verify(c.Code, depth+1))
		default:
			fail(-1, "constant %d: unknown kind %d", i, c.Kind)
		}
	}
	return err
}
