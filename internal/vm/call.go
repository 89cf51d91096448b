package vm

import (
	"github.com/tangzhangming/novacore/internal/i18n"
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 调用
// ============================================================================

// call 调用 fn，args 为借用引用，返回新引用
func (ts *ThreadState) call(fn object.Object, args []object.Object) (object.Object, error) {
	ts.stats.calls.Inc()
	if f, ok := fn.(*object.Function); ok {
		return ts.callFunction(f, args)
	}
	return object.Call(ts.obj, fn, args)
}

// callFunction 为用户函数压入新帧并执行到返回
func (ts *ThreadState) callFunction(fn *object.Function, args []object.Object) (object.Object, error) {
	t := ts.obj
	unit := fn.Code.Unit
	if len(args) != unit.ArgCount {
		return nil, t.Raisef(object.ExcTypeError, i18n.ErrArgumentCount, unit.Name, unit.ArgCount, len(args))
	}

	if p := ts.interp.profile; p != nil {
		p.recordCall(unit)
	}

	locals := getSlots(unit.NLocals)
	for i, a := range args {
		locals[i] = t.NewRef(a)
	}
	f, err := ts.PushFrame(fn.Code, fn, fn.Globals, locals)
	if err != nil {
		return nil, err
	}
	return ts.eval(f)
}

// Call 从 Go 代码调用可调用对象（借用 args，返回新引用）
func (ts *ThreadState) Call(fn object.Object, args ...object.Object) (object.Object, error) {
	return ts.call(fn, args)
}
