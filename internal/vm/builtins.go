package vm

import (
	"strings"
	"time"
	"unsafe"

	"github.com/tangzhangming/novacore/internal/gc"
	"github.com/tangzhangming/novacore/internal/i18n"
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 内建函数
// ============================================================================

// builtinFuncs 内建函数表（不朽对象，所有解释器共享）
var builtinFuncs = []*object.Builtin{
	object.NewBuiltin("print", builtinPrint),
	object.NewBuiltin("len", builtinLen),
	object.NewBuiltin("range", builtinRange),
	object.NewBuiltin("repr", builtinRepr),
	object.NewBuiltin("id", builtinID),
	object.NewBuiltin("collect", builtinCollect),
	object.NewBuiltin("sleep", builtinSleep),
	object.NewBuiltin("isinstance", builtinIsInstance),
	object.NewBuiltin("weakref", builtinWeakRef),
}

// newBuiltins 创建内建名字空间：内建函数与内建异常类
func newBuiltins(t *object.Thread) (*object.Dict, error) {
	d, err := t.NewDict()
	if err != nil {
		return nil, err
	}
	for _, b := range builtinFuncs {
		if err := d.SetStr(t, b.Name, b); err != nil {
			t.Decref(d)
			return nil, err
		}
	}
	for _, cls := range object.ExceptionClasses {
		if err := d.SetStr(t, cls.Name, cls); err != nil {
			t.Decref(d)
			return nil, err
		}
	}
	for name, v := range map[string]object.Object{"None": object.None, "True": object.BoolOf(true), "False": object.BoolOf(false)} {
		if err := d.SetStr(t, name, v); err != nil {
			t.Decref(d)
			return nil, err
		}
	}
	return d, nil
}

// threadOf 返回执行内建函数的线程状态
func threadOf(t *object.Thread) *ThreadState {
	ts, _ := t.Owner.(*ThreadState)
	return ts
}

func checkArgs(t *object.Thread, name string, args []object.Object, min, max int) error {
	if len(args) < min || len(args) > max {
		return t.Raisef(object.ExcTypeError, i18n.ErrArgumentCount, name, max, len(args))
	}
	return nil
}

func intArg(t *object.Thread, name string, o object.Object) (int64, error) {
	v, ok := object.AsInt(o)
	if !ok {
		return 0, t.Raisef(object.ExcTypeError, i18n.ErrBadArgument, name, "int", object.TypeName(o))
	}
	return v, nil
}

// print(*args) 以空格连接各参数的 str 并换行
func builtinPrint(t *object.Thread, args []object.Object) (object.Object, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = object.StrOf(a)
	}
	line := strings.Join(parts, " ") + "\n"
	if ts := threadOf(t); ts != nil {
		if err := ts.interp.write(line); err != nil {
			return nil, t.Raise(object.ExcRuntimeError, err.Error())
		}
	}
	return object.None, nil
}

// len(x)
func builtinLen(t *object.Thread, args []object.Object) (object.Object, error) {
	if err := checkArgs(t, "len", args, 1, 1); err != nil {
		return nil, err
	}
	n, err := object.Len(t, args[0])
	if err != nil {
		return nil, err
	}
	return t.NewInt(int64(n))
}

// range(stop) / range(start, stop[, step])
func builtinRange(t *object.Thread, args []object.Object) (object.Object, error) {
	if err := checkArgs(t, "range", args, 1, 3); err != nil {
		return nil, err
	}
	var vals [3]int64
	for i, a := range args {
		v, err := intArg(t, "range", a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	start, stop, step := int64(0), vals[0], int64(1)
	if len(args) > 1 {
		start, stop = vals[0], vals[1]
	}
	if len(args) == 3 {
		step = vals[2]
	}
	r, err := t.NewRange(start, stop, step)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// repr(x)
func builtinRepr(t *object.Thread, args []object.Object) (object.Object, error) {
	if err := checkArgs(t, "repr", args, 1, 1); err != nil {
		return nil, err
	}
	return t.NewStr(object.Repr(args[0]))
}

// id(x) 返回对象头地址
func builtinID(t *object.Thread, args []object.Object) (object.Object, error) {
	if err := checkArgs(t, "id", args, 1, 1); err != nil {
		return nil, err
	}
	return t.NewInt(int64(uintptr(unsafe.Pointer(args[0].Head()))))
}

// collect([gen]) 回收第 gen 代（默认最老一代），返回回收的对象数
func builtinCollect(t *object.Thread, args []object.Object) (object.Object, error) {
	if err := checkArgs(t, "collect", args, 0, 1); err != nil {
		return nil, err
	}
	gen := int64(gc.NumGenerations - 1)
	if len(args) == 1 {
		v, err := intArg(t, "collect", args[0])
		if err != nil {
			return nil, err
		}
		if v < 0 || v >= gc.NumGenerations {
			return nil, t.Raise(object.ExcValueError, "invalid generation")
		}
		gen = v
	}
	ts := threadOf(t)
	if ts == nil {
		return t.NewInt(0)
	}
	res, err := ts.collect(int(gen))
	if err != nil {
		return nil, t.Raise(object.ExcRuntimeError, err.Error())
	}
	return t.NewInt(int64(res.Collected))
}

// sleep(ms) 交出执行权睡眠 ms 毫秒；上下文取消时提前返回
func builtinSleep(t *object.Thread, args []object.Object) (object.Object, error) {
	if err := checkArgs(t, "sleep", args, 1, 1); err != nil {
		return nil, err
	}
	ms, err := intArg(t, "sleep", args[0])
	if err != nil {
		return nil, err
	}
	ts := threadOf(t)
	if ts == nil {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return object.None, nil
	}
	err = ts.blocking(func() {
		timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ts.ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}
	return object.None, nil
}

// isinstance(o, cls) cls 可以是异常类或异常类元组
func builtinIsInstance(t *object.Thread, args []object.Object) (object.Object, error) {
	if err := checkArgs(t, "isinstance", args, 2, 2); err != nil {
		return nil, err
	}
	var classes []object.Object
	switch c := args[1].(type) {
	case *object.ExcClass:
		classes = []object.Object{c}
	case *object.Tuple:
		classes = c.Items
	default:
		return nil, t.Raisef(object.ExcTypeError, i18n.ErrBadArgument, "isinstance", "a class or tuple of classes", object.TypeName(args[1]))
	}
	for _, k := range classes {
		kc, ok := k.(*object.ExcClass)
		if !ok {
			return nil, t.Raisef(object.ExcTypeError, i18n.ErrBadArgument, "isinstance", "a class or tuple of classes", object.TypeName(k))
		}
		if object.IsInstance(args[0], kc) {
			return object.BoolOf(true), nil
		}
	}
	return object.BoolOf(false), nil
}

// weakref(o[, callback]) 创建弱引用
func builtinWeakRef(t *object.Thread, args []object.Object) (object.Object, error) {
	if err := checkArgs(t, "weakref", args, 1, 2); err != nil {
		return nil, err
	}
	var cb object.Object
	if len(args) == 2 && args[1] != object.None {
		cb = args[1]
	}
	w, err := t.NewWeakRef(args[0], cb)
	if err != nil {
		return nil, err
	}
	return w, nil
}
