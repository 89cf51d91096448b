package object

import (
	"math"

	"github.com/tangzhangming/novacore/internal/i18n"
)

// ============================================================================
// 通用操作
// ============================================================================
//
// 解释循环通过这些函数按类型虚表分派。返回的对象都是新引用，参数都是借用引用。

// Truth 求真值
func Truth(o Object) bool {
	typ := TypeOf(o)
	if typ.Truth != nil {
		return typ.Truth(o)
	}
	if typ.Len != nil {
		return typ.Len(o) > 0
	}
	return true
}

// Binary 二元运算：先试左操作数的类型，再试右操作数的类型
func Binary(t *Thread, op BinaryOp, a, b Object) (Object, error) {
	ta, tb := TypeOf(a), TypeOf(b)
	if ta.Binary != nil {
		r, err := ta.Binary(t, op, a, b)
		if r != nil || err != nil {
			return r, err
		}
	}
	if tb != ta && tb.Binary != nil {
		r, err := tb.Binary(t, op, a, b)
		if r != nil || err != nil {
			return r, err
		}
	}
	return nil, t.Raisef(ExcTypeError, i18n.ErrUnsupportedOperand, op, ta.Name, tb.Name)
}

// Negate 一元取负
func Negate(t *Thread, o Object) (Object, error) {
	v, ok := AsInt(o)
	if !ok {
		return nil, t.Raisef(ExcTypeError, i18n.ErrBadArgument, "unary -", "int", TypeName(o))
	}
	if v == math.MinInt64 {
		return nil, t.Raisef(ExcOverflowError, i18n.ErrOverflow, "-")
	}
	return t.NewInt(-v)
}

// Compare 比较运算
//
// == 与 != 在类型不支持时退化为同一性比较；其余运算报告 TypeError。
func Compare(t *Thread, op CompareOp, a, b Object) (Object, error) {
	ta, tb := TypeOf(a), TypeOf(b)
	if ta.Compare != nil {
		r, err := ta.Compare(t, op, a, b)
		if r != nil || err != nil {
			return r, err
		}
	}
	if tb != ta && tb.Compare != nil {
		r, err := tb.Compare(t, op, a, b)
		if r != nil || err != nil {
			return r, err
		}
	}
	switch op {
	case CmpEQ:
		return BoolOf(a == b), nil
	case CmpNE:
		return BoolOf(a != b), nil
	}
	return nil, t.Raisef(ExcTypeError, i18n.ErrUnorderable, op, ta.Name, tb.Name)
}

// Equal 相等比较
func Equal(t *Thread, a, b Object) (bool, error) {
	if a == b {
		return true, nil
	}
	r, err := Compare(t, CmpEQ, a, b)
	if err != nil {
		return false, err
	}
	eq := Truth(r)
	t.Decref(r)
	return eq, nil
}

// Len 求长度
func Len(t *Thread, o Object) (int, error) {
	typ := TypeOf(o)
	if typ.Len == nil {
		return 0, t.Raisef(ExcTypeError, i18n.ErrNoLen, typ.Name)
	}
	switch c := o.(type) {
	case *List:
		return c.Len(t), nil
	case *Dict:
		return c.Len(t), nil
	}
	return typ.Len(o), nil
}

// GetItem 下标读取
func GetItem(t *Thread, o, key Object) (Object, error) {
	typ := TypeOf(o)
	if typ.GetItem == nil {
		return nil, t.Raisef(ExcTypeError, i18n.ErrNotSubscriptable, typ.Name)
	}
	return typ.GetItem(t, o, key)
}

// SetItem 下标赋值
func SetItem(t *Thread, o, key, value Object) error {
	typ := TypeOf(o)
	if typ.SetItem == nil {
		return t.Raisef(ExcTypeError, i18n.ErrNotSubscriptable, typ.Name)
	}
	return typ.SetItem(t, o, key, value)
}

// Contains 成员测试 item in o
func Contains(t *Thread, o, item Object) (bool, error) {
	typ := TypeOf(o)
	if typ.Contains != nil {
		return typ.Contains(t, o, item)
	}
	if typ.Iter == nil {
		return false, t.Raisef(ExcTypeError, i18n.ErrNotIterable, typ.Name)
	}
	it, err := typ.Iter(t, o)
	if err != nil {
		return false, err
	}
	defer t.Decref(it)
	for {
		x, err := Next(t, it)
		if err != nil || x == nil {
			return false, err
		}
		eq, err := Equal(t, x, item)
		t.Decref(x)
		if err != nil || eq {
			return eq, err
		}
	}
}

// Iter 取迭代器
func Iter(t *Thread, o Object) (Object, error) {
	typ := TypeOf(o)
	if typ.Iter == nil {
		return nil, t.Raisef(ExcTypeError, i18n.ErrNotIterable, typ.Name)
	}
	return typ.Iter(t, o)
}

// Next 取下一个元素，迭代结束时返回 (nil, nil)
func Next(t *Thread, it Object) (Object, error) {
	typ := TypeOf(it)
	if typ.Next == nil {
		return nil, t.Raisef(ExcTypeError, i18n.ErrNotIterable, typ.Name)
	}
	return typ.Next(t, it)
}

// Callable 是否可调用
func Callable(o Object) bool {
	if _, ok := o.(*Function); ok {
		return true
	}
	return TypeOf(o).Call != nil
}

// Call 调用内建可调用对象；用户函数由解释器处理
func Call(t *Thread, callee Object, args []Object) (Object, error) {
	typ := TypeOf(callee)
	if typ.Call == nil {
		return nil, t.Raisef(ExcTypeError, i18n.ErrNotCallable, typ.Name)
	}
	return typ.Call(t, callee, args)
}

// IsInstance isinstance(o, cls) 的对象层部分：只支持异常类
func IsInstance(o Object, cls *ExcClass) bool {
	if e, ok := o.(*Exception); ok {
		return e.Class.IsSubclass(cls)
	}
	return false
}
