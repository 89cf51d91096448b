package object

import (
	"math"
	"strconv"
	"strings"

	"github.com/tangzhangming/novacore/internal/alloc"
	"github.com/tangzhangming/novacore/internal/errors"
	"github.com/tangzhangming/novacore/internal/i18n"
)

// maxSeqBytes 重复运算结果的上限，超过时按内存不足处理
const maxSeqBytes = 1 << 30

// ============================================================================
// None
// ============================================================================

// NoneObject None 的类型
type NoneObject struct {
	Header
}

// NoneType None 的类型描述符
var NoneType = &Type{}

func init() {
	*NoneType = Type{
		Name:      "NoneType",
		BasicSize: 16,
		Flags:     Immortal,
		Repr:      func(o Object, p *Printer) { p.WriteString("None") },
		Truth:     func(Object) bool { return false },
		Hash:      func(Object) (Key, bool) { return Key{kind: keyNone}, true },
	}
}

// None 唯一的 None 对象
var None Object = newNone()

func newNone() *NoneObject {
	n := &NoneObject{}
	initStatic(n, NoneType)
	return n
}

// ============================================================================
// bool
// ============================================================================

// Bool 布尔值，参与整数运算时按 0/1 处理
type Bool struct {
	Header
	V bool
}

// BoolType bool 的类型描述符
var BoolType = &Type{}

func init() {
	*BoolType = Type{
		Name:      "bool",
		BasicSize: 32,
		Flags:     Immortal,
		Repr: func(o Object, p *Printer) {
			if o.(*Bool).V {
				p.WriteString("True")
			} else {
				p.WriteString("False")
			}
		},
		Truth:   func(o Object) bool { return o.(*Bool).V },
		Hash:    intHash,
		Binary:  intBinary,
		Compare: intCompare,
	}
}

var (
	True  Object = newBool(true)
	False Object = newBool(false)
)

func newBool(v bool) *Bool {
	b := &Bool{V: v}
	initStatic(b, BoolType)
	return b
}

// BoolOf 返回 True 或 False（不朽对象，无需计数）
func BoolOf(v bool) Object {
	if v {
		return True
	}
	return False
}

// ============================================================================
// int
// ============================================================================

// Int 64 位整数
type Int struct {
	Header
	V int64
}

const (
	smallIntMin = -5
	smallIntMax = 256
)

// IntType int 的类型描述符
var IntType = &Type{}

func init() {
	*IntType = Type{
		Name:      "int",
		BasicSize: 32,
		Repr:      func(o Object, p *Printer) { p.WriteString(strconv.FormatInt(o.(*Int).V, 10)) },
		Truth:     func(o Object) bool { return o.(*Int).V != 0 },
		Hash:      intHash,
		Binary:    intBinary,
		Compare:   intCompare,
	}
}

var smallInts = func() [smallIntMax - smallIntMin + 1]*Int {
	var tbl [smallIntMax - smallIntMin + 1]*Int
	for i := range tbl {
		n := &Int{V: int64(i + smallIntMin)}
		initStatic(n, IntType)
		tbl[i] = n
	}
	return tbl
}()

// NewInt 返回整数对象的新引用；-5..256 是共享的不朽对象
func (t *Thread) NewInt(v int64) (Object, error) {
	if v >= smallIntMin && v <= smallIntMax {
		return smallInts[v-smallIntMin], nil
	}
	n := &Int{V: v}
	if err := t.Alloc(IntType, n); err != nil {
		return nil, err
	}
	return n, nil
}

// SmallInt 返回小整数缓存中的对象，v 必须在 -5..256 之内
func SmallInt(v int64) Object {
	if v < smallIntMin || v > smallIntMax {
		errors.Fatal(errors.F0004, v, smallIntMin, smallIntMax)
		return nil
	}
	return smallInts[v-smallIntMin]
}

// AsInt 把 int 或 bool 转为 int64
func AsInt(o Object) (int64, bool) {
	switch v := o.(type) {
	case *Int:
		return v.V, true
	case *Bool:
		if v.V {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func intHash(o Object) (Key, bool) {
	v, _ := AsInt(o)
	return Key{kind: keyInt, i: v}, true
}

func intBinary(t *Thread, op BinaryOp, a, b Object) (Object, error) {
	x, ok1 := AsInt(a)
	y, ok2 := AsInt(b)
	if !ok1 || !ok2 {
		return nil, nil
	}
	var r int64
	switch op {
	case OpAdd:
		r = x + y
		if (x > 0 && y > 0 && r < 0) || (x < 0 && y < 0 && r >= 0) {
			return nil, t.Raisef(ExcOverflowError, i18n.ErrOverflow, op)
		}
	case OpSub:
		r = x - y
		if (x >= 0 && y < 0 && r < 0) || (x < 0 && y > 0 && r >= 0) {
			return nil, t.Raisef(ExcOverflowError, i18n.ErrOverflow, op)
		}
	case OpMul:
		r = x * y
		if x != 0 && (r/x != y || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64)) {
			return nil, t.Raisef(ExcOverflowError, i18n.ErrOverflow, op)
		}
	case OpFloorDiv:
		if y == 0 {
			return nil, t.Raisef(ExcZeroDivisionError, i18n.ErrDivisionByZero)
		}
		if x == math.MinInt64 && y == -1 {
			return nil, t.Raisef(ExcOverflowError, i18n.ErrOverflow, op)
		}
		r = x / y
		if x%y != 0 && (x < 0) != (y < 0) {
			r--
		}
	case OpMod:
		if y == 0 {
			return nil, t.Raisef(ExcZeroDivisionError, i18n.ErrDivisionByZero)
		}
		if y == -1 {
			r = 0
			break
		}
		r = x % y
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
	default:
		return nil, nil
	}
	return t.NewInt(r)
}

func intCompare(t *Thread, op CompareOp, a, b Object) (Object, error) {
	x, ok1 := AsInt(a)
	y, ok2 := AsInt(b)
	if !ok1 || !ok2 {
		return nil, nil
	}
	return BoolOf(compareOrdered(op, x, y)), nil
}

func compareOrdered[T int64 | string](op CompareOp, x, y T) bool {
	switch op {
	case CmpLT:
		return x < y
	case CmpLE:
		return x <= y
	case CmpEQ:
		return x == y
	case CmpNE:
		return x != y
	case CmpGT:
		return x > y
	case CmpGE:
		return x >= y
	}
	return false
}

// ============================================================================
// str
// ============================================================================

// Str 不可变字符串
type Str struct {
	Header
	S string
}

// StrType str 的类型描述符
var StrType = &Type{}

func init() {
	*StrType = Type{
		Name:      "str",
		BasicSize: 48,
		ItemSize:  1,
		Flags:     Sequence,
		Repr:      func(o Object, p *Printer) { p.WriteString(strconv.Quote(o.(*Str).S)) },
		Str:       func(o Object) string { return o.(*Str).S },
		Truth:     func(o Object) bool { return o.(*Str).S != "" },
		Hash:      func(o Object) (Key, bool) { return Key{kind: keyStr, s: o.(*Str).S}, true },
		Len:       func(o Object) int { return len([]rune(o.(*Str).S)) },
		Binary: func(t *Thread, op BinaryOp, a, b Object) (Object, error) {
			switch op {
			case OpAdd:
				x, ok1 := a.(*Str)
				y, ok2 := b.(*Str)
				if !ok1 || !ok2 {
					return nil, nil
				}
				return t.NewStr(x.S + y.S)
			case OpMul:
				s, n, ok := strTimes(a, b)
				if !ok {
					return nil, nil
				}
				if n < 0 {
					n = 0
				}
				if int64(len(s))*n > maxSeqBytes {
					return nil, alloc.ErrNoMemory
				}
				out := make([]byte, 0, len(s)*int(n))
				for i := int64(0); i < n; i++ {
					out = append(out, s...)
				}
				return t.NewStr(string(out))
			}
			return nil, nil
		},
		Compare: func(t *Thread, op CompareOp, a, b Object) (Object, error) {
			x, ok1 := a.(*Str)
			y, ok2 := b.(*Str)
			if !ok1 || !ok2 {
				return nil, nil
			}
			return BoolOf(compareOrdered(op, x.S, y.S)), nil
		},
		GetItem: func(t *Thread, o, key Object) (Object, error) {
			r := []rune(o.(*Str).S)
			i, err := t.seqIndex(key, len(r), "string")
			if err != nil {
				return nil, err
			}
			return t.NewStr(string(r[i]))
		},
		Contains: func(t *Thread, o, item Object) (bool, error) {
			sub, ok := item.(*Str)
			if !ok {
				return false, t.Raisef(ExcTypeError, i18n.ErrBadArgument, "in", "str", TypeName(item))
			}
			return strings.Contains(o.(*Str).S, sub.S), nil
		},
		Iter: func(t *Thread, o Object) (Object, error) {
			return t.newSeqIter(StrIterType, o)
		},
	}
}

func strTimes(a, b Object) (string, int64, bool) {
	if s, ok := a.(*Str); ok {
		if n, ok := AsInt(b); ok {
			return s.S, n, true
		}
	}
	if s, ok := b.(*Str); ok {
		if n, ok := AsInt(a); ok {
			return s.S, n, true
		}
	}
	return "", 0, false
}

// NewStr 创建字符串对象
func (t *Thread) NewStr(s string) (Object, error) {
	o := &Str{S: s}
	if err := t.AllocVar(StrType, o, len(s)); err != nil {
		return nil, err
	}
	return o, nil
}
