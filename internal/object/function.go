package object

import (
	"fmt"

	"github.com/tangzhangming/novacore/internal/bytecode"
)

// ============================================================================
// code
// ============================================================================

// Code 编译单元的对象包装，常量表在创建时转换为对象
type Code struct {
	Header
	Unit   *bytecode.Code
	Consts []Object
}

// CodeType code 的类型描述符
var CodeType = &Type{}

func init() {
	*CodeType = Type{
		Name:      "code",
		BasicSize: 64,
		Dealloc: func(t *Thread, o Object) {
			c := o.(*Code)
			consts := c.Consts
			c.Consts = nil
			t.DecrefAll(consts)
		},
		Repr: func(o Object, p *Printer) {
			u := o.(*Code).Unit
			p.Printf("<code object %s, file %q, line %d>", u.Name, u.Filename, u.FirstLine)
		},
	}
}

// NewCode 把编译单元（及其嵌套单元）转换为 code 对象
//
// 单元先经过 bytecode.Verify，校验失败时返回 SystemError。
func (t *Thread) NewCode(unit *bytecode.Code) (*Code, error) {
	if err := bytecode.Verify(unit); err != nil {
		return nil, t.Raise(ExcSystemError, err.Error())
	}
	return t.newCode(unit)
}

func (t *Thread) newCode(unit *bytecode.Code) (*Code, error) {
	consts := make([]Object, 0, len(unit.Consts))
	fail := func(err error) (*Code, error) {
		t.DecrefAll(consts)
		return nil, err
	}
	for _, k := range unit.Consts {
		var (
			o   Object
			err error
		)
		switch k.Kind {
		case bytecode.ConstNone:
			o = None
		case bytecode.ConstBool:
			o = BoolOf(k.Int != 0)
		case bytecode.ConstInt:
			o, err = t.NewInt(k.Int)
		case bytecode.ConstStr:
			o, err = t.NewStr(k.Str)
		case bytecode.ConstCode:
			var c *Code
			if c, err = t.newCode(k.Code); err == nil {
				o = c
			}
		default:
			err = fmt.Errorf("%s: unknown constant kind %d", unit.Name, k.Kind)
		}
		if err != nil {
			return fail(err)
		}
		consts = append(consts, o)
	}
	c := &Code{Unit: unit, Consts: consts}
	if err := t.Alloc(CodeType, c); err != nil {
		return fail(err)
	}
	return c, nil
}

// ============================================================================
// function
// ============================================================================

// Function 用户函数：代码加上定义时的全局字典
type Function struct {
	Header
	Code    *Code
	Globals *Dict
	Name    string
}

// FunctionType function 的类型描述符
var FunctionType = &Type{}

func init() {
	*FunctionType = Type{
		Name:      "function",
		BasicSize: 64,
		Flags:     HaveGC | WeakRefable,
		Dealloc: func(t *Thread, o Object) {
			o.(*Function).drop(t)
		},
		Traverse: func(o Object, visit func(Object) error) error {
			f := o.(*Function)
			if f.Code != nil {
				if err := visit(f.Code); err != nil {
					return err
				}
			}
			if f.Globals != nil {
				return visit(f.Globals)
			}
			return nil
		},
		Clear: func(t *Thread, o Object) error {
			o.(*Function).drop(t)
			return nil
		},
		Repr: func(o Object, p *Printer) {
			p.Printf("<function %s>", o.(*Function).Name)
		},
	}
}

// NewFunction 创建函数（增加 code 与 globals 的引用计数）
func (t *Thread) NewFunction(code *Code, globals *Dict) (*Function, error) {
	t.Incref(code)
	t.Incref(globals)
	f := &Function{Code: code, Globals: globals, Name: code.Unit.Name}
	if err := t.Alloc(FunctionType, f); err != nil {
		t.Decref(code)
		t.Decref(globals)
		return nil, err
	}
	return f, nil
}

func (f *Function) drop(t *Thread) {
	code, globals := f.Code, f.Globals
	f.Code, f.Globals = nil, nil
	if code != nil {
		t.Decref(code)
	}
	if globals != nil {
		t.Decref(globals)
	}
}

// ============================================================================
// builtin_function
// ============================================================================

// BuiltinFunc 内建函数实现，args 为借用引用，返回新引用
type BuiltinFunc func(t *Thread, args []Object) (Object, error)

// Builtin 内建函数，不朽对象
type Builtin struct {
	Header
	Name string
	Fn   BuiltinFunc
}

// BuiltinType builtin_function 的类型描述符
var BuiltinType = &Type{}

func init() {
	*BuiltinType = Type{
		Name:      "builtin_function",
		BasicSize: 48,
		Flags:     Immortal,
		Repr: func(o Object, p *Printer) {
			p.Printf("<built-in function %s>", o.(*Builtin).Name)
		},
		Call: func(t *Thread, callee Object, args []Object) (Object, error) {
			return callee.(*Builtin).Fn(t, args)
		},
	}
}

// NewBuiltin 创建不朽的内建函数
func NewBuiltin(name string, fn BuiltinFunc) *Builtin {
	b := &Builtin{Name: name, Fn: fn}
	initStatic(b, BuiltinType)
	return b
}
