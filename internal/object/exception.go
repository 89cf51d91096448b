package object

import (
	"strings"

	"github.com/tangzhangming/novacore/internal/errors"
)

// ============================================================================
// 异常类
// ============================================================================

// ExcClass 异常类，不朽对象，通过 Base 链表达继承
type ExcClass struct {
	Header
	Name string
	Base *ExcClass
}

// ExcClassType 异常类的类型描述符
var ExcClassType = &Type{}

func init() {
	*ExcClassType = Type{
		Name:      "type",
		BasicSize: 64,
		Flags:     Immortal,
		Repr: func(o Object, p *Printer) {
			p.Printf("<class '%s'>", o.(*ExcClass).Name)
		},
		Hash: func(o Object) (Key, bool) {
			return Key{kind: keyStr, s: "<class>" + o.(*ExcClass).Name}, true
		},
		Call: func(t *Thread, callee Object, args []Object) (Object, error) {
			return t.NewExceptionArgs(callee.(*ExcClass), args)
		},
	}
}

// NewExcClass 创建不朽的异常类
func NewExcClass(name string, base *ExcClass) *ExcClass {
	c := &ExcClass{Name: name, Base: base}
	initStatic(c, ExcClassType)
	return c
}

// IsSubclass c 是否为 base 或其子类
func (c *ExcClass) IsSubclass(base *ExcClass) bool {
	for k := c; k != nil; k = k.Base {
		if k == base {
			return true
		}
	}
	return false
}

// 内建异常类
var (
	ExcBaseException     = NewExcClass("BaseException", nil)
	ExcException         = NewExcClass("Exception", ExcBaseException)
	ExcArithmeticError   = NewExcClass("ArithmeticError", ExcException)
	ExcZeroDivisionError = NewExcClass("ZeroDivisionError", ExcArithmeticError)
	ExcOverflowError     = NewExcClass("OverflowError", ExcArithmeticError)
	ExcLookupError       = NewExcClass("LookupError", ExcException)
	ExcIndexError        = NewExcClass("IndexError", ExcLookupError)
	ExcKeyError          = NewExcClass("KeyError", ExcLookupError)
	ExcTypeError         = NewExcClass("TypeError", ExcException)
	ExcValueError        = NewExcClass("ValueError", ExcException)
	ExcNameError         = NewExcClass("NameError", ExcException)
	ExcUnboundLocalError = NewExcClass("UnboundLocalError", ExcNameError)
	ExcRuntimeError      = NewExcClass("RuntimeError", ExcException)
	ExcRecursionError    = NewExcClass("RecursionError", ExcRuntimeError)
	ExcMemoryError       = NewExcClass("MemoryError", ExcException)
	ExcSystemError       = NewExcClass("SystemError", ExcException)
	ExcStopIteration     = NewExcClass("StopIteration", ExcException)
	ExcKeyboardInterrupt = NewExcClass("KeyboardInterrupt", ExcBaseException)
)

// ExceptionClasses 所有内建异常类，按注册顺序
var ExceptionClasses = []*ExcClass{
	ExcBaseException, ExcException, ExcArithmeticError, ExcZeroDivisionError,
	ExcOverflowError, ExcLookupError, ExcIndexError, ExcKeyError, ExcTypeError,
	ExcValueError, ExcNameError, ExcUnboundLocalError, ExcRuntimeError,
	ExcRecursionError, ExcMemoryError, ExcSystemError, ExcStopIteration,
	ExcKeyboardInterrupt,
}

// ============================================================================
// 异常实例
// ============================================================================

// Exception 异常实例
type Exception struct {
	Header
	Class     *ExcClass
	Args      []Object
	Traceback []errors.TraceEntry
	Context   *Exception // 处理另一个异常时抛出
}

// ExceptionType 异常实例的类型描述符
var ExceptionType = &Type{}

func init() {
	*ExceptionType = Type{
		Name:      "exception",
		BasicSize: 64,
		Flags:     HaveGC | BaseException | WeakRefable,
		Dealloc: func(t *Thread, o Object) {
			o.(*Exception).drop(t)
		},
		Traverse: func(o Object, visit func(Object) error) error {
			e := o.(*Exception)
			for _, a := range e.Args {
				if err := visit(a); err != nil {
					return err
				}
			}
			if e.Context != nil {
				return visit(e.Context)
			}
			return nil
		},
		Clear: func(t *Thread, o Object) error {
			o.(*Exception).drop(t)
			return nil
		},
		Repr: func(o Object, p *Printer) {
			e := o.(*Exception)
			p.WriteString(e.Class.Name)
			p.WriteString("(")
			for i, a := range e.Args {
				if i > 0 {
					p.WriteString(", ")
				}
				p.Write(a)
			}
			p.WriteString(")")
		},
		Str: func(o Object) string {
			return o.(*Exception).Message()
		},
	}
}

// MemoryErrorInstance 预分配的 MemoryError，内存不足时无需再分配
var MemoryErrorInstance = func() *Exception {
	e := &Exception{Class: ExcMemoryError}
	initStatic(e, ExceptionType)
	return e
}()

// NewException 创建异常实例，msg 为空时没有参数
func (t *Thread) NewException(cls *ExcClass, msg string) (*Exception, error) {
	var args []Object
	if msg != "" {
		s, err := t.NewStr(msg)
		if err != nil {
			return nil, err
		}
		args = []Object{s}
	}
	e := &Exception{Class: cls, Args: args}
	if err := t.Alloc(ExceptionType, e); err != nil {
		t.DecrefAll(args)
		return nil, err
	}
	return e, nil
}

// NewExceptionArgs 以调用参数创建异常实例（借用 args）
func (t *Thread) NewExceptionArgs(cls *ExcClass, args []Object) (*Exception, error) {
	owned := make([]Object, len(args))
	for i, a := range args {
		owned[i] = t.NewRef(a)
	}
	e := &Exception{Class: cls, Args: owned}
	if err := t.Alloc(ExceptionType, e); err != nil {
		t.DecrefAll(owned)
		return nil, err
	}
	return e, nil
}

// Message 返回异常消息
func (e *Exception) Message() string {
	switch len(e.Args) {
	case 0:
		return ""
	case 1:
		return StrOf(e.Args[0])
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = Repr(a)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Matches 异常是否属于 cls
func (e *Exception) Matches(cls *ExcClass) bool {
	return e.Class.IsSubclass(cls)
}

// SetContext 设置上下文异常（接管引用）
func (e *Exception) SetContext(t *Thread, ctx *Exception) {
	if e.immortal || ctx == e {
		if ctx != nil {
			t.Decref(ctx)
		}
		return
	}
	old := e.Context
	e.Context = ctx
	if old != nil {
		t.Decref(old)
	}
}

// AddTrace 追加一条回溯记录（不朽的预分配异常不记录）
func (e *Exception) AddTrace(entry errors.TraceEntry) {
	if e.immortal {
		return
	}
	e.Traceback = append(e.Traceback, entry)
}

func (e *Exception) drop(t *Thread) {
	args := e.Args
	e.Args = nil
	ctx := e.Context
	e.Context = nil
	t.DecrefAll(args)
	if ctx != nil {
		t.Decref(ctx)
	}
}
