package vm

import (
	"github.com/tangzhangming/novacore/internal/bytecode"
	"github.com/tangzhangming/novacore/internal/errors"
	"github.com/tangzhangming/novacore/internal/i18n"
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 块栈
// ============================================================================

// BlockKind 块类型
type BlockKind uint8

const (
	BlockLoop          BlockKind = iota // SETUP_LOOP
	BlockExcept                         // SETUP_EXCEPT
	BlockFinally                        // SETUP_FINALLY
	BlockExceptHandler                  // 正在执行处理器
)

var blockKindNames = [...]string{"loop", "except", "finally", "except-handler"}

func (k BlockKind) String() string {
	if int(k) < len(blockKindNames) {
		return blockKindNames[k]
	}
	return "unknown"
}

// Block 块栈条目
type Block struct {
	Kind    BlockKind
	Handler int // 处理器或循环出口的指令下标
	Level   int // 进入块时的操作数栈深度
}

// MaxBlocks 每帧块栈容量
const MaxBlocks = bytecode.MaxBlocks

// ============================================================================
// 帧
// ============================================================================

// Frame 一次代码执行的活动记录
//
// 帧持有 code、函数与全局字典的引用，局部变量与操作数栈中的对象都是计数引用。
type Frame struct {
	Code     *object.Code
	Func     *object.Function // 模块代码为 nil
	Globals  *object.Dict
	Builtins *object.Dict

	unit   *bytecode.Code
	locals []object.Object
	stack  []object.Object // 容量固定为 MaxStack
	sp     int

	blocks  [MaxBlocks]Block
	nblocks int

	ip    int // 下一条指令
	lasti int // 正在执行的指令

	retval object.Object // 正在返回的值（经过 finally 时暂存）
	back   *Frame
}

// Back 返回调用者的帧
func (f *Frame) Back() *Frame {
	return f.back
}

// Name 返回代码名
func (f *Frame) Name() string {
	return f.unit.Name
}

// Line 返回正在执行的源码行号
func (f *Frame) Line() int {
	return f.unit.Line(f.lasti)
}

// IP 返回正在执行的指令下标
func (f *Frame) IP() int {
	return f.lasti
}

// StackDepth 返回操作数栈当前深度
func (f *Frame) StackDepth() int {
	return f.sp
}

// BlockDepth 返回块栈当前深度
func (f *Frame) BlockDepth() int {
	return f.nblocks
}

// Local 返回第 i 个局部变量（借用引用，未绑定时为 nil）
func (f *Frame) Local(i int) object.Object {
	return f.locals[i]
}

// ========== 操作数栈 ==========

// push 压栈，接管 o 的引用
func (f *Frame) push(o object.Object) {
	if f.sp == len(f.stack) {
		errors.Fatal(errors.F0200, f.unit.Name, len(f.stack))
		return
	}
	f.stack[f.sp] = o
	f.sp++
}

// pop 弹栈，引用转交给调用方
func (f *Frame) pop() object.Object {
	if f.sp == 0 {
		errors.Fatal(errors.F0201, f.unit.Name)
		return nil
	}
	f.sp--
	o := f.stack[f.sp]
	f.stack[f.sp] = nil
	return o
}

// top 返回栈顶（借用引用）
func (f *Frame) top() object.Object {
	return f.peek(0)
}

// peek 返回距栈顶 n 处的元素（借用引用）
func (f *Frame) peek(n int) object.Object {
	if n >= f.sp {
		errors.Fatal(errors.F0201, f.unit.Name)
		return nil
	}
	return f.stack[f.sp-1-n]
}

// popN 弹出 n 个元素，按压栈顺序返回；结果与栈共享底层数组，下一次压栈前有效
func (f *Frame) popN(n int) []object.Object {
	if n > f.sp {
		errors.Fatal(errors.F0201, f.unit.Name)
		return nil
	}
	f.sp -= n
	return f.stack[f.sp : f.sp+n]
}

// rot 把栈顶元素下移到第 n 个位置，其余 n-1 个元素各上移一格
func (f *Frame) rot(n int) {
	if n > f.sp {
		errors.Fatal(errors.F0201, f.unit.Name)
		return
	}
	s := f.stack[f.sp-n : f.sp]
	top := s[n-1]
	copy(s[1:], s[:n-1])
	s[0] = top
}

// unwindStack 弹出并释放栈上高于 level 的元素
func (f *Frame) unwindStack(t *object.Thread, level int) {
	if level > f.sp {
		errors.Fatal(errors.F0202, f.unit.Name)
		return
	}
	for f.sp > level {
		f.sp--
		o := f.stack[f.sp]
		f.stack[f.sp] = nil
		t.XDecref(o)
	}
}

// ========== 块栈 ==========

// pushBlock 压入块；块栈满时返回 SystemError
func (f *Frame) pushBlock(t *object.Thread, kind BlockKind, handler int) error {
	if f.nblocks == MaxBlocks {
		return t.Raisef(object.ExcSystemError, i18n.ErrTooManyBlocks)
	}
	f.blocks[f.nblocks] = Block{Kind: kind, Handler: handler, Level: f.sp}
	f.nblocks++
	return nil
}

// popBlock 弹出块
func (f *Frame) popBlock() Block {
	if f.nblocks == 0 {
		errors.Fatal(errors.F0202, f.unit.Name)
	}
	f.nblocks--
	return f.blocks[f.nblocks]
}

// topBlock 返回块栈顶
func (f *Frame) topBlock() *Block {
	return &f.blocks[f.nblocks-1]
}

// ============================================================================
// 帧的压入与弹出
// ============================================================================

// PushFrame 为 code 创建帧并设为当前帧
//
// locals 的引用被接管（失败时同样释放），长度不足 NLocals 时补齐。
// 调用深度超过上限时返回 RecursionError。
func (ts *ThreadState) PushFrame(code *object.Code, fn *object.Function, globals *object.Dict, locals []object.Object) (*Frame, error) {
	t := ts.obj
	if ts.depth >= ts.interp.cfg.Eval.RecursionLimit {
		t.DecrefAll(locals)
		return nil, t.Raisef(object.ExcRecursionError, i18n.ErrRecursionLimit)
	}

	unit := code.Unit
	if len(locals) < unit.NLocals {
		grown := getSlots(unit.NLocals)
		copy(grown, locals)
		putSlots(locals)
		locals = grown
	}

	t.Incref(code)
	if fn != nil {
		t.Incref(fn)
	}
	t.Incref(globals)
	f := &Frame{
		Code:     code,
		Func:     fn,
		Globals:  globals,
		Builtins: ts.interp.builtins,
		unit:     unit,
		locals:   locals,
		stack:    getSlots(unit.MaxStack),
		back:     ts.frame,
	}
	ts.frame = f
	ts.depth++
	ts.stats.framesPushed.Inc()
	return f, nil
}

// PopFrame 弹出当前帧并释放它持有的全部引用
func (ts *ThreadState) PopFrame(f *Frame) {
	if ts.frame != f {
		errors.Fatal(errors.F0202, f.unit.Name)
		return
	}
	t := ts.obj
	f.unwindStack(t, 0)
	for f.nblocks > 0 {
		if b := f.popBlock(); b.Kind == BlockExceptHandler {
			ts.popHandled()
		}
	}
	if r := f.retval; r != nil {
		f.retval = nil
		t.Decref(r)
	}
	t.DecrefAll(f.locals)
	putSlots(f.locals)
	putSlots(f.stack)
	f.locals, f.stack = nil, nil

	code, fn, globals := f.Code, f.Func, f.Globals
	f.Code, f.Func, f.Globals = nil, nil, nil
	ts.frame = f.back
	f.back = nil
	ts.depth--
	ts.stats.framesPopped.Inc()

	t.Decref(globals)
	if fn != nil {
		t.Decref(fn)
	}
	t.Decref(code)
}
