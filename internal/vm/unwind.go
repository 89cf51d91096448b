package vm

import (
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 块栈展开
// ============================================================================
//
// return、break、continue 与异常都通过 unwind 离开块。finally 处理器在
// 操作数栈上看到以下之一，END_FINALLY 据此恢复被挂起的动作：
//
//	None              正常进入
//	exception         异常（同时压入了 ExceptHandler 块）
//	retval, -1        挂起的 return
//	-2                挂起的 break
//	target, -3        挂起的 continue

// why 离开块的原因
type why int

const (
	whyException why = iota + 1
	whyReturn
	whyBreak
	whyContinue
)

// finally 处理器上的挂起标记
const (
	markReturn   = -1
	markBreak    = -2
	markContinue = -3
)

// unwind 为 w 展开帧 f 的块栈
//
// 找到处理器时设置 ip 并返回 false；块栈耗尽时返回 true，帧应当退出。
// whyException 的异常在 ts.curExc，whyReturn 的返回值在 f.retval；
// 被处理器接收时引用转移到操作数栈上。
func (ts *ThreadState) unwind(f *Frame, w why, target int) (bool, error) {
	t := ts.obj
	for f.nblocks > 0 {
		b := f.topBlock()
		if w == whyContinue && b.Kind == BlockLoop {
			f.ip = target
			return false, nil
		}

		blk := f.popBlock()
		f.unwindStack(t, blk.Level)

		switch blk.Kind {
		case BlockExceptHandler:
			ts.popHandled()

		case BlockLoop:
			if w == whyBreak {
				f.ip = blk.Handler
				return false, nil
			}

		case BlockExcept, BlockFinally:
			if w == whyException {
				exc := ts.curExc
				ts.curExc = nil
				// 刚弹出一个块，这里不会溢出
				_ = f.pushBlock(t, BlockExceptHandler, -1)
				ts.pushHandled(exc)
				f.push(exc)
				f.ip = blk.Handler
				return false, nil
			}
			if blk.Kind == BlockExcept {
				continue
			}
			switch w {
			case whyReturn:
				f.push(f.retval)
				f.retval = nil
				f.push(object.SmallInt(markReturn))
			case whyBreak:
				f.push(object.SmallInt(markBreak))
			case whyContinue:
				n, err := t.NewInt(int64(target))
				if err != nil {
					return false, err
				}
				f.push(n)
				f.push(object.SmallInt(markContinue))
			}
			f.ip = blk.Handler
			return false, nil
		}
	}
	return true, nil
}

// endFinally 执行 END_FINALLY：根据栈顶恢复挂起的动作
//
// 返回值 w 为 0 表示继续顺序执行；exc 非 nil 表示重新抛出（引用已转移）。
func (ts *ThreadState) endFinally(f *Frame) (w why, target int, exc *object.Exception) {
	t := ts.obj
	v := f.pop()
	switch x := v.(type) {
	case *object.NoneObject:
		return 0, 0, nil
	case *object.Exception:
		return whyException, 0, x
	case *object.Int:
		switch x.V {
		case markReturn:
			f.retval = f.pop()
			return whyReturn, 0, nil
		case markBreak:
			return whyBreak, 0, nil
		case markContinue:
			tv := f.pop()
			n, _ := object.AsInt(tv)
			t.Decref(tv)
			return whyContinue, int(n), nil
		}
	}
	t.Decref(v)
	return whyException, 0, t.ExceptionFrom(t.Raise(object.ExcSystemError, "'finally' pops bad exception"))
}
