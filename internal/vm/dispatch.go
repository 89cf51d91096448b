package vm

import (
	"github.com/tangzhangming/novacore/internal/bytecode"
	"github.com/tangzhangming/novacore/internal/i18n"
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 分派循环
// ============================================================================

// eval 执行帧 f 直到返回或异常逃出
//
// f 必须是当前帧；返回前 f 已被弹出。返回值是新引用，
// 逃出的异常以 *object.Raised 返回并持有引用。
func (ts *ThreadState) eval(f *Frame) (object.Object, error) {
	t := ts.obj
	unit := f.unit
	code := unit.Instructions
	consts := f.Code.Consts
	prof := ts.interp.profile

	for {
		var (
			err     error
			exc     *object.Exception
			reraise bool
		)

		if f.ip >= len(code) {
			err = t.Raisef(object.ExcSystemError, i18n.ErrIPOutOfBounds, f.ip)
			f.ip = len(code) - 1
			goto handle
		}

		f.lasti = f.ip
		ts.stats.instructions.Inc()
		if ts.ticks--; ts.ticks <= 0 {
			if err = ts.checkpoint(); err != nil {
				goto handle
			}
		}

		{
			ins := code[f.ip]
			arg := int(ins.Arg)
			f.ip++
			if prof != nil {
				prof.recordOp(ins.Op)
			}

			switch ins.Op {
			case bytecode.OpNop:

			// ========== 栈操作 ==========

			case bytecode.OpPopTop:
				t.Decref(f.pop())

			case bytecode.OpRotTwo:
				f.rot(2)

			case bytecode.OpRotThree:
				f.rot(3)

			case bytecode.OpDupTop:
				f.push(t.NewRef(f.top()))

			// ========== 常量与变量 ==========

			case bytecode.OpLoadConst:
				f.push(t.NewRef(consts[arg]))

			case bytecode.OpLoadFast:
				v := f.locals[arg]
				if v == nil {
					err = t.Raisef(object.ExcUnboundLocalError, i18n.ErrUnboundLocal, unit.VarNames[arg])
					break
				}
				f.push(t.NewRef(v))

			case bytecode.OpStoreFast:
				old := f.locals[arg]
				f.locals[arg] = f.pop()
				t.XDecref(old)

			case bytecode.OpDeleteFast:
				old := f.locals[arg]
				if old == nil {
					err = t.Raisef(object.ExcUnboundLocalError, i18n.ErrUnboundLocal, unit.VarNames[arg])
					break
				}
				f.locals[arg] = nil
				t.Decref(old)

			case bytecode.OpLoadGlobal:
				name := unit.Names[arg]
				v, ok := f.Globals.GetStr(t, name)
				if !ok {
					v, ok = f.Builtins.GetStr(t, name)
				}
				if !ok {
					err = t.Raisef(object.ExcNameError, i18n.ErrUndefinedName, name)
					break
				}
				f.push(v)

			case bytecode.OpStoreGlobal:
				v := f.pop()
				err = f.Globals.SetStr(t, unit.Names[arg], v)
				t.Decref(v)

			// ========== 运算 ==========

			case bytecode.OpUnaryNegative:
				v := f.pop()
				var r object.Object
				r, err = object.Negate(t, v)
				t.Decref(v)
				if err == nil {
					f.push(r)
				}

			case bytecode.OpUnaryNot:
				v := f.pop()
				r := object.BoolOf(!object.Truth(v))
				t.Decref(v)
				f.push(r)

			case bytecode.OpBinaryAdd, bytecode.OpBinarySubtract, bytecode.OpBinaryMultiply,
				bytecode.OpBinaryFloorDivide, bytecode.OpBinaryModulo:
				b := f.pop()
				a := f.pop()
				var r object.Object
				r, err = object.Binary(t, binaryOps[ins.Op], a, b)
				t.Decref(a)
				t.Decref(b)
				if err == nil {
					f.push(r)
				}

			case bytecode.OpCompareOp:
				b := f.pop()
				a := f.pop()
				var r object.Object
				r, err = object.Compare(t, object.CompareOp(arg), a, b)
				t.Decref(a)
				t.Decref(b)
				if err == nil {
					f.push(r)
				}

			case bytecode.OpIsOp:
				b := f.pop()
				a := f.pop()
				r := object.BoolOf((a == b) != (arg == 1))
				t.Decref(a)
				t.Decref(b)
				f.push(r)

			case bytecode.OpContainsOp:
				container := f.pop()
				item := f.pop()
				var in bool
				in, err = object.Contains(t, container, item)
				t.Decref(container)
				t.Decref(item)
				if err == nil {
					f.push(object.BoolOf(in != (arg == 1)))
				}

			// ========== 容器 ==========

			case bytecode.OpBuildList:
				items := make([]object.Object, arg)
				copy(items, f.popN(arg))
				clearSlots(f.stack[f.sp : f.sp+arg])
				var l *object.List
				if l, err = t.NewList(items); err == nil {
					f.push(l)
				}

			case bytecode.OpBuildTuple:
				items := make([]object.Object, arg)
				copy(items, f.popN(arg))
				clearSlots(f.stack[f.sp : f.sp+arg])
				var tp *object.Tuple
				if tp, err = t.NewTuple(items); err == nil {
					f.push(tp)
				}

			case bytecode.OpBuildMap:
				pairs := f.popN(2 * arg)
				var d *object.Dict
				if d, err = t.NewDict(); err == nil {
					for i := 0; i < arg && err == nil; i++ {
						err = d.Set(t, pairs[2*i], pairs[2*i+1])
					}
				}
				t.DecrefAll(pairs)
				if err != nil {
					if d != nil {
						t.Decref(d)
					}
					break
				}
				f.push(d)

			case bytecode.OpListAppend:
				v := f.pop()
				l, ok := f.peek(arg - 1).(*object.List)
				if !ok {
					t.Decref(v)
					err = t.Raisef(object.ExcSystemError, i18n.ErrBadArgument, "LIST_APPEND", "list", object.TypeName(f.peek(arg-1)))
					break
				}
				l.Append(t, v)
				t.Decref(v)

			case bytecode.OpBinarySubscr:
				key := f.pop()
				container := f.pop()
				var r object.Object
				r, err = object.GetItem(t, container, key)
				t.Decref(container)
				t.Decref(key)
				if err == nil {
					f.push(r)
				}

			case bytecode.OpStoreSubscr:
				key := f.pop()
				container := f.pop()
				v := f.pop()
				err = object.SetItem(t, container, key, v)
				t.Decref(container)
				t.Decref(key)
				t.Decref(v)

			// ========== 跳转 ==========

			case bytecode.OpJumpAbsolute:
				err = ts.jump(f, arg)

			case bytecode.OpPopJumpIfFalse:
				v := f.pop()
				cond := object.Truth(v)
				t.Decref(v)
				if !cond {
					err = ts.jump(f, arg)
				}

			case bytecode.OpPopJumpIfTrue:
				v := f.pop()
				cond := object.Truth(v)
				t.Decref(v)
				if cond {
					err = ts.jump(f, arg)
				}

			// ========== 迭代与循环 ==========

			case bytecode.OpGetIter:
				v := f.pop()
				var it object.Object
				it, err = object.Iter(t, v)
				t.Decref(v)
				if err == nil {
					f.push(it)
				}

			case bytecode.OpForIter:
				var x object.Object
				x, err = object.Next(t, f.top())
				if err != nil {
					break
				}
				if x == nil {
					t.Decref(f.pop())
					f.ip = arg
					break
				}
				f.push(x)

			case bytecode.OpSetupLoop:
				err = f.pushBlock(t, BlockLoop, arg)

			case bytecode.OpSetupExcept:
				err = f.pushBlock(t, BlockExcept, arg)

			case bytecode.OpSetupFinally:
				err = f.pushBlock(t, BlockFinally, arg)

			case bytecode.OpPopBlock:
				if f.nblocks == 0 || f.topBlock().Kind == BlockExceptHandler {
					err = t.Raise(object.ExcSystemError, "POP_BLOCK without a matching block")
					break
				}
				b := f.popBlock()
				f.unwindStack(t, b.Level)

			case bytecode.OpBreakLoop:
				err = ts.leaveBlocks(f, whyBreak, 0)

			case bytecode.OpContinueLoop:
				if arg < f.lasti {
					if err = ts.backEdge(); err != nil {
						break
					}
				}
				err = ts.leaveBlocks(f, whyContinue, arg)

			// ========== 异常 ==========

			case bytecode.OpPopExcept:
				if f.nblocks == 0 || f.topBlock().Kind != BlockExceptHandler {
					err = t.Raise(object.ExcSystemError, "popped block is not an except handler")
					break
				}
				b := f.popBlock()
				f.unwindStack(t, b.Level)
				ts.popHandled()

			case bytecode.OpEndFinally:
				w, target, e := ts.endFinally(f)
				switch w {
				case 0:
				case whyException:
					exc, reraise = e, true
				case whyReturn:
					if done, uerr := ts.unwind(f, whyReturn, 0); uerr != nil {
						err = uerr
					} else if done {
						return ts.leave(f)
					}
				default:
					err = ts.leaveBlocks(f, w, target)
				}

			case bytecode.OpJumpIfNotExcMatch:
				cls := f.pop()
				v := f.pop()
				var match bool
				match, err = exceptionMatches(t, v, cls)
				t.Decref(cls)
				t.Decref(v)
				if err == nil && !match {
					f.ip = arg
				}

			case bytecode.OpRaiseVarargs:
				exc, reraise, err = ts.raiseVarargs(f, arg)

			// ========== 函数 ==========

			case bytecode.OpMakeFunction:
				v := f.pop()
				c, ok := v.(*object.Code)
				if !ok {
					t.Decref(v)
					err = t.Raisef(object.ExcSystemError, i18n.ErrBadArgument, "MAKE_FUNCTION", "code", object.TypeName(v))
					break
				}
				var fn *object.Function
				fn, err = t.NewFunction(c, f.Globals)
				t.Decref(c)
				if err == nil {
					f.push(fn)
				}

			case bytecode.OpCallFunction:
				args := f.popN(arg)
				callee := f.pop()
				var r object.Object
				r, err = ts.call(callee, args)
				t.DecrefAll(args)
				t.Decref(callee)
				if err == nil {
					f.push(r)
				}

			case bytecode.OpReturnValue:
				f.retval = f.pop()
				if done, uerr := ts.unwind(f, whyReturn, 0); uerr != nil {
					err = uerr
				} else if done {
					return ts.leave(f)
				}

			default:
				err = t.Raisef(object.ExcSystemError, i18n.ErrUnknownOpcode, ins.Op)
			}
		}

		if err == nil && exc == nil {
			continue
		}

	handle:
		if exc == nil {
			exc = t.ExceptionFrom(err)
		}
		ts.annotate(f, exc, reraise)
		ts.curExc = exc
		done, uerr := ts.unwind(f, whyException, 0)
		if uerr != nil {
			// 只有挂起 continue 时才会分配；异常路径不会走到这里
			object.DiscardError(t, uerr)
		}
		if done {
			exc = ts.curExc
			ts.curExc = nil
			ts.PopFrame(f)
			return nil, &object.Raised{Exc: exc}
		}
	}
}

// leave 弹出帧并交出返回值
func (ts *ThreadState) leave(f *Frame) (object.Object, error) {
	r := f.retval
	f.retval = nil
	ts.PopFrame(f)
	return r, nil
}

// leaveBlocks 处理 break 与 continue；找不到循环块时报告 SystemError
func (ts *ThreadState) leaveBlocks(f *Frame, w why, target int) error {
	done, err := ts.unwind(f, w, target)
	if err != nil {
		return err
	}
	if done {
		return ts.obj.Raise(object.ExcSystemError, "'break' or 'continue' outside loop")
	}
	return nil
}

// jump 跳转到 target；向后跳转是检查点
func (ts *ThreadState) jump(f *Frame, target int) error {
	back := target <= f.lasti
	f.ip = target
	if !back {
		return nil
	}
	if p := ts.interp.profile; p != nil {
		p.recordBackedge(f.unit, target)
	}
	return ts.backEdge()
}

// backEdge 向后跳转时只在有中断位时进入检查点
func (ts *ThreadState) backEdge() error {
	if ts.ct.Breaker.Pending() {
		return ts.checkpoint()
	}
	return nil
}

// raiseVarargs 执行 RAISE_VARARGS：0 个参数重新抛出正在处理的异常，1 个参数抛出实例或类
func (ts *ThreadState) raiseVarargs(f *Frame, argc int) (*object.Exception, bool, error) {
	t := ts.obj
	if argc == 0 {
		h := ts.handled()
		if h == nil {
			return nil, false, t.Raisef(object.ExcRuntimeError, i18n.ErrNoActiveException)
		}
		t.Incref(h)
		return h, true, nil
	}

	v := f.pop()
	switch x := v.(type) {
	case *object.Exception:
		return x, false, nil
	case *object.ExcClass:
		e, err := t.NewExceptionArgs(x, nil)
		t.Decref(v)
		if err != nil {
			return nil, false, err
		}
		return e, false, nil
	}
	t.Decref(v)
	return nil, false, t.Raisef(object.ExcTypeError, i18n.ErrNotAnException)
}

// exceptionMatches 检查 v 是否匹配异常类或异常类元组
func exceptionMatches(t *object.Thread, v, cls object.Object) (bool, error) {
	var classes []object.Object
	switch c := cls.(type) {
	case *object.ExcClass:
		classes = []object.Object{c}
	case *object.Tuple:
		classes = c.Items
	default:
		return false, t.Raisef(object.ExcTypeError, i18n.ErrBadExceptMatch)
	}
	e, isExc := v.(*object.Exception)
	for _, k := range classes {
		kc, ok := k.(*object.ExcClass)
		if !ok {
			return false, t.Raisef(object.ExcTypeError, i18n.ErrBadExceptMatch)
		}
		if isExc && e.Matches(kc) {
			return true, nil
		}
	}
	return false, nil
}

// binaryOps 二元运算指令到对象层运算的映射
var binaryOps = map[bytecode.OpCode]object.BinaryOp{
	bytecode.OpBinaryAdd:         object.OpAdd,
	bytecode.OpBinarySubtract:    object.OpSub,
	bytecode.OpBinaryMultiply:    object.OpMul,
	bytecode.OpBinaryFloorDivide: object.OpFloorDiv,
	bytecode.OpBinaryModulo:      object.OpMod,
}

func clearSlots(s []object.Object) {
	for i := range s {
		s[i] = nil
	}
}
