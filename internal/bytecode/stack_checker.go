package bytecode

import "fmt"

// ============================================================================
// 操作数栈深度分析
// ============================================================================

// StackEffect 返回指令的栈深度变化
//
// jump 为 true 时返回跳转分支上的变化，否则返回顺序执行时的变化。
// 对不会顺序执行的指令，顺序分支的结果没有意义。
func StackEffect(op OpCode, arg int32, jump bool) int {
	switch op {
	case OpNop, OpRotTwo, OpRotThree, OpDeleteFast, OpUnaryNegative, OpUnaryNot,
		OpGetIter, OpJumpAbsolute, OpSetupLoop, OpBreakLoop, OpContinueLoop,
		OpPopBlock, OpPopExcept, OpMakeFunction:
		return 0
	case OpDupTop, OpLoadConst, OpLoadFast, OpLoadGlobal:
		return 1
	case OpPopTop, OpStoreFast, OpStoreGlobal,
		OpBinaryAdd, OpBinarySubtract, OpBinaryMultiply, OpBinaryFloorDivide, OpBinaryModulo,
		OpCompareOp, OpIsOp, OpContainsOp, OpListAppend, OpBinarySubscr,
		OpPopJumpIfFalse, OpPopJumpIfTrue, OpEndFinally, OpReturnValue:
		return -1
	case OpStoreSubscr:
		return -3
	case OpBuildList, OpBuildTuple:
		return 1 - int(arg)
	case OpBuildMap:
		return 1 - 2*int(arg)
	case OpForIter:
		if jump {
			return -1
		}
		return 1
	case OpSetupExcept, OpSetupFinally:
		// 处理器入口处压入异常
		if jump {
			return 1
		}
		return 0
	case OpJumpIfNotExcMatch:
		return -2
	case OpRaiseVarargs:
		return -int(arg)
	case OpCallFunction:
		return -int(arg)
	}
	return 0
}

// stackInputs 返回指令执行前栈上至少需要的元素个数
func stackInputs(op OpCode, arg int32) int {
	switch op {
	case OpDupTop, OpPopTop, OpStoreFast, OpStoreGlobal, OpUnaryNegative, OpUnaryNot,
		OpPopJumpIfFalse, OpPopJumpIfTrue, OpGetIter, OpForIter, OpEndFinally,
		OpReturnValue, OpMakeFunction:
		return 1
	case OpRotTwo, OpBinaryAdd, OpBinarySubtract, OpBinaryMultiply, OpBinaryFloorDivide,
		OpBinaryModulo, OpCompareOp, OpIsOp, OpContainsOp, OpBinarySubscr, OpJumpIfNotExcMatch:
		return 2
	case OpRotThree, OpStoreSubscr:
		return 3
	case OpBuildList, OpBuildTuple, OpRaiseVarargs:
		return int(arg)
	case OpBuildMap:
		return 2 * int(arg)
	case OpListAppend, OpCallFunction:
		return int(arg) + 1
	}
	return 0
}

// fallsThrough 指令执行后是否可能继续执行下一条
func fallsThrough(op OpCode) bool {
	switch op {
	case OpJumpAbsolute, OpBreakLoop, OpContinueLoop, OpRaiseVarargs, OpReturnValue:
		return false
	}
	return true
}

// jumpEdge 指令是否有一条到 arg 的静态控制流边
//
// CONTINUE_LOOP 的目标也是循环入口，但跳转前会按块恢复栈深度，不参与分析。
func jumpEdge(op OpCode) bool {
	return op.IsJump() && op != OpContinueLoop
}

// finallyHeadroom finally 处理器在挂起 return/continue 时额外占用的栈槽
const finallyHeadroom = 1

// StackDepth 用数据流分析计算代码对象的最大栈深度
//
// 每条指令只允许一个入口深度；不一致、下溢、越界跳转与落出代码末尾都作为错误返回。
func StackDepth(code *Code) (int, []error) {
	n := len(code.Instructions)
	if n == 0 {
		return 0, nil
	}

	var errs []error
	report := func(ip int, format string, args ...interface{}) {
		errs = append(errs, &VerifyError{Code: code.Name, Index: ip, Op: code.Instructions[ip].Op, Msg: fmt.Sprintf(format, args...)})
	}

	depths := make([]int, n)
	for i := range depths {
		depths[i] = -1
	}

	type workItem struct {
		ip    int
		depth int
	}
	worklist := []workItem{{0, 0}}
	maxDepth := 0
	hasFinally := false

	for len(worklist) > 0 {
		item := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		ip, depth := item.ip, item.depth
		for ip < n {
			if depths[ip] >= 0 {
				if depths[ip] != depth {
					report(ip, "inconsistent stack depth %d and %d", depths[ip], depth)
				}
				break
			}
			depths[ip] = depth

			in := code.Instructions[ip]
			if in.Op == OpSetupFinally {
				hasFinally = true
			}
			if need := stackInputs(in.Op, in.Arg); depth < need {
				report(ip, "stack underflow (depth %d, needs %d)", depth, need)
			}

			if jumpEdge(in.Op) {
				target := int(in.Arg)
				jd := depth + StackEffect(in.Op, in.Arg, true)
				if target >= 0 && target < n && jd >= 0 {
					if jd > maxDepth {
						maxDepth = jd
					}
					worklist = append(worklist, workItem{target, jd})
				}
			}

			if !fallsThrough(in.Op) {
				break
			}
			next := depth + StackEffect(in.Op, in.Arg, false)
			if next < 0 {
				next = 0
			}
			if next > maxDepth {
				maxDepth = next
			}
			depth = next
			ip++
			if ip == n {
				report(n-1, "execution falls off the end of the code")
			}
		}
	}

	if hasFinally {
		maxDepth += finallyHeadroom
	}
	return maxDepth, errs
}
