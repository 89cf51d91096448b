package vm

import (
	"context"

	"go.uber.org/atomic"

	"github.com/tangzhangming/novacore/internal/coord"
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 线程状态
// ============================================================================

// ThreadState 每个执行线程的解释器状态
//
// ThreadState 绑定到创建它的 goroutine：单锁模式下创建时取得解释器锁，
// 直到 Close 或阻塞调用才交出。
type ThreadState struct {
	interp *Interpreter
	obj    *object.Thread
	ct     *coord.Thread

	ctx   context.Context
	frame *Frame
	depth int
	ticks int

	// curExc 正在展开的异常（持有引用）
	curExc *object.Exception
	// excStack 正在处理的异常，与各帧中的 ExceptHandler 块一一对应（持有引用）
	excStack []*object.Exception

	// noYield 大于零时检查点不交出执行权，也不触发回收（回收进行中）
	noYield int

	interrupt atomic.Bool
	closed    bool

	stats threadCounters
}

// NewThread 为当前 goroutine 创建线程状态并挂到协调器上
func (in *Interpreter) NewThread() (*ThreadState, error) {
	ts := &ThreadState{
		interp: in,
		ctx:    context.Background(),
		ticks:  in.cfg.Eval.CheckInterval,
	}
	if err := in.register(ts); err != nil {
		return nil, err
	}
	ts.obj = in.heap.NewThread()
	ts.obj.Owner = ts
	ts.ct = in.coord.Attach()
	if in.gcPending.Load() {
		ts.ct.Breaker.Set(coord.GCScheduled)
	}
	return ts, nil
}

// Interpreter 返回所属解释器
func (ts *ThreadState) Interpreter() *Interpreter {
	return ts.interp
}

// Object 返回对象层线程上下文，用于对 Exec 结果做引用计数
func (ts *ThreadState) Object() *object.Thread {
	return ts.obj
}

// ID 返回协调器分配的线程 id
func (ts *ThreadState) ID() int64 {
	return ts.ct.ID
}

// Frame 返回当前帧
func (ts *ThreadState) Frame() *Frame {
	return ts.frame
}

// Depth 返回当前调用深度
func (ts *ThreadState) Depth() int {
	return ts.depth
}

// Interrupt 在下一个检查点抛出 KeyboardInterrupt
func (ts *ThreadState) Interrupt() {
	ts.interrupt.Store(true)
	ts.interp.interrupts.Inc()
	ts.ct.Breaker.Set(coord.Interrupt)
}

// Close 释放线程持有的所有引用并从协调器注销
//
// 必须在创建它的 goroutine 上调用，且没有正在执行的帧。
func (ts *ThreadState) Close() {
	if ts.closed {
		return
	}
	ts.closed = true
	for ts.frame != nil {
		ts.PopFrame(ts.frame)
	}
	if exc := ts.curExc; exc != nil {
		ts.curExc = nil
		ts.obj.Decref(exc)
	}
	for len(ts.excStack) > 0 {
		ts.popHandled()
	}
	ts.interp.coord.Detach(ts.ct)
	ts.obj.Close()
	ts.interp.unregister(ts)
}

// ============================================================================
// 正在处理的异常
// ============================================================================

// handled 返回最内层正在处理的异常（借用引用），没有时返回 nil
func (ts *ThreadState) handled() *object.Exception {
	if n := len(ts.excStack); n > 0 {
		return ts.excStack[n-1]
	}
	return nil
}

// pushHandled 进入异常处理器（增加引用计数）
func (ts *ThreadState) pushHandled(exc *object.Exception) {
	ts.obj.Incref(exc)
	ts.excStack = append(ts.excStack, exc)
}

// popHandled 离开异常处理器
func (ts *ThreadState) popHandled() {
	n := len(ts.excStack)
	exc := ts.excStack[n-1]
	ts.excStack[n-1] = nil
	ts.excStack = ts.excStack[:n-1]
	ts.obj.Decref(exc)
}
