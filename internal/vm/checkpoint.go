package vm

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/novacore/internal/coord"
	"github.com/tangzhangming/novacore/internal/gc"
	"github.com/tangzhangming/novacore/internal/i18n"
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 检查点
// ============================================================================

// checkpoint 处理中断位与上下文取消
//
// 解释循环每 CheckInterval 条指令、每次向后跳转前（有位被置上时）以及阻塞调用之后进入这里。
// 返回的 error 携带要抛出的异常。
func (ts *ThreadState) checkpoint() error {
	ts.ticks = ts.interp.cfg.Eval.CheckInterval
	ts.stats.checkpoints.Inc()

	b := &ts.ct.Breaker
	if b.Pending() && ts.noYield == 0 {
		ts.interp.coord.Checkpoint(ts.ct)
		if b.Take(coord.GCScheduled) {
			ts.collectScheduled()
		}
		if b.Take(coord.Interrupt) && ts.interrupt.CAS(true, false) {
			ts.stats.interruptions.Inc()
			ts.interp.logger.Info("keyboard interrupt", zap.Int64("thread", ts.ct.ID))
			return ts.obj.Raisef(object.ExcKeyboardInterrupt, i18n.ErrInterrupted)
		}
	}

	select {
	case <-ts.ctx.Done():
		return ts.obj.Raise(object.ExcKeyboardInterrupt, ts.ctx.Err().Error())
	default:
	}
	return nil
}

// blocking 在阻塞调用期间交出执行权，结束后经过一次检查点
func (ts *ThreadState) blocking(fn func()) error {
	in := ts.interp
	in.coord.BeginBlocking(ts.ct)
	fn()
	in.coord.EndBlocking(ts.ct)
	return ts.checkpoint()
}

// ============================================================================
// 回收
// ============================================================================

// collectScheduled 执行被阈值安排的回收；多个线程同时被通知时只有一个执行
func (ts *ThreadState) collectScheduled() {
	if !ts.interp.gcPending.CAS(true, false) {
		return
	}
	if _, err := ts.collect(-1); err != nil {
		ts.interp.logger.Warn("scheduled collection failed", zap.Error(err))
	}
}

// collect 停止世界并回收第 gen 代；gen 为负时回收超过阈值的最老一代
func (ts *ThreadState) collect(gen int) (gc.Result, error) {
	in := ts.interp
	if ts.noYield > 0 {
		// 回收期间（弱引用回调里）再次请求回收：不再嵌套停止世界
		return gc.Result{Generation: gen}, nil
	}
	in.coord.StopTheWorld(ts.ct)
	ts.noYield++
	defer func() {
		ts.noYield--
		in.coord.StartTheWorld(ts.ct)
	}()

	ts.stats.collections.Inc()
	if gen < 0 {
		return in.gc.CollectScheduled(ts.obj)
	}
	return in.gc.Collect(ts.obj, gen)
}

// Collect 在当前线程上执行一次完整回收
func (ts *ThreadState) Collect() (gc.Result, error) {
	return ts.collect(gc.NumGenerations - 1)
}
