package vm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tangzhangming/novacore/internal/bytecode"
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 执行入口
// ============================================================================

// Exec 在新的全局名字空间中执行模块代码
//
// 返回模块代码的返回值（新引用，用 ts.Object().Decref 释放）。
// 未捕获的异常以 *ExceptionError 返回。
func (ts *ThreadState) Exec(ctx context.Context, unit *bytecode.Code) (object.Object, error) {
	t := ts.obj
	code, err := t.NewCode(unit)
	if err != nil {
		return nil, ts.uncaught(err)
	}
	defer t.Decref(code)

	globals, err := t.NewDict()
	if err != nil {
		return nil, ts.uncaught(err)
	}
	defer t.Decref(globals)

	return ts.ExecCode(ctx, code, globals)
}

// ExecCode 在给定的全局名字空间中执行 code（借用两者）
func (ts *ThreadState) ExecCode(ctx context.Context, code *object.Code, globals *object.Dict) (object.Object, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	prev := ts.ctx
	ts.ctx = ctx
	defer func() { ts.ctx = prev }()

	f, err := ts.PushFrame(code, nil, globals, nil)
	if err != nil {
		return nil, ts.uncaught(err)
	}
	res, err := ts.eval(f)
	if err != nil {
		return nil, ts.uncaught(err)
	}
	return res, nil
}

// Run 在新线程状态上执行模块代码并丢弃返回值
func (in *Interpreter) Run(ctx context.Context, unit *bytecode.Code) error {
	ts, err := in.NewThread()
	if err != nil {
		return err
	}
	defer ts.Close()

	res, err := ts.Exec(ctx, unit)
	if err != nil {
		return err
	}
	ts.obj.Decref(res)
	return nil
}

// RunThreads 在 n 个线程上并发执行同一份模块代码，共享一个全局名字空间
//
// 任一线程的未捕获异常会取消其余线程（它们在下一个检查点收到 KeyboardInterrupt），
// 返回第一个错误。
func (in *Interpreter) RunThreads(ctx context.Context, unit *bytecode.Code, n int) error {
	if n <= 0 {
		return fmt.Errorf("thread count must be positive, got %d", n)
	}

	owner, err := in.NewThread()
	if err != nil {
		return err
	}
	defer owner.Close()

	t := owner.obj
	code, err := t.NewCode(unit)
	if err != nil {
		return owner.uncaught(err)
	}
	defer t.Decref(code)
	globals, err := t.NewDict()
	if err != nil {
		return owner.uncaught(err)
	}
	defer t.Decref(globals)

	g, gctx := errgroup.WithContext(ctx)
	in.coord.BeginBlocking(owner.ct)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			ts, err := in.NewThread()
			if err != nil {
				return err
			}
			defer ts.Close()

			res, err := ts.ExecCode(gctx, code, globals)
			if err != nil {
				in.logger.Debug("thread failed", zap.Int64("thread", ts.ID()), zap.Error(err))
				return err
			}
			ts.obj.Decref(res)
			return nil
		})
	}
	err = g.Wait()
	in.coord.EndBlocking(owner.ct)
	return err
}
