package vm

import (
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/tangzhangming/novacore/internal/errors"
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 未捕获异常
// ============================================================================

// ExceptionError 逃出模块代码的异常
type ExceptionError struct {
	Type      string
	Message   string
	Traceback []errors.TraceEntry // 最外层在前

	cause error
}

func (e *ExceptionError) Error() string {
	if e.Message == "" {
		return e.Type
	}
	return e.Type + ": " + e.Message
}

// Unwrap 异常由上下文取消引起时返回 ctx.Err()
func (e *ExceptionError) Unwrap() error {
	return e.cause
}

// Format 按回溯格式输出（不带颜色）
func (e *ExceptionError) Format() string {
	return errors.NewPlainFormatter().FormatUncaught(e.Type, e.Message, e.Traceback)
}

// Is 按异常类名匹配，用法：errors.Is(err, &ExceptionError{Type: "KeyError"})
func (e *ExceptionError) Is(target error) bool {
	t, ok := target.(*ExceptionError)
	return ok && t.Type == e.Type && t.Message == "" && t.Traceback == nil
}

// AsException 从 error 中取出 ExceptionError
func AsException(err error) (*ExceptionError, bool) {
	var e *ExceptionError
	ok := stderrors.As(err, &e)
	return e, ok
}

// uncaught 把逃出最外层帧的异常转换为 ExceptionError 并释放异常对象
func (ts *ThreadState) uncaught(err error) error {
	exc := ts.obj.ExceptionFrom(err)
	n := len(exc.Traceback)
	entries := make([]errors.TraceEntry, n)
	for i, e := range exc.Traceback {
		entries[n-1-i] = e
	}
	ee := &ExceptionError{
		Type:      exc.Class.Name,
		Message:   exc.Message(),
		Traceback: entries,
	}
	if exc.Matches(object.ExcKeyboardInterrupt) && ts.ctx.Err() != nil {
		ee.cause = ts.ctx.Err()
	}
	ts.obj.Decref(exc)

	ts.interp.logger.Debug("uncaught exception",
		zap.Int64("thread", ts.ct.ID),
		zap.String("type", ee.Type),
		zap.String("message", ee.Message))
	return ee
}

// ============================================================================
// 异常进入帧
// ============================================================================

// annotate 为刚进入帧 f 的异常追加回溯并设置上下文；重新抛出时两者都保持不变
func (ts *ThreadState) annotate(f *Frame, exc *object.Exception, reraise bool) {
	ts.stats.exceptions.Inc()
	if reraise {
		return
	}
	// 只在抛出点（第一帧）设置上下文
	if len(exc.Traceback) == 0 && exc.Context == nil {
		if h := ts.handled(); h != nil && h != exc {
			ts.obj.Incref(h)
			exc.SetContext(ts.obj, h)
		}
	}
	exc.AddTrace(errors.TraceEntry{
		Function: f.unit.Name,
		File:     f.unit.Filename,
		Line:     f.Line(),
	})
}
