package errors

import (
	"fmt"
	"os"
	"sync"
)

// ExitFatal 致命错误的进程退出码（EX_SOFTWARE）
const ExitFatal = 70

// FatalError 内部不变量被破坏
//
// 引用计数损坏、traverse/clear 失败、锁协议违规都属于此类。
// 对象图已不可信，进程不会尝试继续运行。
type FatalError struct {
	Code    string
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal %s: %s", e.Code, e.Message)
}

// FatalHandler 致命错误处理函数，不应返回
type FatalHandler func(*FatalError)

var (
	fatalMu      sync.RWMutex
	fatalHandler FatalHandler = defaultFatalHandler
	fatalLogHook func(*FatalError)
)

// defaultFatalHandler 打印诊断并以 ExitFatal 退出
func defaultFatalHandler(e *FatalError) {
	fmt.Fprintf(os.Stderr, "%s %s\n", Colorize("fatal error ["+e.Code+"]:", ColorBoldRed), e.Message)
	os.Exit(ExitFatal)
}

// SetFatalHandler 替换致命错误处理函数，返回旧的处理函数
//
// 测试中可安装一个 panic 的处理函数来观察致命错误。
func SetFatalHandler(h FatalHandler) FatalHandler {
	fatalMu.Lock()
	defer fatalMu.Unlock()
	old := fatalHandler
	if h == nil {
		h = defaultFatalHandler
	}
	fatalHandler = h
	return old
}

// SetFatalLogHook 设置致命错误的日志钩子（在处理函数之前调用）
func SetFatalLogHook(hook func(*FatalError)) {
	fatalMu.Lock()
	fatalLogHook = hook
	fatalMu.Unlock()
}

// Fatal 报告致命错误
//
// 处理函数返回时（不应发生）改为 panic，保证调用方不会继续执行。
func Fatal(code string, args ...interface{}) {
	e := &FatalError{Code: code, Message: Message(code, args...)}
	fatalMu.RLock()
	h, hook := fatalHandler, fatalLogHook
	fatalMu.RUnlock()
	if hook != nil {
		hook(e)
	}
	h(e)
	panic(e)
}

// PanicOnFatal 以 panic 代替退出，供测试使用
func PanicOnFatal(e *FatalError) {
	panic(e)
}
