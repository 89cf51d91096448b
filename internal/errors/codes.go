// Package errors 提供运行时核心的错误码、致命错误与回溯格式化
package errors

import "github.com/tangzhangming/novacore/internal/i18n"

// ============================================================================
// 错误级别
// ============================================================================

// Level 错误级别
type Level int

const (
	LevelError Level = iota // 可恢复错误（表现为语言层异常）
	LevelFatal              // 致命错误（进程终止）
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ============================================================================
// 运行时错误码 (R 开头)
// ============================================================================

const (
	// R0001-R0099: 通用运行时错误
	R0001 = "R0001" // 未捕获的异常
	R0002 = "R0002" // 未知操作码
	R0003 = "R0003" // 指令指针越界

	// R0100-R0199: 容器错误
	R0100 = "R0100" // 索引越界
	R0101 = "R0101" // 键不存在
	R0102 = "R0102" // 不支持下标
	R0103 = "R0103" // 不可迭代

	// R0200-R0299: 数值错误
	R0200 = "R0200" // 除以零
	R0201 = "R0201" // 不支持的操作数

	// R0300-R0399: 类型错误
	R0300 = "R0300" // 不可调用
	R0301 = "R0301" // 参数数量错误
	R0302 = "R0302" // 不是异常

	// R0400-R0499: 资源错误
	R0400 = "R0400" // 内存不足
	R0401 = "R0401" // 递归过深
	R0402 = "R0402" // 嵌套块过多
	R0403 = "R0403" // 被中断

	// R0500-R0599: 名称错误
	R0500 = "R0500" // 未定义的名称
	R0501 = "R0501" // 局部变量未绑定
)

// ============================================================================
// 致命错误码 (F 开头)
// ============================================================================

const (
	// F0001-F0099: 引用计数与对象生命周期
	F0001 = "F0001" // 引用计数为负
	F0002 = "F0002" // 重复释放
	F0003 = "F0003" // 销毁中的对象被复活
	F0004 = "F0004" // 小整数缓存越界

	// F0100-F0199: 循环回收器
	F0100 = "F0100" // traverse 失败
	F0101 = "F0101" // clear 失败

	// F0200-F0299: 帧与操作数栈
	F0200 = "F0200" // 操作数栈溢出
	F0201 = "F0201" // 操作数栈下溢
	F0202 = "F0202" // 块栈损坏

	// F0300-F0399: 锁协议
	F0300 = "F0300" // 持有者重复加锁
	F0301 = "F0301" // 解锁未加锁的互斥锁
	F0302 = "F0302" // 未持有解释器锁
)

// ============================================================================
// 错误码信息
// ============================================================================

// ErrorInfo 错误码信息
type ErrorInfo struct {
	Code      string // 错误码
	Level     Level  // 错误级别
	MessageID string // i18n 消息 ID
	Category  string // 错误分类
}

// runtimeErrors 运行时错误码信息表
var runtimeErrors = map[string]ErrorInfo{
	R0001: {R0001, LevelError, i18n.ErrUncaughtException, "runtime"},
	R0002: {R0002, LevelError, i18n.ErrUnknownOpcode, "runtime"},
	R0003: {R0003, LevelError, i18n.ErrIPOutOfBounds, "runtime"},

	R0100: {R0100, LevelError, i18n.ErrIndexOutOfRange, "container"},
	R0101: {R0101, LevelError, i18n.ErrKeyNotFound, "container"},
	R0102: {R0102, LevelError, i18n.ErrNotSubscriptable, "container"},
	R0103: {R0103, LevelError, i18n.ErrNotIterable, "container"},

	R0200: {R0200, LevelError, i18n.ErrDivisionByZero, "numeric"},
	R0201: {R0201, LevelError, i18n.ErrUnsupportedOperand, "numeric"},

	R0300: {R0300, LevelError, i18n.ErrNotCallable, "type"},
	R0301: {R0301, LevelError, i18n.ErrArgumentCount, "type"},
	R0302: {R0302, LevelError, i18n.ErrNotAnException, "type"},

	R0400: {R0400, LevelError, i18n.ErrNoMemory, "resource"},
	R0401: {R0401, LevelError, i18n.ErrRecursionLimit, "resource"},
	R0402: {R0402, LevelError, i18n.ErrTooManyBlocks, "resource"},
	R0403: {R0403, LevelError, i18n.ErrInterrupted, "resource"},

	R0500: {R0500, LevelError, i18n.ErrUndefinedName, "name"},
	R0501: {R0501, LevelError, i18n.ErrUnboundLocal, "name"},
}

// fatalErrors 致命错误码信息表
var fatalErrors = map[string]ErrorInfo{
	F0001: {F0001, LevelFatal, i18n.FatalNegativeRefcount, "refcount"},
	F0002: {F0002, LevelFatal, i18n.FatalDoubleFree, "refcount"},
	F0003: {F0003, LevelFatal, i18n.FatalResurrection, "refcount"},
	F0004: {F0004, LevelFatal, i18n.FatalSmallIntRange, "refcount"},

	F0100: {F0100, LevelFatal, i18n.FatalTraverseFailed, "gc"},
	F0101: {F0101, LevelFatal, i18n.FatalClearFailed, "gc"},

	F0200: {F0200, LevelFatal, i18n.FatalStackOverflow, "frame"},
	F0201: {F0201, LevelFatal, i18n.FatalStackUnderflow, "frame"},
	F0202: {F0202, LevelFatal, i18n.FatalBadBlock, "frame"},

	F0300: {F0300, LevelFatal, i18n.FatalLockReacquire, "lock"},
	F0301: {F0301, LevelFatal, i18n.FatalUnlockUnlocked, "lock"},
	F0302: {F0302, LevelFatal, i18n.FatalGILNotHeld, "lock"},
}

// GetRuntimeErrorInfo 获取运行时错误信息
func GetRuntimeErrorInfo(code string) (ErrorInfo, bool) {
	info, ok := runtimeErrors[code]
	return info, ok
}

// GetFatalErrorInfo 获取致命错误信息
func GetFatalErrorInfo(code string) (ErrorInfo, bool) {
	info, ok := fatalErrors[code]
	return info, ok
}

// IsFatal 检查是否为致命错误码
func IsFatal(code string) bool {
	_, ok := fatalErrors[code]
	return ok
}

// Message 按错误码生成本地化消息
func Message(code string, args ...interface{}) string {
	if info, ok := runtimeErrors[code]; ok {
		return i18n.T(info.MessageID, args...)
	}
	if info, ok := fatalErrors[code]; ok {
		return i18n.T(info.MessageID, args...)
	}
	return code
}
