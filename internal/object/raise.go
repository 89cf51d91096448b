package object

import (
	stderrors "errors"
	"fmt"

	"github.com/tangzhangming/novacore/internal/alloc"
	"github.com/tangzhangming/novacore/internal/i18n"
)

// Raised 以 Go error 形式携带的在途异常
//
// Raised 持有 Exc 的一个引用；接收方负责转移或释放它。
type Raised struct {
	Exc *Exception
}

func (r *Raised) Error() string {
	return r.Exc.Class.Name + ": " + r.Exc.Message()
}

// Raisef 创建 cls 的实例并作为 error 返回，消息取自 i18n
func (t *Thread) Raisef(cls *ExcClass, msgID string, args ...interface{}) error {
	return t.Raise(cls, i18n.T(msgID, args...))
}

// Raise 创建 cls 的实例并作为 error 返回
//
// 分配失败时返回预分配的 MemoryError。
func (t *Thread) Raise(cls *ExcClass, msg string) error {
	exc, err := t.NewException(cls, msg)
	if err != nil {
		return &Raised{Exc: MemoryErrorInstance}
	}
	return &Raised{Exc: exc}
}

// ExceptionFrom 把 error 转换为异常对象的新引用
//
// Raised 的引用被转移；alloc.ErrNoMemory 转换为预分配的 MemoryError；
// 其他错误包装为 SystemError。
func (t *Thread) ExceptionFrom(err error) *Exception {
	var r *Raised
	if stderrors.As(err, &r) {
		exc := r.Exc
		r.Exc = nil
		if exc == nil {
			return MemoryErrorInstance
		}
		return exc
	}
	if stderrors.Is(err, alloc.ErrNoMemory) {
		return MemoryErrorInstance
	}
	exc, nerr := t.NewException(ExcSystemError, fmt.Sprint(err))
	if nerr != nil {
		return MemoryErrorInstance
	}
	return exc
}

// DiscardError 释放 error 中携带的异常
func DiscardError(t *Thread, err error) {
	var r *Raised
	if stderrors.As(err, &r) && r.Exc != nil {
		exc := r.Exc
		r.Exc = nil
		t.Decref(exc)
	}
}

// IsRaised 检查 err 是否携带 cls（或其子类）的异常
func IsRaised(err error, cls *ExcClass) bool {
	var r *Raised
	return stderrors.As(err, &r) && r.Exc != nil && r.Exc.Class.IsSubclass(cls)
}
