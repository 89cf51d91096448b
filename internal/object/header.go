// Package object 实现对象头、类型虚表与引用计数协议，以及解释循环所需的最小内建类型
package object

import (
	"sync/atomic"

	"github.com/tangzhangming/novacore/internal/alloc"
)

// LifeState 对象生命周期状态
type LifeState int32

const (
	Live       LifeState = iota // 正常
	Destroying                  // 引用计数归零，正在拆除
	Freed                       // 已归还内存
)

func (s LifeState) String() string {
	switch s {
	case Live:
		return "live"
	case Destroying:
		return "destroying"
	case Freed:
		return "freed"
	default:
		return "unknown"
	}
}

// GCHead 循环回收器使用的链接字段
//
// Prev/Next 把被跟踪的对象串在所属代的双向链表中。Refs 只在一次回收过程中有意义。
type GCHead struct {
	Prev, Next *Header
	Refs       int64
	Gen        int8 // -1 表示未跟踪
	Flags      uint8
}

// Header 每个对象都内嵌的对象头
type Header struct {
	typ      *Type
	refcnt   int64
	state    int32
	immortal bool
	self     Object
	block    alloc.Block
	weakrefs *WeakRef

	GC GCHead
}

// Object 所有值的公共接口
type Object interface {
	Head() *Header
}

// Head 实现 Object
func (h *Header) Head() *Header {
	return h
}

// Type 返回类型
func (h *Header) Type() *Type {
	return h.typ
}

// Object 返回对象头所属的对象
func (h *Header) Object() Object {
	return h.self
}

// RefCount 返回当前引用计数
func (h *Header) RefCount() int64 {
	return atomic.LoadInt64(&h.refcnt)
}

// State 返回生命周期状态
func (h *Header) State() LifeState {
	return LifeState(atomic.LoadInt32(&h.state))
}

func (h *Header) setState(s LifeState) {
	atomic.StoreInt32(&h.state, int32(s))
}

// IsImmortal 是否为不朽对象
func (h *Header) IsImmortal() bool {
	return h.immortal
}

// Block 返回对象占用的分配器块
func (h *Header) Block() alloc.Block {
	return h.block
}

// IsTracked 是否被循环回收器跟踪
func (h *Header) IsTracked() bool {
	return h.GC.Gen >= 0 && h.GC.Prev != nil
}

// initStatic 初始化不朽对象的对象头
func initStatic(o Object, typ *Type) {
	h := o.Head()
	h.typ = typ
	h.refcnt = 1
	h.immortal = true
	h.self = o
	h.GC.Gen = -1
}

// TypeOf 返回对象的类型
func TypeOf(o Object) *Type {
	return o.Head().typ
}

// TypeName 返回对象的类型名
func TypeName(o Object) string {
	if o == nil {
		return "NULL"
	}
	return o.Head().typ.Name
}
