package object

import (
	"sync/atomic"

	uatomic "go.uber.org/atomic"

	"github.com/tangzhangming/novacore/internal/alloc"
	"github.com/tangzhangming/novacore/internal/coord"
	"github.com/tangzhangming/novacore/internal/errors"
)

// Thread 每个 OS 线程的对象层上下文
//
// 只能被所属线程使用。拆除队列让任意长的引用链在常数栈深度内释放。
type Thread struct {
	heap  *Heap
	cache *alloc.Cache

	queue   []Object
	tearing bool

	increfs  uatomic.Int64
	decrefs  uatomic.Int64
	allocs   uatomic.Int64
	deallocs uatomic.Int64

	// Owner 指回解释器的线程状态
	Owner interface{}
}

// Heap 返回所属堆
func (t *Thread) Heap() *Heap {
	return t.heap
}

// Cache 返回线程的空闲链表
func (t *Thread) Cache() *alloc.Cache {
	return t.cache
}

// Close 归还线程空闲链表并把统计并入堆
func (t *Thread) Close() {
	t.cache.Drain()
	t.heap.retire(t)
}

// ============================================================================
// 引用计数
// ============================================================================

// Incref 增加引用计数
//
// 对正在拆除或已释放的对象调用是致命错误；可能遇到这种对象的调用方应使用 TryIncref。
func (t *Thread) Incref(o Object) {
	h := o.Head()
	if h.immortal {
		return
	}
	if LifeState(atomic.LoadInt32(&h.state)) != Live {
		errors.Fatal(errors.F0003, h.typ.Name)
		return
	}
	if t.heap.atomic {
		atomic.AddInt64(&h.refcnt, 1)
	} else {
		h.refcnt++
	}
	t.increfs.Inc()
}

// XIncref 容忍 nil 的 Incref
func (t *Thread) XIncref(o Object) {
	if o != nil {
		t.Incref(o)
	}
}

// TryIncref 对象仍存活时增加引用计数；正在拆除时返回 false
func (t *Thread) TryIncref(o Object) bool {
	h := o.Head()
	if h.immortal {
		return true
	}
	if !t.heap.atomic {
		if LifeState(h.state) != Live || h.refcnt <= 0 {
			return false
		}
		h.refcnt++
		t.increfs.Inc()
		return true
	}
	for {
		n := atomic.LoadInt64(&h.refcnt)
		if n <= 0 || LifeState(atomic.LoadInt32(&h.state)) != Live {
			return false
		}
		if atomic.CompareAndSwapInt64(&h.refcnt, n, n+1) {
			t.increfs.Inc()
			return true
		}
	}
}

// Decref 减少引用计数，归零时释放对象
func (t *Thread) Decref(o Object) {
	h := o.Head()
	if h.immortal {
		return
	}
	var n int64
	if t.heap.atomic {
		n = atomic.AddInt64(&h.refcnt, -1)
	} else {
		h.refcnt--
		n = h.refcnt
	}
	t.decrefs.Inc()
	if n > 0 {
		return
	}
	if n < 0 {
		errors.Fatal(errors.F0001, h.typ.Name)
		return
	}
	t.dealloc(o)
}

// XDecref 容忍 nil 的 Decref
func (t *Thread) XDecref(o Object) {
	if o != nil {
		t.Decref(o)
	}
}

// NewRef 增加引用计数并返回对象
func (t *Thread) NewRef(o Object) Object {
	t.Incref(o)
	return o
}

// DecrefAll 释放切片中的所有引用
func (t *Thread) DecrefAll(objs []Object) {
	for i, o := range objs {
		if o != nil {
			objs[i] = nil
			t.Decref(o)
		}
	}
}

// ============================================================================
// 分配与释放
// ============================================================================

// Alloc 为已构造好的对象分配内存并初始化对象头（引用计数为 1）
//
// 容器对象在这里被回收器跟踪，调用方应在填好字段后再调用。
// 失败时返回包装了 alloc.ErrNoMemory 的错误，对象未被初始化。
func (t *Thread) Alloc(typ *Type, o Object) error {
	return t.AllocVar(typ, o, 0)
}

// AllocVar 为带 n 个元素的变长对象分配内存
func (t *Thread) AllocVar(typ *Type, o Object, n int) error {
	b, err := t.cache.Allocate(typ.Size(n))
	if err != nil {
		return err
	}
	h := o.Head()
	h.typ = typ
	h.refcnt = 1
	h.state = int32(Live)
	h.self = o
	h.block = b
	h.GC = GCHead{Gen: -1}
	t.allocs.Inc()

	if typ.Flags&HaveGC != 0 && t.heap.tracker != nil {
		t.heap.tracker.Track(o)
		t.heap.tracker.Allocated(t)
	}
	return nil
}

// dealloc 把对象放入拆除队列；最外层调用负责按先进先出顺序排空队列
func (t *Thread) dealloc(o Object) {
	h := o.Head()
	if !atomic.CompareAndSwapInt32(&h.state, int32(Live), int32(Destroying)) {
		errors.Fatal(errors.F0002, h.typ.Name)
		return
	}
	t.queue = append(t.queue, o)
	if t.tearing {
		return
	}

	t.tearing = true
	for i := 0; i < len(t.queue); i++ {
		obj := t.queue[i]
		t.queue[i] = nil
		t.destroy(obj)
	}
	t.queue = t.queue[:0]
	t.tearing = false
}

// destroy 拆除单个对象：取消跟踪、通知弱引用、释放持有的引用、归还内存
func (t *Thread) destroy(o Object) {
	h := o.Head()
	typ := h.typ
	tracked := h.IsTracked()
	if tracked && t.heap.tracker != nil {
		t.heap.tracker.Untrack(o)
	}

	if h.weakrefs != nil {
		t.clearWeakRefs(o, true)
	}

	if typ.Dealloc != nil {
		typ.Dealloc(t, o)
	}

	t.cache.Free(h.block)
	h.block = alloc.Block{}
	h.setState(Freed)
	t.deallocs.Inc()

	if tracked && t.heap.tracker != nil {
		t.heap.tracker.Deallocated()
	}
}

// Lock 细粒度模式下锁住容器
func (t *Thread) Lock(m *coord.Mutex) {
	if t.heap.atomic {
		m.Lock()
	}
}

// Unlock 释放 Lock
func (t *Thread) Unlock(m *coord.Mutex) {
	if t.heap.atomic {
		m.Unlock()
	}
}
