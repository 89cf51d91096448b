package object

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/novacore/internal/alloc"
)

// Tracker 循环回收器需要的钩子，由 gc 包实现
type Tracker interface {
	// Track 把容器对象加入最年轻的一代
	Track(o Object)
	// Untrack 从所在代中移除
	Untrack(o Object)
	// Allocated 在被跟踪对象创建后调用，可能安排一次回收
	Allocated(t *Thread)
	// Deallocated 在被跟踪对象释放后调用
	Deallocated()
}

// CallFunc 从对象层回调解释器（弱引用回调）
type CallFunc func(t *Thread, fn Object, args []Object) (Object, error)

// Counters 引用计数与分配的统计
type Counters struct {
	Increfs       int64 `json:"increfs"`
	Decrefs       int64 `json:"decrefs"`
	Allocations   int64 `json:"allocations"`
	Deallocations int64 `json:"deallocations"`
}

// RefTotal 所有可回收对象的引用计数之和
//
// 每次分配贡献 1，incref 加 1，decref 减 1。
func (c Counters) RefTotal() int64 {
	return c.Allocations + c.Increfs - c.Decrefs
}

// Live 当前存活的可回收对象数
func (c Counters) Live() int64 {
	return c.Allocations - c.Deallocations
}

// Heap 解释器实例范围的对象状态
type Heap struct {
	alloc   *alloc.Allocator
	tracker Tracker
	atomic  bool
	logger  *zap.Logger

	callHook CallFunc

	mu      sync.Mutex
	threads map[*Thread]struct{}
	retired struct {
		increfs, decrefs, allocs, deallocs atomic.Int64
	}

	weakMu sync.Mutex // 弱引用链表
}

// HeapOption 堆选项
type HeapOption func(*Heap)

// WithAtomicRefcounts 使用原子引用计数（细粒度模式）
func WithAtomicRefcounts(on bool) HeapOption {
	return func(h *Heap) {
		h.atomic = on
	}
}

// WithHeapLogger 设置日志器
func WithHeapLogger(l *zap.Logger) HeapOption {
	return func(h *Heap) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHeap 创建堆
func NewHeap(a *alloc.Allocator, opts ...HeapOption) *Heap {
	h := &Heap{
		alloc:   a,
		logger:  zap.NewNop(),
		threads: make(map[*Thread]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Allocator 返回分配器
func (h *Heap) Allocator() *alloc.Allocator {
	return h.alloc
}

// SetTracker 安装循环回收器
func (h *Heap) SetTracker(tr Tracker) {
	h.tracker = tr
}

// Tracker 返回循环回收器
func (h *Heap) Tracker() Tracker {
	return h.tracker
}

// SetCallHook 安装解释器回调
func (h *Heap) SetCallHook(fn CallFunc) {
	h.callHook = fn
}

// AtomicRefcounts 是否使用原子引用计数
func (h *Heap) AtomicRefcounts() bool {
	return h.atomic
}

// NewThread 创建对象层的线程上下文
func (h *Heap) NewThread() *Thread {
	t := &Thread{heap: h, cache: h.alloc.NewCache()}
	h.mu.Lock()
	h.threads[t] = struct{}{}
	h.mu.Unlock()
	return t
}

func (h *Heap) retire(t *Thread) {
	h.mu.Lock()
	delete(h.threads, t)
	h.mu.Unlock()
	h.retired.increfs.Add(t.increfs.Load())
	h.retired.decrefs.Add(t.decrefs.Load())
	h.retired.allocs.Add(t.allocs.Load())
	h.retired.deallocs.Add(t.deallocs.Load())
}

// Counters 汇总所有线程的统计
func (h *Heap) Counters() Counters {
	c := Counters{
		Increfs:       h.retired.increfs.Load(),
		Decrefs:       h.retired.decrefs.Load(),
		Allocations:   h.retired.allocs.Load(),
		Deallocations: h.retired.deallocs.Load(),
	}
	h.mu.Lock()
	for t := range h.threads {
		c.Increfs += t.increfs.Load()
		c.Decrefs += t.decrefs.Load()
		c.Allocations += t.allocs.Load()
		c.Deallocations += t.deallocs.Load()
	}
	h.mu.Unlock()
	return c
}
