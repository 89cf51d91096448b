// Package vm 实现字节码解释器：帧、操作数栈、分派循环与线程状态
package vm

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tangzhangming/novacore/internal/alloc"
	"github.com/tangzhangming/novacore/internal/config"
	"github.com/tangzhangming/novacore/internal/coord"
	"github.com/tangzhangming/novacore/internal/gc"
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 解释器实例
// ============================================================================

// Interpreter 解释器实例：一个堆、一个回收器、一个协调器，以及挂在上面的线程
type Interpreter struct {
	id     uuid.UUID
	cfg    *config.Config
	logger *zap.Logger

	alloc    *alloc.Allocator
	heap     *object.Heap
	gc       *gc.Collector
	coord    coord.Coordinator
	builtins *object.Dict

	// boot 没有挂到协调器上，只在没有其他线程运行时使用（创建与关闭）
	boot *object.Thread

	gcPending  atomic.Bool
	interrupts atomic.Int64
	profile    *Profile

	outMu  sync.Mutex
	stdout io.Writer

	mu      sync.Mutex
	threads map[*ThreadState]struct{}
	main    *ThreadState
	retired ThreadStats
	closed  bool
}

// Option 解释器选项
type Option func(*Interpreter)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(in *Interpreter) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithOutput 设置 print 的输出
func WithOutput(w io.Writer) Option {
	return func(in *Interpreter) {
		if w != nil {
			in.stdout = w
		}
	}
}

// New 创建解释器实例，cfg 为 nil 时使用默认配置
func New(cfg *config.Config, opts ...Option) (*Interpreter, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	in := &Interpreter{
		id:      uuid.New(),
		cfg:     cfg,
		logger:  zap.NewNop(),
		stdout:  os.Stdout,
		threads: make(map[*ThreadState]struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.logger = in.logger.With(zap.String("interp", in.id.String()))

	in.alloc = alloc.New(cfg.Alloc, alloc.WithLogger(in.logger))
	in.heap = object.NewHeap(in.alloc,
		object.WithAtomicRefcounts(cfg.Concurrency.Mode == config.ModeFree),
		object.WithHeapLogger(in.logger))
	in.coord = coord.New(cfg.Concurrency, in.logger)
	in.gc = gc.New(cfg.GC, gc.WithLogger(in.logger), gc.WithScheduler(in.scheduleGC))
	in.heap.SetTracker(in.gc)
	in.heap.SetCallHook(in.callHook)

	in.boot = in.heap.NewThread()
	builtins, err := newBuiltins(in.boot)
	if err != nil {
		in.boot.Close()
		return nil, multierr.Append(err, in.alloc.Close())
	}
	in.builtins = builtins

	in.logger.Debug("interpreter created",
		zap.String("mode", string(cfg.Concurrency.Mode)),
		zap.Bool("gc", cfg.GC.Enabled))
	return in, nil
}

// ID 返回实例标识
func (in *Interpreter) ID() uuid.UUID {
	return in.id
}

// Config 返回配置
func (in *Interpreter) Config() *config.Config {
	return in.cfg
}

// Logger 返回日志器
func (in *Interpreter) Logger() *zap.Logger {
	return in.logger
}

// Allocator 返回分配器
func (in *Interpreter) Allocator() *alloc.Allocator {
	return in.alloc
}

// Heap 返回对象堆
func (in *Interpreter) Heap() *object.Heap {
	return in.heap
}

// Collector 返回循环回收器
func (in *Interpreter) Collector() *gc.Collector {
	return in.gc
}

// Coordinator 返回并发协调器
func (in *Interpreter) Coordinator() coord.Coordinator {
	return in.coord
}

// Builtins 返回内建名字空间（借用引用）
func (in *Interpreter) Builtins() *object.Dict {
	return in.builtins
}

// Close 释放内建名字空间、回收剩余的环并归还所有 arena
//
// 所有线程必须已经关闭。
func (in *Interpreter) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	live := len(in.threads)
	in.mu.Unlock()

	if live > 0 {
		return fmt.Errorf("interpreter closed with %d threads still attached", live)
	}

	in.boot.Decref(in.builtins)
	in.builtins = nil
	res, err := in.gc.Collect(in.boot, gc.NumGenerations-1)
	in.gc.ReleaseGarbage(in.boot)
	in.boot.Close()

	c := in.heap.Counters()
	in.logger.Debug("interpreter closed",
		zap.Int("collected", res.Collected),
		zap.Int64("live_objects", c.Live()))
	return multierr.Append(err, in.alloc.Close())
}

// ============================================================================
// 线程注册
// ============================================================================

func (in *Interpreter) register(ts *ThreadState) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return fmt.Errorf("interpreter is closed")
	}
	in.threads[ts] = struct{}{}
	if in.main == nil {
		in.main = ts
	}
	return nil
}

func (in *Interpreter) unregister(ts *ThreadState) {
	in.mu.Lock()
	delete(in.threads, ts)
	if in.main == ts {
		in.main = nil
	}
	in.retired.add(ts.Stats())
	in.mu.Unlock()
}

// Interrupt 向主线程（最早创建且仍存活的线程）投递 KeyboardInterrupt
func (in *Interpreter) Interrupt() {
	in.mu.Lock()
	ts := in.main
	in.mu.Unlock()
	if ts != nil {
		ts.Interrupt()
	}
}

// ============================================================================
// 回收器与对象层回调
// ============================================================================

// scheduleGC 阈值触发时在所有线程上置 GCScheduled 位，由最先到达检查点的线程回收
func (in *Interpreter) scheduleGC() {
	if in.gcPending.CAS(false, true) {
		in.coord.SignalAll(coord.GCScheduled)
	}
}

// callHook 让对象层调用用户函数（弱引用回调）
func (in *Interpreter) callHook(t *object.Thread, fn object.Object, args []object.Object) (object.Object, error) {
	if ts, ok := t.Owner.(*ThreadState); ok {
		return ts.call(fn, args)
	}
	// 引导线程不能执行字节码
	if _, ok := fn.(*object.Function); ok {
		return nil, nil
	}
	return object.Call(t, fn, args)
}

func (in *Interpreter) write(s string) error {
	in.outMu.Lock()
	defer in.outMu.Unlock()
	_, err := io.WriteString(in.stdout, s)
	return err
}
