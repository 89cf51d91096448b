// Package gc 实现分代循环回收器
package gc

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tangzhangming/novacore/internal/config"
	"github.com/tangzhangming/novacore/internal/coord"
	"github.com/tangzhangming/novacore/internal/errors"
	"github.com/tangzhangming/novacore/internal/object"
)

// NumGenerations 普通代的数量
const NumGenerations = 3

// permanent 冻结对象所在的永久代
const permanent = NumGenerations

// GCHead.Flags 中回收器私有的位
const (
	flagCollecting  uint8 = 1 << iota // 属于本次回收的对象集合
	flagUnreachable                   // 暂定不可达
)

// DebugFlags 调试标志
type DebugFlags uint

const (
	DebugStats       DebugFlags = 1 << iota // 每次回收输出统计
	DebugCollectable                        // 输出找到的可回收对象
	DebugSaveAll                            // 不释放垃圾，保存到 Garbage
)

// State 回收状态机
type State int

const (
	Idle State = iota
	Scanning
	Subtracting
	Partitioning
	Finalizing
)

var stateNames = [...]string{"idle", "scanning", "subtracting", "partitioning", "finalizing"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Phase 回调阶段
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseStop  Phase = "stop"
)

// Info 回调信息
type Info struct {
	Generation    int
	Collected     int
	Uncollectable int
}

// Callback 回收开始与结束时调用
type Callback func(phase Phase, info Info)

// Result 一次回收的结果
type Result struct {
	Generation    int           `json:"generation"`
	Collected     int           `json:"collected"`
	Uncollectable int           `json:"uncollectable"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// GenStats 每代的累计统计
type GenStats struct {
	Collections   int64 `json:"collections"`
	Collected     int64 `json:"collected"`
	Uncollectable int64 `json:"uncollectable"`
}

type generation struct {
	head      object.Header
	threshold int
	count     int
}

// Collector 分代循环回收器
//
// 实现 object.Tracker。跟踪与取消跟踪由 mu 保护；Collect 只在世界静止时运行
// （单锁模式下持有 GIL，细粒度模式下 Stop-The-World），遍历链表时不持有 mu，
// 这样拆除过程中的 Untrack 可以重入。
type Collector struct {
	mu         sync.Mutex
	gens       [NumGenerations + 1]generation
	enabled    bool
	collecting bool
	state      State
	debug      DebugFlags

	// 长寿对象启发式：新晋升到最老代的对象不到其总量的 25% 时不做完整回收
	longLivedTotal   int
	longLivedPending int

	stats     [NumGenerations]GenStats
	epoch     coord.WideCounter
	garbage   []object.Object
	callbacks []Callback
	schedule  func()
	logger    *zap.Logger
}

// Option 回收器选项
type Option func(*Collector)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithScheduler 设置阈值触发时的调度函数（通常是置中断位）
func WithScheduler(fn func()) Option {
	return func(c *Collector) {
		c.schedule = fn
	}
}

// New 创建回收器
func New(cfg config.GCConfig, opts ...Option) *Collector {
	c := &Collector{
		enabled: cfg.Enabled,
		logger:  zap.NewNop(),
	}
	for i := range c.gens {
		listInit(&c.gens[i].head)
	}
	for i := 0; i < NumGenerations; i++ {
		c.gens[i].threshold = cfg.Thresholds[i]
	}
	for _, d := range cfg.Debug {
		switch d {
		case "stats":
			c.debug |= DebugStats
		case "collectable":
			c.debug |= DebugCollectable
		case "saveall":
			c.debug |= DebugSaveAll
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ============================================================================
// object.Tracker
// ============================================================================

// Track 实现 object.Tracker
func (c *Collector) Track(o object.Object) {
	h := o.Head()
	c.mu.Lock()
	if h.GC.Prev == nil {
		listAppend(h, &c.gens[0].head)
		h.GC.Gen = 0
	}
	c.mu.Unlock()
}

// Untrack 实现 object.Tracker
func (c *Collector) Untrack(o object.Object) {
	h := o.Head()
	c.mu.Lock()
	if h.GC.Prev != nil {
		listRemove(h)
		h.GC.Gen = -1
		h.GC.Flags = 0
	}
	c.mu.Unlock()
}

// Allocated 实现 object.Tracker
func (c *Collector) Allocated(t *object.Thread) {
	c.mu.Lock()
	g0 := &c.gens[0]
	g0.count++
	due := c.enabled && !c.collecting && g0.threshold > 0 && g0.count > g0.threshold
	c.mu.Unlock()
	if due && c.schedule != nil {
		c.schedule()
	}
}

// Deallocated 实现 object.Tracker
func (c *Collector) Deallocated() {
	c.mu.Lock()
	if c.gens[0].count > 0 {
		c.gens[0].count--
	}
	c.mu.Unlock()
}

// ============================================================================
// 回收
// ============================================================================

// ShouldCollect 第 0 代是否超过阈值
func (c *Collector) ShouldCollect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g0 := c.gens[0]
	return c.enabled && !c.collecting && g0.threshold > 0 && g0.count > g0.threshold
}

// CollectScheduled 回收计数超过阈值的最老一代
func (c *Collector) CollectScheduled(t *object.Thread) (Result, error) {
	c.mu.Lock()
	gen := -1
	for i := NumGenerations - 1; i >= 0; i-- {
		g := c.gens[i]
		if g.threshold <= 0 || g.count <= g.threshold {
			continue
		}
		if i == NumGenerations-1 && c.longLivedPending < c.longLivedTotal/4 {
			continue
		}
		gen = i
		break
	}
	c.mu.Unlock()
	if gen < 0 {
		return Result{Generation: -1}, nil
	}
	return c.Collect(t, gen)
}

// Collect 回收第 gen 代及所有更年轻的代
//
// 调用方保证世界已静止。回收进行中再次调用直接返回空结果。
func (c *Collector) Collect(t *object.Thread, gen int) (Result, error) {
	if gen < 0 || gen >= NumGenerations {
		return Result{}, fmt.Errorf("invalid generation %d", gen)
	}
	c.mu.Lock()
	if c.collecting {
		c.mu.Unlock()
		return Result{Generation: gen}, nil
	}
	c.collecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.collecting = false
		c.state = Idle
		c.mu.Unlock()
	}()

	start := time.Now()

	c.mu.Lock()
	if gen+1 < NumGenerations {
		c.gens[gen+1].count++
	}
	for i := 0; i <= gen; i++ {
		c.gens[i].count = 0
	}
	debug := c.debug
	callbacks := c.callbacks
	c.mu.Unlock()

	invoke(callbacks, PhaseStart, Info{Generation: gen})

	young := &c.gens[gen].head
	for i := 0; i < gen; i++ {
		listMerge(&c.gens[i].head, young)
	}
	old := young
	if gen+1 < NumGenerations {
		old = &c.gens[gen+1].head
	}

	c.setState(Scanning)
	updateRefs(young)

	c.setState(Subtracting)
	subtractRefs(young)

	c.setState(Partitioning)
	var unreachable object.Header
	listInit(&unreachable)
	moveUnreachable(young, &unreachable)
	clearCollecting(young)

	n := listSize(&unreachable)
	c.handleWeakRefs(t, &unreachable)

	if debug&DebugCollectable != 0 {
		for h := unreachable.GC.Next; h != &unreachable; h = h.GC.Next {
			c.logger.Info("gc: collectable", zap.String("type", h.Type().Name), zap.String("repr", object.Repr(h.Object())))
		}
	}

	c.setState(Finalizing)
	if debug&DebugSaveAll != 0 {
		var saved []object.Object
		for h := unreachable.GC.Next; h != &unreachable; h = h.GC.Next {
			saved = append(saved, t.NewRef(h.Object()))
		}
		c.mu.Lock()
		c.garbage = append(c.garbage, saved...)
		c.mu.Unlock()
		clearCollecting(&unreachable)
		listMerge(&unreachable, old)
	} else {
		c.finalize(t, &unreachable, old)
	}

	// 幸存者晋升
	if gen+1 < NumGenerations {
		promoted := listSize(young)
		listMerge(young, old)
		if gen+1 == NumGenerations-1 {
			c.longLivedPending += promoted
		}
	} else {
		c.longLivedPending = 0
		c.longLivedTotal = listSize(young)
	}
	oldGen := gen + 1
	if oldGen >= NumGenerations {
		oldGen = NumGenerations - 1
	}
	listSetGen(old, int8(oldGen))

	res := Result{Generation: gen, Collected: n, Elapsed: time.Since(start)}
	c.mu.Lock()
	c.stats[gen].Collections++
	c.stats[gen].Collected += int64(n)
	c.mu.Unlock()
	c.epoch.Inc()

	if debug&DebugStats != 0 {
		c.logger.Info("gc: done",
			zap.Int("generation", gen),
			zap.Int("collected", n),
			zap.Duration("elapsed", res.Elapsed))
	} else {
		c.logger.Debug("gc: done",
			zap.Int("generation", gen),
			zap.Int("collected", n),
			zap.Duration("elapsed", res.Elapsed))
	}

	invoke(callbacks, PhaseStop, Info{Generation: gen, Collected: n})
	return res, nil
}

func (c *Collector) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State 返回当前状态
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// updateRefs 把 gc_refs 初始化为真实引用计数
func updateRefs(young *object.Header) {
	for h := young.GC.Next; h != young; h = h.GC.Next {
		h.GC.Refs = h.RefCount()
		h.GC.Flags |= flagCollecting
	}
}

// subtractRefs 减去集合内部的引用
func subtractRefs(young *object.Header) {
	visit := func(child object.Object) error {
		ch := child.Head()
		if ch.GC.Flags&flagCollecting != 0 {
			ch.GC.Refs--
		}
		return nil
	}
	for h := young.GC.Next; h != young; h = h.GC.Next {
		traverse(h, visit)
	}
}

// moveUnreachable 把 gc_refs 为 0 的对象暂时移到 unreachable；
// 遇到仍被外部引用的对象时，把它能到达的对象恢复为可达
func moveUnreachable(young, unreachable *object.Header) {
	visit := func(child object.Object) error {
		ch := child.Head()
		if ch.GC.Flags&flagCollecting == 0 {
			return nil
		}
		if ch.GC.Flags&flagUnreachable != 0 {
			// 已被暂定为不可达，移回 young 尾部，稍后会再次扫描
			listMove(ch, young)
			ch.GC.Flags &^= flagUnreachable
			ch.GC.Refs = 1
		} else if ch.GC.Refs == 0 {
			// 尚未扫描到，标记为可达
			ch.GC.Refs = 1
		}
		return nil
	}

	h := young.GC.Next
	for h != young {
		next := h.GC.Next
		if h.GC.Refs > 0 {
			traverse(h, visit)
			next = h.GC.Next
		} else {
			listMove(h, unreachable)
			h.GC.Flags |= flagUnreachable
		}
		h = next
	}
}

func clearCollecting(head *object.Header) {
	for h := head.GC.Next; h != head; h = h.GC.Next {
		h.GC.Flags &^= flagCollecting | flagUnreachable
		h.GC.Refs = 0
	}
}

func traverse(h *object.Header, visit func(object.Object) error) {
	typ := h.Type()
	if typ.Traverse == nil {
		return
	}
	if err := typ.Traverse(h.Object(), visit); err != nil {
		errors.Fatal(errors.F0100, typ.Name, err)
	}
}

// handleWeakRefs 清空指向不可达对象的弱引用；只回调自身可达的弱引用
func (c *Collector) handleWeakRefs(t *object.Thread, unreachable *object.Header) {
	var targets []object.Object
	for h := unreachable.GC.Next; h != unreachable; h = h.GC.Next {
		if object.WeakRefCount(h.Object()) > 0 {
			targets = append(targets, h.Object())
		}
	}
	reachable := func(w *object.WeakRef) bool {
		return w.GC.Flags&flagUnreachable == 0
	}
	for _, o := range targets {
		t.ClearWeakRefs(o, reachable)
	}
}

// finalize 逐个 incref、clear、decref 不可达对象；clear 之后仍存活的对象移到 old
func (c *Collector) finalize(t *object.Thread, unreachable, old *object.Header) {
	for !listEmpty(unreachable) {
		h := unreachable.GC.Next
		o := h.Object()
		h.GC.Flags &^= flagCollecting | flagUnreachable
		h.GC.Refs = 0

		t.Incref(o)
		c.mu.Lock()
		listMove(h, old)
		c.mu.Unlock()

		if clear := h.Type().Clear; clear != nil {
			if err := clear(t, o); err != nil {
				errors.Fatal(errors.F0101, h.Type().Name, err)
			}
		}
		t.Decref(o)
	}
}

func invoke(callbacks []Callback, phase Phase, info Info) {
	for _, cb := range callbacks {
		cb(phase, info)
	}
}
