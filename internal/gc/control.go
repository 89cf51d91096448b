package gc

import "github.com/tangzhangming/novacore/internal/object"

// Stats 回收器统计快照
type Stats struct {
	Enabled     bool                     `json:"enabled"`
	Epoch       uint64                   `json:"epoch"`
	Generations [NumGenerations]GenStats `json:"generations"`
	Count       [NumGenerations]int      `json:"count"`
	Threshold   [NumGenerations]int      `json:"threshold"`
	Tracked     [NumGenerations]int      `json:"tracked"`
	Frozen      int                      `json:"frozen"`
	Garbage     int                      `json:"garbage"`
}

// Enable 启用自动回收
func (c *Collector) Enable() {
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
}

// Disable 关闭自动回收，显式的 Collect 仍然有效
func (c *Collector) Disable() {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
}

// Enabled 是否启用自动回收
func (c *Collector) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetThreshold 设置第 gen 代的阈值，0 关闭该代的自动回收
func (c *Collector) SetThreshold(gen, n int) {
	if gen < 0 || gen >= NumGenerations || n < 0 {
		return
	}
	c.mu.Lock()
	c.gens[gen].threshold = n
	c.mu.Unlock()
}

// Threshold 返回各代阈值
func (c *Collector) Threshold() [NumGenerations]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var th [NumGenerations]int
	for i := range th {
		th[i] = c.gens[i].threshold
	}
	return th
}

// Count 返回各代计数
//
// 第 0 代是净分配数，更老的代是更年轻一代被回收的次数。
func (c *Collector) Count() [NumGenerations]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n [NumGenerations]int
	for i := range n {
		n[i] = c.gens[i].count
	}
	return n
}

// SetDebug 设置调试标志
func (c *Collector) SetDebug(flags DebugFlags) {
	c.mu.Lock()
	c.debug = flags
	c.mu.Unlock()
}

// Debug 返回调试标志
func (c *Collector) Debug() DebugFlags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debug
}

// AddCallback 注册回收开始与结束的回调
func (c *Collector) AddCallback(cb Callback) {
	c.mu.Lock()
	c.callbacks = append(c.callbacks, cb)
	c.mu.Unlock()
}

// SetScheduler 设置阈值触发时的调度函数
func (c *Collector) SetScheduler(fn func()) {
	c.mu.Lock()
	c.schedule = fn
	c.mu.Unlock()
}

// Freeze 把所有被跟踪的对象移入永久代，之后的回收都会忽略它们
func (c *Collector) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	perm := &c.gens[permanent].head
	for i := 0; i < NumGenerations; i++ {
		listSetGen(&c.gens[i].head, permanent)
		listMerge(&c.gens[i].head, perm)
		c.gens[i].count = 0
	}
}

// Unfreeze 把永久代放回最老的一代
func (c *Collector) Unfreeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	oldest := &c.gens[NumGenerations-1].head
	perm := &c.gens[permanent].head
	listSetGen(perm, NumGenerations-1)
	listMerge(perm, oldest)
}

// FrozenCount 永久代中的对象数
func (c *Collector) FrozenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return listSize(&c.gens[permanent].head)
}

// IsTracked 对象是否被回收器跟踪
func (c *Collector) IsTracked(o object.Object) bool {
	return o.Head().IsTracked()
}

// Objects 返回第 gen 代中的对象，gen 为 -1 时返回所有普通代
//
// 返回的是借用引用，只在世界静止时有效。
func (c *Collector) Objects(gen int) []object.Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []object.Object
	collect := func(head *object.Header) {
		for h := head.GC.Next; h != head; h = h.GC.Next {
			out = append(out, h.Object())
		}
	}
	if gen < 0 {
		for i := 0; i < NumGenerations; i++ {
			collect(&c.gens[i].head)
		}
	} else if gen < NumGenerations {
		collect(&c.gens[gen].head)
	}
	return out
}

// Garbage 返回 DebugSaveAll 模式下保存的对象（借用引用）
func (c *Collector) Garbage() []object.Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]object.Object, len(c.garbage))
	copy(out, c.garbage)
	return out
}

// ReleaseGarbage 释放保存的对象
func (c *Collector) ReleaseGarbage(t *object.Thread) {
	c.mu.Lock()
	g := c.garbage
	c.garbage = nil
	c.mu.Unlock()
	t.DecrefAll(g)
}

// Epoch 已完成的回收次数
func (c *Collector) Epoch() uint64 {
	return c.epoch.Load()
}

// Stats 返回统计快照
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Enabled:     c.enabled,
		Generations: c.stats,
		Frozen:      listSize(&c.gens[permanent].head),
		Garbage:     len(c.garbage),
	}
	for i := 0; i < NumGenerations; i++ {
		s.Count[i] = c.gens[i].count
		s.Threshold[i] = c.gens[i].threshold
		s.Tracked[i] = listSize(&c.gens[i].head)
	}
	s.Epoch = c.epoch.Load()
	return s
}
