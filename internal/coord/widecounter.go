package coord

import (
	"runtime"
	"sync"

	"go.uber.org/atomic"
)

// WideCounter 由两个 32 位半字组成的单调 64 位计数器
//
// 写入方之间由 mu 串行；读取无锁，通过序号检测并重试被撕裂的读。
type WideCounter struct {
	mu  sync.Mutex
	seq atomic.Uint32
	lo  atomic.Uint32
	hi  atomic.Uint32
}

// Add 增加 n
func (c *WideCounter) Add(n uint32) {
	c.mu.Lock()
	c.seq.Inc() // 奇数：写入中
	lo := c.lo.Load()
	sum := lo + n
	if sum < lo {
		c.hi.Inc()
	}
	c.lo.Store(sum)
	c.seq.Inc()
	c.mu.Unlock()
}

// Inc 加一
func (c *WideCounter) Inc() {
	c.Add(1)
}

// Load 读取当前值
func (c *WideCounter) Load() uint64 {
	for {
		s1 := c.seq.Load()
		if s1&1 != 0 {
			runtime.Gosched()
			continue
		}
		hi := c.hi.Load()
		lo := c.lo.Load()
		if c.seq.Load() == s1 {
			return uint64(hi)<<32 | uint64(lo)
		}
	}
}
