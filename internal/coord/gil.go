package coord

import (
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/novacore/internal/errors"
)

// ============================================================================
// 全局解释器锁
// ============================================================================
//
// 持有者只在检查点释放锁。等待者等满一个切换间隔仍未看到切换时，
// 在持有者的中断位上置 DropRequest；持有者在下一个检查点释放，
// 并在强制释放时等待别的线程真正拿到锁，避免自己立刻重新抢回。

// GIL 单锁模式的执行令牌
type GIL struct {
	mu       sync.Mutex
	locked   bool
	holder   *Thread
	switches uint64        // 每次获取加一
	released chan struct{} // 释放时关闭并替换
	switched chan struct{} // switches 变化时关闭并替换
	waiters  int

	interval time.Duration
	logger   *zap.Logger

	forced       atomic.Int64
	dropRequests atomic.Int64
}

// NewGIL 创建解释器锁
func NewGIL(interval time.Duration, logger *zap.Logger) *GIL {
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GIL{
		released: make(chan struct{}),
		switched: make(chan struct{}),
		interval: interval,
		logger:   logger,
	}
}

// Take 获取锁，阻塞直到成功
func (g *GIL) Take(t *Thread) {
	g.mu.Lock()
	if g.locked {
		g.waiters++
		for g.locked {
			released := g.released
			seen := g.switches
			g.mu.Unlock()

			timer := time.NewTimer(g.interval)
			timedOut := false
			select {
			case <-released:
			case <-timer.C:
				timedOut = true
			}
			timer.Stop()

			g.mu.Lock()
			if timedOut && g.locked && g.switches == seen {
				g.holder.Breaker.Set(DropRequest)
				g.dropRequests.Inc()
			}
		}
		g.waiters--
	}

	g.locked = true
	g.holder = t
	g.switches++
	close(g.switched)
	g.switched = make(chan struct{})

	// 刚拿到锁时不响应旧的释放请求
	t.Breaker.Clear(DropRequest)
	g.mu.Unlock()
}

// Drop 释放锁
//
// forced 为 true 且确有等待者时，等待另一个线程拿到锁后再返回。
func (g *GIL) Drop(t *Thread, forced bool) {
	g.mu.Lock()
	if !g.locked || g.holder != t {
		g.mu.Unlock()
		errors.Fatal(errors.F0302, t.ID)
		return
	}
	g.locked = false
	g.holder = nil
	close(g.released)
	g.released = make(chan struct{})

	if forced && g.waiters > 0 {
		g.forced.Inc()
		seen := g.switches
		for g.switches == seen && g.waiters > 0 {
			switched := g.switched
			g.mu.Unlock()
			<-switched
			g.mu.Lock()
		}
		g.logger.Debug("forced interpreter lock switch", zap.Int64("thread", t.ID))
	}
	g.mu.Unlock()
}

// Holder 返回当前持有者
func (g *GIL) Holder() *Thread {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder
}

// Held 检查 t 是否持有锁
func (g *GIL) Held(t *Thread) bool {
	return g.Holder() == t
}
