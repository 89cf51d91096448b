package coord

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tangzhangming/novacore/internal/config"
)

// stwStats STW 统计
type stwStats struct {
	count int64
	total time.Duration
	max   time.Duration
	start time.Time
}

func (s *stwStats) begin() {
	s.start = time.Now()
}

func (s *stwStats) end() {
	d := time.Since(s.start)
	s.count++
	s.total += d
	if d > s.max {
		s.max = d
	}
}

// ============================================================================
// 细粒度模式
// ============================================================================
//
// 线程真正并行执行，引用计数改为原子操作，可变容器由各自的 Mutex 保护。
// 循环回收等需要静止堆的操作通过安全点计数实现 Stop-The-World：
//  1. 请求者置 stwActive，并在其他线程的中断位上置 StopTheWorld
//  2. 其他线程在下一个检查点停放；处于阻塞调用中的线程视为已停放
//  3. 运行中的线程数降到 1（请求者自己）时请求者继续
//  4. StartTheWorld 清除标志并广播唤醒

// FreeThreaded 细粒度模式协调器
type FreeThreaded struct {
	registry

	mu        sync.Mutex
	cond      *sync.Cond
	running   int // 处于 stateRunning 的线程数
	stwActive bool
	stwOwner  *Thread
	stw       stwStats

	logger *zap.Logger
}

// NewFreeThreaded 创建细粒度协调器
func NewFreeThreaded(logger *zap.Logger) *FreeThreaded {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &FreeThreaded{logger: logger}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Attach 实现 Coordinator；STW 期间新线程要等到世界恢复
func (f *FreeThreaded) Attach() *Thread {
	t := f.add()
	f.mu.Lock()
	for f.stwActive {
		f.cond.Wait()
	}
	t.state = stateRunning
	f.running++
	f.mu.Unlock()
	return t
}

// Detach 实现 Coordinator
func (f *FreeThreaded) Detach(t *Thread) {
	f.mu.Lock()
	if t.state == stateRunning {
		f.running--
	}
	t.state = stateDetached
	f.cond.Broadcast()
	f.mu.Unlock()
	f.remove(t)
}

// Checkpoint 实现 Coordinator
func (f *FreeThreaded) Checkpoint(t *Thread) {
	t.Breaker.Clear(DropRequest)
	if !t.Breaker.Has(StopTheWorld) {
		return
	}
	f.mu.Lock()
	f.parkLocked(t)
	f.mu.Unlock()
}

// parkLocked 在安全点停放，直到当前 STW 结束
func (f *FreeThreaded) parkLocked(t *Thread) {
	for f.stwActive && f.stwOwner != t {
		t.state = stateParked
		f.running--
		f.cond.Broadcast()
		for f.stwActive {
			f.cond.Wait()
		}
		t.state = stateRunning
		f.running++
	}
	t.Breaker.Clear(StopTheWorld)
}

// BeginBlocking 实现 Coordinator
func (f *FreeThreaded) BeginBlocking(t *Thread) {
	f.mu.Lock()
	t.state = stateBlocking
	f.running--
	f.cond.Broadcast()
	f.mu.Unlock()
}

// EndBlocking 实现 Coordinator；STW 期间不能恢复执行
func (f *FreeThreaded) EndBlocking(t *Thread) {
	f.mu.Lock()
	for f.stwActive {
		f.cond.Wait()
	}
	t.state = stateRunning
	f.running++
	t.Breaker.Clear(StopTheWorld)
	f.mu.Unlock()
}

// StopTheWorld 实现 Coordinator
func (f *FreeThreaded) StopTheWorld(t *Thread) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// 另一个线程正在 STW：先作为普通线程停放
	f.parkLocked(t)

	f.stwActive = true
	f.stwOwner = t
	f.stw.begin()
	f.SignalAll(StopTheWorld)
	t.Breaker.Clear(StopTheWorld)

	for f.running > 1 {
		f.cond.Wait()
	}
	f.logger.Debug("world stopped",
		zap.Int64("thread", t.ID),
		zap.Duration("wait", time.Since(f.stw.start)))
}

// StartTheWorld 实现 Coordinator
func (f *FreeThreaded) StartTheWorld(t *Thread) {
	f.mu.Lock()
	f.stwActive = false
	f.stwOwner = nil
	f.stw.end()
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Mode 实现 Coordinator
func (f *FreeThreaded) Mode() config.Mode {
	return config.ModeFree
}

// Stats 实现 Coordinator
func (f *FreeThreaded) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Mode:     config.ModeFree,
		Threads:  f.count(),
		STWCount: f.stw.count,
		STWTotal: f.stw.total,
		STWMax:   f.stw.max,
	}
}
