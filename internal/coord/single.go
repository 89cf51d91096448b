package coord

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tangzhangming/novacore/internal/config"
)

// SingleLock 单锁模式：任一时刻只有持有 GIL 的线程执行解释循环
type SingleLock struct {
	registry
	gil *GIL

	statsMu sync.Mutex
	stw     stwStats
}

// NewSingleLock 创建单锁协调器
func NewSingleLock(interval time.Duration, logger *zap.Logger) *SingleLock {
	return &SingleLock{gil: NewGIL(interval, logger)}
}

// GIL 返回解释器锁
func (s *SingleLock) GIL() *GIL {
	return s.gil
}

// Attach 实现 Coordinator
func (s *SingleLock) Attach() *Thread {
	t := s.add()
	s.gil.Take(t)
	t.state = stateRunning
	return t
}

// Detach 实现 Coordinator
func (s *SingleLock) Detach(t *Thread) {
	t.state = stateDetached
	s.remove(t)
	s.gil.Drop(t, false)
}

// Checkpoint 实现 Coordinator
func (s *SingleLock) Checkpoint(t *Thread) {
	if t.Breaker.Has(DropRequest) {
		s.gil.Drop(t, true)
		s.gil.Take(t)
	}
	// 持有 GIL 即是全局安全点
	t.Breaker.Clear(StopTheWorld)
}

// BeginBlocking 实现 Coordinator
func (s *SingleLock) BeginBlocking(t *Thread) {
	t.state = stateBlocking
	s.gil.Drop(t, false)
}

// EndBlocking 实现 Coordinator
func (s *SingleLock) EndBlocking(t *Thread) {
	s.gil.Take(t)
	t.state = stateRunning
}

// StopTheWorld 实现 Coordinator；调用方持有 GIL，其他线程都不在执行
func (s *SingleLock) StopTheWorld(t *Thread) {
	s.statsMu.Lock()
	s.stw.begin()
	s.statsMu.Unlock()
}

// StartTheWorld 实现 Coordinator
func (s *SingleLock) StartTheWorld(t *Thread) {
	s.statsMu.Lock()
	s.stw.end()
	s.statsMu.Unlock()
}

// Mode 实现 Coordinator
func (s *SingleLock) Mode() config.Mode {
	return config.ModeSingle
}

// Stats 实现 Coordinator
func (s *SingleLock) Stats() Stats {
	s.gil.mu.Lock()
	switches := int64(s.gil.switches)
	s.gil.mu.Unlock()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Stats{
		Mode:           config.ModeSingle,
		Threads:        s.count(),
		Switches:       switches,
		ForcedSwitches: s.gil.forced.Load(),
		DropRequests:   s.gil.dropRequests.Load(),
		STWCount:       s.stw.count,
		STWTotal:       s.stw.total,
		STWMax:         s.stw.max,
	}
}
