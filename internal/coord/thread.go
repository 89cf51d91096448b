package coord

import (
	"sync"

	"github.com/petermattis/goid"
	"go.uber.org/atomic"
)

// threadState 协调器视角的线程状态
type threadState int

const (
	stateDetached threadState = iota
	stateRunning
	stateBlocking // 阻塞调用中，不持有执行权
	stateParked   // 在安全点暂停
)

// Thread 协调器一侧的线程句柄
type Thread struct {
	ID      int64
	GoID    int64 // Attach 时所在 goroutine，用于诊断
	Breaker Breaker

	state    threadState // 由协调器的锁保护
	attached atomic.Bool
}

// Attached 是否仍附着在协调器上
func (t *Thread) Attached() bool {
	return t.attached.Load()
}

// registry 两种模式共用的线程登记表
type registry struct {
	mu      sync.Mutex
	nextID  int64
	threads map[int64]*Thread
}

func (r *registry) add() *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.threads == nil {
		r.threads = make(map[int64]*Thread)
	}
	r.nextID++
	t := &Thread{ID: r.nextID, GoID: goid.Get()}
	t.attached.Store(true)
	r.threads[t.ID] = t
	return t
}

func (r *registry) remove(t *Thread) {
	r.mu.Lock()
	delete(r.threads, t.ID)
	r.mu.Unlock()
	t.attached.Store(false)
}

// SignalAll 在所有已附着线程上置位
func (r *registry) SignalAll(bit uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.threads {
		t.Breaker.Set(bit)
	}
}

// Threads 返回已附着线程的快照
func (r *registry) Threads() []*Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Thread, 0, len(r.threads))
	for _, t := range r.threads {
		out = append(out, t)
	}
	return out
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}
