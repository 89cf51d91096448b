package coord

import (
	"sync"
	"time"
)

// waiter 停放中的线程
type waiter struct {
	wake    chan struct{}
	since   time.Time
	handoff bool // 唤醒时锁已直接移交给它
}

// ParkingLot 按地址排队的停车场
//
// 校验函数与唤醒回调都在同一把锁下运行，因此锁字的“有停放者”位
// 与队列内容始终一致。
type ParkingLot struct {
	mu     sync.Mutex
	queues map[uintptr][]*waiter
}

// NewParkingLot 创建停车场
func NewParkingLot() *ParkingLot {
	return &ParkingLot{queues: make(map[uintptr][]*waiter)}
}

// Park 在 addr 上停放，直到被 Unpark 唤醒
//
// validate 返回 false 时不停放，立即返回 parked=false。
func (pl *ParkingLot) Park(addr uintptr, since time.Time, validate func() bool) (parked, handoff bool) {
	pl.mu.Lock()
	if !validate() {
		pl.mu.Unlock()
		return false, false
	}
	w := &waiter{wake: make(chan struct{}), since: since}
	pl.queues[addr] = append(pl.queues[addr], w)
	pl.mu.Unlock()

	<-w.wake
	return true, w.handoff
}

// Unpark 唤醒 addr 上最早停放的线程
//
// fn 在锁内调用：w 为 nil 表示没有停放者；more 表示唤醒之后是否仍有停放者。
// fn 返回 true 表示锁直接移交给被唤醒者。
func (pl *ParkingLot) Unpark(addr uintptr, fn func(w *waiter, more bool) bool) {
	pl.mu.Lock()
	q := pl.queues[addr]
	if len(q) == 0 {
		fn(nil, false)
		pl.mu.Unlock()
		return
	}
	w := q[0]
	q = q[1:]
	if len(q) == 0 {
		delete(pl.queues, addr)
	} else {
		pl.queues[addr] = q
	}
	w.handoff = fn(w, len(q) > 0)
	pl.mu.Unlock()

	close(w.wake)
}

// Waiting 返回 addr 上的停放者数量
func (pl *ParkingLot) Waiting(addr uintptr) int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.queues[addr])
}
