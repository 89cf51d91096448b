package coord

import (
	"runtime"
	"time"
	"unsafe"

	"github.com/petermattis/goid"
	"go.uber.org/atomic"

	"github.com/tangzhangming/novacore/internal/errors"
)

// 锁字状态
//
// 两个位组合出四种状态：unlocked、locked、unlocked+parked、locked+parked。
// Go 没有 8 位 CAS，锁字存放在 uint32 中，只使用低两位。
const (
	mutexLocked    uint32 = 1
	mutexHasParked uint32 = 2
)

const maxSpins = 40

var (
	lot          = NewParkingLot()
	handoffAfter = atomic.NewDuration(time.Millisecond)
	debugLocks   atomic.Bool
)

// SetHandoffAfter 设置直接移交的等待阈值
func SetHandoffAfter(d time.Duration) {
	handoffAfter.Store(d)
}

// SetDebugLocks 开启后记录持有者，并把同线程重复加锁报告为致命错误
func SetDebugLocks(on bool) {
	debugLocks.Store(on)
}

// Mutex 每对象的字节锁
//
// 零值为未加锁状态。不可重入；复制已使用的 Mutex 是错误的。
type Mutex struct {
	state atomic.Uint32
	owner atomic.Int64 // 仅调试模式写入
}

func (m *Mutex) addr() uintptr {
	return uintptr(unsafe.Pointer(m))
}

// Lock 加锁
func (m *Mutex) Lock() {
	debug := debugLocks.Load()
	var gid int64
	if debug {
		gid = goid.Get()
		if m.owner.Load() == gid {
			errors.Fatal(errors.F0300, gid)
		}
	}
	if !m.state.CAS(0, mutexLocked) {
		m.lockSlow()
	}
	if debug {
		m.owner.Store(gid)
	}
}

// TryLock 尝试加锁
func (m *Mutex) TryLock() bool {
	for {
		v := m.state.Load()
		if v&mutexLocked != 0 {
			return false
		}
		if m.state.CAS(v, v|mutexLocked) {
			if debugLocks.Load() {
				m.owner.Store(goid.Get())
			}
			return true
		}
	}
}

func (m *Mutex) lockSlow() {
	start := time.Now()
	spins := 0
	for {
		v := m.state.Load()
		if v&mutexLocked == 0 {
			if m.state.CAS(v, v|mutexLocked) {
				return
			}
			continue
		}

		if v&mutexHasParked == 0 {
			if spins < maxSpins {
				spins++
				runtime.Gosched()
				continue
			}
			if !m.state.CAS(v, v|mutexHasParked) {
				continue
			}
		}

		parked, handoff := lot.Park(m.addr(), start, func() bool {
			return m.state.Load() == mutexLocked|mutexHasParked
		})
		if parked && handoff {
			return
		}
	}
}

// Unlock 解锁
func (m *Mutex) Unlock() {
	if debugLocks.Load() {
		m.owner.Store(0)
	}
	if m.state.CAS(mutexLocked, 0) {
		return
	}
	m.unlockSlow()
}

func (m *Mutex) unlockSlow() {
	for {
		v := m.state.Load()
		if v&mutexLocked == 0 {
			errors.Fatal(errors.F0301)
			return
		}
		if v&mutexHasParked != 0 {
			break
		}
		if m.state.CAS(v, 0) {
			return
		}
	}

	threshold := handoffAfter.Load()
	lot.Unpark(m.addr(), func(w *waiter, more bool) bool {
		if w != nil && time.Since(w.since) > threshold {
			// 锁保持 locked 状态直接交给 w
			next := mutexLocked
			if more {
				next |= mutexHasParked
			}
			m.state.Store(next)
			return true
		}
		var next uint32
		if more {
			next = mutexHasParked
		}
		m.state.Store(next)
		return false
	})
}

// Locked 锁当前是否被持有
func (m *Mutex) Locked() bool {
	return m.state.Load()&mutexLocked != 0
}

// HasParked 是否有停放的等待者
func (m *Mutex) HasParked() bool {
	return m.state.Load()&mutexHasParked != 0
}
