// Package coord 实现并发协调器：单锁模式（GIL）与细粒度模式（字节锁 + 安全点）
package coord

import "go.uber.org/atomic"

// 中断位
//
// 解释循环在检查点读取这些位；任何一位被置上都会让循环进入慢路径。
const (
	DropRequest  uint32 = 1 << iota // 其他线程在等待解释器锁
	Interrupt                       // 有待处理的异步中断
	GCScheduled                     // 需要运行循环回收
	StopTheWorld                    // 需要在安全点暂停
)

// Breaker 每线程的中断位集合
type Breaker struct {
	bits atomic.Uint32
}

// Set 置位
func (b *Breaker) Set(bit uint32) {
	for {
		old := b.bits.Load()
		if old&bit == bit || b.bits.CAS(old, old|bit) {
			return
		}
	}
}

// Clear 清位
func (b *Breaker) Clear(bit uint32) {
	for {
		old := b.bits.Load()
		if old&bit == 0 || b.bits.CAS(old, old&^bit) {
			return
		}
	}
}

// Take 清除并返回该位之前是否被置上
func (b *Breaker) Take(bit uint32) bool {
	for {
		old := b.bits.Load()
		if old&bit == 0 {
			return false
		}
		if b.bits.CAS(old, old&^bit) {
			return true
		}
	}
}

// Has 检查某位
func (b *Breaker) Has(bit uint32) bool {
	return b.bits.Load()&bit != 0
}

// Pending 是否有任意位被置上
func (b *Breaker) Pending() bool {
	return b.bits.Load() != 0
}

// Load 返回所有位
func (b *Breaker) Load() uint32 {
	return b.bits.Load()
}
