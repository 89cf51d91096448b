package vm

import (
	"go.uber.org/atomic"

	"github.com/tangzhangming/novacore/internal/alloc"
	"github.com/tangzhangming/novacore/internal/coord"
	"github.com/tangzhangming/novacore/internal/gc"
	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// 统计
// ============================================================================

// threadCounters 线程内计数；其他 goroutine 只读
type threadCounters struct {
	instructions  atomic.Int64
	calls         atomic.Int64
	framesPushed  atomic.Int64
	framesPopped  atomic.Int64
	checkpoints   atomic.Int64
	exceptions    atomic.Int64
	collections   atomic.Int64
	interruptions atomic.Int64
}

// ThreadStats 线程统计
type ThreadStats struct {
	Instructions  int64 `json:"instructions"`
	Calls         int64 `json:"calls"`
	FramesPushed  int64 `json:"frames_pushed"`
	FramesPopped  int64 `json:"frames_popped"`
	Checkpoints   int64 `json:"checkpoints"`
	Exceptions    int64 `json:"exceptions"`
	Collections   int64 `json:"collections"`
	Interruptions int64 `json:"interruptions"`
}

func (s *ThreadStats) add(o ThreadStats) {
	s.Instructions += o.Instructions
	s.Calls += o.Calls
	s.FramesPushed += o.FramesPushed
	s.FramesPopped += o.FramesPopped
	s.Checkpoints += o.Checkpoints
	s.Exceptions += o.Exceptions
	s.Collections += o.Collections
	s.Interruptions += o.Interruptions
}

// Stats 返回线程统计快照
func (ts *ThreadState) Stats() ThreadStats {
	c := &ts.stats
	return ThreadStats{
		Instructions:  c.instructions.Load(),
		Calls:         c.calls.Load(),
		FramesPushed:  c.framesPushed.Load(),
		FramesPopped:  c.framesPopped.Load(),
		Checkpoints:   c.checkpoints.Load(),
		Exceptions:    c.exceptions.Load(),
		Collections:   c.collections.Load(),
		Interruptions: c.interruptions.Load(),
	}
}

// Stats 解释器统计
type Stats struct {
	ID         string          `json:"id"`
	Threads    int             `json:"threads"`
	Eval       ThreadStats     `json:"eval"`
	Interrupts int64           `json:"interrupts"`
	Objects    object.Counters `json:"objects"`
	RefTotal   int64           `json:"ref_total"`
	Live       int64           `json:"live"`
	Alloc      alloc.Stats     `json:"alloc"`
	GC         gc.Stats        `json:"gc"`
	Coord      coord.Stats     `json:"coord"`
}

// Stats 汇总所有线程（含已关闭线程）的统计
func (in *Interpreter) Stats() Stats {
	in.mu.Lock()
	eval := in.retired
	n := len(in.threads)
	for ts := range in.threads {
		eval.add(ts.Stats())
	}
	in.mu.Unlock()

	c := in.heap.Counters()
	return Stats{
		ID:         in.id.String(),
		Threads:    n,
		Eval:       eval,
		Interrupts: in.interrupts.Load(),
		Objects:    c,
		RefTotal:   c.RefTotal(),
		Live:       c.Live(),
		Alloc:      in.alloc.Stats(),
		GC:         in.gc.Stats(),
		Coord:      in.coord.Stats(),
	}
}
