package vm

import (
	"sync"

	"github.com/tangzhangming/novacore/internal/object"
)

// ============================================================================
// sync.Pool 复用帧的槽位数组
// ============================================================================
//
// 每次调用都需要一个局部变量数组和一个操作数栈。两者的生命周期与帧相同，
// 按容量分成几档放进 sync.Pool。归还前槽位必须已经全部置 nil。
//
// ============================================================================

// 小槽位池（容量 8）
var smallSlotsPool = sync.Pool{
	New: func() interface{} {
		arr := make([]object.Object, 8)
		return &arr
	},
}

// 中槽位池（容量 32）
var mediumSlotsPool = sync.Pool{
	New: func() interface{} {
		arr := make([]object.Object, 32)
		return &arr
	},
}

// 大槽位池（容量 128）
var largeSlotsPool = sync.Pool{
	New: func() interface{} {
		arr := make([]object.Object, 128)
		return &arr
	},
}

// getSlots 返回长度为 n、全部为 nil 的槽位数组
func getSlots(n int) []object.Object {
	var ptr *[]object.Object
	switch {
	case n == 0:
		return nil
	case n <= 8:
		ptr = smallSlotsPool.Get().(*[]object.Object)
	case n <= 32:
		ptr = mediumSlotsPool.Get().(*[]object.Object)
	case n <= 128:
		ptr = largeSlotsPool.Get().(*[]object.Object)
	default:
		// 超出池大小，直接分配
		return make([]object.Object, n)
	}
	return (*ptr)[:n]
}

// putSlots 归还槽位数组
func putSlots(arr []object.Object) {
	c := cap(arr)
	if c == 0 {
		return
	}
	arr = arr[:c]
	for i := range arr {
		arr[i] = nil
	}
	switch c {
	case 8:
		smallSlotsPool.Put(&arr)
	case 32:
		mediumSlotsPool.Put(&arr)
	case 128:
		largeSlotsPool.Put(&arr)
	}
	// 其他容量交给 Go GC
}
