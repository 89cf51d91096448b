package alloc

// 尺寸类
//
// 小于等于 SmallThreshold 的请求按 Alignment 向上取整，每个对齐步长对应一个尺寸类：
//
//	请求字节     尺寸类   块大小
//	1-16         0        16
//	17-32        1        32
//	...
//	497-512      31       512
const (
	Alignment      = 16
	AlignmentShift = 4
	SmallThreshold = 512
	NumClasses     = SmallThreshold / Alignment
)

// ClassOf 返回 size 所属的尺寸类，0 字节按 1 字节处理
func ClassOf(size int) int {
	if size <= 0 {
		size = 1
	}
	return (size - 1) >> AlignmentShift
}

// ClassSize 返回尺寸类的块大小
func ClassSize(class int) int {
	return (class + 1) << AlignmentShift
}

// IsSmall 是否由 pool 系统服务
func IsSmall(size int) bool {
	return size <= SmallThreshold
}
