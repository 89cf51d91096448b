package alloc

// Block 分配器交给调用方的内存块
//
// 小块由 (arena, offset, class) 定位；大块直接持有 Go 堆上的字节切片。
type Block struct {
	arena *Arena
	off   int
	class int
	large []byte
}

// IsZero 是否为空句柄
func (b Block) IsZero() bool {
	return b.arena == nil && b.large == nil
}

// IsLarge 是否为大块
func (b Block) IsLarge() bool {
	return b.large != nil
}

// Class 返回尺寸类，大块返回 -1
func (b Block) Class() int {
	if b.large != nil {
		return -1
	}
	return b.class
}

// Size 返回块的实际字节数（小块为尺寸类大小）
func (b Block) Size() int {
	if b.large != nil {
		return len(b.large)
	}
	if b.arena == nil {
		return 0
	}
	return ClassSize(b.class)
}

// Bytes 返回块内存
func (b Block) Bytes() []byte {
	if b.large != nil {
		return b.large
	}
	if b.arena == nil {
		return nil
	}
	return b.arena.data[b.off : b.off+ClassSize(b.class)]
}

// Arena 返回所在 arena（大块为 nil）
func (b Block) Arena() *Arena {
	return b.arena
}

// Offset 返回 arena 内偏移
func (b Block) Offset() int {
	return b.off
}

// pool 返回所在 pool
func (b Block) pool(poolSize int) *Pool {
	return b.arena.poolAt(b.off, poolSize)
}
