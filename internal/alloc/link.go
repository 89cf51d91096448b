package alloc

import "encoding/binary"

// 空闲链表的链接字
//
// 空闲块的前 8 字节存放下一个空闲块的位置：高 32 位是 arena id，低 32 位是
// arena 内偏移。arena id 从 1 开始，所以 0 表示链表结束。
type link uint64

func makeLink(arenaID uint32, off int) link {
	return link(uint64(arenaID)<<32 | uint64(uint32(off)))
}

func (l link) arenaID() uint32 { return uint32(l >> 32) }
func (l link) offset() int     { return int(uint32(l)) }

func readLink(data []byte, off int) link {
	return link(binary.LittleEndian.Uint64(data[off : off+8]))
}

func writeLink(data []byte, off int, l link) {
	binary.LittleEndian.PutUint64(data[off:off+8], uint64(l))
}
