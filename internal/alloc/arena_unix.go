//go:build unix

package alloc

import "golang.org/x/sys/unix"

// mapMemory 通过匿名私有映射申请 arena 内存
func mapMemory(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// unmapMemory 归还 arena 内存
func unmapMemory(data []byte) error {
	return unix.Munmap(data)
}

const canMmap = true
