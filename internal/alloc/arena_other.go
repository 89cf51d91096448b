//go:build !unix

package alloc

import "errors"

func mapMemory(size int) ([]byte, error) {
	return nil, errors.New("mmap not supported on this platform")
}

func unmapMemory(data []byte) error {
	return nil
}

const canMmap = false
