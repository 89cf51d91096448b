package alloc

// Stats 分配器统计
type Stats struct {
	ArenasCurrent   int   `json:"arenas_current"`
	ArenasAllocated int64 `json:"arenas_allocated"`
	ArenasReclaimed int64 `json:"arenas_reclaimed"`
	ArenasHighWater int   `json:"arenas_highwater"`
	PoolsInUse      int   `json:"pools_in_use"`

	BytesInUse  int64 `json:"bytes_in_use"` // 已交给调用方的小块字节（按尺寸类取整）
	LargeBytes  int64 `json:"large_bytes"`
	LargeBlocks int64 `json:"large_blocks"`
	Allocations int64 `json:"allocations"`
	Frees       int64 `json:"frees"`

	// BlocksInUse 各尺寸类在用块数，键为块大小，只列出非零项
	BlocksInUse map[int]int64 `json:"blocks_in_use"`
}

// Stats 返回统计快照
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	s := Stats{
		ArenasCurrent:   len(a.arenas),
		ArenasAllocated: a.arenasAllocated,
		ArenasReclaimed: a.arenasReclaimed,
		ArenasHighWater: a.arenasHighWater,
	}
	for _, ar := range a.arenas {
		s.PoolsInUse += ar.usedPools
	}
	a.mu.Unlock()

	s.BytesInUse = a.bytesInUse.Load()
	s.LargeBytes = a.largeBytes.Load()
	s.LargeBlocks = a.largeBlocks.Load()
	s.Allocations = a.allocs.Load()
	s.Frees = a.frees.Load()
	s.BlocksInUse = make(map[int]int64)
	for class := range a.classBlocks {
		if n := a.classBlocks[class].Load(); n != 0 {
			s.BlocksInUse[ClassSize(class)] = n
		}
	}
	return s
}

// BytesInUse 返回已交给调用方的字节（小块 + 大块）
func (a *Allocator) BytesInUse() int64 {
	return a.bytesInUse.Load() + a.largeBytes.Load()
}
