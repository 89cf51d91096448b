package alloc

import (
	"errors"
	"testing"

	"github.com/tangzhangming/novacore/internal/config"
)

func testConfig() config.AllocConfig {
	return config.Default().Alloc
}

func newTestAllocator(t *testing.T, cfg config.AllocConfig) *Allocator {
	t.Helper()
	a := New(cfg)
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return a
}

func TestSizeClasses(t *testing.T) {
	tests := []struct {
		size, class, blockSize int
	}{
		{0, 0, 16},
		{1, 0, 16},
		{16, 0, 16},
		{17, 1, 32},
		{100, 6, 112},
		{512, 31, 512},
	}
	for _, tt := range tests {
		if got := ClassOf(tt.size); got != tt.class {
			t.Errorf("ClassOf(%d) = %d, want %d", tt.size, got, tt.class)
		}
		if got := ClassSize(ClassOf(tt.size)); got != tt.blockSize {
			t.Errorf("ClassSize(ClassOf(%d)) = %d, want %d", tt.size, got, tt.blockSize)
		}
	}
	if IsSmall(SmallThreshold + 1) {
		t.Error("IsSmall(513) should be false")
	}
}

func TestAllocateRoundTripReusesPool(t *testing.T) {
	a := newTestAllocator(t, testConfig())
	c := a.NewCache()

	b1, err := c.Allocate(40)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	pool := b1.pool(a.PoolSize())
	arenas := a.Stats().ArenasCurrent

	c.Free(b1)
	b2, err := c.Allocate(48) // same class as 40
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if b2.pool(a.PoolSize()) != pool {
		t.Error("reallocation came from a different pool")
	}
	if b2.Arena() != b1.Arena() || b2.Offset() != b1.Offset() {
		t.Error("free-list reuse should return the same block")
	}
	if got := a.Stats().ArenasCurrent; got != arenas {
		t.Errorf("arena count changed: %d -> %d", arenas, got)
	}
	c.Free(b2)
}

func TestBlocksAreDistinctAndZeroed(t *testing.T) {
	a := newTestAllocator(t, testConfig())
	c := a.NewCache()

	seen := make(map[[2]int]bool)
	var blocks []Block
	for i := 0; i < 1000; i++ {
		b, err := c.Allocate(64)
		if err != nil {
			t.Fatal(err)
		}
		key := [2]int{int(b.Arena().ID()), b.Offset()}
		if seen[key] {
			t.Fatalf("block %v handed out twice", key)
		}
		seen[key] = true
		for _, x := range b.Bytes() {
			if x != 0 {
				t.Fatal("block not zeroed")
			}
		}
		copy(b.Bytes(), "dirty dirty dirty")
		blocks = append(blocks, b)
	}
	for _, b := range blocks {
		c.Free(b)
	}
	b, err := c.Allocate(64)
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range b.Bytes() {
		if x != 0 {
			t.Fatal("recycled block not zeroed")
		}
	}
	c.Free(b)
}

func TestBytesInUse(t *testing.T) {
	a := newTestAllocator(t, testConfig())
	c := a.NewCache()

	b1, _ := c.Allocate(10)
	b2, _ := c.Allocate(100)
	b3, _ := c.Allocate(4096)

	if got, want := a.BytesInUse(), int64(16+112+4096); got != want {
		t.Errorf("BytesInUse = %d, want %d", got, want)
	}
	if !b3.IsLarge() || b3.Class() != -1 {
		t.Error("4096-byte block should be large")
	}

	c.Free(b1)
	c.Free(b2)
	c.Free(b3)
	if got := a.BytesInUse(); got != 0 {
		t.Errorf("BytesInUse after free = %d, want 0", got)
	}
}

func TestHighWaterFlushesHalf(t *testing.T) {
	cfg := testConfig()
	cfg.CacheHighWater = 8
	a := newTestAllocator(t, cfg)
	c := a.NewCache()

	var blocks []Block
	for i := 0; i < 9; i++ {
		b, err := c.Allocate(32)
		if err != nil {
			t.Fatal(err)
		}
		blocks = append(blocks, b)
	}
	for _, b := range blocks {
		c.Free(b)
	}
	class := ClassOf(32)
	if got := c.Cached(class); got != 5 {
		t.Errorf("cached after overflow = %d, want 5", got)
	}
}

func TestDrainReleasesArenas(t *testing.T) {
	cfg := testConfig()
	cfg.CacheHighWater = 1 << 20
	a := newTestAllocator(t, cfg)
	c := a.NewCache()

	// 填满两个以上的 arena
	perArena := (cfg.ArenaSize / cfg.PoolSize) * (cfg.PoolSize / 512)
	var blocks []Block
	for i := 0; i < perArena*2+1; i++ {
		b, err := c.Allocate(512)
		if err != nil {
			t.Fatal(err)
		}
		blocks = append(blocks, b)
	}
	if got := a.Stats().ArenasCurrent; got != 3 {
		t.Fatalf("arenas = %d, want 3", got)
	}

	for _, b := range blocks {
		c.Free(b)
	}
	// 空闲链表中的块仍然占着 pool
	if got := a.Stats().ArenasCurrent; got != 3 {
		t.Errorf("arenas before drain = %d, want 3", got)
	}

	c.Drain()
	s := a.Stats()
	if s.ArenasCurrent != 1 {
		t.Errorf("arenas after drain = %d, want 1 (one idle arena kept)", s.ArenasCurrent)
	}
	if s.ArenasReclaimed != 2 {
		t.Errorf("reclaimed = %d, want 2", s.ArenasReclaimed)
	}
	if s.PoolsInUse != 0 {
		t.Errorf("pools in use = %d, want 0", s.PoolsInUse)
	}

	if err := a.Trim(); err != nil {
		t.Fatal(err)
	}
	if got := a.Stats().ArenasCurrent; got != 0 {
		t.Errorf("arenas after trim = %d, want 0", got)
	}
}

func TestArenaLimitIsRecoverable(t *testing.T) {
	cfg := testConfig()
	cfg.MaxArenas = 1
	a := newTestAllocator(t, cfg)
	c := a.NewCache()

	var (
		blocks []Block
		err    error
	)
	for i := 0; i < 10000; i++ {
		var b Block
		if b, err = c.Allocate(512); err != nil {
			break
		}
		blocks = append(blocks, b)
	}
	if !errors.Is(err, ErrNoMemory) {
		t.Fatalf("err = %v, want ErrNoMemory", err)
	}

	// 释放后可以继续分配
	c.Free(blocks[0])
	if _, err := c.Allocate(512); err != nil {
		t.Errorf("allocation after free failed: %v", err)
	}
}

func TestHeapLimitForLargeBlocks(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHeapBytes = 1 << 20
	a := newTestAllocator(t, cfg)
	c := a.NewCache()

	if _, err := c.Allocate(2 << 20); !errors.Is(err, ErrNoMemory) {
		t.Errorf("err = %v, want ErrNoMemory", err)
	}
}

func TestGoHeapArenas(t *testing.T) {
	cfg := testConfig()
	cfg.UseMmap = false
	a := newTestAllocator(t, cfg)
	c := a.NewCache()

	b, err := c.Allocate(24)
	if err != nil {
		t.Fatal(err)
	}
	copy(b.Bytes(), "hello")
	c.Free(b)
	c.Drain()
}

func TestAllocateAfterClose(t *testing.T) {
	a := New(testConfig())
	c := a.NewCache()
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Allocate(16); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestCachedBlocksInvalidAfterClose(t *testing.T) {
	a := New(testConfig())
	c := a.NewCache()
	b, err := c.Allocate(32)
	if err != nil {
		t.Fatal(err)
	}
	c.Free(b)
	if c.Cached(ClassOf(32)) != 1 {
		t.Fatalf("cached = %d, want 1", c.Cached(ClassOf(32)))
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Allocate(32); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if c.Cached(ClassOf(32)) != 0 {
		t.Errorf("free list kept %d blocks of a closed allocator", c.Cached(ClassOf(32)))
	}
	c.Drain()
}
