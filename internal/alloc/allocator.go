// Package alloc 实现小对象分配器：arena / pool / block 三级结构与线程空闲链表
package alloc

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tangzhangming/novacore/internal/config"
)

// ErrNoMemory 分配失败（可恢复）
var ErrNoMemory = errors.New("out of memory")

// ErrClosed 分配器已关闭
var ErrClosed = errors.New("allocator closed")

// Allocator 解释器实例的内存分配器
//
// arena 与 pool 结构由 mu 保护；热路径在线程的 Cache 上完成，不加锁。
type Allocator struct {
	mu     sync.Mutex
	cfg    config.AllocConfig
	logger *zap.Logger
	mmap   bool

	nextID uint32
	arenas map[uint32]*Arena
	table  atomic.Value // map[uint32]*Arena 快照，供 Cache 无锁解码链接
	usable []*Arena     // 仍有空 pool 的 arena
	idle   *Arena       // 保留的一个全空 arena
	used   [NumClasses]*Pool
	closed bool

	arenasAllocated int64
	arenasReclaimed int64
	arenasHighWater int

	bytesInUse  atomic.Int64
	largeBytes  atomic.Int64
	largeBlocks atomic.Int64
	classBlocks [NumClasses]atomic.Int64
	allocs      atomic.Int64
	frees       atomic.Int64
}

// Option 分配器选项
type Option func(*Allocator)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New 创建分配器
func New(cfg config.AllocConfig, opts ...Option) *Allocator {
	a := &Allocator{
		cfg:    cfg,
		logger: zap.NewNop(),
		mmap:   cfg.UseMmap && canMmap,
		arenas: make(map[uint32]*Arena),
	}
	if a.cfg.PoolSize <= 0 {
		a.cfg.PoolSize = 16 << 10
	}
	if a.cfg.ArenaSize < a.cfg.PoolSize {
		a.cfg.ArenaSize = 16 * a.cfg.PoolSize
	}
	if a.cfg.CacheHighWater < 2 {
		a.cfg.CacheHighWater = 64
	}
	a.table.Store(map[uint32]*Arena{})
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewCache 创建线程空闲链表
func (a *Allocator) NewCache() *Cache {
	return &Cache{a: a, highWater: a.cfg.CacheHighWater}
}

// PoolSize 返回 pool 字节数
func (a *Allocator) PoolSize() int {
	return a.cfg.PoolSize
}

// ArenaSize 返回 arena 字节数
func (a *Allocator) ArenaSize() int {
	return a.cfg.ArenaSize
}

// lookup 无锁查找 arena
func (a *Allocator) lookup(id uint32) *Arena {
	return a.table.Load().(map[uint32]*Arena)[id]
}

// publish 在 mu 下重建 arena 快照
func (a *Allocator) publish() {
	m := make(map[uint32]*Arena, len(a.arenas))
	for id, ar := range a.arenas {
		m[id] = ar
	}
	a.table.Store(m)
}

// ============================================================================
// 小块
// ============================================================================

// allocSmall 从尺寸类的已用 pool 取块，没有则切一个新 pool
func (a *Allocator) allocSmall(class int) (Block, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return Block{}, ErrClosed
	}

	p := a.used[class]
	if p == nil {
		var err error
		if p, err = a.newPool(class); err != nil {
			return Block{}, err
		}
	}
	off := p.take()
	if p.full() {
		a.unlinkUsed(p)
	}
	return Block{arena: p.arena, off: off, class: class}, nil
}

// releaseSmall 把块还给 pool；pool 变空时还给 arena，arena 变空时解除映射
func (a *Allocator) releaseSmall(ar *Arena, off, class int) {
	p := ar.poolAt(off, a.cfg.PoolSize)
	wasFull := p.full()
	p.put(off)

	switch {
	case p.count == 0:
		if p.linked {
			a.unlinkUsed(p)
		}
		wasUsable := len(ar.freePools) > 0
		ar.returnPool(p)
		if !wasUsable {
			a.usable = append(a.usable, ar)
		}
		if ar.usedPools == 0 {
			a.retire(ar)
		}
	case wasFull:
		a.linkUsed(p)
	}
}

// newPool 从最繁忙且仍有空 pool 的 arena 切出一个 pool
func (a *Allocator) newPool(class int) (*Pool, error) {
	ar := a.pickArena()
	if ar == nil {
		var err error
		if ar, err = a.mapArena(); err != nil {
			return nil, err
		}
	}
	if ar == a.idle {
		a.idle = nil
	}
	p := ar.carvePool(class, a.cfg.PoolSize)
	if len(ar.freePools) == 0 {
		a.removeUsable(ar)
	}
	a.linkUsed(p)
	return p, nil
}

// pickArena 选择空 pool 最少的 arena，让空闲 arena 有机会整体归还
func (a *Allocator) pickArena() *Arena {
	var best *Arena
	for _, ar := range a.usable {
		if best == nil || len(ar.freePools) < len(best.freePools) {
			best = ar
		}
	}
	return best
}

func (a *Allocator) removeUsable(ar *Arena) {
	for i, u := range a.usable {
		if u == ar {
			a.usable = append(a.usable[:i], a.usable[i+1:]...)
			return
		}
	}
}

func (a *Allocator) linkUsed(p *Pool) {
	head := a.used[p.class]
	p.prev = nil
	p.next = head
	if head != nil {
		head.prev = p
	}
	a.used[p.class] = p
	p.linked = true
}

func (a *Allocator) unlinkUsed(p *Pool) {
	if p.prev != nil {
		p.prev.next = p.next
	} else {
		a.used[p.class] = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	}
	p.prev, p.next, p.linked = nil, nil, false
}

// ============================================================================
// arena
// ============================================================================

func (a *Allocator) mapArena() (*Arena, error) {
	if a.cfg.MaxArenas > 0 && len(a.arenas) >= a.cfg.MaxArenas {
		return nil, fmt.Errorf("%w: arena limit %d reached", ErrNoMemory, a.cfg.MaxArenas)
	}
	if a.cfg.MaxHeapBytes > 0 {
		total := int64(len(a.arenas)+1)*int64(a.cfg.ArenaSize) + a.largeBytes.Load()
		if total > a.cfg.MaxHeapBytes {
			return nil, fmt.Errorf("%w: heap limit %d bytes reached", ErrNoMemory, a.cfg.MaxHeapBytes)
		}
	}

	var (
		data []byte
		err  error
	)
	if a.mmap {
		if data, err = mapMemory(a.cfg.ArenaSize); err != nil {
			return nil, fmt.Errorf("%w: mmap: %v", ErrNoMemory, err)
		}
	} else {
		data = make([]byte, a.cfg.ArenaSize)
	}

	a.nextID++
	ar := newArena(a.nextID, data, a.mmap, a.cfg.PoolSize)
	a.arenas[ar.id] = ar
	a.usable = append(a.usable, ar)
	a.publish()

	a.arenasAllocated++
	if len(a.arenas) > a.arenasHighWater {
		a.arenasHighWater = len(a.arenas)
	}
	a.logger.Debug("arena mapped",
		zap.Uint32("arena", ar.id),
		zap.Int("size", len(data)),
		zap.Bool("mmap", ar.mmapped))
	return ar, nil
}

// retire 处理变空的 arena：保留一个作为备用，其余立即解除映射
func (a *Allocator) retire(ar *Arena) {
	if a.idle == nil {
		a.idle = ar
		return
	}
	if err := a.unmapArena(ar); err != nil {
		a.logger.Warn("arena unmap failed", zap.Uint32("arena", ar.id), zap.Error(err))
	}
}

func (a *Allocator) unmapArena(ar *Arena) error {
	a.removeUsable(ar)
	delete(a.arenas, ar.id)
	if a.idle == ar {
		a.idle = nil
	}
	a.publish()
	a.arenasReclaimed++

	a.logger.Debug("arena unmapped", zap.Uint32("arena", ar.id))

	data := ar.data
	ar.data = nil
	if ar.mmapped {
		return unmapMemory(data)
	}
	return nil
}

// Trim 解除所有全空 arena 的映射
func (a *Allocator) Trim() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	for _, ar := range append([]*Arena(nil), a.usable...) {
		if ar.usedPools == 0 {
			err = multierr.Append(err, a.unmapArena(ar))
		}
	}
	return err
}

// Close 解除所有 arena 的映射；之后的分配返回 ErrClosed
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var err error
	for _, ar := range a.arenas {
		if ar.mmapped {
			err = multierr.Append(err, unmapMemory(ar.data))
		}
		ar.data = nil
	}
	a.arenas = map[uint32]*Arena{}
	a.usable = nil
	a.idle = nil
	a.used = [NumClasses]*Pool{}
	a.publish()
	return err
}

// ============================================================================
// 大块
// ============================================================================

func (a *Allocator) allocLarge(size int) (Block, error) {
	if a.cfg.MaxHeapBytes > 0 {
		a.mu.Lock()
		total := int64(len(a.arenas))*int64(a.cfg.ArenaSize) + a.largeBytes.Load() + int64(size)
		a.mu.Unlock()
		if total > a.cfg.MaxHeapBytes {
			return Block{}, fmt.Errorf("%w: heap limit %d bytes reached", ErrNoMemory, a.cfg.MaxHeapBytes)
		}
	}
	b := Block{class: -1, large: make([]byte, size)}
	a.largeBytes.Add(int64(size))
	a.largeBlocks.Inc()
	a.allocs.Inc()
	return b, nil
}

func (a *Allocator) freeLarge(b Block) {
	a.largeBytes.Sub(int64(len(b.large)))
	a.largeBlocks.Dec()
	a.frees.Inc()
}

func (a *Allocator) noteAlloc(class int) {
	a.bytesInUse.Add(int64(ClassSize(class)))
	a.classBlocks[class].Inc()
	a.allocs.Inc()
}

func (a *Allocator) noteFree(class int) {
	a.bytesInUse.Sub(int64(ClassSize(class)))
	a.classBlocks[class].Dec()
	a.frees.Inc()
}
