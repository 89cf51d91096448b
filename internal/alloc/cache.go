package alloc

// Cache 线程私有的空闲链表
//
// 每个尺寸类一条单链表，链接字写在空闲块自身的前 8 字节里。
// 块停在链表中时仍计入所属 pool 的 count，所以 arena 归还之前必须先 Drain。
// Cache 只能被其所属线程使用。
type Cache struct {
	a         *Allocator
	heads     [NumClasses]link
	counts    [NumClasses]int
	highWater int
}

// Allocator 返回所属分配器
func (c *Cache) Allocator() *Allocator {
	return c.a
}

// Allocate 分配 size 字节
//
// 顺序：线程空闲链表 -> 尺寸类的已用 pool -> 新 pool -> 新 arena；
// 超过 SmallThreshold 的请求直接走 Go 堆。失败时返回包装了 ErrNoMemory 的错误。
func (c *Cache) Allocate(size int) (Block, error) {
	if !IsSmall(size) {
		return c.a.allocLarge(size)
	}
	class := ClassOf(size)

	if h := c.heads[class]; h != 0 {
		ar := c.a.lookup(h.arenaID())
		if ar == nil || ar.data == nil {
			// 分配器已关闭，链表作废
			c.heads[class] = 0
			c.counts[class] = 0
			return Block{}, ErrClosed
		}
		off := h.offset()
		c.heads[class] = readLink(ar.data, off)
		c.counts[class]--
		b := Block{arena: ar, off: off, class: class}
		clear(b.Bytes())
		c.a.noteAlloc(class)
		return b, nil
	}

	b, err := c.a.allocSmall(class)
	if err != nil {
		return Block{}, err
	}
	clear(b.Bytes())
	c.a.noteAlloc(class)
	return b, nil
}

// Free 释放块；超过高水位时把一半链表还给 pool
func (c *Cache) Free(b Block) {
	if b.large != nil {
		c.a.freeLarge(b)
		return
	}
	if b.arena == nil {
		return
	}
	class := b.class
	c.a.noteFree(class)
	if b.arena.data == nil {
		// 分配器已关闭
		return
	}

	writeLink(b.arena.data, b.off, c.heads[class])
	c.heads[class] = makeLink(b.arena.id, b.off)
	c.counts[class]++

	if c.counts[class] > c.highWater {
		c.flush(class, c.counts[class]/2)
	}
}

// Cached 返回尺寸类链表中停放的块数
func (c *Cache) Cached(class int) int {
	return c.counts[class]
}

// Drain 把所有停放的块还给 pool
func (c *Cache) Drain() {
	for class := range c.heads {
		if c.counts[class] > 0 {
			c.flush(class, c.counts[class])
		}
	}
}

// flush 从链表头取 n 个块还给 pool
func (c *Cache) flush(class, n int) {
	a := c.a
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < n && c.heads[class] != 0; i++ {
		h := c.heads[class]
		ar := a.arenas[h.arenaID()]
		if ar == nil || ar.data == nil {
			// 分配器已关闭，链表作废
			c.heads[class] = 0
			c.counts[class] = 0
			return
		}
		off := h.offset()
		c.heads[class] = readLink(ar.data, off)
		c.counts[class]--
		a.releaseSmall(ar, off, class)
	}
}
