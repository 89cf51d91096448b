package alloc

// Pool 一个 arena 中服务单一尺寸类的区段
type Pool struct {
	arena *Arena
	index int
	base  int // arena 内起始偏移

	class     int
	blockSize int
	count     int  // 已分出的块（包括停在线程空闲链表中的块）
	free      link // 空闲块链
	bump      int  // 从未使用过的下一个块
	limit     int  // 最后一个可用块的起始偏移

	prev, next *Pool // 尺寸类的已用 pool 链表
	linked     bool
}

func (p *Pool) init(class, poolSize int) {
	p.class = class
	p.blockSize = ClassSize(class)
	p.count = 0
	p.free = 0
	p.bump = p.base
	p.limit = p.base + poolSize - p.blockSize
	p.prev, p.next, p.linked = nil, nil, false
}

// Arena 返回所属 arena
func (p *Pool) Arena() *Arena {
	return p.arena
}

// Class 返回尺寸类
func (p *Pool) Class() int {
	return p.class
}

// Count 返回已分出的块数
func (p *Pool) Count() int {
	return p.count
}

// full 没有空闲块也无法再推进
func (p *Pool) full() bool {
	return p.free == 0 && p.bump > p.limit
}

// take 取出一个块，调用方保证 pool 未满
func (p *Pool) take() int {
	var off int
	if p.free != 0 {
		off = p.free.offset()
		p.free = readLink(p.arena.data, off)
	} else {
		off = p.bump
		p.bump += p.blockSize
	}
	p.count++
	return off
}

// put 把块挂回空闲链
func (p *Pool) put(off int) {
	writeLink(p.arena.data, off, p.free)
	p.free = makeLink(p.arena.id, off)
	p.count--
}
