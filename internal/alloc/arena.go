package alloc

// Arena 一段连续映射的内存，切分为若干等大的 pool
type Arena struct {
	id      uint32
	data    []byte
	mmapped bool

	pools     []*Pool // 按下标懒创建
	freePools []int   // 空 pool 的下标（栈）
	usedPools int     // 当前服务某个尺寸类的 pool 数量
}

// ID 返回 arena 编号
func (ar *Arena) ID() uint32 {
	return ar.id
}

// Size 返回 arena 字节数
func (ar *Arena) Size() int {
	return len(ar.data)
}

// FreePools 返回空 pool 数量
func (ar *Arena) FreePools() int {
	return len(ar.freePools)
}

func newArena(id uint32, data []byte, mmapped bool, poolSize int) *Arena {
	n := len(data) / poolSize
	ar := &Arena{
		id:        id,
		data:      data,
		mmapped:   mmapped,
		pools:     make([]*Pool, n),
		freePools: make([]int, 0, n),
	}
	// 低地址的 pool 先被取用
	for i := n - 1; i >= 0; i-- {
		ar.freePools = append(ar.freePools, i)
	}
	return ar
}

// carvePool 取出一个空 pool 并初始化为 class 服务
func (ar *Arena) carvePool(class, poolSize int) *Pool {
	last := len(ar.freePools) - 1
	idx := ar.freePools[last]
	ar.freePools = ar.freePools[:last]
	ar.usedPools++

	p := ar.pools[idx]
	if p == nil {
		p = &Pool{arena: ar, index: idx, base: idx * poolSize}
		ar.pools[idx] = p
	}
	p.init(class, poolSize)
	return p
}

// returnPool 把变空的 pool 交还给 arena
func (ar *Arena) returnPool(p *Pool) {
	p.class = -1
	ar.freePools = append(ar.freePools, p.index)
	ar.usedPools--
}

// poolAt 返回包含偏移 off 的 pool
func (ar *Arena) poolAt(off, poolSize int) *Pool {
	return ar.pools[off/poolSize]
}
