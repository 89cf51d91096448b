package object

import (
	"github.com/tangzhangming/novacore/internal/alloc"
	"github.com/tangzhangming/novacore/internal/coord"
	"github.com/tangzhangming/novacore/internal/i18n"
)

// List 可变序列
//
// 细粒度模式下所有修改与读取都持有 mu。
type List struct {
	Header
	mu    coord.Mutex
	Items []Object
}

// ListType list 的类型描述符
var ListType = &Type{}

func init() {
	*ListType = Type{
		Name:      "list",
		BasicSize: 40,
		Flags:     HaveGC | WeakRefable | Sequence,
		Dealloc: func(t *Thread, o Object) {
			l := o.(*List)
			items := l.Items
			l.Items = nil
			t.DecrefAll(items)
		},
		Traverse: func(o Object, visit func(Object) error) error {
			for _, item := range o.(*List).Items {
				if item != nil {
					if err := visit(item); err != nil {
						return err
					}
				}
			}
			return nil
		},
		Clear: func(t *Thread, o Object) error {
			l := o.(*List)
			t.Lock(&l.mu)
			items := l.Items
			l.Items = nil
			t.Unlock(&l.mu)
			t.DecrefAll(items)
			return nil
		},
		Repr: func(o Object, p *Printer) {
			p.WriteString("[")
			for i, item := range o.(*List).Items {
				if i > 0 {
					p.WriteString(", ")
				}
				p.Write(item)
			}
			p.WriteString("]")
		},
		Len: func(o Object) int { return len(o.(*List).Items) },
		Binary: func(t *Thread, op BinaryOp, a, b Object) (Object, error) {
			switch op {
			case OpAdd:
				x, ok1 := a.(*List)
				y, ok2 := b.(*List)
				if !ok1 || !ok2 {
					return nil, nil
				}
				items := append(x.Snapshot(t), y.Snapshot(t)...)
				return t.NewList(items)
			case OpMul:
				l, n, ok := listTimes(a, b)
				if !ok {
					return nil, nil
				}
				src := l.Snapshot(t)
				defer t.DecrefAll(src)
				if n < 0 {
					n = 0
				}
				if int64(len(src))*n*8 > maxSeqBytes {
					return nil, alloc.ErrNoMemory
				}
				items := make([]Object, 0, len(src)*int(n))
				for i := int64(0); i < n; i++ {
					for _, item := range src {
						items = append(items, t.NewRef(item))
					}
				}
				return t.NewList(items)
			}
			return nil, nil
		},
		Compare: func(t *Thread, op CompareOp, a, b Object) (Object, error) {
			x, ok1 := a.(*List)
			y, ok2 := b.(*List)
			if !ok1 || !ok2 || (op != CmpEQ && op != CmpNE) {
				return nil, nil
			}
			xs, ys := x.Snapshot(t), y.Snapshot(t)
			defer t.DecrefAll(xs)
			defer t.DecrefAll(ys)
			eq, err := t.sequenceEqual(xs, ys)
			if err != nil {
				return nil, err
			}
			return BoolOf(eq == (op == CmpEQ)), nil
		},
		GetItem: func(t *Thread, o, key Object) (Object, error) {
			l := o.(*List)
			t.Lock(&l.mu)
			defer t.Unlock(&l.mu)
			i, err := t.seqIndex(key, len(l.Items), "list")
			if err != nil {
				return nil, err
			}
			return t.NewRef(l.Items[i]), nil
		},
		SetItem: func(t *Thread, o, key, value Object) error {
			l := o.(*List)
			t.Lock(&l.mu)
			i, err := t.seqIndex(key, len(l.Items), "list")
			if err != nil {
				t.Unlock(&l.mu)
				return err
			}
			old := l.Items[i]
			l.Items[i] = t.NewRef(value)
			t.Unlock(&l.mu)
			t.Decref(old)
			return nil
		},
		Contains: func(t *Thread, o, item Object) (bool, error) {
			items := o.(*List).Snapshot(t)
			defer t.DecrefAll(items)
			return t.sequenceContains(items, item)
		},
		Iter: func(t *Thread, o Object) (Object, error) {
			return t.newSeqIter(ListIterType, o)
		},
	}
}

func listTimes(a, b Object) (*List, int64, bool) {
	if l, ok := a.(*List); ok {
		if n, ok := AsInt(b); ok {
			return l, n, true
		}
	}
	if l, ok := b.(*List); ok {
		if n, ok := AsInt(a); ok {
			return l, n, true
		}
	}
	return nil, 0, false
}

// NewList 创建列表，接管 items 中的引用（失败时同样释放它们）
func (t *Thread) NewList(items []Object) (*List, error) {
	l := &List{Items: items}
	if err := t.Alloc(ListType, l); err != nil {
		t.DecrefAll(items)
		return nil, err
	}
	return l, nil
}

// Append 追加元素（增加其引用计数）
func (l *List) Append(t *Thread, v Object) {
	t.Incref(v)
	t.Lock(&l.mu)
	l.Items = append(l.Items, v)
	t.Unlock(&l.mu)
}

// Len 返回长度
func (l *List) Len(t *Thread) int {
	t.Lock(&l.mu)
	defer t.Unlock(&l.mu)
	return len(l.Items)
}

// Snapshot 返回元素副本，每个元素持有一个新引用
func (l *List) Snapshot(t *Thread) []Object {
	t.Lock(&l.mu)
	items := make([]Object, len(l.Items))
	copy(items, l.Items)
	for _, item := range items {
		t.Incref(item)
	}
	t.Unlock(&l.mu)
	return items
}

// item 返回下标 i 处元素的新引用，越界时返回 nil
func (l *List) item(t *Thread, i int) Object {
	t.Lock(&l.mu)
	defer t.Unlock(&l.mu)
	if i < 0 || i >= len(l.Items) {
		return nil
	}
	return t.NewRef(l.Items[i])
}

// seqIndex 把下标对象规范化为 [0, n) 内的整数
func (t *Thread) seqIndex(key Object, n int, what string) (int, error) {
	i, ok := AsInt(key)
	if !ok {
		return 0, t.Raisef(ExcTypeError, i18n.ErrBadIndex, what, TypeName(key))
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, t.Raisef(ExcIndexError, i18n.ErrIndexOutOfRange, what)
	}
	return int(i), nil
}

func (t *Thread) sequenceEqual(xs, ys []Object) (bool, error) {
	if len(xs) != len(ys) {
		return false, nil
	}
	for i := range xs {
		eq, err := Equal(t, xs[i], ys[i])
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

func (t *Thread) sequenceContains(items []Object, item Object) (bool, error) {
	for _, x := range items {
		eq, err := Equal(t, x, item)
		if err != nil {
			return false, err
		}
		if eq {
			return true, nil
		}
	}
	return false, nil
}
