package object

import "github.com/tangzhangming/novacore/internal/i18n"

// ============================================================================
// 序列迭代器
// ============================================================================

// SeqIter 按位置遍历 list、tuple、str、range、dict 的迭代器
type SeqIter struct {
	Header
	seq   Object
	pos   int
	runes []rune
}

func seqIterType(name string) *Type {
	return &Type{
		Name:      name,
		BasicSize: 32,
		Flags:     HaveGC,
		Dealloc: func(t *Thread, o Object) {
			it := o.(*SeqIter)
			if s := it.seq; s != nil {
				it.seq = nil
				t.Decref(s)
			}
		},
		Traverse: func(o Object, visit func(Object) error) error {
			if s := o.(*SeqIter).seq; s != nil {
				return visit(s)
			}
			return nil
		},
		Clear: func(t *Thread, o Object) error {
			it := o.(*SeqIter)
			if s := it.seq; s != nil {
				it.seq = nil
				t.Decref(s)
			}
			return nil
		},
		Iter: func(t *Thread, o Object) (Object, error) {
			return t.NewRef(o), nil
		},
		Next: seqIterNext,
	}
}

// 迭代器类型
var (
	ListIterType  = seqIterType("list_iterator")
	TupleIterType = seqIterType("tuple_iterator")
	StrIterType   = seqIterType("str_iterator")
	RangeIterType = seqIterType("range_iterator")
	DictIterType  = seqIterType("dict_keyiterator")
)

func (t *Thread) newSeqIter(typ *Type, seq Object) (Object, error) {
	it := &SeqIter{seq: t.NewRef(seq)}
	if err := t.Alloc(typ, it); err != nil {
		t.Decref(seq)
		return nil, err
	}
	return it, nil
}

// seqIterNext 取下一个元素；耗尽后释放序列
func seqIterNext(t *Thread, o Object) (Object, error) {
	it := o.(*SeqIter)
	if it.seq == nil {
		return nil, nil
	}

	var (
		item Object
		err  error
	)
	switch s := it.seq.(type) {
	case *List:
		item = s.item(t, it.pos)
		it.pos++
	case *Tuple:
		if it.pos < len(s.Items) {
			item = t.NewRef(s.Items[it.pos])
			it.pos++
		}
	case *Str:
		if it.runes == nil {
			it.runes = []rune(s.S)
		}
		if it.pos < len(it.runes) {
			item, err = t.NewStr(string(it.runes[it.pos]))
			it.pos++
		}
	case *Range:
		if int64(it.pos) < s.Length() {
			item, err = t.NewInt(s.At(int64(it.pos)))
			it.pos++
		}
	case *Dict:
		item, it.pos = s.keyAt(t, it.pos)
	}
	if err != nil {
		return nil, err
	}
	if item == nil {
		seq := it.seq
		it.seq = nil
		it.runes = nil
		t.Decref(seq)
	}
	return item, nil
}

// ============================================================================
// range
// ============================================================================

// Range 不可变的整数等差序列
type Range struct {
	Header
	Start, Stop, Step int64
}

// RangeType range 的类型描述符
var RangeType = &Type{}

func init() {
	*RangeType = Type{
		Name:      "range",
		BasicSize: 48,
		Flags:     Sequence,
		Repr: func(o Object, p *Printer) {
			r := o.(*Range)
			if r.Step == 1 {
				p.Printf("range(%d, %d)", r.Start, r.Stop)
			} else {
				p.Printf("range(%d, %d, %d)", r.Start, r.Stop, r.Step)
			}
		},
		Len: func(o Object) int { return int(o.(*Range).Length()) },
		GetItem: func(t *Thread, o, key Object) (Object, error) {
			r := o.(*Range)
			i, err := t.seqIndex(key, int(r.Length()), "range object")
			if err != nil {
				return nil, err
			}
			return t.NewInt(r.At(int64(i)))
		},
		Contains: func(t *Thread, o, item Object) (bool, error) {
			r := o.(*Range)
			v, ok := AsInt(item)
			if !ok {
				return false, nil
			}
			if r.Step > 0 && (v < r.Start || v >= r.Stop) {
				return false, nil
			}
			if r.Step < 0 && (v > r.Start || v <= r.Stop) {
				return false, nil
			}
			return (v-r.Start)%r.Step == 0, nil
		},
		Iter: func(t *Thread, o Object) (Object, error) {
			return t.newSeqIter(RangeIterType, o)
		},
	}
}

// NewRange 创建 range 对象
func (t *Thread) NewRange(start, stop, step int64) (*Range, error) {
	if step == 0 {
		return nil, t.Raisef(ExcValueError, i18n.ErrRangeStep)
	}
	r := &Range{Start: start, Stop: stop, Step: step}
	if err := t.Alloc(RangeType, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Length 返回元素个数
func (r *Range) Length() int64 {
	if r.Step > 0 && r.Start < r.Stop {
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	}
	if r.Step < 0 && r.Start > r.Stop {
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	}
	return 0
}

// At 返回第 i 个元素
func (r *Range) At(i int64) int64 {
	return r.Start + i*r.Step
}
