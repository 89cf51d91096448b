package object

// Tuple 不可变序列
type Tuple struct {
	Header
	Items []Object
}

// TupleType tuple 的类型描述符
var TupleType = &Type{}

func init() {
	*TupleType = Type{
		Name:      "tuple",
		BasicSize: 24,
		ItemSize:  8,
		Flags:     HaveGC | Sequence,
		Dealloc: func(t *Thread, o Object) {
			tp := o.(*Tuple)
			items := tp.Items
			tp.Items = nil
			t.DecrefAll(items)
		},
		Traverse: func(o Object, visit func(Object) error) error {
			for _, item := range o.(*Tuple).Items {
				if item != nil {
					if err := visit(item); err != nil {
						return err
					}
				}
			}
			return nil
		},
		Clear: func(t *Thread, o Object) error {
			tp := o.(*Tuple)
			items := tp.Items
			tp.Items = nil
			t.DecrefAll(items)
			return nil
		},
		Repr: func(o Object, p *Printer) {
			items := o.(*Tuple).Items
			p.WriteString("(")
			for i, item := range items {
				if i > 0 {
					p.WriteString(", ")
				}
				p.Write(item)
			}
			if len(items) == 1 {
				p.WriteString(",")
			}
			p.WriteString(")")
		},
		Len: func(o Object) int { return len(o.(*Tuple).Items) },
		Binary: func(t *Thread, op BinaryOp, a, b Object) (Object, error) {
			x, ok1 := a.(*Tuple)
			y, ok2 := b.(*Tuple)
			if op != OpAdd || !ok1 || !ok2 {
				return nil, nil
			}
			items := make([]Object, 0, len(x.Items)+len(y.Items))
			for _, item := range x.Items {
				items = append(items, t.NewRef(item))
			}
			for _, item := range y.Items {
				items = append(items, t.NewRef(item))
			}
			return t.NewTuple(items)
		},
		Compare: func(t *Thread, op CompareOp, a, b Object) (Object, error) {
			x, ok1 := a.(*Tuple)
			y, ok2 := b.(*Tuple)
			if !ok1 || !ok2 || (op != CmpEQ && op != CmpNE) {
				return nil, nil
			}
			eq, err := t.sequenceEqual(x.Items, y.Items)
			if err != nil {
				return nil, err
			}
			return BoolOf(eq == (op == CmpEQ)), nil
		},
		GetItem: func(t *Thread, o, key Object) (Object, error) {
			items := o.(*Tuple).Items
			i, err := t.seqIndex(key, len(items), "tuple")
			if err != nil {
				return nil, err
			}
			return t.NewRef(items[i]), nil
		},
		Contains: func(t *Thread, o, item Object) (bool, error) {
			return t.sequenceContains(o.(*Tuple).Items, item)
		},
		Iter: func(t *Thread, o Object) (Object, error) {
			return t.newSeqIter(TupleIterType, o)
		},
	}
}

// NewTuple 创建元组，接管 items 中的引用（失败时同样释放它们）
func (t *Thread) NewTuple(items []Object) (*Tuple, error) {
	tp := &Tuple{Items: items}
	if err := t.AllocVar(TupleType, tp, len(items)); err != nil {
		t.DecrefAll(items)
		return nil, err
	}
	return tp, nil
}
