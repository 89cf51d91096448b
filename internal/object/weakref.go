package object

import "github.com/tangzhangming/novacore/internal/i18n"

// WeakRef 弱引用
//
// 不持有被引用对象的计数。被引用对象开始拆除时弱引用被清空，
// 若设置了回调则以弱引用自身为参数调用一次。
type WeakRef struct {
	Header
	referent   Object
	callback   Object
	prev, next *WeakRef
}

// WeakRefType 弱引用类型
var WeakRefType = &Type{}

func init() {
	*WeakRefType = Type{
		Name:      "weakref",
		BasicSize: 48,
		Flags:     HaveGC,
		Dealloc: func(t *Thread, o Object) {
			w := o.(*WeakRef)
			t.heap.unlinkWeakRef(w)
			if cb := w.callback; cb != nil {
				w.callback = nil
				t.Decref(cb)
			}
		},
		Traverse: func(o Object, visit func(Object) error) error {
			if cb := o.(*WeakRef).callback; cb != nil {
				return visit(cb)
			}
			return nil
		},
		Clear: func(t *Thread, o Object) error {
			w := o.(*WeakRef)
			t.heap.unlinkWeakRef(w)
			if cb := w.callback; cb != nil {
				w.callback = nil
				t.Decref(cb)
			}
			return nil
		},
		Repr: func(o Object, p *Printer) {
			w := o.(*WeakRef)
			if r := w.referent; r != nil {
				p.Printf("<weakref to '%s'>", TypeName(r))
			} else {
				p.WriteString("<weakref; dead>")
			}
		},
		Call: func(t *Thread, callee Object, args []Object) (Object, error) {
			if len(args) != 0 {
				return nil, t.Raisef(ExcTypeError, i18n.ErrArgumentCount, "weakref", 0, len(args))
			}
			return callee.(*WeakRef).Get(t), nil
		},
	}
}

// NewWeakRef 创建指向 referent 的弱引用，callback 可以为 nil
func (t *Thread) NewWeakRef(referent, callback Object) (*WeakRef, error) {
	if !TypeOf(referent).HasFlag(WeakRefable) {
		return nil, t.Raisef(ExcTypeError, i18n.ErrBadArgument, "weakref", "a weak-referenceable object", TypeName(referent))
	}
	w := &WeakRef{referent: referent, callback: callback}
	t.XIncref(callback)
	if err := t.Alloc(WeakRefType, w); err != nil {
		t.XDecref(callback)
		return nil, err
	}
	hp := t.heap
	hp.weakMu.Lock()
	rh := referent.Head()
	w.next = rh.weakrefs
	if w.next != nil {
		w.next.prev = w
	}
	rh.weakrefs = w
	hp.weakMu.Unlock()
	return w, nil
}

// Get 返回被引用对象的新引用，对象已消失时返回 None
func (w *WeakRef) Get(t *Thread) Object {
	t.heap.weakMu.Lock()
	r := w.referent
	ok := r != nil && t.TryIncref(r)
	t.heap.weakMu.Unlock()
	if !ok {
		return None
	}
	return r
}

// Alive 被引用对象是否仍然存在
func (w *WeakRef) Alive() bool {
	return w.referent != nil
}

// WeakRefCount 返回指向 o 的弱引用数量
func WeakRefCount(o Object) int {
	n := 0
	for w := o.Head().weakrefs; w != nil; w = w.next {
		n++
	}
	return n
}

func (hp *Heap) unlinkWeakRef(w *WeakRef) {
	hp.weakMu.Lock()
	defer hp.weakMu.Unlock()
	r := w.referent
	if r == nil {
		return
	}
	rh := r.Head()
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		rh.weakrefs = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	}
	w.prev, w.next, w.referent = nil, nil, nil
}

// ClearWeakRefs 清空指向 o 的所有弱引用
//
// wantCallback 为 nil 时所有带回调的弱引用都会被回调；否则只回调它返回 true 的弱引用。
// 回调在锁外以弱引用自身为参数调用，出错时丢弃错误。
func (t *Thread) ClearWeakRefs(o Object, wantCallback func(*WeakRef) bool) {
	hp := t.heap
	var pending []*WeakRef

	hp.weakMu.Lock()
	rh := o.Head()
	for w := rh.weakrefs; w != nil; {
		next := w.next
		w.referent = nil
		w.prev, w.next = nil, nil
		if w.callback != nil && (wantCallback == nil || wantCallback(w)) {
			// 弱引用可能正在被拆除，此时不回调
			if t.TryIncref(w) {
				pending = append(pending, w)
			}
		}
		w = next
	}
	rh.weakrefs = nil
	hp.weakMu.Unlock()

	for _, w := range pending {
		cb := w.callback
		if cb != nil && hp.callHook != nil {
			t.Incref(cb)
			res, err := hp.callHook(t, cb, []Object{w})
			if err == nil {
				t.XDecref(res)
			} else {
				DiscardError(t, err)
			}
			t.Decref(cb)
		}
		t.Decref(w)
	}
}

func (t *Thread) clearWeakRefs(o Object, callbacks bool) {
	if callbacks {
		t.ClearWeakRefs(o, nil)
		return
	}
	t.ClearWeakRefs(o, func(*WeakRef) bool { return false })
}
