package object

import (
	"testing"

	"github.com/tangzhangming/novacore/internal/alloc"
	"github.com/tangzhangming/novacore/internal/config"
	"github.com/tangzhangming/novacore/internal/errors"
)

func newTestThread(t *testing.T, opts ...HeapOption) *Thread {
	t.Helper()
	a := alloc.New(config.Default().Alloc)
	h := NewHeap(a, opts...)
	th := h.NewThread()
	t.Cleanup(func() {
		th.Close()
		a.Close()
	})
	return th
}

func withPanickingFatal(t *testing.T) {
	t.Helper()
	old := errors.SetFatalHandler(errors.PanicOnFatal)
	t.Cleanup(func() { errors.SetFatalHandler(old) })
}

func expectFatal(t *testing.T, code string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		fe, ok := r.(*errors.FatalError)
		if !ok {
			t.Fatalf("expected fatal %s, got %v", code, r)
		}
		if fe.Code != code {
			t.Errorf("fatal code = %s, want %s", fe.Code, code)
		}
	}()
	fn()
}

func TestDeallocOnLastDecref(t *testing.T) {
	for _, atomicMode := range []bool{false, true} {
		th := newTestThread(t, WithAtomicRefcounts(atomicMode))
		x, err := th.NewList(nil)
		if err != nil {
			t.Fatal(err)
		}
		if x.RefCount() != 1 {
			t.Fatalf("new object refcount = %d", x.RefCount())
		}
		th.Incref(x)
		th.Incref(x)
		if x.RefCount() != 3 {
			t.Fatalf("refcount = %d, want 3", x.RefCount())
		}
		for i := 1; i <= 3; i++ {
			th.Decref(x)
			want := Live
			if i == 3 {
				want = Freed
			}
			if x.State() != want {
				t.Errorf("atomic=%v: after decref %d state = %v, want %v", atomicMode, i, x.State(), want)
			}
		}
	}
}

func TestRefTotalConservation(t *testing.T) {
	th := newTestThread(t)
	hp := th.Heap()

	l, _ := th.NewList(nil)
	for i := int64(0); i < 10; i++ {
		v, err := th.NewInt(1000 + i)
		if err != nil {
			t.Fatal(err)
		}
		l.Append(th, v)
		th.Decref(v)
	}
	tup, _ := th.NewTuple(l.Snapshot(th))

	// 列表 1 + 元组 1 + 10 个整数各被引用两次
	if got := hp.Counters().RefTotal(); got != 22 {
		t.Errorf("RefTotal = %d, want 22", got)
	}
	th.Decref(l)
	th.Decref(tup)
	c := hp.Counters()
	if c.RefTotal() != 0 || c.Live() != 0 {
		t.Errorf("RefTotal = %d, Live = %d after release", c.RefTotal(), c.Live())
	}
	if th.Heap().Allocator().BytesInUse() != 0 {
		t.Errorf("BytesInUse = %d", th.Heap().Allocator().BytesInUse())
	}
}

func TestLongChainTeardown(t *testing.T) {
	th := newTestThread(t)
	var head *List
	for i := 0; i < 200000; i++ {
		var items []Object
		if head != nil {
			items = []Object{head}
		}
		l, err := th.NewList(items)
		if err != nil {
			t.Fatal(err)
		}
		head = l
	}
	th.Decref(head)
	if live := th.Heap().Counters().Live(); live != 0 {
		t.Errorf("Live = %d after releasing chain", live)
	}
}

type probe struct {
	Header
	revived bool
}

func TestTryIncrefDuringTeardown(t *testing.T) {
	th := newTestThread(t)
	var probeType = &Type{Name: "probe", BasicSize: 24}
	probeType.Dealloc = func(t *Thread, o Object) {
		o.(*probe).revived = t.TryIncref(o)
	}
	p := &probe{}
	if err := th.Alloc(probeType, p); err != nil {
		t.Fatal(err)
	}
	if !th.TryIncref(p) {
		t.Fatal("TryIncref on live object failed")
	}
	th.Decref(p)
	th.Decref(p)
	if p.revived {
		t.Error("TryIncref succeeded on a destroying object")
	}
	if p.State() != Freed {
		t.Errorf("state = %v", p.State())
	}
}

func TestRefcountViolationsAreFatal(t *testing.T) {
	withPanickingFatal(t)
	th := newTestThread(t)

	l, _ := th.NewList(nil)
	th.Decref(l)
	expectFatal(t, errors.F0001, func() { th.Decref(l) })
	expectFatal(t, errors.F0003, func() { th.Incref(l) })
}

func TestSmallIntRange(t *testing.T) {
	withPanickingFatal(t)
	th := newTestThread(t)

	for _, v := range []int64{smallIntMin, 0, smallIntMax} {
		n, _ := th.NewInt(v)
		if n != SmallInt(v) {
			t.Errorf("NewInt(%d) is not the cached object", v)
		}
	}
	big, _ := th.NewInt(smallIntMax + 1)
	if big == SmallInt(smallIntMax) {
		t.Error("NewInt outside the cache returned a cached object")
	}
	th.Decref(big)

	expectFatal(t, errors.F0004, func() { SmallInt(-7) })
	expectFatal(t, errors.F0004, func() { SmallInt(smallIntMax + 1) })
}

func TestImmortalObjectsIgnoreRefcounts(t *testing.T) {
	th := newTestThread(t)
	before := None.Head().RefCount()
	for i := 0; i < 10; i++ {
		th.Decref(None)
		th.Decref(True)
		th.Decref(SmallInt(7))
	}
	if None.Head().RefCount() != before || None.Head().State() != Live {
		t.Error("immortal None changed")
	}
	if MemoryErrorInstance.State() != Live {
		t.Error("preallocated MemoryError not live")
	}
}

func TestWeakRefClearedWithCallback(t *testing.T) {
	th := newTestThread(t)
	var got []Object
	th.Heap().SetCallHook(func(t *Thread, fn Object, args []Object) (Object, error) {
		got = append(got, args[0])
		return None, nil
	})
	cb := NewBuiltin("cb", func(*Thread, []Object) (Object, error) { return None, nil })

	l, _ := th.NewList(nil)
	w, err := th.NewWeakRef(l, cb)
	if err != nil {
		t.Fatal(err)
	}
	if r := w.Get(th); r != Object(l) {
		t.Fatalf("Get = %v", r)
	} else {
		th.Decref(r)
	}
	if WeakRefCount(l) != 1 {
		t.Errorf("WeakRefCount = %d", WeakRefCount(l))
	}

	th.Decref(l)
	if w.Alive() || w.Get(th) != None {
		t.Error("weakref still alive after referent freed")
	}
	if len(got) != 1 || got[0] != Object(w) {
		t.Errorf("callback args = %v", got)
	}
	th.Decref(w)

	if _, err := th.NewWeakRef(SmallInt(1), nil); !IsRaised(err, ExcTypeError) {
		t.Errorf("weakref to int: err = %v", err)
	}
}

func TestDictOperations(t *testing.T) {
	th := newTestThread(t)
	d, err := th.NewDict()
	if err != nil {
		t.Fatal(err)
	}
	defer th.Decref(d)

	v, _ := th.NewStr("value")
	if err := d.SetStr(th, "k", v); err != nil {
		t.Fatal(err)
	}
	th.Decref(v)
	if err := d.Set(th, SmallInt(3), True); err != nil {
		t.Fatal(err)
	}

	got, ok := d.GetStr(th, "k")
	if !ok || StrOf(got) != "value" {
		t.Fatalf("GetStr = %v, %v", got, ok)
	}
	th.Decref(got)

	lst, _ := th.NewList(nil)
	defer th.Decref(lst)
	if err := d.Set(th, lst, None); !IsRaised(err, ExcTypeError) {
		t.Errorf("unhashable key: err = %v", err)
	}

	if ok, _ := d.Delete(th, SmallInt(3)); !ok || d.Len(th) != 1 {
		t.Errorf("Delete = %v, Len = %d", ok, d.Len(th))
	}
	if _, err := GetItem(th, d, SmallInt(3)); !IsRaised(err, ExcKeyError) {
		t.Errorf("missing key: err = %v", err)
	}
}

func TestIntArithmetic(t *testing.T) {
	th := newTestThread(t)
	tests := []struct {
		op   BinaryOp
		a, b int64
		want int64
	}{
		{OpAdd, 2, 3, 5},
		{OpSub, 2, 3, -1},
		{OpMul, -4, 3, -12},
		{OpFloorDiv, -7, 2, -4},
		{OpMod, -7, 2, 1},
		{OpMod, 7, -2, -1},
	}
	for _, tt := range tests {
		a, _ := th.NewInt(tt.a)
		b, _ := th.NewInt(tt.b)
		r, err := Binary(th, tt.op, a, b)
		th.Decref(a)
		th.Decref(b)
		if err != nil {
			t.Errorf("%d %v %d: %v", tt.a, tt.op, tt.b, err)
			continue
		}
		if got, _ := AsInt(r); got != tt.want {
			t.Errorf("%d %v %d = %d, want %d", tt.a, tt.op, tt.b, got, tt.want)
		}
		th.Decref(r)
	}

	if _, err := Binary(th, OpFloorDiv, SmallInt(1), SmallInt(0)); !IsRaised(err, ExcZeroDivisionError) {
		t.Errorf("1 // 0: err = %v", err)
	}
	big, _ := th.NewInt(1 << 62)
	defer th.Decref(big)
	if _, err := Binary(th, OpMul, big, SmallInt(4)); !IsRaised(err, ExcOverflowError) {
		t.Errorf("overflow: err = %v", err)
	}
	s, _ := th.NewStr("a")
	defer th.Decref(s)
	if _, err := Binary(th, OpAdd, SmallInt(1), s); !IsRaised(err, ExcTypeError) {
		t.Errorf("int + str: err = %v", err)
	}
}

func TestReprOfRecursiveList(t *testing.T) {
	th := newTestThread(t)
	l, _ := th.NewList(nil)
	l.Append(th, SmallInt(1))
	l.Append(th, l)
	if got := Repr(l); got != "[1, [...]]" {
		t.Errorf("Repr = %q", got)
	}
	// 自引用列表只能由循环回收器回收，这里手动打断
	ListType.Clear(th, l)
	th.Decref(l)
}

func TestExceptionMatching(t *testing.T) {
	th := newTestThread(t)
	exc, err := th.NewException(ExcZeroDivisionError, "division by zero")
	if err != nil {
		t.Fatal(err)
	}
	defer th.Decref(exc)
	if !exc.Matches(ExcArithmeticError) || !exc.Matches(ExcException) {
		t.Error("ZeroDivisionError should match its bases")
	}
	if exc.Matches(ExcLookupError) {
		t.Error("ZeroDivisionError matched LookupError")
	}
	if exc.Message() != "division by zero" {
		t.Errorf("Message = %q", exc.Message())
	}

	err = th.Raise(ExcValueError, "bad")
	got := th.ExceptionFrom(err)
	if got.Class != ExcValueError {
		t.Errorf("class = %s", got.Class.Name)
	}
	th.Decref(got)
	if th.ExceptionFrom(alloc.ErrNoMemory) != MemoryErrorInstance {
		t.Error("ErrNoMemory should map to the preallocated MemoryError")
	}
}
