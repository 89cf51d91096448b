package coord

import (
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/tangzhangming/novacore/internal/config"
	"github.com/tangzhangming/novacore/internal/errors"
)

func TestBreakerBits(t *testing.T) {
	var b Breaker
	if b.Pending() {
		t.Fatal("new breaker should be clear")
	}
	b.Set(Interrupt)
	b.Set(GCScheduled)
	if !b.Has(Interrupt) || !b.Has(GCScheduled) || b.Has(DropRequest) {
		t.Errorf("bits = %b", b.Load())
	}
	if !b.Take(Interrupt) {
		t.Error("Take(Interrupt) = false")
	}
	if b.Take(Interrupt) {
		t.Error("second Take(Interrupt) = true")
	}
	b.Clear(GCScheduled)
	if b.Pending() {
		t.Errorf("bits left: %b", b.Load())
	}
}

func TestWideCounterCarries(t *testing.T) {
	var c WideCounter
	c.lo.Store(math.MaxUint32 - 1)
	c.Inc()
	if got := c.Load(); got != math.MaxUint32 {
		t.Fatalf("Load = %d", got)
	}
	c.Add(3)
	if got, want := c.Load(), uint64(math.MaxUint32)+3; got != want {
		t.Fatalf("Load = %d, want %d", got, want)
	}
}

func TestWideCounterMonotonic(t *testing.T) {
	var c WideCounter
	c.lo.Store(math.MaxUint32 - 1000)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 1000; j++ {
				c.Inc()
			}
			return nil
		})
	}
	var last uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			v := c.Load()
			if v < last {
				t.Errorf("counter went backwards: %d -> %d", last, v)
				return
			}
			last = v
		}
	}()
	_ = g.Wait()
	<-done
	if got, want := c.Load(), uint64(math.MaxUint32-1000)+4000; got != want {
		t.Errorf("Load = %d, want %d", got, want)
	}
}

func TestMutexUncontended(t *testing.T) {
	var m Mutex
	m.Lock()
	if !m.Locked() {
		t.Fatal("Locked() = false after Lock")
	}
	if m.TryLock() {
		t.Fatal("TryLock succeeded on locked mutex")
	}
	m.Unlock()
	if m.Locked() || m.HasParked() {
		t.Fatalf("state after unlock = %d", m.state.Load())
	}
	if !m.TryLock() {
		t.Fatal("TryLock failed on unlocked mutex")
	}
	m.Unlock()
}

func TestMutexContended(t *testing.T) {
	var (
		m       Mutex
		counter int
		g       errgroup.Group
	)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 2000; j++ {
				m.Lock()
				counter++
				m.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if counter != 16000 {
		t.Errorf("counter = %d, want 16000", counter)
	}
	if m.state.Load() != 0 {
		t.Errorf("final state = %d, want 0", m.state.Load())
	}
}

func TestMutexParksAndHandsOff(t *testing.T) {
	SetHandoffAfter(0)
	defer SetHandoffAfter(time.Millisecond)

	var m Mutex
	m.Lock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
		m.Unlock()
	}()

	// 等待者停放后锁字带上 has-parked 位
	deadline := time.Now().Add(5 * time.Second)
	for lot.Waiting(m.addr()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("waiter never parked")
		}
		time.Sleep(time.Millisecond)
	}
	if !m.HasParked() {
		t.Error("HasParked() = false with a parked waiter")
	}

	m.Unlock()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}
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

func TestMutexUnlockUnlockedIsFatal(t *testing.T) {
	withPanickingFatal(t)
	var m Mutex
	expectFatal(t, errors.F0301, m.Unlock)
}

func TestMutexReacquireIsFatalInDebug(t *testing.T) {
	withPanickingFatal(t)
	SetDebugLocks(true)
	defer SetDebugLocks(false)

	var m Mutex
	m.Lock()
	expectFatal(t, errors.F0300, m.Lock)
}

func TestGILExclusion(t *testing.T) {
	s := NewSingleLock(time.Millisecond, nil)

	var (
		inside atomic.Int32
		g      errgroup.Group
	)
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			th := s.Attach()
			defer s.Detach(th)
			for j := 0; j < 200; j++ {
				if inside.Inc() != 1 {
					t.Error("two threads inside the interpreter lock")
				}
				inside.Dec()
				s.Checkpoint(th)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func TestGILForcedSwitch(t *testing.T) {
	s := NewSingleLock(time.Millisecond, nil)
	holder := s.Attach()

	other := make(chan struct{})
	go func() {
		th := s.Attach()
		close(other)
		s.Detach(th)
	}()

	// 持有者不停在检查点上自旋，直到等待者拿到锁
	deadline := time.Now().Add(5 * time.Second)
	for {
		s.Checkpoint(holder)
		select {
		case <-other:
			s.Detach(holder)
			st := s.Stats()
			if st.DropRequests == 0 || st.ForcedSwitches == 0 {
				t.Errorf("stats = %+v, want drop requests and forced switches", st)
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("waiter starved")
		}
	}
}

func TestGILBlockingReleases(t *testing.T) {
	s := NewSingleLock(time.Hour, nil)
	a := s.Attach()
	s.BeginBlocking(a)

	done := make(chan struct{})
	go func() {
		b := s.Attach()
		s.Detach(b)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("blocking region did not release the lock")
	}
	s.EndBlocking(a)
	if !s.GIL().Held(a) {
		t.Error("lock not reacquired after blocking region")
	}
	s.Detach(a)
}

func TestGILDropWithoutHoldingIsFatal(t *testing.T) {
	withPanickingFatal(t)
	s := NewSingleLock(time.Millisecond, nil)
	a := s.Attach()
	stranger := &Thread{ID: 99}
	expectFatal(t, errors.F0302, func() { s.GIL().Drop(stranger, false) })
	s.Detach(a)
}

func TestStopTheWorld(t *testing.T) {
	f := NewFreeThreaded(nil)

	const workers = 4
	var (
		stopped atomic.Bool
		wg      sync.WaitGroup
		quit    atomic.Bool
	)
	ready := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th := f.Attach()
			defer f.Detach(th)
			ready <- struct{}{}
			for !quit.Load() {
				if stopped.Load() {
					t.Error("worker ran while the world was stopped")
				}
				if th.Breaker.Pending() {
					f.Checkpoint(th)
				}
			}
		}()
	}
	for i := 0; i < workers; i++ {
		<-ready
	}

	owner := f.Attach()
	f.StopTheWorld(owner)
	stopped.Store(true)
	time.Sleep(5 * time.Millisecond)
	stopped.Store(false)
	f.StartTheWorld(owner)

	quit.Store(true)
	f.Detach(owner)
	wg.Wait()

	if got := f.Stats().STWCount; got != 1 {
		t.Errorf("STWCount = %d, want 1", got)
	}
}

func TestStopTheWorldTreatsBlockingAsParked(t *testing.T) {
	f := NewFreeThreaded(nil)
	blocked := f.Attach()
	f.BeginBlocking(blocked)

	owner := f.Attach()
	done := make(chan struct{})
	go func() {
		f.StopTheWorld(owner)
		f.StartTheWorld(owner)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop-the-world waited for a blocked thread")
	}
	f.EndBlocking(blocked)
	f.Detach(blocked)
	f.Detach(owner)
}

func TestNewPicksMode(t *testing.T) {
	cfg := config.Default().Concurrency
	if New(cfg, nil).Mode() != config.ModeSingle {
		t.Error("default mode should be single")
	}
	cfg.Mode = config.ModeFree
	if New(cfg, nil).Mode() != config.ModeFree {
		t.Error("free mode not selected")
	}
}
