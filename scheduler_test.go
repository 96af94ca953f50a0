package portalgate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// holdSlot occupies one scheduler slot so later enqueues pile up in their
// lanes. Returns a release func.
func holdSlot(t *testing.T, s *Scheduler, priority Priority) func() {
	t.Helper()
	block := make(chan struct{})
	running := make(chan struct{})
	if err := s.Enqueue(priority, func() {
		close(running)
		<-block
	}, nil); err != nil {
		t.Fatalf("enqueue blocker: %v", err)
	}
	select {
	case <-running:
	case <-time.After(time.Second):
		t.Fatal("blocker never dispatched")
	}
	return func() { close(block) }
}

func TestSchedulerPriorityOrdering(t *testing.T) {
	s := NewScheduler(1)
	defer s.Close()

	release := holdSlot(t, s, PriorityNormal)

	var mu sync.Mutex
	var order []Priority
	done := make(chan struct{}, 3)
	for _, p := range []Priority{PriorityBackground, PriorityCritical, PriorityNormal} {
		p := p
		if err := s.Enqueue(p, func() {
			mu.Lock()
			order = append(order, p)
			mu.Unlock()
			done <- struct{}{}
		}, nil); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	release()
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("units never drained")
		}
	}

	want := []Priority{PriorityCritical, PriorityNormal, PriorityBackground}
	for i, p := range want {
		if order[i] != p {
			t.Fatalf("dispatch order %v, want %v", order, want)
		}
	}
}

func TestSchedulerLaneFIFO(t *testing.T) {
	s := NewScheduler(1)
	defer s.Close()

	release := holdSlot(t, s, PriorityCritical)

	const n = 10
	var mu sync.Mutex
	var order []int
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		i := i
		if err := s.Enqueue(PriorityNormal, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			done <- struct{}{}
		}, nil); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	release()
	for i := 0; i < n; i++ {
		<-done
	}

	for i := 0; i < n; i++ {
		if order[i] != i {
			t.Fatalf("lane order %v not FIFO", order)
		}
	}
}

func TestSchedulerConcurrencyBound(t *testing.T) {
	const maxConcurrent = 2
	s := NewScheduler(maxConcurrent)
	defer s.Close()

	var active, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		if err := s.Enqueue(PriorityNormal, func() {
			defer wg.Done()
			cur := atomic.AddInt64(&active, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&active, -1)
		}, nil); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	wg.Wait()

	if p := atomic.LoadInt64(&peak); p > maxConcurrent {
		t.Errorf("concurrency bound exceeded: peak %d > %d", p, maxConcurrent)
	}
}

func TestSchedulerSnapshot(t *testing.T) {
	s := NewScheduler(1)
	defer s.Close()

	release := holdSlot(t, s, PriorityCritical)

	done := make(chan struct{}, 2)
	for _, p := range []Priority{PriorityBackground, PriorityBackground} {
		if err := s.Enqueue(p, func() { done <- struct{}{} }, nil); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	stats := s.Snapshot()
	if stats.ActiveCount != 1 {
		t.Errorf("expected 1 active, got %d", stats.ActiveCount)
	}
	if stats.PerLanePending[PriorityBackground-1] != 2 {
		t.Errorf("expected 2 pending in background lane, got %d", stats.PerLanePending[PriorityBackground-1])
	}

	release()
	<-done
	<-done
}

func TestSchedulerCloseRejectsQueuedUnits(t *testing.T) {
	s := NewScheduler(1)

	release := holdSlot(t, s, PriorityNormal)
	defer release()

	ran := make(chan struct{}, 1)
	rejected := make(chan struct{}, 1)
	if err := s.Enqueue(PriorityNormal, func() { ran <- struct{}{} }, func() { rejected <- struct{}{} }); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	s.Close()

	select {
	case <-rejected:
	case <-time.After(time.Second):
		t.Fatal("queued unit was not rejected at Close")
	}
	select {
	case <-ran:
		t.Fatal("rejected unit must not run")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSchedulerCloseRejectsEnqueue(t *testing.T) {
	s := NewScheduler(1)
	s.Close()
	s.Close() // idempotent

	if err := s.Enqueue(PriorityNormal, func() {}, nil); err != ErrClientClosed {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}
