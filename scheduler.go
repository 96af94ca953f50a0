package portalgate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// unit is one queued call awaiting dispatch. It is owned exclusively by its
// priority lane until dequeued. Exactly one of run or reject fires: run when
// the unit is dispatched, reject when Close drops it from its lane.
type unit struct {
	id         string
	priority   Priority
	run        func()
	reject     func()
	enqueuedAt time.Time
}

// QueueStats is a point-in-time view of scheduler load.
type QueueStats struct {
	// PerLanePending is indexed by priority-1 (lane 0 = CRITICAL).
	PerLanePending [NumLanes]int
	ActiveCount    int
}

// Scheduler drains five FIFO lanes under a concurrency bound. Lanes are
// scanned strictly in ascending priority order on every cycle, so a constant
// stream of critical work can starve background work indefinitely; that is an
// accepted trade-off for latency-sensitive calls, not a defect. Within one
// lane dispatch order is strict FIFO; across lanes no ordering is guaranteed
// beyond the priority scan.
type Scheduler struct {
	mu            sync.Mutex
	lanes         [NumLanes][]*unit
	active        int
	maxConcurrent int
	closed        bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector
}

// NewScheduler creates and starts a scheduler. Close releases its loop.
func NewScheduler(maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	s := &Scheduler{
		maxConcurrent: maxConcurrent,
		wake:          make(chan struct{}, 1),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go s.loop()
	return s
}

// Enqueue appends fn to the lane for priority. Invalid priorities land in the
// normal lane. Returns ErrClientClosed after Close. reject may be nil; when
// set it runs if Close drops the unit before dispatch.
func (s *Scheduler) Enqueue(priority Priority, fn, reject func()) error {
	if !priority.valid() {
		priority = PriorityNormal
	}
	u := &unit{
		id:         uuid.NewString(),
		priority:   priority,
		run:        fn,
		reject:     reject,
		enqueuedAt: time.Now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClientClosed
	}
	lane := int(priority) - 1
	s.lanes[lane] = append(s.lanes[lane], u)
	pending := len(s.lanes[lane])
	s.mu.Unlock()

	s.metrics.RecordQueueDepth(priority, pending)
	if s.debug != nil && s.debug.Enabled && s.debug.LogQueue && s.logger != nil {
		s.logger.Debug("unit enqueued", "unitID", u.id, "priority", priority.String(), "pending", pending)
	}

	s.kick()
	return nil
}

// Snapshot returns per-lane pending counts and the active count.
func (s *Scheduler) Snapshot() QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats QueueStats
	for i := range s.lanes {
		stats.PerLanePending[i] = len(s.lanes[i])
	}
	stats.ActiveCount = s.active
	return stats
}

// Close stops the drain loop and rejects every unit still sitting in a lane,
// so waiting callers fail instead of hanging. Units already dispatched run to
// completion. Idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var dropped []*unit
	for lane := range s.lanes {
		dropped = append(dropped, s.lanes[lane]...)
		s.lanes[lane] = nil
	}
	s.mu.Unlock()
	close(s.quit)
	<-s.done

	for _, u := range dropped {
		if u.reject != nil {
			u.reject()
		}
	}
}

// kick re-triggers the drain loop. The buffered channel coalesces kicks and
// keeps completion callbacks from growing the stack re-entrantly.
func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
			s.dispatch()
		}
	}
}

// dispatch drains lanes in ascending priority order while concurrency
// headroom remains.
func (s *Scheduler) dispatch() {
	for {
		s.mu.Lock()
		if s.closed || s.active >= s.maxConcurrent {
			s.mu.Unlock()
			return
		}
		var u *unit
		for lane := 0; lane < NumLanes; lane++ {
			if len(s.lanes[lane]) > 0 {
				u = s.lanes[lane][0]
				s.lanes[lane][0] = nil
				s.lanes[lane] = s.lanes[lane][1:]
				break
			}
		}
		if u == nil {
			s.mu.Unlock()
			return
		}
		s.active++
		active := s.active
		pending := len(s.lanes[int(u.priority)-1])
		s.mu.Unlock()

		s.metrics.RecordQueueActive(active)
		s.metrics.RecordQueueDepth(u.priority, pending)
		if s.debug != nil && s.debug.Enabled && s.debug.LogQueue && s.logger != nil {
			s.logger.Debug("unit dispatched", "unitID", u.id, "priority", u.priority.String(),
				"waited", time.Since(u.enqueuedAt), "active", active)
		}

		go s.execute(u)
	}
}

func (s *Scheduler) execute(u *unit) {
	defer func() {
		s.mu.Lock()
		s.active--
		active := s.active
		s.mu.Unlock()
		s.metrics.RecordQueueActive(active)
		s.kick()
	}()
	u.run()
}
