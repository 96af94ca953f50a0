package portalgate

import (
	"sync"
	"time"
)

// latencyHistorySize bounds the recorder's sample ring.
const latencyHistorySize = 100

// Aggregate is a snapshot of call health derived from running sums. Average
// and rate fields are computed at snapshot time, never recomputed from
// history.
type Aggregate struct {
	TotalCalls    uint64
	SuccessCount  uint64
	FailureCount  uint64
	SlowCallCount uint64

	ClientErrors  uint64
	ServerErrors  uint64
	NetworkErrors uint64

	TotalLatency   time.Duration
	AverageLatency time.Duration
	SuccessRate    float64

	// RecentLatencies holds up to the last 100 samples, oldest first.
	RecentLatencies []time.Duration
}

// Recorder keeps rolling counters and a bounded ring of call latencies. It is
// the only writer of the aggregate; everything else reads snapshots. Safe for
// concurrent use.
type Recorder struct {
	mu sync.Mutex

	totalCalls    uint64
	successCount  uint64
	failureCount  uint64
	slowCallCount uint64

	clientErrors  uint64
	serverErrors  uint64
	networkErrors uint64

	totalLatency time.Duration

	history [latencyHistorySize]time.Duration
	head    int
	count   int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record classifies one completed call. statusCode 0 means no response was
// received (network failure).
func (r *Recorder) Record(startedAt time.Time, success bool, statusCode int) {
	latency := time.Since(startedAt)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalCalls++
	r.totalLatency += latency
	if latency > SlowCallThreshold {
		r.slowCallCount++
	}

	if success {
		r.successCount++
	} else {
		r.failureCount++
		switch {
		case statusCode >= 500:
			r.serverErrors++
		case statusCode >= 400:
			r.clientErrors++
		default:
			r.networkErrors++
		}
	}

	r.history[r.head] = latency
	r.head = (r.head + 1) % latencyHistorySize
	if r.count < latencyHistorySize {
		r.count++
	}
}

// Snapshot derives the aggregate from the running sums in O(1) (plus the
// fixed-size history copy).
func (r *Recorder) Snapshot() Aggregate {
	r.mu.Lock()
	defer r.mu.Unlock()

	agg := Aggregate{
		TotalCalls:    r.totalCalls,
		SuccessCount:  r.successCount,
		FailureCount:  r.failureCount,
		SlowCallCount: r.slowCallCount,
		ClientErrors:  r.clientErrors,
		ServerErrors:  r.serverErrors,
		NetworkErrors: r.networkErrors,
		TotalLatency:  r.totalLatency,
	}
	if r.totalCalls > 0 {
		agg.AverageLatency = r.totalLatency / time.Duration(r.totalCalls)
		agg.SuccessRate = float64(r.successCount) / float64(r.totalCalls)
	}

	agg.RecentLatencies = make([]time.Duration, r.count)
	start := r.head - r.count
	if start < 0 {
		start += latencyHistorySize
	}
	for i := 0; i < r.count; i++ {
		agg.RecentLatencies[i] = r.history[(start+i)%latencyHistorySize]
	}
	return agg
}
