package portalgate

import (
	"testing"
	"time"
)

func TestRecorderClassification(t *testing.T) {
	r := NewRecorder()
	now := time.Now()

	r.Record(now, true, 200)
	r.Record(now, false, 503)
	r.Record(now, false, 404)
	r.Record(now, false, 0)

	agg := r.Snapshot()
	if agg.TotalCalls != 4 {
		t.Errorf("expected 4 calls, got %d", agg.TotalCalls)
	}
	if agg.SuccessCount != 1 || agg.FailureCount != 3 {
		t.Errorf("expected 1 success / 3 failures, got %d / %d", agg.SuccessCount, agg.FailureCount)
	}
	if agg.ServerErrors != 1 || agg.ClientErrors != 1 || agg.NetworkErrors != 1 {
		t.Errorf("error buckets wrong: server=%d client=%d network=%d",
			agg.ServerErrors, agg.ClientErrors, agg.NetworkErrors)
	}
	if agg.SuccessRate != 0.25 {
		t.Errorf("expected success rate 0.25, got %v", agg.SuccessRate)
	}
}

func TestRecorderSlowCalls(t *testing.T) {
	r := NewRecorder()

	r.Record(time.Now().Add(-6*time.Second), true, 200)
	r.Record(time.Now(), true, 200)

	agg := r.Snapshot()
	if agg.SlowCallCount != 1 {
		t.Errorf("expected 1 slow call, got %d", agg.SlowCallCount)
	}
}

func TestRecorderHistoryBound(t *testing.T) {
	r := NewRecorder()

	for i := 0; i < latencyHistorySize+25; i++ {
		r.Record(time.Now(), true, 200)
	}

	agg := r.Snapshot()
	if len(agg.RecentLatencies) != latencyHistorySize {
		t.Errorf("expected history bounded at %d, got %d", latencyHistorySize, len(agg.RecentLatencies))
	}
	if agg.TotalCalls != latencyHistorySize+25 {
		t.Errorf("running totals must not be bounded, got %d", agg.TotalCalls)
	}
}

func TestRecorderHistoryOrder(t *testing.T) {
	r := NewRecorder()

	// Fabricate distinct latencies: the i-th call started (150-i)ms ago, so
	// later samples are shorter.
	for i := 0; i < 150; i++ {
		r.Record(time.Now().Add(-time.Duration(150-i)*time.Millisecond), true, 200)
	}

	agg := r.Snapshot()
	for i := 1; i < len(agg.RecentLatencies); i++ {
		if agg.RecentLatencies[i] > agg.RecentLatencies[i-1] {
			t.Fatal("expected samples ordered oldest first with decreasing latencies")
		}
	}
}

func TestRecorderAverageLatency(t *testing.T) {
	r := NewRecorder()
	r.Record(time.Now().Add(-100*time.Millisecond), true, 200)
	r.Record(time.Now().Add(-200*time.Millisecond), true, 200)

	agg := r.Snapshot()
	if agg.AverageLatency < 140*time.Millisecond || agg.AverageLatency > 170*time.Millisecond {
		t.Errorf("expected average near 150ms, got %v", agg.AverageLatency)
	}
}
