package portalgate

import (
	"context"
	"encoding/json"
	"io"
	"sync/atomic"
	"testing"
	"time"
)

type fakeConn struct {
	frames chan []byte
}

func (f *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-f.frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()

	var got atomic.Int64
	sub := bus.Subscribe("vitals.updated", func(ev Event) { got.Add(1) })
	other := bus.Subscribe("chart.closed", func(ev Event) {
		t.Error("handler received event of another type")
	})
	defer other.Close()

	bus.Publish(Event{Type: "vitals.updated"})
	bus.Publish(Event{Type: "vitals.updated"})
	if got.Load() != 2 {
		t.Errorf("expected 2 deliveries, got %d", got.Load())
	}

	sub.Close()
	sub.Close() // idempotent
	bus.Publish(Event{Type: "vitals.updated"})
	if got.Load() != 2 {
		t.Error("closed subscription still receiving")
	}
}

func TestBusAttachDispatchesFrames(t *testing.T) {
	bus := NewBus()
	conn := &fakeConn{frames: make(chan []byte, 4)}

	payloads := make(chan string, 2)
	sub := bus.Subscribe("admission.new", func(ev Event) {
		var p struct {
			Ward string `json:"ward"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Errorf("decoding payload: %v", err)
			return
		}
		payloads <- p.Ward
	})
	defer sub.Close()

	conn.frames <- []byte(`{"type":"admission.new","payload":{"ward":"icu"}}`)
	conn.frames <- []byte(`not json`)                // skipped
	conn.frames <- []byte(`{"payload":{"ward":1}}`)  // no type, skipped
	conn.frames <- []byte(`{"type":"admission.new","payload":{"ward":"er"}}`)
	close(conn.frames)

	if err := bus.Attach(context.Background(), conn); err != io.EOF {
		t.Errorf("expected EOF when the connection drains, got %v", err)
	}

	for _, want := range []string{"icu", "er"} {
		select {
		case got := <-payloads:
			if got != want {
				t.Errorf("expected ward %q, got %q", want, got)
			}
		case <-time.After(time.Second):
			t.Fatal("frame never dispatched")
		}
	}
}

func TestBusAttachStopsOnContext(t *testing.T) {
	bus := NewBus()
	conn := &fakeConn{frames: make(chan []byte)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bus.Attach(ctx, conn) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Attach did not stop on context cancellation")
	}
}
