package portalgate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCredentialManagerAttach(t *testing.T) {
	m := NewCredentialManager(nil, nil, nil)
	m.SetCredentials(context.Background(), "tok-1", "ref-1")

	req := &Request{Method: "GET", Target: "/x"}
	m.Attach(req)
	if got := req.Header.Get("Authorization"); got != "Bearer tok-1" {
		t.Errorf("expected bearer header, got %q", got)
	}
}

func TestCredentialManagerAttachWithoutToken(t *testing.T) {
	m := NewCredentialManager(nil, nil, nil)
	req := &Request{Method: "GET", Target: "/x"}
	m.Attach(req)
	if req.Header.Get("Authorization") != "" {
		t.Error("expected no header without credentials")
	}
}

func TestCredentialManagerSingleFlightRenewal(t *testing.T) {
	var renewals int64
	renew := func(_ context.Context, refresh string) (string, string, error) {
		atomic.AddInt64(&renewals, 1)
		time.Sleep(50 * time.Millisecond)
		return "new-access", "new-refresh", nil
	}
	m := NewCredentialManager(nil, nil, renew)
	m.SetCredentials(context.Background(), "stale", "ref-1")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	tokens := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.Renew(context.Background())
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&renewals); got != 1 {
		t.Errorf("expected exactly one renewal call, got %d", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("renewal %d failed: %v", i, errs[i])
		}
		if tokens[i] != "new-access" {
			t.Errorf("renewal %d got token %q", i, tokens[i])
		}
	}
	if m.AccessToken() != "new-access" {
		t.Errorf("stored access token not replaced: %q", m.AccessToken())
	}
}

func TestCredentialManagerRenewalFailureSignals(t *testing.T) {
	bus := NewBus()
	events := make(chan Event, 1)
	sub := bus.Subscribe(EventAuthFailure, func(ev Event) { events <- ev })
	defer sub.Close()

	renew := func(_ context.Context, _ string) (string, string, error) {
		return "", "", errors.New("refresh token revoked")
	}
	m := NewCredentialManager(nil, bus, renew)
	m.SetCredentials(context.Background(), "stale", "ref-1")

	_, err := m.Renew(context.Background())
	if !IsAuthFailure(err) {
		t.Fatalf("expected auth failure, got %v", err)
	}

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("expected EventAuthFailure on the bus")
	}
}

func TestCredentialManagerRenewWithoutRefreshToken(t *testing.T) {
	m := NewCredentialManager(nil, nil, func(context.Context, string) (string, string, error) {
		t.Fatal("renew func must not be called without a refresh token")
		return "", "", nil
	})

	_, err := m.Renew(context.Background())
	if !IsAuthFailure(err) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("expected ErrNoRefreshToken cause, got %v", err)
	}
}

func TestCredentialManagerPersistence(t *testing.T) {
	store := newMemDurable()
	ctx := context.Background()

	m := NewCredentialManager(store, nil, nil)
	m.SetCredentials(ctx, "access-1", "refresh-1")

	// A fresh manager loads the persisted pair, as at process startup.
	m2 := NewCredentialManager(store, nil, nil)
	m2.Load(ctx)
	if m2.AccessToken() != "access-1" {
		t.Errorf("expected persisted token loaded, got %q", m2.AccessToken())
	}

	m2.ClearCredentials(ctx)
	m3 := NewCredentialManager(store, nil, nil)
	m3.Load(ctx)
	if m3.AccessToken() != "" {
		t.Error("expected cleared credentials to stay cleared")
	}
}

func TestCredentialManagerRenewalKeepsRefreshWhenOmitted(t *testing.T) {
	renew := func(_ context.Context, refresh string) (string, string, error) {
		if refresh != "ref-1" {
			t.Errorf("expected renewal with ref-1, got %q", refresh)
		}
		return "new-access", "", nil
	}
	m := NewCredentialManager(nil, nil, renew)
	m.SetCredentials(context.Background(), "stale", "ref-1")

	if _, err := m.Renew(context.Background()); err != nil {
		t.Fatalf("renew: %v", err)
	}

	m.mu.RLock()
	refresh := m.refresh
	m.mu.RUnlock()
	if refresh != "ref-1" {
		t.Errorf("expected refresh token retained, got %q", refresh)
	}
}
