package portalgate

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Durable storage keys for the credential pair.
const (
	credAccessKey  = "auth:access"
	credRefreshKey = "auth:refresh"

	// credPersistTTL keeps persisted credentials from lingering forever in
	// the durable store if the portal is abandoned mid-session.
	credPersistTTL = 30 * 24 * time.Hour
)

// RenewFunc exchanges a refresh token for a new credential pair. The façade
// injects one that calls the credential-issuing endpoint directly, never
// through the scheduler.
type RenewFunc func(ctx context.Context, refreshToken string) (access, refresh string, err error)

// CredentialManager holds the current access/refresh pair and coordinates
// renewal. Concurrent unauthorized failures collapse into exactly one renewal
// call; every caller that joined the renewal replays itself once it resolves.
// Renewal failures publish EventAuthFailure and are never looped
// automatically. Safe for concurrent use.
type CredentialManager struct {
	mu      sync.RWMutex
	access  string
	refresh string

	group   singleflight.Group
	renew   RenewFunc
	store   DurableStore
	bus     *Bus
	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector
}

// NewCredentialManager creates a manager. store may be nil (credentials then
// live only in memory); bus may be nil (no auth-failure signal).
func NewCredentialManager(store DurableStore, bus *Bus, renew RenewFunc) *CredentialManager {
	return &CredentialManager{store: store, bus: bus, renew: renew}
}

// Load restores persisted credentials. Called once at client construction.
func (m *CredentialManager) Load(ctx context.Context) {
	if m.store == nil {
		return
	}
	access, okA, errA := m.store.Get(ctx, credAccessKey)
	refresh, okR, errR := m.store.Get(ctx, credRefreshKey)
	if errA != nil || errR != nil {
		if m.logger != nil {
			m.logger.Warn("loading persisted credentials failed", "accessErr", errA, "refreshErr", errR)
		}
		return
	}
	m.mu.Lock()
	if okA {
		m.access = string(access)
	}
	if okR {
		m.refresh = string(refresh)
	}
	m.mu.Unlock()
}

// SetCredentials replaces the stored pair and persists it.
func (m *CredentialManager) SetCredentials(ctx context.Context, access, refresh string) {
	m.mu.Lock()
	m.access = access
	m.refresh = refresh
	m.mu.Unlock()
	m.persist(ctx, access, refresh)
}

// ClearCredentials drops the pair from memory and durable storage.
func (m *CredentialManager) ClearCredentials(ctx context.Context) {
	m.mu.Lock()
	m.access = ""
	m.refresh = ""
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	if err := m.store.Delete(ctx, credAccessKey); err != nil && m.logger != nil {
		m.logger.Warn("clearing persisted access token failed", "error", err)
	}
	if err := m.store.Delete(ctx, credRefreshKey); err != nil && m.logger != nil {
		m.logger.Warn("clearing persisted refresh token failed", "error", err)
	}
}

// AccessToken returns the current access token, or empty.
func (m *CredentialManager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

// Attach adds the current credential to an outgoing request.
func (m *CredentialManager) Attach(req *Request) {
	token := m.AccessToken()
	if token == "" {
		return
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// Renew obtains a new access token. Concurrent callers collapse into one
// renewal call against the issuing endpoint; all of them receive the same
// outcome. On success the stored pair is replaced and persisted; on failure
// EventAuthFailure is published and the error is normalized to
// ErrorTypeAuthFailure.
func (m *CredentialManager) Renew(ctx context.Context) (string, error) {
	token, err, shared := m.group.Do("renew", func() (interface{}, error) {
		return m.doRenew(ctx)
	})
	if m.debug != nil && m.debug.Enabled && m.debug.LogAuth && shared && m.logger != nil {
		m.logger.Debug("joined in-flight credential renewal")
	}
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *CredentialManager) doRenew(ctx context.Context) (interface{}, error) {
	m.mu.RLock()
	refresh := m.refresh
	m.mu.RUnlock()

	if refresh == "" {
		m.metrics.RecordRenewal("failure")
		m.signalAuthFailure(ErrNoRefreshToken)
		return nil, &ClientError{
			Type:      ErrorTypeAuthFailure,
			Message:   "credential renewal failed",
			Cause:     ErrNoRefreshToken,
			Timestamp: time.Now(),
		}
	}

	access, newRefresh, err := m.renew(ctx, refresh)
	if err != nil {
		if m.logger != nil {
			m.logger.Error("credential renewal failed", "error", err)
		}
		m.metrics.RecordRenewal("failure")
		m.signalAuthFailure(err)
		return nil, &ClientError{
			Type:      ErrorTypeAuthFailure,
			Message:   "credential renewal failed",
			Cause:     err,
			Timestamp: time.Now(),
		}
	}

	m.mu.Lock()
	m.access = access
	if newRefresh != "" {
		m.refresh = newRefresh
	} else {
		newRefresh = m.refresh
	}
	m.mu.Unlock()
	m.persist(ctx, access, newRefresh)

	m.metrics.RecordRenewal("success")
	if m.debug != nil && m.debug.Enabled && m.debug.LogAuth && m.logger != nil {
		m.logger.Info("credentials renewed")
	}
	return access, nil
}

func (m *CredentialManager) persist(ctx context.Context, access, refresh string) {
	if m.store == nil {
		return
	}
	if err := m.store.Set(ctx, credAccessKey, []byte(access), credPersistTTL); err != nil && m.logger != nil {
		m.logger.Warn("persisting access token failed", "error", err)
	}
	if err := m.store.Set(ctx, credRefreshKey, []byte(refresh), credPersistTTL); err != nil && m.logger != nil {
		m.logger.Warn("persisting refresh token failed", "error", err)
	}
}

func (m *CredentialManager) signalAuthFailure(cause error) {
	if m.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"reason": cause.Error()})
	m.bus.Publish(Event{Type: EventAuthFailure, Payload: payload})
}
