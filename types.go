package portalgate

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Priority selects the scheduler lane for a call. Lower values dispatch first.
type Priority int

const (
	PriorityCritical   Priority = 1
	PriorityHigh       Priority = 2
	PriorityNormal     Priority = 3
	PriorityLow        Priority = 4
	PriorityBackground Priority = 5
)

// NumLanes is the number of scheduler priority lanes.
const NumLanes = 5

func (p Priority) valid() bool {
	return p >= PriorityCritical && p <= PriorityBackground
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

// CacheStrategy controls how a call interacts with the result cache.
type CacheStrategy int

const (
	// CacheVolatile uses only the in-process tier. It is the zero value and
	// the default strategy.
	CacheVolatile CacheStrategy = iota
	// CacheNone bypasses the cache entirely.
	CacheNone
	// CacheDurable writes through to the durable tier and promotes durable
	// hits into the volatile tier.
	CacheDurable
	// CacheAggressive behaves exactly like CacheDurable; it exists as a named
	// convention for rarely-changing reference data and defaults to a longer
	// TTL (AggressiveCacheTTL) when the call does not set one.
	CacheAggressive
)

func (s CacheStrategy) durable() bool {
	return s == CacheDurable || s == CacheAggressive
}

func (s CacheStrategy) String() string {
	switch s {
	case CacheNone:
		return "none"
	case CacheVolatile:
		return "volatile"
	case CacheDurable:
		return "durable"
	case CacheAggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// Capacity and timing defaults. All are overridable via Options or CallOptions.
const (
	DefaultMaxConcurrent  = 5
	DefaultCacheCapacity  = 100
	DefaultCacheTTL       = 5 * time.Minute
	AggressiveCacheTTL    = 30 * time.Minute
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 1000 * time.Millisecond
	DefaultMaxRetryDelay  = 30 * time.Second
	DefaultCallTimeout    = 30 * time.Second
	SlowCallThreshold     = 5 * time.Second
)

// Request is the normalized outgoing call handed to the Transport.
type Request struct {
	Method string
	Target string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is the normalized transport result.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport executes a single request/response exchange. Implementations must
// return an error only when no response was received; remote error statuses
// are returned as a *Response.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Result is what callers receive from a successful call.
type Result struct {
	Data       []byte
	StatusCode int
	Header     http.Header
	FromCache  bool
}

// CallOptions carries per-call overrides. The zero value means: normal
// priority, volatile caching with the default TTL, default timeout, no write
// retries.
type CallOptions struct {
	// Priority selects the scheduler lane (1 = most urgent). Defaults to
	// PriorityNormal.
	Priority Priority
	// CacheStrategy controls read-call caching. Defaults to CacheVolatile.
	CacheStrategy CacheStrategy
	// CacheTTL overrides the cache entry TTL.
	CacheTTL time.Duration
	// BypassCache skips the cache lookup but still refreshes the cache on
	// success.
	BypassCache bool
	// Timeout overrides the transport timeout for this call.
	Timeout time.Duration
	// RetryWrites opts a mutating call into retries. Off by default to avoid
	// duplicate side effects.
	RetryWrites bool
	// Header and Query are merged into the outgoing request.
	Header http.Header
	Query  url.Values
}

// Option configures a Client at construction time.
type Option func(*Client)
