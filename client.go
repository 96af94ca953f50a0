package portalgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rsudianto/portalgate/internal/backoff"
)

// Client is the unified network client: every call flows through the cache,
// the priority scheduler, the retry/backoff machinery and the credential
// manager before reaching the transport. It is safe for concurrent use.
type Client struct {
	transport  Transport
	httpClient *http.Client
	baseURL    string

	timeout        time.Duration
	maxAttempts    int
	retryBaseDelay time.Duration
	maxRetryDelay  time.Duration
	jitter         float64
	backoff        *backoff.Calculator

	maxConcurrent int
	cacheCapacity int
	cacheTTL      time.Duration
	durable       DurableStore
	renewTarget   string
	renewFn       RenewFunc

	cache     *CacheStore
	scheduler *Scheduler
	creds     *CredentialManager
	recorder  *Recorder
	bus       *Bus

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig

	closed atomic.Bool
}

// New constructs a Client using the provided functional options.
func New(options ...Option) *Client {
	c := &Client{
		timeout:        DefaultCallTimeout,
		maxAttempts:    DefaultMaxAttempts,
		retryBaseDelay: DefaultRetryBaseDelay,
		maxRetryDelay:  DefaultMaxRetryDelay,
		maxConcurrent:  DefaultMaxConcurrent,
		cacheCapacity:  DefaultCacheCapacity,
		cacheTTL:       DefaultCacheTTL,
		renewTarget:    "/auth/renew",
		recorder:       NewRecorder(),
	}
	for _, option := range options {
		option(c)
	}

	if c.transport == nil {
		c.transport = NewHTTPTransport(c.httpClient, c.baseURL)
	}
	var strategy backoff.Strategy = backoff.Exponential{}
	if c.jitter > 0 {
		strategy = backoff.ExponentialJitter{}
	}
	c.backoff = backoff.NewCalculator(strategy, c.retryBaseDelay, c.maxRetryDelay, c.jitter)

	if c.bus == nil {
		c.bus = NewBus()
	}

	c.cache = NewCacheStore(c.cacheCapacity, c.durable)
	c.cache.logger = c.logger
	c.cache.metrics = c.metrics

	c.scheduler = NewScheduler(c.maxConcurrent)
	c.scheduler.logger = c.logger
	c.scheduler.debug = c.debug
	c.scheduler.metrics = c.metrics

	if c.renewFn == nil {
		c.renewFn = c.renewCredentials
	}
	c.creds = NewCredentialManager(c.durable, c.bus, c.renewFn)
	c.creds.logger = c.logger
	c.creds.debug = c.debug
	c.creds.metrics = c.metrics
	c.creds.Load(context.Background())

	return c
}

// cachedResponse is the envelope stored in the result cache.
type cachedResponse struct {
	Body       []byte      `msgpack:"b"`
	StatusCode int         `msgpack:"s"`
	Header     http.Header `msgpack:"h"`
}

// callOutcome is the single value delivered to a waiting caller.
type callOutcome struct {
	res *Result
	err error
}

// pendingCall is one call moving through the scheduler. attempt counts
// retries already performed; authRetried marks a replay after credential
// renewal so a second unauthorized failure becomes terminal.
type pendingCall struct {
	id   string
	req  *Request
	opts CallOptions

	isRead    bool
	cacheable bool
	key       string

	start       time.Time
	attempt     int
	authRetried bool

	result chan callOutcome
}

// rejectClosed delivers the shutdown sentinel to the waiting caller. Used when
// the scheduler drops the call at Close, or when a retry or renewal replay
// cannot be re-enqueued.
func (pc *pendingCall) rejectClosed() {
	pc.result <- callOutcome{err: ErrClientClosed}
}

// Call issues one remote call. Read calls consult the cache per the options;
// misses are enqueued at the call's priority and executed under the client's
// concurrency bound. Failures are normalized: callers only ever see
// *ClientError values (or ErrClientClosed / the caller's own context error).
func (c *Client) Call(ctx context.Context, method, target string, payload any, opts *CallOptions) (*Result, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	resolved := c.resolveOptions(opts)
	start := time.Now()

	req, cerr := buildRequest(method, target, payload, &resolved)
	if cerr != nil {
		cerr.Method = method
		cerr.Target = target
		cerr.Timestamp = time.Now()
		c.metrics.RecordError(cerr.Type, method, target)
		return nil, cerr
	}

	isRead := method == http.MethodGet || method == http.MethodHead
	strategy := resolved.CacheStrategy
	if !isRead {
		strategy = CacheNone
	}

	pc := &pendingCall{
		id:        uuid.NewString(),
		req:       req,
		opts:      resolved,
		isRead:    isRead,
		cacheable: strategy != CacheNone,
		start:     start,
		result:    make(chan callOutcome, 1),
	}
	if pc.cacheable {
		pc.key = cacheKey(req)
	}

	if pc.cacheable && !resolved.BypassCache {
		if res, ok := c.cacheLookup(ctx, pc); ok {
			return res, nil
		}
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("call enqueued", "callID", pc.id, "method", method, "target", target,
			"priority", resolved.Priority.String())
	}

	c.metrics.RecordRequestStart(method, target)
	if err := c.scheduler.Enqueue(resolved.Priority, func() { c.attempt(pc) }, pc.rejectClosed); err != nil {
		c.metrics.RecordRequestEnd(method, target)
		return nil, err
	}

	select {
	case out := <-pc.result:
		return out.res, out.err
	case <-ctx.Done():
		// Abandoned by the caller; the call keeps running and its outcome is
		// dropped into the buffered channel.
		return nil, ctx.Err()
	}
}

// Get issues a GET call.
func (c *Client) Get(ctx context.Context, target string, opts *CallOptions) (*Result, error) {
	return c.Call(ctx, http.MethodGet, target, nil, opts)
}

// Post issues a POST call with a JSON-encoded payload.
func (c *Client) Post(ctx context.Context, target string, payload any, opts *CallOptions) (*Result, error) {
	return c.Call(ctx, http.MethodPost, target, payload, opts)
}

// Put issues a PUT call with a JSON-encoded payload.
func (c *Client) Put(ctx context.Context, target string, payload any, opts *CallOptions) (*Result, error) {
	return c.Call(ctx, http.MethodPut, target, payload, opts)
}

// Delete issues a DELETE call.
func (c *Client) Delete(ctx context.Context, target string, opts *CallOptions) (*Result, error) {
	return c.Call(ctx, http.MethodDelete, target, nil, opts)
}

// SetCredentials stores a new credential pair and persists it to the durable
// store.
func (c *Client) SetCredentials(ctx context.Context, access, refresh string) {
	c.creds.SetCredentials(ctx, access, refresh)
}

// ClearCredentials drops the credential pair from memory and durable storage.
func (c *Client) ClearCredentials(ctx context.Context) {
	c.creds.ClearCredentials(ctx)
}

// Cache exposes the result cache for explicit invalidation.
func (c *Client) Cache() *CacheStore {
	return c.cache
}

// Events exposes the notification bus for subscriptions.
func (c *Client) Events() *Bus {
	return c.bus
}

// AttachNotifications consumes `{type, payload}` frames from the
// environment-supplied duplex connection in the background and dispatches
// them on the bus until ctx is done or the connection fails.
func (c *Client) AttachNotifications(ctx context.Context, conn NotificationConn) {
	go func() {
		if err := c.bus.Attach(ctx, conn); err != nil && ctx.Err() == nil && c.logger != nil {
			c.logger.Warn("notification channel closed", "error", err)
		}
	}()
}

// Metrics bundles the telemetry surfaces.
type Metrics struct {
	Calls Aggregate
	Cache CacheStats
	Queue QueueStats
}

// GetMetrics returns a snapshot of call, cache and queue telemetry.
func (c *Client) GetMetrics() Metrics {
	return Metrics{
		Calls: c.recorder.Snapshot(),
		Cache: c.cache.Stats(),
		Queue: c.scheduler.Snapshot(),
	}
}

// Close stops the scheduler. Calls issued afterwards fail with
// ErrClientClosed, and so do calls still queued in a lane; calls already
// executing run to completion.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.scheduler.Close()
}

func (c *Client) resolveOptions(opts *CallOptions) CallOptions {
	var resolved CallOptions
	if opts != nil {
		resolved = *opts
	}
	if !resolved.Priority.valid() {
		resolved.Priority = PriorityNormal
	}
	if resolved.CacheTTL <= 0 {
		if resolved.CacheStrategy == CacheAggressive {
			resolved.CacheTTL = AggressiveCacheTTL
		} else {
			resolved.CacheTTL = c.cacheTTL
		}
	}
	if resolved.Timeout <= 0 {
		resolved.Timeout = c.timeout
	}
	return resolved
}

func buildRequest(method, target string, payload any, opts *CallOptions) (*Request, *ClientError) {
	if method == "" || target == "" {
		return nil, &ClientError{Type: ErrorTypeRequest, Message: "method and target are required"}
	}
	if _, err := url.Parse(target); err != nil {
		return nil, &ClientError{Type: ErrorTypeRequest, Message: "invalid target", Cause: err}
	}

	var body []byte
	switch p := payload.(type) {
	case nil:
	case []byte:
		body = p
	case json.RawMessage:
		body = p
	default:
		encoded, err := json.Marshal(p)
		if err != nil {
			return nil, &ClientError{Type: ErrorTypeRequest, Message: "encoding payload failed", Cause: err}
		}
		body = encoded
	}

	header := mergeHeader(nil, opts.Header)
	if header == nil {
		header = make(http.Header)
	}
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}
	if len(body) > 0 && header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}

	var query url.Values
	if len(opts.Query) > 0 {
		query = make(url.Values, len(opts.Query))
		for k, vs := range opts.Query {
			query[k] = append([]string(nil), vs...)
		}
	}

	return &Request{Method: method, Target: target, Query: query, Header: header, Body: body}, nil
}

// cacheLookup serves a read call from the cache when a valid entry exists.
func (c *Client) cacheLookup(ctx context.Context, pc *pendingCall) (*Result, bool) {
	data, found := c.cache.Get(ctx, pc.key, pc.opts.CacheStrategy)
	if !found {
		c.metrics.RecordCacheMiss(pc.req.Method, pc.req.Target)
		return nil, false
	}

	var cached cachedResponse
	if err := msgpack.Unmarshal(data, &cached); err != nil {
		if c.logger != nil {
			c.logger.Warn("cached entry corrupt", "key", pc.key, "error", err)
		}
		c.cache.Discard(ctx, pc.key)
		c.metrics.RecordCacheMiss(pc.req.Method, pc.req.Target)
		return nil, false
	}

	c.metrics.RecordCacheHit(pc.req.Method, pc.req.Target)
	c.metrics.RecordRequest(pc.req.Method, pc.req.Target, cached.StatusCode, time.Since(pc.start))
	c.recorder.Record(pc.start, true, cached.StatusCode)
	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug("cache hit", "callID", pc.id, "key", pc.key)
	}
	return &Result{
		Data:       cached.Body,
		StatusCode: cached.StatusCode,
		Header:     cached.Header,
		FromCache:  true,
	}, true
}

// attempt executes one try of the call inside a scheduler slot.
func (c *Client) attempt(pc *pendingCall) {
	c.creds.Attach(pc.req)

	// The transport context is deliberately detached from the caller's: an
	// abandoned call still runs to completion.
	actx, cancel := context.WithTimeout(context.Background(), pc.opts.Timeout)
	defer cancel()

	resp, err := c.transport.Do(actx, pc.req)
	switch {
	case err != nil:
		c.handleFailure(pc, nil, err)
	case resp.StatusCode == http.StatusUnauthorized && !pc.authRetried:
		c.handleUnauthorized(pc)
	case resp.StatusCode >= 400:
		c.handleFailure(pc, resp, nil)
	default:
		c.finishSuccess(pc, resp)
	}
}

// handleUnauthorized routes a 401 through credential renewal. Concurrent 401s
// collapse into one renewal call; each replays itself afterwards with the new
// credential. The renewal wait happens off the scheduler slot.
func (c *Client) handleUnauthorized(pc *pendingCall) {
	pc.authRetried = true
	if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
		c.logger.Debug("unauthorized, renewing credentials", "callID", pc.id)
	}

	go func() {
		rctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if _, err := c.creds.Renew(rctx); err != nil {
			// The renewal error is shared by every call that joined the
			// single-flight, so wrap it per call instead of mutating it.
			cerr := &ClientError{Type: ErrorTypeAuthFailure, Message: "credential renewal failed", Cause: err}
			var known *ClientError
			if errors.As(err, &known) {
				cerr.Message = known.Message
				cerr.Cause = known.Cause
			}
			c.finishFailure(pc, cerr, http.StatusUnauthorized)
			return
		}
		if err := c.scheduler.Enqueue(pc.opts.Priority, func() { c.attempt(pc) }, pc.rejectClosed); err != nil {
			pc.rejectClosed()
		}
	}()
}

// handleFailure decides between backoff-and-retry and terminal failure.
func (c *Client) handleFailure(pc *pendingCall, resp *Response, err error) {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	retriable := err != nil || retryableStatus(status)
	if !pc.isRead && !pc.opts.RetryWrites {
		retriable = false
	}

	if retriable && pc.attempt < c.maxAttempts {
		delay := c.backoff.Delay(pc.attempt)
		pc.attempt++
		c.metrics.RecordRetry(pc.req.Method, pc.req.Target, pc.attempt)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("scheduling retry", "callID", pc.id, "attempt", pc.attempt,
				"maxAttempts", c.maxAttempts, "delay", delay, "status", status)
		}
		time.AfterFunc(delay, func() {
			if enqErr := c.scheduler.Enqueue(pc.opts.Priority, func() { c.attempt(pc) }, pc.rejectClosed); enqErr != nil {
				pc.rejectClosed()
			}
		})
		return
	}

	if err != nil {
		c.finishFailure(pc, &ClientError{Type: ErrorTypeNetwork, Message: "no response received", Cause: err}, 0)
		return
	}
	c.finishFailure(pc, &ClientError{
		Type:       ErrorTypeAPI,
		Message:    fmt.Sprintf("remote returned status %d", status),
		StatusCode: status,
		Body:       resp.Body,
	}, status)
}

func (c *Client) finishSuccess(pc *pendingCall, resp *Response) {
	if pc.cacheable {
		data, err := msgpack.Marshal(cachedResponse{
			Body:       resp.Body,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
		})
		if err == nil {
			cctx, cancel := context.WithTimeout(context.Background(), durableQueryTimeout)
			c.cache.Set(cctx, pc.key, data, pc.opts.CacheTTL, pc.opts.CacheStrategy)
			cancel()
		}
	}

	c.recorder.Record(pc.start, true, resp.StatusCode)
	c.metrics.RecordRequestEnd(pc.req.Method, pc.req.Target)
	c.metrics.RecordRequest(pc.req.Method, pc.req.Target, resp.StatusCode, time.Since(pc.start))

	pc.result <- callOutcome{res: &Result{
		Data:       resp.Body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}}
}

func (c *Client) finishFailure(pc *pendingCall, cerr *ClientError, status int) {
	cerr.CallID = pc.id
	cerr.Method = pc.req.Method
	cerr.Target = pc.req.Target
	cerr.Attempt = pc.attempt
	cerr.MaxAttempts = c.maxAttempts
	cerr.Timestamp = time.Now()
	cerr.Duration = time.Since(pc.start)

	c.recorder.Record(pc.start, false, status)
	c.metrics.RecordRequestEnd(pc.req.Method, pc.req.Target)
	c.metrics.RecordRequest(pc.req.Method, pc.req.Target, status, time.Since(pc.start))
	c.metrics.RecordError(cerr.Type, pc.req.Method, pc.req.Target)
	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Warn("call failed", "callID", pc.id, "type", cerr.Type, "status", status)
	}

	pc.result <- callOutcome{err: cerr}
}

// renewCredentials is the default RenewFunc: a direct transport call to the
// renewal target, bypassing the scheduler so renewal cannot deadlock behind
// the very calls waiting on it.
func (c *Client) renewCredentials(ctx context.Context, refreshToken string) (string, string, error) {
	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", "", err
	}
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")

	resp, err := c.transport.Do(ctx, &Request{
		Method: http.MethodPost,
		Target: c.renewTarget,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("renewal endpoint returned status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", "", fmt.Errorf("decoding renewal response: %w", err)
	}
	if out.AccessToken == "" {
		return "", "", fmt.Errorf("renewal response missing access token")
	}
	return out.AccessToken, out.RefreshToken, nil
}
