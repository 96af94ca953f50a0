package portalgate

import (
	"net/http"
	"time"
)

// WithBaseURL sets the base URL targets are resolved against.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the *http.Client used by the default transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTransport replaces the transport entirely. Overrides WithBaseURL and
// WithHTTPClient.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithTimeout sets the default per-call transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxAttempts sets how many retries a retriable failure is allowed.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithRetryBaseDelay sets the base backoff delay; retry n waits base*2^n.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = d
	}
}

// WithMaxRetryDelay caps the computed backoff delay.
func WithMaxRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.maxRetryDelay = d
	}
}

// WithRetryJitter adds uniform jitter (fraction of the delay, 0..1) to the
// backoff. Off by default so delays stay deterministic.
func WithRetryJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithMaxConcurrent bounds how many calls execute at once.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		c.maxConcurrent = n
	}
}

// WithCacheCapacity bounds the volatile cache tier's entry count.
func WithCacheCapacity(n int) Option {
	return func(c *Client) {
		c.cacheCapacity = n
	}
}

// WithCacheTTL sets the default TTL for cached results.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = d
	}
}

// WithDurableStore enables the durable cache tier and credential persistence.
func WithDurableStore(store DurableStore) Option {
	return func(c *Client) {
		c.durable = store
	}
}

// WithRenewalTarget sets the target of the credential-issuing endpoint used
// by the default renewal call.
func WithRenewalTarget(target string) Option {
	return func(c *Client) {
		c.renewTarget = target
	}
}

// WithRenewFunc replaces the default credential renewal call.
func WithRenewFunc(fn RenewFunc) Option {
	return func(c *Client) {
		c.renewFn = fn
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithConsoleLogger enables debug logging to stderr.
func WithConsoleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewConsoleLogger()
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithBus injects a shared event bus instead of the client-owned one.
func WithBus(bus *Bus) Option {
	return func(c *Client) {
		c.bus = bus
	}
}
