// Package portalgate is the unified network client behind the portal's
// dashboard screens. Every screen issues remote calls through one façade that
// layers the reliability machinery the portal depends on:
//
//   - Priority-ordered, concurrency-limited request scheduling (five FIFO
//     lanes, CRITICAL through BACKGROUND)
//   - A two-tier result cache (volatile in-process tier plus an optional
//     durable tier such as Redis) with TTL expiry and capacity eviction
//   - Transparent credential renewal: unauthorized failures collapse into a
//     single renewal call and replay once new credentials are in place
//   - Retries with exponential backoff for transient failures
//   - Continuous performance telemetry (rolling aggregate + Prometheus)
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Callers never see raw transport errors; failures are normalized into a
//     small taxonomy (API, network, request, auth)
//
// Typical usage:
//
//	client := portalgate.New(
//	    portalgate.WithBaseURL("https://api.example.org"),
//	    portalgate.WithDurableStore(portalgate.NewRedisStore(rdb, "portal")),
//	    portalgate.WithMetrics(),
//	)
//	res, err := client.Get(ctx, "/patients/42", &portalgate.CallOptions{
//	    Priority:      portalgate.PriorityHigh,
//	    CacheStrategy: portalgate.CacheDurable,
//	})
//
// The client avoids opinionated logging: provide a Logger (e.g. via
// WithConsoleLogger) and enable debug flags selectively for insight without
// noise.
package portalgate
