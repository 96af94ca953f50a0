package portalgate

import (
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Headers that distinguish one logical response from another. Everything else
// (authorization, tracing, user agent) is deliberately excluded so renewed
// credentials do not invalidate the cache.
var cacheKeyHeaders = []string{"Accept", "Accept-Language", "Content-Type"}

// cacheKey derives a stable key from the request's target, parameters, body
// and selected headers. Fields are serialized in sorted order so the same
// logical call yields the same key regardless of insertion order.
func cacheKey(req *Request) string {
	d := xxhash.New()

	_, _ = d.WriteString(req.Method)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(req.Target)
	_, _ = d.WriteString("\x00")

	writeSortedValues(d, req.Query)

	for _, name := range cacheKeyHeaders {
		if req.Header == nil {
			break
		}
		if v := req.Header.Get(name); v != "" {
			_, _ = d.WriteString(name)
			_, _ = d.WriteString("=")
			_, _ = d.WriteString(v)
			_, _ = d.WriteString("\x00")
		}
	}

	if len(req.Body) > 0 {
		_, _ = d.Write(req.Body)
	}

	return req.Method + ":" + req.Target + ":" + strconv.FormatUint(d.Sum64(), 16)
}

func writeSortedValues(d *xxhash.Digest, values url.Values) {
	if len(values) == 0 {
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			_, _ = d.WriteString(k)
			_, _ = d.WriteString("=")
			_, _ = d.WriteString(v)
			_, _ = d.WriteString("\x00")
		}
	}
}

// mergeHeader copies src entries into dst, allocating dst when needed.
func mergeHeader(dst, src http.Header) http.Header {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(http.Header, len(src))
	}
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	return dst
}
