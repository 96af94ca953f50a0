package portalgate

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
)

// HTTPTransport executes requests against a base URL using net/http. It is
// the default Transport; tests and non-HTTP environments can swap in their
// own implementation.
type HTTPTransport struct {
	client  *http.Client
	baseURL string
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport wraps client for calls against baseURL. A nil client uses
// http.DefaultClient. Timeouts are driven by the per-call context, not the
// http.Client.
func NewHTTPTransport(client *http.Client, baseURL string) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client, baseURL: baseURL}
}

func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	u, err := url.Parse(t.baseURL + req.Target)
	if err != nil {
		return nil, err
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = vs
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}
