package portalgate

import (
	"errors"
	"testing"
)

func TestClientErrorFormatting(t *testing.T) {
	err := &ClientError{
		Type:        ErrorTypeAPI,
		Message:     "remote returned status 404",
		StatusCode:  404,
		CallID:      "c-1",
		Attempt:     1,
		MaxAttempts: 3,
	}
	got := err.Error()
	want := "[c-1] API: remote returned status 404 (status 404) (attempt 1/3)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ClientError{Type: ErrorTypeNetwork, Message: "no response received", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected cause reachable through Unwrap")
	}
}

func TestClientErrorIsByType(t *testing.T) {
	err := &ClientError{Type: ErrorTypeNetwork, Message: "a"}
	if !errors.Is(err, &ClientError{Type: ErrorTypeNetwork}) {
		t.Error("expected Is to match on type")
	}
	if errors.Is(err, &ClientError{Type: ErrorTypeAPI}) {
		t.Error("expected Is to reject a different type")
	}
}

func TestErrorPredicates(t *testing.T) {
	cases := []struct {
		err  error
		pred func(error) bool
		want bool
	}{
		{&ClientError{Type: ErrorTypeAPI}, IsAPIError, true},
		{&ClientError{Type: ErrorTypeNetwork}, IsNetworkError, true},
		{&ClientError{Type: ErrorTypeRequest}, IsRequestError, true},
		{&ClientError{Type: ErrorTypeAuthFailure}, IsAuthFailure, true},
		{errors.New("plain"), IsAPIError, false},
		{nil, IsNetworkError, false},
	}
	for i, tc := range cases {
		if got := tc.pred(tc.err); got != tc.want {
			t.Errorf("case %d: got %v, want %v", i, got, tc.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&ClientError{Type: ErrorTypeNetwork}, true},
		{&ClientError{Type: ErrorTypeAPI, StatusCode: 503}, true},
		{&ClientError{Type: ErrorTypeAPI, StatusCode: 404}, false},
		{&ClientError{Type: ErrorTypeRequest}, false},
		{&ClientError{Type: ErrorTypeAuthFailure}, false},
		{errors.New("plain"), false},
	}
	for i, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("case %d: got %v, want %v", i, got, tc.want)
		}
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 422} {
		if retryableStatus(status) {
			t.Errorf("status %d must never be retried", status)
		}
	}
	for _, status := range []int{500, 502, 503, 504} {
		if !retryableStatus(status) {
			t.Errorf("status %d should be retriable", status)
		}
	}
	if retryableStatus(429) {
		t.Error("4xx other than 401 are terminal, including 429")
	}
}
