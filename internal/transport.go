package internal

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// throttledTransport rate limits outbound provider requests and backs off
// automatically on a 403, generalizing the teacher's root-package
// throttledTransport (originally scoped to one GraphQL upstream) to any
// HTTP-based provider registered in the registry.
type throttledTransport struct {
	http.RoundTripper
	*rate.Limiter
}

func (t throttledTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(r.Context()); err != nil {
		return nil, err
	}
	resp, err := t.RoundTripper.RoundTrip(r)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusForbidden {
		Log(r.Context()).Warn("backing off after 403", "limit", t.Limiter.Limit(), "tokens", t.Limiter.Tokens())
		orig := t.Limiter.Limit()
		t.Limiter.SetLimit(rate.Every(time.Hour / 60))          // 1RPM
		t.Limiter.SetLimitAt(time.Now().Add(time.Minute), orig) // restore
	}

	return resp, err
}

// ScopedTransport restricts requests to a particular host, so redirects
// can't send a request (and its credentials) elsewhere.
type ScopedTransport struct {
	Host string
	http.RoundTripper
}

func (t ScopedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.URL.Scheme = "https"
	r.URL.Host = t.Host
	return t.RoundTripper.RoundTrip(r)
}

// HeaderTransport adds a header to all requests. Best used with a
// ScopedTransport, e.g. to attach a provider API key.
type HeaderTransport struct {
	Key   string
	Value string
	http.RoundTripper
}

func (t *HeaderTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.Header.Add(t.Key, t.Value)
	return t.RoundTripper.RoundTrip(r)
}

// errorProxyTransport returns a non-nil *AppError for response codes 400
// and above, so provider HTTP errors surface through the same AppError
// taxonomy as everything else in the enrichment path.
type errorProxyTransport struct {
	http.RoundTripper
}

func (t errorProxyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.RoundTripper.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, statusForHTTP(resp.StatusCode)
	}
	return resp, nil
}

// statusForHTTP maps a provider's raw HTTP status to the internal error
// taxonomy so every provider failure is classified the same way
// regardless of transport.
func statusForHTTP(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return RateLimitedError(time.Minute)
	case status == http.StatusNotFound:
		return NotFoundError("upstream resource")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return AuthError("upstream rejected credentials")
	case status >= 500:
		return TransientError("upstream server error", http.StatusText(status))
	default:
		return TransientError("upstream error", http.StatusText(status))
	}
}
