package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestErrorProxyTransportPassesThroughSuccess(t *testing.T) {
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	tr := errorProxyTransport{next}

	req := httptest.NewRequest(http.MethodGet, "http://example.test/x", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestErrorProxyTransportClassifiesErrors(t *testing.T) {
	cases := []struct {
		status int
		code   ErrorCode
	}{
		{http.StatusNotFound, CodeNotFound},
		{http.StatusTooManyRequests, CodeRateLimited},
		{http.StatusUnauthorized, CodeAuth},
		{http.StatusForbidden, CodeAuth},
		{http.StatusInternalServerError, CodeTransient},
		{http.StatusBadRequest, CodeTransient},
	}

	for _, tc := range cases {
		next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: tc.status, Body: http.NoBody}, nil
		})
		tr := errorProxyTransport{next}

		req := httptest.NewRequest(http.MethodGet, "http://example.test/x", nil)
		_, err := tr.RoundTrip(req)
		require.Error(t, err)
		ae, ok := err.(*AppError)
		require.True(t, ok)
		assert.Equal(t, tc.code, ae.Code, "status %d", tc.status)
	}
}

func TestScopedTransportRewritesHost(t *testing.T) {
	var gotHost string
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotHost = r.URL.Host
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	tr := ScopedTransport{Host: "api.bookdata.example", RoundTripper: next}

	req := httptest.NewRequest(http.MethodGet, "http://original.example/x", nil)
	_, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, "api.bookdata.example", gotHost)
}

func TestHeaderTransportAddsHeader(t *testing.T) {
	var gotValue string
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotValue = r.Header.Get("Authorization")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	tr := &HeaderTransport{Key: "Authorization", Value: "Bearer xyz", RoundTripper: next}

	req := httptest.NewRequest(http.MethodGet, "http://example.test/x", nil)
	_, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer xyz", gotValue)
}
