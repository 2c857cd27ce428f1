package pipeline

import (
	"net/http"
	"time"
)

// NewPooledHTTPClient builds a client with a keep-alive pool sized for one
// backend. A zero timeout leaves the overall deadline to the per-request
// context, which endpoints that stream their response body need.
func NewPooledHTTPClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        poolSize,
			MaxIdleConnsPerHost: poolSize,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}
