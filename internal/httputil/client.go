// Package httputil builds the HTTP clients shared by the vendor adapters.
package httputil

import (
	"net"
	"net/http"
	"time"
)

// The overall client timeout also bounds stalled streaming responses:
// a vendor stream that stops producing chunks terminates when the total
// request time exceeds it.
const (
	requestTimeout        = 120 * time.Second
	dialTimeout           = 10 * time.Second
	responseHeaderTimeout = 30 * time.Second
)

func NewClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: responseHeaderTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Timeout:   requestTimeout,
		Transport: transport,
	}
}
