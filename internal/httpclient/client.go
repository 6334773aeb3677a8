package httpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Headers validates raw key/value pairs and returns them canonicalised.
func Headers(raw map[string]string) (http.Header, error) {
	headers := make(http.Header, len(raw))
	for key, value := range raw {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n: ") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}
	return headers, nil
}

func tlsConfig(insecure bool) *tls.Config {
	if !insecure {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opted in with --insecure
}

// NewClient returns a pooled client for short request/response calls such
// as publishes and health checks.
func NewClient(timeout time.Duration, insecure bool) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       tlsConfig(insecure),
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewStreamClient returns a client for long-lived event streams. It has no
// overall timeout; connectTimeout bounds the dial and the wait for response
// headers. Each stream gets its own HTTP/1.1 connection so the server sees
// one socket per subscriber.
func NewStreamClient(connectTimeout time.Duration, connections int, insecure bool) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	if connections < 1 {
		connections = 1
	}

	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          connections,
		MaxIdleConnsPerHost:   connections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: connectTimeout,
		DisableCompression:    true,
		TLSClientConfig:       tlsConfig(insecure),
		// A non-nil empty map disables HTTP/2.
		TLSNextProto: map[string]func(string, *tls.Conn) http.RoundTripper{},
	}

	return &http.Client{Transport: transport}
}
