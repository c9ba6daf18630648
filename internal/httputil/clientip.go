// Package httputil holds small HTTP helpers shared by the API server and
// the status stream.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP address from the request. When
// trustProxy is true the X-Forwarded-For (leftmost entry) and X-Real-IP
// headers take precedence over RemoteAddr. Only enable trustProxy behind
// a reverse proxy that overwrites these headers, otherwise clients can
// spoof their address.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := proxyHeaderIP(r); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, e.g. a unix socket peer.
		return r.RemoteAddr
	}
	return host
}

func proxyHeaderIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// The leftmost entry is the original client; later entries
		// name intermediate proxies.
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}
