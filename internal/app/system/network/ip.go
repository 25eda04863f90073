// Package network provides request address helpers used when logging who
// opened a live log connection or submitted records.
package network

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP address from the request.
// X-Forwarded-For (first hop) wins, then X-Real-IP, then RemoteAddr with
// the port stripped. IPv6 addresses are returned without brackets.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
