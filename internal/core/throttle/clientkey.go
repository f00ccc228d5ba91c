package throttle

import (
	"net"
	"net/http"
	"strings"
)

// ForwardedForHeader carries the proxy chain; its first entry is the original client.
const ForwardedForHeader = "X-Forwarded-For"

// ResolveClientKey derives the throttle key for a request. The first entry of
// X-Forwarded-For wins when non-empty, then the host part of remoteAddr, then
// UnknownClient. It reads no state beyond its arguments.
func ResolveClientKey(header http.Header, remoteAddr string) string {
	if header != nil {
		if xff := header.Get(ForwardedForHeader); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return UnknownClient
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		// No port present
		return remoteAddr
	}
	if host == "" {
		return UnknownClient
	}
	return host
}

// RequestKey resolves the client key for r.
func RequestKey(r *http.Request) string {
	if r == nil {
		return UnknownClient
	}
	return ResolveClientKey(r.Header, r.RemoteAddr)
}
