package observability

import (
	"net"
	"net/http"
	"strings"
)

// ClientMetaFromRequest extracts client identity headers from the handshake
// request. UserID is filled in by the caller after token verification.
func ClientMetaFromRequest(r *http.Request) ClientMeta {
	return ClientMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		RequestID: r.Header.Get("X-Request-Id"),
		IP:        clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// first hop in the chain is the original client
		return strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
