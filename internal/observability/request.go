package observability

import (
	"net"
	"net/http"
	"strings"
)

// RequestMeta carries the diagnostic headers attached to a handshake.
type RequestMeta struct {
	DeviceID  string
	RequestID string
	ClientIP  string
}

// MetaFromRequest extracts diagnostic metadata from request headers. The
// client IP prefers the first X-Forwarded-For hop over the socket address.
func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		RequestID: r.Header.Get("X-Request-Id"),
		ClientIP:  clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
