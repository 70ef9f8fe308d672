package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// ClientAddress is the first X-Forwarded-For hop when present, else the
// connection's remote host.
func ClientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// SetHeaders writes the quota headers, plus Retry-After when the request was refused.
func SetHeaders(w http.ResponseWriter, res Result, retryAfter int) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if !res.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
}
