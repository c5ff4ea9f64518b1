// Package clientip resolves the address a request originated from.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// proxyHeaders are consulted in order when the service sits behind a
// trusted proxy.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// FromRequest returns the normalized client IP, or "" when none is valid.
// Forwarding headers are honored only when trustProxy is set; otherwise a
// client could pick its own rate-limit key.
func FromRequest(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyHeaders {
			v := r.Header.Get(h)
			if v == "" {
				continue
			}
			// X-Forwarded-For is "client, proxy1, proxy2"
			for part := range strings.SplitSeq(v, ",") {
				if ip := parse(part); ip != "" {
					return ip
				}
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parse(r.RemoteAddr)
	}
	return parse(host)
}

func parse(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
