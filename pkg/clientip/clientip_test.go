package clientip_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/bookrent/pkg/clientip"
)

func TestFromRequest(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		remote  string
		headers map[string]string
		trust   bool
		want    string
	}{
		"remote addr":              {remote: "203.0.113.7:5555", want: "203.0.113.7"},
		"remote addr without port": {remote: "203.0.113.7", want: "203.0.113.7"},
		"ipv6 normalized":          {remote: "[2001:DB8::1]:443", want: "2001:db8::1"},
		"untrusted header ignored": {remote: "10.0.0.1:1", headers: map[string]string{"X-Forwarded-For": "198.51.100.1"}, want: "10.0.0.1"},
		"forwarded first valid": {
			remote: "10.0.0.1:1", trust: true,
			headers: map[string]string{"X-Forwarded-For": "garbage, 198.51.100.1, 10.0.0.2"},
			want:    "198.51.100.1",
		},
		"cloudflare wins": {
			remote: "10.0.0.1:1", trust: true,
			headers: map[string]string{"CF-Connecting-IP": "192.0.2.9", "X-Real-IP": "192.0.2.10"},
			want:    "192.0.2.9",
		},
		"invalid headers fall back": {
			remote: "10.0.0.1:1", trust: true,
			headers: map[string]string{"X-Real-IP": "not-an-ip"},
			want:    "10.0.0.1",
		},
		"nothing valid": {remote: "unix-socket", want: ""},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientip.FromRequest(r, tt.trust))
		})
	}
}
