package realip

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pendergraft/verisource/internal/config"
)

func resolve(cfg config.ProxyConfig, remote string, headers map[string]string) string {
	var got string
	h := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClientIP(r)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestMiddleware(t *testing.T) {
	trusting := config.ProxyConfig{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8", "192.168.1.1"}}

	tests := []struct {
		name    string
		cfg     config.ProxyConfig
		remote  string
		headers map[string]string
		want    string
	}{
		{"no proxy trust ignores xff", config.ProxyConfig{}, "203.0.113.5:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.5"},
		{"untrusted peer ignores xff", trusting, "203.0.113.5:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.5"},
		{"trusted peer uses xff", trusting, "10.0.0.7:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "1.2.3.4"},
		{"skips trusted hops", trusting, "10.0.0.7:1234", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.1.1.1"}, "1.2.3.4"},
		{"rightmost untrusted wins", trusting, "10.0.0.7:1234", map[string]string{"X-Forwarded-For": "6.6.6.6, 1.2.3.4, 10.1.1.1"}, "1.2.3.4"},
		{"all trusted returns leftmost", trusting, "10.0.0.7:1234", map[string]string{"X-Forwarded-For": "10.9.9.9, 10.1.1.1"}, "10.9.9.9"},
		{"bare trusted address", trusting, "192.168.1.1:80", map[string]string{"X-Real-IP": "5.6.7.8"}, "5.6.7.8"},
		{"no headers", trusting, "10.0.0.7:1234", nil, "10.0.0.7"},
		{"ipv6 remote", config.ProxyConfig{}, "[2001:db8::1]:443", nil, "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolve(tt.cfg, tt.remote, tt.headers))
		})
	}
}

func TestParseTrusted(t *testing.T) {
	got := ParseTrusted([]string{"10.0.0.0/8", "192.168.1.1", "::1", "garbage", " 172.16.0.0/12 "})
	assert.Len(t, got, 4)
	assert.Equal(t, "192.168.1.1/32", got[1].String())
	assert.Equal(t, "::1/128", got[2].String())
}

func TestGetClientIP_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.2:5555"
	assert.Equal(t, "198.51.100.2", GetClientIP(req))
}
