// Package realip resolves the client address of a request, honouring
// X-Forwarded-For only when the peer is a trusted proxy.
package realip

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/pendergraft/verisource/internal/config"
)

type contextKey string

// ClientIPKey is the context key for the real client IP
const ClientIPKey contextKey = "client_ip"

// ParseTrusted parses trusted proxy entries given as CIDRs or bare
// addresses. Invalid entries are skipped.
func ParseTrusted(entries []string) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return out
}

// Middleware stores the client IP of each request in its context.
func Middleware(cfg config.ProxyConfig) func(http.Handler) http.Handler {
	var trusted []netip.Prefix
	if cfg.TrustProxy {
		trusted = ParseTrusted(cfg.TrustedProxies)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trusted)
			ctx := context.WithValue(r.Context(), ClientIPKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP walks X-Forwarded-For from the right and returns the first hop
// that is not a trusted proxy.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	remote := hostOnly(r.RemoteAddr)
	if len(trusted) == 0 || !isTrusted(remote, trusted) {
		return remote
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		if xri := hostOnly(strings.TrimSpace(r.Header.Get("X-Real-IP"))); xri != "" {
			return xri
		}
		return remote
	}

	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
	}
	// every hop is a proxy; the leftmost is the closest thing to a client
	return strings.TrimSpace(hops[0])
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// GetClientIP retrieves the real client IP from the request context.
// Falls back to RemoteAddr if not set.
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return hostOnly(r.RemoteAddr)
}
