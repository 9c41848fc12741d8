package middleware

import (
	"net"
	"net/http"
	"strings"

	appctx "github.com/welldanyogia/contact-mailer/internal/context"
)

// ClientIP resolves the caller's address once per request and stores it in
// the request context for the rate limiters and access logs.
//
// trustedHops is the number of reverse proxies in front of the service.
// With N hops the client is the N-th X-Forwarded-For entry counted from the
// right; a shorter header clamps to its left-most entry. With zero hops the
// header is ignored and the socket peer address is used.
func ClientIP(trustedHops int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trustedHops)
			next.ServeHTTP(w, r.WithContext(appctx.WithClientIP(r.Context(), ip)))
		})
	}
}

// ClientIPFromRequest returns the address stored by ClientIP, falling back
// to the socket peer address.
func ClientIPFromRequest(r *http.Request) string {
	if ip, ok := appctx.ExtractClientIP(r.Context()); ok {
		return ip
	}
	return remoteHost(r.RemoteAddr)
}

func resolveClientIP(r *http.Request, trustedHops int) string {
	peer := remoteHost(r.RemoteAddr)
	if trustedHops <= 0 {
		return peer
	}

	var hops []string
	for _, header := range r.Header.Values("X-Forwarded-For") {
		for _, part := range strings.Split(header, ",") {
			if part = strings.TrimSpace(part); part != "" {
				hops = append(hops, part)
			}
		}
	}
	if len(hops) == 0 {
		return peer
	}

	idx := len(hops) - trustedHops
	if idx < 0 {
		idx = 0
	}
	return remoteHost(hops[idx])
}

// remoteHost strips a port, if any, from addr.
func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
