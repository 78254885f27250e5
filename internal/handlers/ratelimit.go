package handlers

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tweetbox/backend/internal/auth"
)

// RateLimiter is the minimal interface required to guard expensive endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

func allowRequest(limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(rateLimitKey(r, scope))
}

// rateLimitKey buckets callers by credential digest, falling back to the
// client address for anonymous requests.
func rateLimitKey(r *http.Request, scope string) string {
	caller := "ip:" + clientIP(r)
	if credential := strings.TrimSpace(r.Header.Get(credentialHeader)); credential != "" {
		caller = "key:" + auth.Digest(credential)
	}
	if scope == "" {
		return caller
	}
	return fmt.Sprintf("%s:%s", scope, caller)
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
