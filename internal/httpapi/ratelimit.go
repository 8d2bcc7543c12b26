package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type RateLimitConfig struct {
	IPPerMinute   int
	IPBurst       int
	SitePerMinute int
	SiteBurst     int
}

// RateLimiter throttles the API per client IP and, on the public kiosk and
// display routes, per site.
type RateLimiter struct {
	ipLimiter   *keyedLimiter
	siteLimiter *keyedLimiter
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		ipLimiter:   newKeyedLimiter(cfg.IPPerMinute, cfg.IPBurst),
		siteLimiter: newKeyedLimiter(cfg.SitePerMinute, cfg.SiteBurst),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip != "" && !l.ipLimiter.allow(ip) {
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) SiteMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siteID := siteIDFromRequest(r)
		if siteID != "" && !l.siteLimiter.allow(siteID) {
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests for this site")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// keyedLimiter holds one token bucket per key. Buckets idle for
// limiterIdleTTL expire, so the set stays bounded by active clients.
type keyedLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
}

func newKeyedLimiter(perMinute, burst int) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &keyedLimiter{
		limiters: cache.New(limiterIdleTTL, limiterIdleTTL),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
	}
}

func (l *keyedLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if value, ok := l.limiters.Get(key); ok {
		limiter := value.(*rate.Limiter)
		l.limiters.SetDefault(key, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.SetDefault(key, limiter)
	return limiter
}

func (l *keyedLimiter) allow(key string) bool {
	return l.get(key).Allow()
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// siteIDFromRequest finds the site a request targets: the {siteID} path
// parameter, or site_id in a JSON body. The body is restored for the handler.
func siteIDFromRequest(r *http.Request) string {
	if siteID := strings.TrimSpace(chi.URLParam(r, "siteID")); siteID != "" {
		return siteID
	}
	if r.Body == nil || !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}
	body, err := readBody(r)
	if err != nil {
		return ""
	}
	var payload struct {
		SiteID string `json:"site_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.SiteID)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
