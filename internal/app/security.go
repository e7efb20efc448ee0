package app

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"examprep/internal/app/apiresp"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const csrfCookieName = "examprep_csrf"
const csrfHeaderName = "X-CSRF-Token"

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client. Buckets idle for longer
// than the idle window are dropped on later calls.
type IPRateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	store     map[string]*visitor
	lastSweep time.Time
}

func NewIPRateLimiter(max int, window time.Duration) *IPRateLimiter {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	idle := 3 * window
	if idle < time.Minute {
		idle = time.Minute
	}
	return &IPRateLimiter{
		limit: rate.Every(window / time.Duration(max)),
		burst: max,
		idle:  idle,
		now:   time.Now,
		store: make(map[string]*visitor),
	}
}

func (l *IPRateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	if now.Sub(l.lastSweep) > l.idle {
		for k, v := range l.store {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.store, k)
			}
		}
		l.lastSweep = now
	}
	v, ok := l.store[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.store[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (l *IPRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.store)
}

func RateLimitMiddleware(l *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientIP(r)) {
				apiresp.WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// CSRFCookieMiddleware hands out the double-submit token on safe requests
// when the client has none yet.
func CSRFCookieMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			if c, err := r.Cookie(csrfCookieName); err != nil || strings.TrimSpace(c.Value) == "" {
				http.SetCookie(w, &http.Cookie{
					Name:     csrfCookieName,
					Value:    uuid.NewString(),
					Path:     "/",
					HttpOnly: false,
					SameSite: http.SameSiteLaxMode,
				})
			}
		}
		next.ServeHTTP(w, r)
	})
}

func CSRFMiddleware(enforced bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enforced || isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			c, err := r.Cookie(csrfCookieName)
			if err != nil || strings.TrimSpace(c.Value) == "" {
				apiresp.WriteErrorCode(w, r, http.StatusForbidden, "csrf_missing", "csrf token missing")
				return
			}
			h := strings.TrimSpace(r.Header.Get(csrfHeaderName))
			if h == "" || h != c.Value {
				apiresp.WriteErrorCode(w, r, http.StatusForbidden, "csrf_invalid", "csrf token invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
