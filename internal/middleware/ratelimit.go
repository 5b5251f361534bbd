package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	rateLimitWindow  = time.Minute
	rateLimitMaxIP   = 300
	rateLimitMaxUser = 200
	sweepEvery       = 1024
)

type rateLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
	calls  int
	now    func() time.Time
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window, now: time.Now}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cutoff := now.Add(-r.window)
	r.calls++
	if r.calls%sweepEvery == 0 {
		r.sweep(cutoff)
	}
	slice := r.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= r.max {
		r.times[key] = slice
		return false
	}
	r.times[key] = append(slice, now)
	return true
}

// sweep удаляет ключи без попыток в окне; вызывается под r.mu.
func (r *rateLimiter) sweep(cutoff time.Time) {
	for k, slice := range r.times {
		if len(slice) == 0 || !slice[len(slice)-1].After(cutoff) {
			delete(r.times, k)
		}
	}
}

// RateLimit ограничивает запросы по IP и по user_id (если он уже в контексте). 429 при превышении.
// Нулевой лимит отключает соответствующую проверку.
// RemoteAddr ожидается уже исправленным chi middleware.RealIP.
func RateLimit(maxPerIP, maxPerUser int, window time.Duration) func(http.Handler) http.Handler {
	byIP := newRateLimiter(maxPerIP, window)
	byUser := newRateLimiter(maxPerUser, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxPerIP > 0 {
				ip, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					ip = r.RemoteAddr
				}
				if !byIP.allow(ip) {
					writeJSONError(w, http.StatusTooManyRequests, "Too many requests")
					return
				}
			}
			if maxPerUser > 0 {
				if userID := GetUserID(r.Context()); userID != "" && !byUser.allow("u:"+userID) {
					writeJSONError(w, http.StatusTooManyRequests, "Too many requests")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitAPI — лимит по IP для всего /api/*.
func RateLimitAPI(next http.Handler) http.Handler {
	return RateLimit(rateLimitMaxIP, 0, rateLimitWindow)(next)
}

// RateLimitUser — лимит по пользователю; ставится после BearerAuth.
func RateLimitUser(next http.Handler) http.Handler {
	return RateLimit(0, rateLimitMaxUser, rateLimitWindow)(next)
}
