package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle applies a per-client-IP token bucket to general API traffic.
// This is coarse abuse protection in front of the window-based limiter used
// by OTP issuance; precision across instances is not a goal here.
type Throttle struct {
	mu      sync.Mutex
	buckets map[string]*throttleEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

type throttleEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		buckets: make(map[string]*throttleEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
	}
}

// Handler is the middleware entry point.
func (t *Throttle) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := GetClientIP(r.Context())
		if ip == "" {
			ip = r.RemoteAddr
		}
		if !t.limiterFor(ip).Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *Throttle) limiterFor(key string) *rate.Limiter {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if ent, ok := t.buckets[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(t.rps, t.burst)
	t.buckets[key] = &throttleEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup drops buckets idle longer than the TTL. Called from a janitor
// goroutine owned by main.
func (t *Throttle) Cleanup() {
	cutoff := time.Now().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	for k, ent := range t.buckets {
		if ent.lastSeen.Before(cutoff) {
			delete(t.buckets, k)
		}
	}
}

// StartJanitor periodically evicts idle buckets until done is closed.
func (t *Throttle) StartJanitor(done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				t.Cleanup()
			}
		}
	}()
}
