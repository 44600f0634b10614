package api

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// ipThrottle enforces a fixed-window request budget per client IP. Stale
// windows are pruned inline on the next pass through, so no background
// goroutine is needed.
type ipThrottle struct {
	mu      sync.Mutex
	budget  int
	window  time.Duration
	clients map[string]*requestWindow
	sweep   time.Time
}

type requestWindow struct {
	opened time.Time
	used   int
}

func newIPThrottle(budget int, window time.Duration) *ipThrottle {
	return &ipThrottle{
		budget:  budget,
		window:  window,
		clients: make(map[string]*requestWindow),
		sweep:   time.Now(),
	}
}

// take consumes one request from the caller's current window.
func (t *ipThrottle) take(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.Sub(t.sweep) > t.window {
		for ip, w := range t.clients {
			if now.Sub(w.opened) > t.window {
				delete(t.clients, ip)
			}
		}
		t.sweep = now
	}

	w := t.clients[host]
	if w == nil || now.Sub(w.opened) > t.window {
		t.clients[host] = &requestWindow{opened: now, used: 1}
		return true
	}
	w.used++
	return w.used <= t.budget
}

// RateLimit returns middleware capping requests per client IP per window.
func RateLimit(budget int, window time.Duration) func(http.Handler) http.Handler {
	throttle := newIPThrottle(budget, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !throttle.take(r.RemoteAddr) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
