// Package ratelimit holds per-client token buckets in a bounded cache.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultMaxClients = 4096

// Limiter allows perMinute events per client key. Least recently seen
// clients are evicted once maxClients is reached.
type Limiter struct {
	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
	every   rate.Limit
	burst   int
}

// New creates a limiter; maxClients <= 0 uses a default bound
func New(perMinute, burst, maxClients int) *Limiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}
	cache, _ := lru.New[string, *rate.Limiter](maxClients)
	return &Limiter{
		clients: cache,
		every:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.clients.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(l.every, l.burst)
	l.clients.Add(key, lim)
	return lim
}

// Allow consumes one token for key
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Reserve reports whether key may proceed and, if not, how long to wait
func (l *Limiter) Reserve(key string) (bool, time.Duration) {
	r := l.get(key).Reserve()
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d
	}
	return true, 0
}

// KeyFunc extracts the client identity from a request
type KeyFunc func(*http.Request) string

// ClientIP keys requests by remote address
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429 and Retry-After
func (l *Limiter) Middleware(key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.Reserve(key(r))
			if !ok {
				secs := int(wait/time.Second) + 1
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
