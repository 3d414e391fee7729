package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/pkg/clientip"
	"golang.org/x/time/rate"
)

const (
	defaultLimiterTTL      = 30 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// KeyedLimiter is a token bucket per key (IP or user ID).
type KeyedLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

func NewKeyedLimiter(limit rate.Limit, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		limit:   limit,
		burst:   burst,
		ttl:     defaultLimiterTTL,
		entries: make(map[string]*limiterEntry),
	}
}

func (l *KeyedLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

// Allow reports whether key may proceed now.
func (l *KeyedLimiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Burst is the bucket size, reported in X-RateLimit-Limit.
func (l *KeyedLimiter) Burst() int {
	return l.burst
}

// Cleanup drops buckets idle for longer than the TTL.
func (l *KeyedLimiter) Cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, e := range l.entries {
		if now.Sub(e.lastUse) > l.ttl {
			delete(l.entries, key)
			n++
		}
	}
	return n
}

// StartCleanup runs Cleanup periodically until ctx is done.
func (l *KeyedLimiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(defaultCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.Cleanup(now)
			}
		}
	}()
}

// MessageRateLimit limits message writes (POST/PATCH) per user, falling back
// to the client IP when no principal is attached. Reads pass through.
func MessageRateLimit(l *KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			key := "ip:" + clientip.RealClientIP(r)
			if p, ok := PrincipalFrom(r.Context()); ok {
				key = "user:" + p.UserID
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Burst()))
			if !l.Allow(key) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many messages. Please slow down.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
