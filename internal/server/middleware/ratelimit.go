package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"golang.org/x/time/rate"

	"github.com/medcityai/pubgate/internal/metrics"
)

// ClientLimiter keeps one token bucket per client address.
type ClientLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	clock   func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a limiter allowing rps requests per second per
// client with the given burst.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
		clock:   time.Now,
	}
}

// Reserve takes a token for key. When none is available it returns false
// with the wait until the next token.
func (l *ClientLimiter) Reserve(key string) (bool, time.Duration) {
	now := l.clock()

	l.mu.Lock()
	ent, ok := l.entries[key]
	if !ok {
		ent = &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = ent
	}
	ent.lastSeen = now
	l.mu.Unlock()

	if ent.lim.AllowN(now, 1) {
		return true, 0
	}
	res := ent.lim.ReserveN(now, 1)
	wait := res.DelayFrom(now)
	res.CancelAt(now)
	return false, wait
}

// Cleanup drops buckets idle for longer than the idle TTL.
func (l *ClientLimiter) Cleanup() {
	cutoff := l.clock().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// Len reports the number of tracked clients.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (l *ClientLimiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// RateLimit rejects requests over the client's budget with 429 and a
// Retry-After header.
func RateLimit(limiter *ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := limiter.Reserve(clientKey(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RecordInboundRejected(getEndpointPattern(r))

			seconds := int(math.Ceil(wait.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))

			envelope := errors.NewErrorEnvelope("RATE_LIMITED", "too many requests").
				WithCorrelationID(GetRequestID(r.Context()))
			envelope, _ = envelope.WithContext(map[string]interface{}{
				"retry_after_seconds": seconds,
			})
			writeErrorResponse(w, envelope, http.StatusTooManyRequests)
		})
	}
}

// clientKey uses RemoteAddr, which chi's RealIP middleware has already
// rewritten from forwarding headers.
func clientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return "unknown"
}
