package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/modelstation/modelstation/internal/auth"
	"github.com/modelstation/modelstation/internal/cache"
)

// Limiter is the shared token bucket store.
type Limiter interface {
	CheckAuthRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
	CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter Limiter

	// Credential endpoints, per client IP.
	AuthEnabled bool
	AuthRPS     int
	AuthBurst   int

	// Authenticated routes, per user. APIPerMinute of 0 means unlimited.
	APIEnabled   bool
	APIPerMinute int
	APIBurst     int
}

// RateLimitAuth limits login and registration attempts per client IP.
// When the shared store fails, a process-local bucket takes over.
func RateLimitAuth(cfg RateLimitConfig) func(http.Handler) http.Handler {
	fallback := newLocalLimiter(rate.Limit(cfg.AuthRPS), cfg.AuthBurst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.AuthEnabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			result, err := cfg.Limiter.CheckAuthRateLimit(r.Context(), ip, cfg.AuthRPS, cfg.AuthBurst)
			if err != nil {
				cfg.Logger.Warn("shared rate limiter unavailable, using local limiter",
					slog.String("error", err.Error()),
					slog.String("type", "auth"),
				)
				result = fallback.check(ip, time.Now())
			}

			if !result.Allowed {
				rejectRateLimited(w, r, cfg.Logger, "auth", result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitUser limits authenticated traffic per user. It must run after Auth.
func RateLimitUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	fallback := newLocalLimiter(rate.Limit(float64(cfg.APIPerMinute)/60), cfg.APIBurst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := auth.AuthFromContext(r.Context())
			if !cfg.APIEnabled || cfg.APIPerMinute == 0 || ac == nil {
				next.ServeHTTP(w, r)
				return
			}

			result, err := cfg.Limiter.CheckUserRateLimit(r.Context(), ac.UserID, cfg.APIPerMinute, cfg.APIBurst)
			if err != nil {
				cfg.Logger.Warn("shared rate limiter unavailable, using local limiter",
					slog.String("error", err.Error()),
					slog.String("type", "api"),
				)
				result = fallback.check(ac.UserID, time.Now())
			}

			setRateLimitHeaders(w, cfg.APIPerMinute, result.Remaining, result.ResetAt)
			if !result.Allowed {
				rejectRateLimited(w, r, cfg.Logger, "api", result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func rejectRateLimited(w http.ResponseWriter, r *http.Request, logger *slog.Logger, kind string, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}

	logger.Warn("rate limit exceeded",
		slog.String("type", kind),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.Int("retry_after_seconds", seconds),
		slog.String("request_id", GetRequestID(r.Context())),
	)

	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, http.StatusTooManyRequests, CodeRateLimited,
		"Rate limit exceeded. Retry after "+strconv.Itoa(seconds)+" seconds.")
}

// clientIP strips the port from RemoteAddr. Forwarding headers are
// resolved earlier by chi's RealIP middleware.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const (
	localIdleTTL       = 10 * time.Minute
	localSweepInterval = time.Minute
)

// localLimiter keeps one token bucket per key in process memory.
type localLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastSweep time.Time
}

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLocalLimiter(limit rate.Limit, burst int) *localLimiter {
	return &localLimiter{
		limit:   limit,
		burst:   burst,
		buckets: make(map[string]*localBucket),
	}
}

func (l *localLimiter) check(key string, now time.Time) *cache.RateLimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > localSweepInterval {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > localIdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now

	res := b.lim.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if !res.OK() || delay > 0 {
		res.CancelAt(now)
		if !res.OK() {
			delay = time.Second
		}
		return &cache.RateLimitResult{Allowed: false, ResetAt: now.Add(delay), RetryAfter: delay}
	}

	remaining := int64(b.lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return &cache.RateLimitResult{Allowed: true, Remaining: remaining, ResetAt: now.Add(time.Second)}
}
