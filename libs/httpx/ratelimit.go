package httpx

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateRule limits requests accepted by Match. A rule with Limit <= 0 exempts
// its requests from limiting.
type RateRule struct {
	Name   string
	Limit  int
	Window time.Duration
	Match  func(*http.Request) bool
}

// MatchPrefix matches a method (empty for any) and a path prefix.
func MatchPrefix(method, prefix string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if method != "" && r.Method != method {
			return false
		}
		return strings.HasPrefix(r.URL.Path, prefix)
	}
}

// RateStore counts hits per key in fixed windows.
type RateStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

type RateLimitOptions struct {
	Rules  []RateRule
	Store  RateStore
	Logger *slog.Logger
	// FailOpen lets requests through when the store errors.
	FailOpen bool
}

// WithRateLimit applies the first matching rule per client IP.
func WithRateLimit(opts RateLimitOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(opts.Rules, r)
			if !ok || rule.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			window := rule.Window
			if window <= 0 {
				window = time.Minute
			}

			count, resetIn, err := opts.Store.Hit(r.Context(), rule.Name+":"+clientKey(r), window)
			if err != nil {
				if opts.Logger != nil {
					opts.Logger.Warn("rate limiter error", "rule", rule.Name, "err", err)
				}
				if opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}

			remaining := int64(rule.Limit) - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if count > int64(rule.Limit) {
				w.Header().Set("Retry-After", retryAfterSeconds(resetIn))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchRule(rules []RateRule, r *http.Request) (RateRule, bool) {
	for _, rule := range rules {
		if rule.Match == nil || rule.Match(r) {
			return rule, true
		}
	}
	return RateRule{}, false
}

// MemoryRateStore keeps windows in process; suitable for a single gateway instance.
type MemoryRateStore struct {
	mu        sync.Mutex
	windows   map[string]*rateWindow
	lastSweep time.Time
	now       func() time.Time
}

type rateWindow struct {
	count   int64
	resetAt time.Time
}

func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{windows: map[string]*rateWindow{}, now: time.Now}
}

func (s *MemoryRateStore) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > time.Minute {
		for k, w := range s.windows {
			if !now.Before(w.resetAt) {
				delete(s.windows, k)
			}
		}
		s.lastSweep = now
	}

	w := s.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt.Sub(now), nil
}

func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
