package httpx

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/sso/pkg/cryptox"
	"github.com/aussiebroadwan/sso/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket refilled with RequestsPerWindow tokens
// every Window and holding at most Burst.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// PerMinute allows n requests a minute, all of which may arrive at once.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: n, Window: time.Minute, Burst: n}
}

// Disabled reports whether c lets everything through.
func (c RateLimitConfig) Disabled() bool {
	return c.RequestsPerWindow <= 0 || c.Window <= 0
}

// RateLimits holds the limit for each class of route.
type RateLimits struct {
	// Strict guards credential checks.
	Strict RateLimitConfig
	// Moderate guards administration and token housekeeping.
	Moderate RateLimitConfig
	// Lenient guards health checks.
	Lenient RateLimitConfig
	// Public guards high volume verification calls.
	Public RateLimitConfig
}

// DefaultRateLimits is what the server runs with unless configured.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Strict:   PerMinute(5),
		Moderate: PerMinute(20),
		Lenient:  PerMinute(100),
		Public:   PerMinute(1000),
	}
}

// KeyExtractor names the bucket a request is counted against. An empty
// result means the request cannot be attributed.
type KeyExtractor func(*http.Request) string

// ByIP attributes a request to the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's address. Services forward their end
// user's address, so credential limits apply per end user.
func ByIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return "ip:" + xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// ByKey attributes a request to the key it carries. Only the fingerprint is
// kept so limiter state never holds a usable key.
func ByKey(r *http.Request) string {
	value := KeyValueFromContext(r.Context())
	if value == "" {
		value = KeyFromHeader(r)
	}
	if value == "" {
		return ""
	}
	return "key:" + cryptox.FingerprintToken(value)
}

// FirstOf uses the first extractor that attributes the request.
func FirstOf(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				return key
			}
		}
		return ""
	}
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// buckets holds one limiter per key. Buckets idle for longer than idle are
// full again and are dropped on the next sweep.
type buckets struct {
	mu    sync.Mutex
	byKey map[string]*bucket
	limit rate.Limit
	burst int
	idle  time.Duration
	swept time.Time
}

func newBuckets(c RateLimitConfig) *buckets {
	return &buckets{
		byKey: make(map[string]*bucket),
		limit: rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds()),
		burst: c.Burst,
		idle:  max(2*c.Window, time.Minute),
		swept: time.Now(),
	}
}

func (b *buckets) get(key string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.swept) >= b.idle {
		for k, v := range b.byKey {
			if now.Sub(v.seen) >= b.idle {
				delete(b.byKey, k)
			}
		}
		b.swept = now
	}

	v, ok := b.byKey[key]
	if !ok {
		v = &bucket{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.byKey[key] = v
	}
	v.seen = now
	return v.limiter
}

func (b *buckets) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byKey)
}

// RateLimit rejects requests with 429 once their bucket is empty. Requests
// the extractor cannot attribute pass through.
func RateLimit(config RateLimitConfig, extract KeyExtractor) Middleware {
	if config.Disabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	return rateLimit(config, extract, newBuckets(config))
}

func rateLimit(config RateLimitConfig, extract KeyExtractor, set *buckets) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extract(r)
			if key == "" {
				slogx.FromContext(r.Context()).Warn("rate limit key missing, request allowed", "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			res := set.get(key, now).ReserveN(now, 1)
			if !res.OK() {
				writeRateLimited(w, r, config, key, config.Window)
				return
			}
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				writeRateLimited(w, r, config, key, delay)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, config RateLimitConfig, key string, delay time.Duration) {
	retryAfter := max(int(math.Ceil(delay.Seconds())), 1)

	h := w.Header()
	h.Set("Retry-After", strconv.Itoa(retryAfter))
	h.Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
	h.Set("X-RateLimit-Window", config.Window.String())

	slogx.FromContext(r.Context()).Warn("rate limit exceeded",
		"limiter_key", key,
		"path", r.URL.Path,
		"retry_after_s", retryAfter,
	)
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests, retry later")
}

// RateLimitByIP limits per client address.
func RateLimitByIP(config RateLimitConfig) Middleware {
	return RateLimit(config, ByIP)
}

// RateLimitByKey limits per caller key, or per address for requests
// without one.
func RateLimitByKey(config RateLimitConfig) Middleware {
	return RateLimit(config, FirstOf(ByKey, ByIP))
}
