package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/aussiebroadwan/sso/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

type call struct {
	key    string
	remote string
	xff    string
}

func (c call) send(h http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token/verify", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	if c.remote != "" {
		req.RemoteAddr = c.remote
	}
	if c.key != "" {
		req.Header.Set("Authorization", c.key)
	}
	if c.xff != "" {
		req.Header.Set("X-Forwarded-For", c.xff)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestByIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "192.168.1.1:12345", nil, "ip:192.168.1.1"},
		{"remote without port", "192.168.1.1", nil, "ip:192.168.1.1"},
		{"first forwarded hop", "192.168.1.1:12345", map[string]string{"X-Forwarded-For": " 203.0.113.1 , 192.168.1.1"}, "ip:203.0.113.1"},
		{"empty forwarded hop", "192.168.1.1:12345", map[string]string{"X-Forwarded-For": " ,203.0.113.1"}, "ip:192.168.1.1"},
		{"real ip", "192.168.1.1:12345", map[string]string{"X-Real-IP": "203.0.113.2"}, "ip:203.0.113.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, httpx.ByIP(req))
		})
	}
}

func TestByKey(t *testing.T) {
	keyed := func(header string) string {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		return httpx.ByKey(req)
	}

	t.Run("fingerprints the key", func(t *testing.T) {
		got := keyed("svc-secret")
		require.Regexp(t, `^key:[0-9a-f]+$`, got)
		require.NotContains(t, got, "svc-secret")
	})

	t.Run("bearer and bare share a bucket", func(t *testing.T) {
		require.Equal(t, keyed("svc-secret"), keyed("Bearer svc-secret"))
	})

	t.Run("different keys differ", func(t *testing.T) {
		require.NotEqual(t, keyed("svc-a"), keyed("svc-b"))
	})

	t.Run("no key", func(t *testing.T) {
		require.Empty(t, keyed(""))
		require.Empty(t, keyed("Bearer "))
	})

	t.Run("prefers the key stored by RequireKey", func(t *testing.T) {
		var got string
		h := httpx.RequireKey()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			r.Header.Del("Authorization")
			got = httpx.ByKey(r)
		}))
		call{key: "svc-secret"}.send(h)
		require.Equal(t, keyed("svc-secret"), got)
	})
}

func TestFirstOf(t *testing.T) {
	none := func(*http.Request) string { return "" }
	fixed := func(v string) httpx.KeyExtractor {
		return func(*http.Request) string { return v }
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	require.Equal(t, "a", httpx.FirstOf(none, fixed("a"), fixed("b"))(req))
	require.Empty(t, httpx.FirstOf(none, none)(req))
	require.Empty(t, httpx.FirstOf()(req))
}

func TestRateLimitByKey(t *testing.T) {
	tests := []struct {
		name  string
		calls []call
		codes []int
	}{
		{
			name:  "one key exhausts its own bucket",
			calls: []call{{key: "svc-a"}, {key: "svc-a"}, {key: "svc-a"}},
			codes: []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests},
		},
		{
			name:  "keys behind one address are counted apart",
			calls: []call{{key: "svc-a"}, {key: "svc-a"}, {key: "svc-b"}, {key: "svc-a"}},
			codes: []int{http.StatusNoContent, http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests},
		},
		{
			name:  "one key from many addresses shares a bucket",
			calls: []call{{key: "svc-a", remote: "10.0.0.1:1"}, {key: "svc-a", remote: "10.0.0.2:1"}, {key: "svc-a", remote: "10.0.0.3:1"}},
			codes: []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests},
		},
		{
			name:  "bearer prefix does not reset the bucket",
			calls: []call{{key: "svc-a"}, {key: "Bearer svc-a"}, {key: "bearer svc-a"}},
			codes: []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests},
		},
		{
			name:  "keyless calls fall back to the address",
			calls: []call{{remote: "10.0.0.9:1"}, {remote: "10.0.0.9:2"}, {remote: "10.0.0.9:3"}, {key: "svc-a", remote: "10.0.0.9:4"}},
			codes: []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests, http.StatusNoContent},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := httpx.RateLimitByKey(httpx.PerMinute(2))(ok)
			for i, c := range tt.calls {
				require.Equal(t, tt.codes[i], c.send(h).Code, "call %d", i+1)
			}
		})
	}
}

func TestRateLimitByIP(t *testing.T) {
	h := httpx.RateLimitByIP(httpx.PerMinute(2))(ok)

	// A service forwarding two end users gives each their own budget.
	alice := call{key: "svc-a", xff: "203.0.113.10"}
	bob := call{key: "svc-a", xff: "203.0.113.20"}

	require.Equal(t, http.StatusNoContent, alice.send(h).Code)
	require.Equal(t, http.StatusNoContent, alice.send(h).Code)
	require.Equal(t, http.StatusTooManyRequests, alice.send(h).Code)
	require.Equal(t, http.StatusNoContent, bob.send(h).Code)
}

func TestRateLimitRejection(t *testing.T) {
	h := httpx.RateLimitByKey(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1})(ok)
	c := call{key: "svc-a"}

	require.Equal(t, http.StatusNoContent, c.send(h).Code)
	rec := c.send(h)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.InDelta(t, 60, retry, 1)
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "rate_limit_exceeded", body["error"])
	require.NotEmpty(t, body["error_description"])

	// A rejected call does not push the next token further out.
	again := c.send(h)
	require.Equal(t, rec.Header().Get("Retry-After"), again.Header().Get("Retry-After"))
}

func TestRateLimitPassThrough(t *testing.T) {
	tests := []struct {
		name    string
		config  httpx.RateLimitConfig
		extract httpx.KeyExtractor
	}{
		{"zero config", httpx.RateLimitConfig{}, httpx.ByKey},
		{"no window", httpx.RateLimitConfig{RequestsPerWindow: 1, Burst: 1}, httpx.ByKey},
		{"unattributed request", httpx.PerMinute(1), httpx.ByKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := httpx.RateLimit(tt.config, tt.extract)(ok)
			for range 5 {
				require.Equal(t, http.StatusNoContent, call{}.send(h).Code)
			}
		})
	}
}

func TestDefaultRateLimits(t *testing.T) {
	limits := httpx.DefaultRateLimits()
	ordered := []httpx.RateLimitConfig{limits.Strict, limits.Moderate, limits.Lenient, limits.Public}

	for i, c := range ordered {
		require.False(t, c.Disabled())
		require.Equal(t, c.RequestsPerWindow, c.Burst)
		if i > 0 {
			require.Less(t, ordered[i-1].RequestsPerWindow, c.RequestsPerWindow)
		}
	}
}

func BenchmarkRateLimitByKey(b *testing.B) {
	h := httpx.RateLimitByKey(httpx.PerMinute(1_000_000))(ok)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "svc-a")

	for b.Loop() {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
