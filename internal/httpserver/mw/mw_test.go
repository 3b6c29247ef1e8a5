package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/MrSnakeDoc/linkpocket/internal/logger"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", remote: "10.1.2.3:5555", want: "10.1.2.3"},
		{name: "proxy headers ignored when untrusted", remote: "10.1.2.3:5555",
			headers: map[string]string{"X-Forwarded-For": "1.1.1.1"}, want: "10.1.2.3"},
		{name: "left-most forwarded for", remote: "127.0.0.1:80", trustProxy: true,
			headers: map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, want: "1.1.1.1"},
		{name: "cloudflare header first", remote: "127.0.0.1:80", trustProxy: true,
			headers: map[string]string{"CF-Connecting-IP": "3.3.3.3", "X-Forwarded-For": "1.1.1.1"}, want: "3.3.3.3"},
		{name: "ipv6 remote", remote: "[::1]:80", want: "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := clientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrefixSet(t *testing.T) {
	set := parsePrefixes([]string{"10.0.0.0/8", " 192.168.1.7 ", "garbage", "::1"})
	assert.Equal(t, len(set), 3)

	assert.Assert(t, set.contains("10.20.30.40"))
	assert.Assert(t, set.contains("192.168.1.7"))
	assert.Assert(t, !set.contains("192.168.1.8"))
	assert.Assert(t, set.contains("::1"))
	assert.Assert(t, set.contains("::ffff:10.0.0.1"), "v4-mapped addresses match v4 rules")
	assert.Assert(t, !set.contains("not-an-ip"))
}

func TestAllowOnlyCIDRS(t *testing.T) {
	h := AllowOnlyCIDRS([]string{"10.0.0.0/8"}, false, logger.Nop())(noContent)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, rec.Code, http.StatusNoContent)

	r.RemoteAddr = "192.0.2.1:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, rec.Code, http.StatusForbidden)
}

func TestAllowOnlyCIDRS_EmptyIsPassthrough(t *testing.T) {
	h := AllowOnlyCIDRS(nil, false, logger.Nop())(noContent)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, rec.Code, http.StatusNoContent)
}

func TestRateLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := RateLimit(RateLimitConfig{
		Burst:             2,
		RefillPerIPPerMin: 60,
		Now:               func() time.Time { return now },
	})(noContent)

	do := func(remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, do("10.0.0.1:1").Code, http.StatusNoContent)
	assert.Equal(t, do("10.0.0.1:2").Code, http.StatusNoContent)

	rec := do("10.0.0.1:3")
	assert.Equal(t, rec.Code, http.StatusTooManyRequests)
	assert.Equal(t, rec.Header().Get("Retry-After"), "1")

	assert.Equal(t, do("10.0.0.2:1").Code, http.StatusNoContent, "buckets are per IP")

	now = now.Add(time.Second)
	assert.Equal(t, do("10.0.0.1:4").Code, http.StatusNoContent, "one token refilled")
}

func TestRateLimit_ZeroBurstDisables(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(noContent)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, rec.Code, http.StatusNoContent)
	}
}

func TestLog_KeepsFlusher(t *testing.T) {
	var flushErr error
	h := Log(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
		flushErr = http.NewResponseController(w).Flush()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	assert.NilError(t, flushErr)
	assert.Assert(t, rec.Flushed)
	assert.Equal(t, rec.Body.String(), "data")
}
