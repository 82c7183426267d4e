package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthenticatorScopes(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: "secret", Issuer: "cpswap-ops"}, nil)
	var subject string
	handler := auth.Middleware("discount:audit")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", jwt.MapClaims{"iss": "cpswap-ops", "exp": time.Now().Add(time.Hour).Unix(), "scope": "discount:audit"}), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, "secret", jwt.MapClaims{"iss": "elsewhere", "exp": time.Now().Add(time.Hour).Unix(), "scope": "discount:audit"}), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, "secret", jwt.MapClaims{"iss": "cpswap-ops", "exp": time.Now().Add(-time.Hour).Unix(), "scope": "discount:audit"}), http.StatusUnauthorized},
		{"no exp", "Bearer " + signToken(t, "secret", jwt.MapClaims{"iss": "cpswap-ops", "scope": "discount:audit"}), http.StatusUnauthorized},
		{"missing scope", "Bearer " + signToken(t, "secret", jwt.MapClaims{"iss": "cpswap-ops", "exp": time.Now().Add(time.Hour).Unix(), "scope": "discount:read"}), http.StatusForbidden},
		{"ok", "Bearer " + signToken(t, "secret", jwt.MapClaims{"iss": "cpswap-ops", "sub": "ops-1", "exp": time.Now().Add(time.Hour).Unix(), "scope": "discount:read discount:audit"}), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/discounts/x/history", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
	require.Equal(t, "ops-1", subject)
}

func TestAuthenticatorDisabledPassesThrough(t *testing.T) {
	handler := NewAuthenticator(AuthConfig{}, nil).Middleware("discount:audit")(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

type throttleCounter struct{ count int }

func (c *throttleCounter) RecordThrottle(route, reason string) { c.count++ }

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	counter := &throttleCounter{}
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1}, counter, nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("discounts")(okHandler())

	req := httptest.NewRequest(http.MethodPut, "/v1/discounts/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, 1, counter.count)

	other := httptest.NewRequest(http.MethodPut, "/v1/discounts/x", nil)
	other.RemoteAddr = "198.51.100.7:4242"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	require.Equal(t, http.StatusOK, rec.Code, "clients are limited independently")

	now = now.Add(time.Minute)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "bucket refills over time")
}

func TestRateLimiterIgnoresClientSuppliedIdentity(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1}, nil, nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("discounts")(okHandler())

	throttled := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/discounts/x", nil)
		req.Header.Set("X-API-Key", uuid.NewString())
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("192.0.2.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			throttled++
		}
	}
	require.Equal(t, 49, throttled, "rotating headers must not yield fresh buckets")
}

func TestClientIDTrustsProxyHeadersOnlyWhenConfigured(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "10.0.0.1", clientID(req, false))
	require.Equal(t, "203.0.113.9", clientID(req, true))

	req.Header.Set("X-Real-IP", "198.51.100.3")
	require.Equal(t, "198.51.100.3", clientID(req, true))

	req.Header.Set("X-Real-IP", "not-an-ip")
	req.Header.Del("X-Forwarded-For")
	require.Equal(t, "10.0.0.1", clientID(req, true))
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1}, nil, nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	limiter.clockNow = func() time.Time { return now }
	require.True(t, limiter.allow("a"))
	now = now.Add(10 * time.Minute)
	require.True(t, limiter.allow("b"))
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	require.NotContains(t, limiter.visitors, "a")
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	supplied := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, supplied)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, supplied, seen)

	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.NotEqual(t, "not-a-uuid", seen)
}
