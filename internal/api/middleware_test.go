package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pouchpay/wallet-service/internal/app"
	"github.com/pouchpay/wallet-service/internal/domain"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "socket address only",
			remoteAddr: "192.0.2.10:54321",
			want:       "192.0.2.10",
		},
		{
			name:       "x-forwarded-for first hop wins",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "198.51.100.4"},
			want:       "198.51.100.4",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := clientIP(r); got != tc.want {
				t.Errorf("clientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	userID := uuid.New()

	var gotUserID uuid.UUID
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, gotOK = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := AuthMiddleware(secret)(next)

	valid := signToken(t, secret, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", valid, http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.token", http.StatusUnauthorized},
		{
			"wrong secret",
			"Bearer " + signToken(t, "other-secret", jwt.MapClaims{"sub": userID.String()}),
			http.StatusUnauthorized,
		},
		{
			"expired token",
			"Bearer " + signToken(t, secret, jwt.MapClaims{
				"sub": userID.String(),
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
			http.StatusUnauthorized,
		},
		{
			"non-uuid subject",
			"Bearer " + signToken(t, secret, jwt.MapClaims{
				"sub": "not-a-uuid",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotOK = false
			r := httptest.NewRequest("GET", "/wallet/balance", nil)
			if tc.authHeader != "" {
				r.Header.Set("Authorization", tc.authHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusOK {
				if !gotOK || gotUserID != userID {
					t.Errorf("context user = (%s, %v), want (%s, true)", gotUserID, gotOK, userID)
				}
			}
		})
	}
}

// stubAttemptStore allows a fixed number of requests then refuses.
type stubAttemptStore struct {
	count int
	limit int
}

func (s *stubAttemptStore) RegisterFailure(ctx context.Context, identifier string, threshold int, lockout time.Duration) (*domain.AttemptState, error) {
	return nil, nil
}

func (s *stubAttemptStore) Reset(ctx context.Context, identifier string) error { return nil }

func (s *stubAttemptStore) Status(ctx context.Context, identifier string) (*domain.AttemptState, error) {
	return nil, nil
}

func (s *stubAttemptStore) ConsumeRequest(ctx context.Context, identifier string, limit int, window, block time.Duration) (int, time.Duration, error) {
	s.count++
	if s.count > s.limit {
		return s.count, block, nil
	}
	return s.count, window, nil
}

func TestRateLimitMiddleware(t *testing.T) {
	guard := app.NewGuard(&stubAttemptStore{limit: 2}, app.GuardConfig{
		RequestLimit:  2,
		RequestWindow: time.Minute,
		BlockDuration: time.Minute,
	})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(guard)(next)

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest("GET", "/wallet/balance", nil)
		r.RemoteAddr = "192.0.2.10:1000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, w.Code)
		}
	}

	r := httptest.NewRequest("GET", "/wallet/balance", nil)
	r.RemoteAddr = "192.0.2.10:1000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status above cap = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}
