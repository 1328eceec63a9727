package auth_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/shield/internal/auth/app"
	"github.com/aussiebroadwan/shield/pkg/authsdk"
)

func withAuthLimit(n int) func(*app.Config) {
	return func(cfg *app.Config) {
		cfg.AuthRateRequests = n
		cfg.AuthRateWindow = time.Minute
	}
}

// TestRateLimitLogin verifies password guessing is throttled per client IP.
func TestRateLimitLogin(t *testing.T) {
	s := setupService(t, withAuthLimit(5))
	client := s.client()

	for i := range 5 {
		_, err := client.Login(t.Context(), authsdk.LoginRequest{Username: "wronguser", Password: "wrongpass"})
		assertAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
		t.Logf("request %d rejected without throttling", i+1)
	}

	_, err := client.Login(t.Context(), authsdk.LoginRequest{Username: "wronguser", Password: "wrongpass"})
	assertAPIError(t, err, http.StatusTooManyRequests, "rate_limit_exceeded")
}

// TestRateLimitSharedAcrossAuthEndpoints verifies login, registration and
// magic links draw from the same per-IP budget.
func TestRateLimitSharedAcrossAuthEndpoints(t *testing.T) {
	s := setupService(t, withAuthLimit(3))
	client := s.client()
	ctx := t.Context()

	_, err := client.Register(ctx, authsdk.RegisterRequest{Email: aliceEmail, Password: alicePassword})
	require.NoError(t, err)
	require.NoError(t, client.RequestMagicLink(ctx, aliceEmail))
	_, err = client.Login(ctx, authsdk.LoginRequest{Email: aliceEmail, Password: alicePassword})
	require.NoError(t, err)

	err = client.RequestMagicLink(ctx, aliceEmail)
	assertAPIError(t, err, http.StatusTooManyRequests, "rate_limit_exceeded")
}

// TestRateLimitPublicEndpoints verifies health and key set polling is not
// subject to the authentication budget.
func TestRateLimitPublicEndpoints(t *testing.T) {
	s := setupService(t, withAuthLimit(1))
	client := s.client()

	for i := range 30 {
		health, err := client.GetLiveness(t.Context())
		require.NoError(t, err, "liveness request %d should not be rate limited", i+1)
		require.Equal(t, "ok", health.Status)

		_, err = client.GetJWKS(t.Context())
		require.NoError(t, err, "jwks request %d should not be rate limited", i+1)
	}
}

// TestRateLimitSkipsAuthenticatedRoutes verifies a logged-in client keeps
// using its session after the login budget is spent.
func TestRateLimitSkipsAuthenticatedRoutes(t *testing.T) {
	s := setupService(t, withAuthLimit(1))
	client, _ := register(t, s, aliceEmail)

	_, err := client.Login(t.Context(), authsdk.LoginRequest{Email: aliceEmail, Password: alicePassword})
	assertAPIError(t, err, http.StatusTooManyRequests, "rate_limit_exceeded")

	for range 10 {
		_, err := client.Me(t.Context())
		require.NoError(t, err)
	}
}
