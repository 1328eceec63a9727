package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/shield/internal/auth/app"
	"github.com/aussiebroadwan/shield/pkg/authsdk"
)

/*
 * Common constants and helper functions for auth service end-to-end tests.
 * Postgres and redis run in containers; the service itself runs in-process
 * behind an httptest server so tests can reach its manager directly.
 */

const (
	alicePassword = "Tr0ub4dor-and-3"
	aliceEmail    = "alice@example.test"
)

const testAuthz = `
default_group = "user"

[groups.admin]
title = "Admin"

[groups.user]
title = "User"

[permissions]
"users.create" = "Create users"
"billing.refund" = "Refund payments"

[matrix]
admin = ["users.*"]
`

type service struct {
	URL string
	App *app.Application
}

// client returns a fresh SDK client with its own cookie jar.
func (s *service) client() *authsdk.Client { return authsdk.NewClient(s.URL) }

// startContainer starts req and returns host:port for the first exposed port.
func startContainer(t *testing.T, req testcontainers.ContainerRequest) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func startPostgres(t *testing.T) string {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "shield",
			"POSTGRES_PASSWORD": "shield",
			"POSTGRES_DB":       "shield",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	})
	return fmt.Sprintf("postgres://shield:shield@%s/shield?sslmode=disable", addr)
}

func startRedis(t *testing.T) string {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	})
	return "redis://" + addr + "/0"
}

// setupService boots the full application against fresh postgres and redis
// containers. mutate may adjust the configuration before boot.
func setupService(t *testing.T, mutate func(*app.Config)) *service {
	t.Helper()
	if testing.Short() {
		t.Skip("end-to-end test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	dir := t.TempDir()
	t.Chdir(dir)

	authzFile := filepath.Join(dir, "authz.toml")
	require.NoError(t, os.WriteFile(authzFile, []byte(testAuthz), 0o600))

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	cfg.DatabaseDriver = "postgres"
	cfg.DatabaseURL = startPostgres(t)
	cfg.RedisURL = startRedis(t)
	cfg.RedisPrefix = "e2e:"
	cfg.AuthzFile = authzFile
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.CookieSecure = false
	cfg.LogLevel = "error"
	// Tests make many rapid requests; the rate limit test lowers this again.
	cfg.AuthRateRequests = 1000
	if mutate != nil {
		mutate(&cfg)
	}

	application, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	return &service{URL: srv.URL, App: application}
}

// register creates an account and returns a client logged in as it.
func register(t *testing.T, s *service, email string) (*authsdk.Client, *authsdk.UserResponse) {
	t.Helper()
	client := s.client()
	resp, err := client.Register(t.Context(), authsdk.RegisterRequest{Email: email, Password: alicePassword})
	require.NoError(t, err)
	require.NotNil(t, resp.User, "register should log the user in")
	return client, resp.User
}

// assertAPIError checks err is an *authsdk.APIError with status and code.
func assertAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %T: %v", err, err)
	require.Equal(t, status, apiErr.StatusCode, "unexpected status: %v", err)
	require.Equal(t, code, apiErr.Code)
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
