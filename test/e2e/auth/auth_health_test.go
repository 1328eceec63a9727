package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/shield/internal/auth/app"
)

// TestLivezEndpoint verifies the liveness check reports the build version.
func TestLivezEndpoint(t *testing.T) {
	s := setupService(t, nil)

	health, err := s.client().GetLiveness(t.Context())
	assertHealthy(t, health, err)
	require.Equal(t, app.BuildVersion, health.Version)
}

// TestJWKSEndpoint verifies the ephemeral signing key is published.
func TestJWKSEndpoint(t *testing.T) {
	s := setupService(t, nil)

	jwks, err := s.client().GetJWKS(t.Context())
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)

	key := jwks.Keys[0]
	require.Equal(t, "OKP", key.Kty)
	require.Equal(t, "EdDSA", key.Alg)
	require.Equal(t, "sig", key.Use)
	require.NotEmpty(t, key.Kid)
	require.NotEmpty(t, key.X)
}
