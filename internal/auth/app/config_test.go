package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "shield", cfg.Issuer)
	require.Equal(t, "sqlite", cfg.DatabaseDriver)
	require.Equal(t, 2*time.Hour, cfg.SessionLifetime)
	require.Equal(t, 30*24*time.Hour, cfg.RememberLength)
	require.True(t, cfg.CookieSecure)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, time.Hour, cfg.HousekeepingInterval)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SHIELD_SECOND_FACTOR", "totp")
	t.Setenv("SHIELD_REQUIRE_ACTIVATION", "true")
	t.Setenv("SHIELD_SESSION_LIFETIME", "45")
	t.Setenv("SHIELD_COOKIE_SECURE", "false")
	t.Setenv("PORT", "not-a-port")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, domain.TOTP, cfg.SecondFactor)
	require.True(t, cfg.RequireActivation)
	require.Equal(t, 45*time.Minute, cfg.SessionLifetime)
	require.False(t, cfg.CookieSecure)
	require.Equal(t, 8080, cfg.Port)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"SHIELD_DATABASE_DRIVER": "oracle"}},
		{"postgres without url", map[string]string{"SHIELD_DATABASE_DRIVER": "postgres"}},
		{"magic link as second factor", map[string]string{"SHIELD_SECOND_FACTOR": "magic-link"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}
