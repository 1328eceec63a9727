package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
)

type Config struct {
	Issuer    string // issuer claim for JWTs (default: shield)
	Algorithm string // algorithm of the ephemeral key used without a keys file (default: EdDSA)
	KeysFile  string // Optional: TOML file with JWT keysets
	AuthzFile string // Optional: TOML file with groups, permissions and the matrix

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseFile   string // sqlite file (default: ./shield.db)
	DatabaseURL    string // postgres DSN
	RedisURL       string // Optional: store sessions in redis instead of memory
	RedisPrefix    string // redis key prefix (default: shield)

	PepperFile    string // file holding the password pepper (default: ./pepper)
	MasterKeyFile string // Optional: key sealing HMAC secrets; SHIELD_MASTER_KEY is read otherwise

	RequireActivation bool
	SecondFactor      domain.IdentityType // "", email_2fa or totp
	MagicLinkURL      string
	SessionLifetime   time.Duration
	RememberLength    time.Duration
	CheckBreached     bool
	CookieSecure      bool
	MaxJWTTTL         time.Duration

	AuthRateRequests int           // login attempts per window per IP (default: 10)
	AuthRateWindow   time.Duration // (default: 1m)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	LoginRetention       time.Duration // Login attempts older than this are purged (default: 90d)
}

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory is loaded first when present; variables already set
// win.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Issuer:    getEnvOrDefault("SHIELD_ISSUER", "shield"),
		Algorithm: getEnvOrDefault("SHIELD_ALGORITHM", "EdDSA"),
		KeysFile:  os.Getenv("SHIELD_KEYS_FILE"),
		AuthzFile: os.Getenv("SHIELD_AUTHZ_FILE"),

		DatabaseDriver: getEnvOrDefault("SHIELD_DATABASE_DRIVER", "sqlite"),
		DatabaseFile:   getEnvOrDefault("SHIELD_DATABASE_FILE", "shield.db"),
		DatabaseURL:    os.Getenv("SHIELD_DATABASE_URL"),
		RedisURL:       os.Getenv("SHIELD_REDIS_URL"),
		RedisPrefix:    getEnvOrDefault("SHIELD_REDIS_PREFIX", "shield"),

		PepperFile:    getEnvOrDefault("SHIELD_PEPPER_FILE", "pepper"),
		MasterKeyFile: os.Getenv("SHIELD_MASTER_KEY_FILE"),

		RequireActivation: getEnvBoolOrDefault("SHIELD_REQUIRE_ACTIVATION", false),
		SecondFactor:      domain.IdentityType(os.Getenv("SHIELD_SECOND_FACTOR")),
		MagicLinkURL:      getEnvOrDefault("SHIELD_MAGIC_LINK_URL", "http://localhost:8080/v1/login/magic-link/verify"),
		SessionLifetime:   getEnvDurationOrDefault("SHIELD_SESSION_LIFETIME", 2*time.Hour),
		RememberLength:    getEnvDurationOrDefault("SHIELD_REMEMBER_LENGTH", 30*24*time.Hour),
		CheckBreached:     getEnvBoolOrDefault("SHIELD_CHECK_BREACHED", false),
		CookieSecure:      getEnvBoolOrDefault("SHIELD_COOKIE_SECURE", true),
		MaxJWTTTL:         getEnvDurationOrDefault("SHIELD_MAX_JWT_TTL", time.Hour),

		AuthRateRequests: getEnvIntOrDefault("RATELIMIT_AUTH_REQUESTS", 10),
		AuthRateWindow:   getEnvDurationOrDefault("RATELIMIT_AUTH_WINDOW", time.Minute),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
		LoginRetention:       getEnvDurationOrDefault("SHIELD_LOGIN_RETENTION", 90*24*time.Hour),
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.DatabaseDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("SHIELD_DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
	}

	switch c.SecondFactor {
	case "", domain.Email2FA, domain.TOTP:
	default:
		return fmt.Errorf("unsupported second factor %q", c.SecondFactor)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
