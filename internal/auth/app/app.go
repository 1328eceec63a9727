package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/shield/internal/auth/authn"
	"github.com/aussiebroadwan/shield/internal/auth/authz"
	httpapi "github.com/aussiebroadwan/shield/internal/auth/http"
	"github.com/aussiebroadwan/shield/internal/auth/password"
	"github.com/aussiebroadwan/shield/internal/auth/session"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/shield/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/shield/pkg/cryptox"
	"github.com/aussiebroadwan/shield/pkg/httpx"
	"github.com/aussiebroadwan/shield/pkg/jwtx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// BuildVersion is overridden at build time with -ldflags "-X".
var BuildVersion = "v0.1.0"

// MasterKeyEnv is read when no master key file is configured.
const MasterKeyEnv = "SHIELD_MASTER_KEY"

// Application owns the process-wide dependencies of the auth service.
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clockwork.Clock

	db      store.Store
	redis   *redis.Client
	codec   *jwtx.Codec
	manager *authn.Manager

	housekeeping *Housekeeping

	server *http.Server
	router *httpapi.Router
}

// New wires the application from cfg.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		logger: slogx.New(slogx.Config{
			Service: "shield",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initManager(); err != nil {
		_ = app.Close()
		return nil, err
	}
	app.initHTTP()

	app.housekeeping = NewHousekeeping(app.db, app.logger, app.clock, cfg.HousekeepingInterval, cfg.LoginRetention)
	return app, nil
}

// Manager exposes the auth manager, e.g. for operator tooling.
func (app *Application) Manager() *authn.Manager { return app.manager }

// Handler is the HTTP handler with every route applied.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("shield starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down shield...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if err := app.Close(); err != nil {
		return err
	}
	app.logger.Info("shield stopped")
	return nil
}

// Close releases the database and redis connections without touching the
// HTTP server. Shutdown calls it; one-shot tools call it directly.
func (app *Application) Close() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// OpenStore opens the configured database and applies migrations.
func OpenStore(cfg Config) (store.Store, error) {
	var (
		db  store.Store
		err error
	)
	switch cfg.DatabaseDriver {
	case "postgres":
		db, err = postgres.NewStore(cfg.DatabaseURL)
	default:
		db, err = sqlite.NewStore(fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", cfg.DatabaseFile))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db, nil
}

func (app *Application) initDatabase() error {
	db, err := OpenStore(app.cfg)
	if err != nil {
		return err
	}
	app.db = db
	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// LoadAuthorization reads the authorization file, or returns a minimal
// universe with a single "user" default group.
func LoadAuthorization(cfg Config) (authz.Config, error) {
	if cfg.AuthzFile == "" {
		return authz.ParseConfig(`default_group = "user"

[groups.user]
title = "User"
`)
	}
	return authz.LoadConfig(cfg.AuthzFile)
}

// NewPasswordEngine builds the password engine with the pepper from cfg.
func NewPasswordEngine(cfg Config) (*password.Engine, error) {
	pepper, err := cryptox.LoadPepper(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	var opts []password.Option
	if cfg.CheckBreached {
		opts = append(opts, password.WithBreachChecker(password.NewPwnedClient(&http.Client{Timeout: 5 * time.Second})))
	}
	return password.NewEngine(password.Config{CheckBreached: cfg.CheckBreached}, cryptox.NewPasswordHasher(pepper), opts...), nil
}

func (app *Application) initManager() error {
	authzCfg, err := LoadAuthorization(app.cfg)
	if err != nil {
		return err
	}

	passwords, err := NewPasswordEngine(app.cfg)
	if err != nil {
		return err
	}

	material, ephemeral, err := cryptox.LoadMasterKey(app.cfg.MasterKeyFile, MasterKeyEnv)
	if err != nil {
		return err
	}
	if ephemeral {
		app.logger.Warn("no master key configured; HMAC tokens will not survive a restart")
	}
	sealer, err := cryptox.NewSealer(material)
	if err != nil {
		return fmt.Errorf("failed to initialize sealer: %w", err)
	}

	keysets, err := LoadKeySets(app.cfg, app.logger)
	if err != nil {
		return err
	}
	app.codec, err = jwtx.NewCodec(jwtx.Options{
		Issuer:     app.cfg.Issuer,
		DefaultTTL: app.cfg.MaxJWTTTL,
		Leeway:     5 * time.Second,
		Clock:      app.clock,
	}, keysets...)
	if err != nil {
		return err
	}

	sessions, err := app.sessionStore()
	if err != nil {
		return err
	}

	app.manager, err = authn.NewManager(authn.Config{
		RequireActivation: app.cfg.RequireActivation,
		SessionLifetime:   app.cfg.SessionLifetime,
		RememberLength:    app.cfg.RememberLength,
		MagicLinkURL:      app.cfg.MagicLinkURL,
		SecondFactor:      app.cfg.SecondFactor,
		TOTPIssuer:        app.cfg.Issuer,
		RecordLogins:      true,
		RecordActiveDate:  true,
	}, authn.Deps{
		Store:      app.db,
		Sessions:   sessions,
		Passwords:  passwords,
		Codec:      app.codec,
		Sealer:     sealer,
		Mailer:     &authn.LogMailer{Logger: app.logger},
		Authorizer: authz.New(authzCfg, app.db),
		Clock:      app.clock,
		Logger:     app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize auth manager: %w", err)
	}
	return nil
}

// sessionStore keeps sessions in redis when configured, else in memory.
func (app *Application) sessionStore() (session.Store, error) {
	if app.cfg.RedisURL == "" {
		app.logger.Info("sessions kept in memory")
		return session.NewMemoryStore(app.clock), nil
	}

	opts, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	app.redis = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	app.logger.Info("sessions kept in redis", "addr", opts.Addr)
	return session.NewRedisStore(app.redis, app.cfg.RedisPrefix, app.clock), nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.manager, app.codec, httpapi.RouterConfig{
		BuildVersion: BuildVersion,
		Cookies:      httpapi.CookieConfig{Secure: app.cfg.CookieSecure},
		MaxJWTTTL:    app.cfg.MaxJWTTTL,
		AuthLimit: httpx.RateLimitConfig{
			RequestsPerWindow: app.cfg.AuthRateRequests,
			Window:            app.cfg.AuthRateWindow,
			Burst:             app.cfg.AuthRateRequests,
		},
	}, app.logger)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
