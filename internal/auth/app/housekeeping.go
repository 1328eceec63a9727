package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aussiebroadwan/shield/internal/auth/store"
)

// Housekeeping periodically purges rows that can no longer be used: expired
// identities and remember-me tokens, and login attempts past retention.
// Expiry is always enforced on read; this only bounds table growth.
type Housekeeping struct {
	Store     store.Store
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Interval  time.Duration
	Retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeping returns a worker running every interval, one hour when
// interval is not positive.
func NewHousekeeping(st store.Store, logger *slog.Logger, clock clockwork.Clock, interval, retention time.Duration) *Housekeeping {
	if interval <= 0 {
		interval = time.Hour
	}

	return &Housekeeping{
		Store:     st,
		Logger:    logger,
		Clock:     clock,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs a cleanup immediately and then on every tick until Stop.
func (h *Housekeeping) Start() {
	go h.run()
	h.Logger.Info("housekeeping started", "interval", h.Interval)
}

// Stop waits for any in-progress cleanup to finish.
func (h *Housekeeping) Stop() {
	close(h.stopCh)
	<-h.doneCh
	h.Logger.Info("housekeeping stopped")
}

func (h *Housekeeping) run() {
	defer close(h.doneCh)

	ticker := h.Clock.NewTicker(h.Interval)
	defer ticker.Stop()

	h.RunOnce(context.Background())

	for {
		select {
		case <-ticker.Chan():
			h.RunOnce(context.Background())
		case <-h.stopCh:
			return
		}
	}
}

// HousekeepingReport counts the rows removed by one cleanup.
type HousekeepingReport struct {
	Identities     int64
	RememberTokens int64
	Logins         int64
}

// RunOnce performs one cleanup. Each purge is independent; a failure is
// logged and the rest still run.
func (h *Housekeeping) RunOnce(ctx context.Context) HousekeepingReport {
	now := h.Clock.Now()
	var report HousekeepingReport
	var err error

	if report.Identities, err = h.Store.Identities().DeleteExpired(ctx, now); err != nil {
		h.Logger.Error("failed to delete expired identities", "error", err)
	}

	if report.RememberTokens, err = h.Store.RememberTokens().DeleteExpired(ctx, now); err != nil {
		h.Logger.Error("failed to delete expired remember tokens", "error", err)
	}

	if h.Retention > 0 {
		if report.Logins, err = h.Store.Logins().DeleteBefore(ctx, now.Add(-h.Retention)); err != nil {
			h.Logger.Error("failed to delete old login attempts", "error", err)
		}
	}

	h.Logger.Info("housekeeping cleanup completed",
		"identities", report.Identities,
		"remember_tokens", report.RememberTokens,
		"logins", report.Logins,
	)
	return report
}
