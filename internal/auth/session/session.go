// Package session persists server-side login sessions. A session is created by
// the session authenticator and referenced from the client by its opaque ID.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session: not found")

// Record is one server-side session.
type Record struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// Pending names the second-factor action that must verify before the
	// session counts as logged in. Empty once complete.
	Pending  string `json:"pending,omitempty"`
	// Remember asks for a remember-me token once Pending verifies.
	Remember bool   `json:"remember,omitempty"`

	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"ua,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists session records. Expired records behave as missing.
type Store interface {
	// Save inserts or replaces rec.
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	DeleteForUser(ctx context.Context, userID string) error
}

// NewID returns a fresh random session id.
func NewID() string { return uuid.NewString() }
