package domain

import "time"

// LoginAttempt records one authentication attempt, successful or not.
type LoginAttempt struct {
	ID         int64
	IDType     string // identity type or "jwt"
	Identifier string // email, username, or token name; never a secret
	UserID     string // empty when the user was not found
	IPAddress  string
	UserAgent  string
	Success    bool
	CreatedAt  time.Time
}

// RememberToken backs a remember-me cookie of the form selector:validator.
// Only a hash of the validator is stored.
type RememberToken struct {
	ID              string
	Selector        string
	HashedValidator string
	UserID          string
	Expires         time.Time
	CreatedAt       time.Time
}
