// Package password validates password strength and wraps the password hasher.
package password

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/pkg/cryptox"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

const (
	DefaultMinLength     = 8
	DefaultMaxBytes      = 72
	DefaultMaxSimilarity = 50
)

// Hasher hashes and verifies passwords. *cryptox.PasswordHasher implements it.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) error
	NeedsRehash(encoded string) bool
}

// BreachChecker reports how often a password appears in a breach corpus.
type BreachChecker interface {
	Count(ctx context.Context, password string) (int, error)
}

// Config holds the policy knobs. Zero values take the defaults.
type Config struct {
	MinLength     int // runes
	MaxBytes      int // rejected, never truncated
	MaxSimilarity int // percent; a password at least this similar to the username or email fails

	// CheckBreached enables the breach corpus lookup.
	CheckBreached bool
	// BreachStrict fails validation when the lookup itself fails.
	BreachStrict bool
}

func (c Config) withDefaults() Config {
	if c.MinLength <= 0 {
		c.MinLength = DefaultMinLength
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.MaxSimilarity <= 0 {
		c.MaxSimilarity = DefaultMaxSimilarity
	}
	return c
}

// Engine validates and hashes passwords.
type Engine struct {
	cfg      Config
	hasher   Hasher
	breaches BreachChecker
	common   map[string]struct{}

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Engine)

// WithBreachChecker overrides the default Have I Been Pwned client.
func WithBreachChecker(b BreachChecker) Option {
	return func(e *Engine) { e.breaches = b }
}

// WithCommonPasswords replaces the embedded common password list.
func WithCommonPasswords(list []string) Option {
	return func(e *Engine) { e.common = newCommonSet(list) }
}

func NewEngine(cfg Config, hasher Hasher, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg.withDefaults(),
		hasher: hasher,
		common: embeddedCommon(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.CheckBreached && e.breaches == nil {
		e.breaches = NewPwnedClient(nil)
	}
	return e
}

// MaxLengthRule returns the byte ceiling so input validation can reject
// overlong passwords before they reach the hasher.
func (e *Engine) MaxLengthRule() int { return e.cfg.MaxBytes }

// MinLengthRule returns the minimum length in runes.
func (e *Engine) MinLengthRule() int { return e.cfg.MinLength }

// Validate checks password against the policy. It returns nil or a
// *WeakPasswordError for the first rule that fails. user may be nil.
func (e *Engine) Validate(ctx context.Context, password string, user *domain.User) error {
	if password == "" {
		return weak(KindEmpty, "Enter a password.")
	}
	if len(password) > e.cfg.MaxBytes {
		return weak(KindTooLong, fmt.Sprintf("Use at most %d bytes.", e.cfg.MaxBytes))
	}
	if utf8.RuneCountInString(password) < e.cfg.MinLength {
		return weak(KindTooShort, fmt.Sprintf("Use at least %d characters.", e.cfg.MinLength))
	}
	if e.isCommon(password) {
		return weak(KindTooCommon, "This password is too common. Pick something less predictable.")
	}
	if user != nil {
		if isPersonal(password, user) {
			return weak(KindTooPersonal, "Do not include your username or email address in your password.")
		}
		if isTooSimilar(password, user, e.cfg.MaxSimilarity) {
			return weak(KindTooSimilar, "Your password is too similar to your username or email address.")
		}
	}
	if e.cfg.CheckBreached && e.breaches != nil {
		return e.checkBreached(ctx, password)
	}
	return nil
}

func (e *Engine) checkBreached(ctx context.Context, password string) error {
	count, err := e.breaches.Count(ctx, password)
	if err != nil {
		if e.cfg.BreachStrict {
			return weak(KindBreachCheckUnavailable, "We could not check this password right now. Try again later.")
		}
		slogx.FromContext(ctx).Warn("breach check skipped", "err", err)
		return nil
	}
	if count > 0 {
		return &WeakPasswordError{
			Kind:       KindBreached,
			Suggestion: fmt.Sprintf("This password has appeared in %d known data breaches. Choose another.", count),
			Count:      count,
		}
	}
	return nil
}

// Hash enforces the byte ceiling and hashes password.
func (e *Engine) Hash(password string) (string, error) {
	if len(password) > e.cfg.MaxBytes {
		return "", weak(KindTooLong, fmt.Sprintf("Use at most %d bytes.", e.cfg.MaxBytes))
	}
	return e.hasher.Hash(password)
}

// Verify reports whether password matches hash. The comparison is constant
// time; an error is returned only for malformed hashes.
func (e *Engine) Verify(password, hash string) (bool, error) {
	if len(password) > e.cfg.MaxBytes {
		return false, nil
	}
	err := e.hasher.Verify(password, hash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, cryptox.ErrPasswordMismatch):
		return false, nil
	default:
		return false, err
	}
}

// NeedsRehash reports whether hash should be replaced after a successful login.
func (e *Engine) NeedsRehash(hash string) bool { return e.hasher.NeedsRehash(hash) }

// DummyVerify burns the same work as Verify against a throwaway hash. Used
// when the user does not exist so both paths take comparable time.
func (e *Engine) DummyVerify(password string) {
	e.dummyOnce.Do(func() {
		e.dummyHash, _ = e.hasher.Hash("dummy-password-for-timing")
	})
	if e.dummyHash != "" {
		_ = e.hasher.Verify(password, e.dummyHash)
	}
}
