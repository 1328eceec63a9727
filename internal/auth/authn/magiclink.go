package authn

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/pkg/cryptox"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// MagicLinks issues single-use login links by email.
type MagicLinks struct {
	Identities *Identities
	Users      *Users
	Mailer     Mailer

	Lifetime time.Duration
	// URL is the verify endpoint; the token is added as the "token" query
	// parameter.
	URL string
}

// Request mails a fresh link to the user owning email, replacing any
// earlier link. Unknown or blocked users get a failure result; callers
// should not reveal which.
func (s *MagicLinks) Request(ctx context.Context, email string) (Result, error) {
	log := slogx.FromContext(ctx)

	// 1. Resolve and gate the user
	user, err := s.Users.Find(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return Failure(UnknownUser, nil), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("find user: %w", err)
	}
	if res, ok := gate(&user); !ok {
		return res, nil
	}

	// 2. Store the fingerprint of a new token
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return Result{}, err
	}
	expires := s.Identities.Clock.Now().Add(s.Lifetime)
	if _, err := s.Identities.Replace(ctx, &user, domain.MagicLink, cryptox.FingerprintToken(raw), WithExpiry(expires)); err != nil {
		return Result{}, err
	}

	// 3. Mail the link
	link, err := s.link(raw)
	if err != nil {
		return Result{}, err
	}
	body, err := renderMail(string(domain.MagicLink), mailData{Name: displayName(&user), Link: link, Lifetime: s.Lifetime})
	if err != nil {
		return Result{}, err
	}
	if err := s.Mailer.Send(ctx, Message{To: user.Email, Subject: "Your login link", HTML: body}); err != nil {
		log.Error("failed to send magic link", "user_id", user.ID, "error", err)
		return Failure(MailDeliveryFailed, nil), nil
	}

	log.Info("magic link sent", "user_id", user.ID)
	return Success(&user, nil), nil
}

func (s *MagicLinks) link(token string) (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("%w: magic link url: %v", ErrConfiguration, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Verify consumes the link token. The identity is deleted before the user
// is granted anything, so a token works at most once even under races.
func (s *MagicLinks) Verify(ctx context.Context, token string) (Result, error) {
	if token == "" {
		return Failure(TokenMissing, nil), nil
	}

	ident, err := s.Identities.Store.Identities().ConsumeBySecret(ctx, domain.MagicLink, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return Failure(TokenNotFound, nil), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("consume magic link: %w", err)
	}
	if ident.IsExpired(s.Identities.Clock.Now()) {
		return Failure(TokenExpired, nil), nil
	}

	user, err := s.Users.Get(ctx, ident.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Failure(UnknownUser, nil), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("get user: %w", err)
	}
	if res, ok := gate(&user); !ok {
		return res, nil
	}
	return Success(&user, &ident), nil
}

func displayName(u *domain.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
