package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/pkg/cryptox"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// verifyCode checks a short code identity and consumes it. The delete is the
// commit point: of two concurrent verifications only one succeeds.
func verifyCode(ctx context.Context, ids *Identities, user *domain.User, typ domain.IdentityType, code string) (Result, error) {
	ident, err := ids.GetIdentityByType(ctx, user, typ)
	if errors.Is(err, store.ErrNotFound) {
		return Failure(TokenNotFound, nil), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("get %s identity: %w", typ, err)
	}
	if ident.IsExpired(ids.Clock.Now()) {
		return Failure(TokenExpired, nil), nil
	}
	if !ids.VerifySecret(typ, code, ident.Secret) {
		return Failure(CodeInvalid, nil), nil
	}

	if _, err := ids.Store.Identities().Consume(ctx, ident.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Failure(TokenNotFound, nil), nil
		}
		return Result{}, fmt.Errorf("consume %s identity: %w", typ, err)
	}
	return Success(user, &ident), nil
}

// sendCode creates a code identity and mails it.
func sendCode(ctx context.Context, ids *Identities, mailer Mailer, user *domain.User, typ domain.IdentityType, ttl time.Duration, subject string) (Result, error) {
	if user.Email == "" {
		return Failure(MailDeliveryFailed, nil), nil
	}
	ident, err := ids.CreateCode(ctx, user, typ, ttl)
	if err != nil {
		return Result{}, err
	}
	body, err := renderMail(string(typ), mailData{Name: displayName(user), Code: ident.Secret, Lifetime: ttl})
	if err != nil {
		return Result{}, err
	}
	if err := mailer.Send(ctx, Message{To: user.Email, Subject: subject, HTML: body}); err != nil {
		slogx.FromContext(ctx).Error("failed to send code", "type", typ, "user_id", user.ID, "error", err)
		return Failure(MailDeliveryFailed, nil), nil
	}
	return Success(user, nil), nil
}

// Email2FA mails a one-time login code.
type Email2FA struct {
	Identities *Identities
	Mailer     Mailer
	Lifetime   time.Duration
}

func (a *Email2FA) Type() domain.IdentityType { return domain.Email2FA }

func (a *Email2FA) Start(ctx context.Context, user *domain.User) (Result, error) {
	return sendCode(ctx, a.Identities, a.Mailer, user, domain.Email2FA, a.Lifetime, "Your login code")
}

func (a *Email2FA) Verify(ctx context.Context, user *domain.User, code string) (Result, error) {
	return verifyCode(ctx, a.Identities, user, domain.Email2FA, code)
}

// EmailActivator mails an activation code and activates the user when it
// verifies.
type EmailActivator struct {
	Identities *Identities
	Users      *Users
	Mailer     Mailer
	Lifetime   time.Duration
}

func (a *EmailActivator) Type() domain.IdentityType { return domain.EmailActivate }

func (a *EmailActivator) Start(ctx context.Context, user *domain.User) (Result, error) {
	return sendCode(ctx, a.Identities, a.Mailer, user, domain.EmailActivate, a.Lifetime, "Activate your account")
}

func (a *EmailActivator) Verify(ctx context.Context, user *domain.User, code string) (Result, error) {
	res, err := verifyCode(ctx, a.Identities, user, domain.EmailActivate, code)
	if err != nil || !res.OK() {
		return res, err
	}
	if err := a.Users.Activate(ctx, user.ID); err != nil {
		return Result{}, fmt.Errorf("activate user: %w", err)
	}
	activated := *user
	activated.Active = true
	return Success(&activated, res.Extra()), nil
}

const (
	totpPeriod = 30
	totpSkew   = 1
)

var totpValidateOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      totpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPEnrollment is returned once on enrollment.
type TOTPEnrollment struct {
	Secret string
	URL    string
}

// TOTP verifies codes from an authenticator app. A code is accepted once:
// the time step of the last accepted code is kept in the identity's last
// used time.
type TOTP struct {
	Identities *Identities
	Issuer     string
}

func (a *TOTP) Type() domain.IdentityType { return domain.TOTP }

// Enroll generates a new shared secret for user, replacing any previous one.
func (a *TOTP) Enroll(ctx context.Context, user *domain.User) (TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      a.Issuer,
		AccountName: displayName(user),
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}
	if _, err := a.Identities.Replace(ctx, user, domain.TOTP, key.Secret()); err != nil {
		return TOTPEnrollment{}, err
	}
	return TOTPEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// Start has nothing to send; it only checks the user is enrolled.
func (a *TOTP) Start(ctx context.Context, user *domain.User) (Result, error) {
	_, err := a.Identities.GetIdentityByType(ctx, user, domain.TOTP)
	if errors.Is(err, store.ErrNotFound) {
		return Failure(TokenNotFound, nil), nil
	}
	if err != nil {
		return Result{}, err
	}
	return Success(user, nil), nil
}

func (a *TOTP) Verify(ctx context.Context, user *domain.User, code string) (Result, error) {
	ident, err := a.Identities.GetIdentityByType(ctx, user, domain.TOTP)
	if errors.Is(err, store.ErrNotFound) {
		return Failure(TokenNotFound, nil), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("get totp identity: %w", err)
	}

	now := a.Identities.Clock.Now()
	if ok, err := totp.ValidateCustom(code, ident.Secret, now, totpValidateOpts); err != nil || !ok {
		return Failure(CodeInvalid, nil), nil
	}

	step, ok := matchStep(code, ident.Secret, now)
	if !ok {
		return Failure(CodeInvalid, nil), nil
	}
	if ident.LastUsedAt != nil && !step.After(*ident.LastUsedAt) {
		return Failure(CodeInvalid, nil), nil
	}

	// A concurrent verify of the same step loses here.
	err = a.Identities.Store.Identities().Advance(ctx, ident.ID, step)
	if errors.Is(err, store.ErrNotFound) {
		return Failure(CodeInvalid, nil), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("record totp use: %w", err)
	}
	return Success(user, &ident), nil
}

// matchStep returns the start of the time step whose code equals code.
func matchStep(code, secret string, now time.Time) (time.Time, bool) {
	base := now.Unix() / totpPeriod
	for offset := int64(-totpSkew); offset <= totpSkew; offset++ {
		step := time.Unix((base+offset)*totpPeriod, 0).UTC()
		want, err := totp.GenerateCodeCustom(secret, step, totpValidateOpts)
		if err == nil && cryptox.ConstantTimeEqual(want, code) {
			return step, true
		}
	}
	return time.Time{}, false
}
