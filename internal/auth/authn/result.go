package authn

import "github.com/aussiebroadwan/shield/internal/auth/domain"

// Reason is the stable failure kind carried by a Result.
type Reason int

const (
	ReasonNone Reason = iota
	InvalidCredentials
	UnknownUser
	UserBanned
	UserInactive
	TokenMissing
	TokenMalformed
	TokenExpired
	TokenNotYetValid
	TokenSignatureInvalid
	TokenNotFound
	UnknownKeyset
	MailDeliveryFailed
	ActionPending
	CodeInvalid
)

type reasonInfo struct {
	code    string
	message string
}

var reasonTable = map[Reason]reasonInfo{
	ReasonNone:            {"", ""},
	InvalidCredentials:    {"invalid_credentials", "Unable to log you in. Please check your credentials."},
	UnknownUser:           {"unknown_user", "No user matches the supplied identifier."},
	UserBanned:            {"user_banned", "This account has been banned."},
	UserInactive:          {"user_inactive", "This account has not been activated."},
	TokenMissing:          {"token_missing", "No token was supplied."},
	TokenMalformed:        {"token_malformed", "The token is malformed."},
	TokenExpired:          {"token_expired", "The token has expired."},
	TokenNotYetValid:      {"token_not_yet_valid", "The token is not valid yet."},
	TokenSignatureInvalid: {"token_signature_invalid", "The token signature is invalid."},
	TokenNotFound:         {"token_not_found", "The token is invalid or has already been used."},
	UnknownKeyset:         {"unknown_keyset", "The token was issued for an unknown keyset."},
	MailDeliveryFailed:    {"mail_delivery_failed", "We could not send the email. Please try again later."},
	ActionPending:         {"action_pending", "A verification step is required to finish logging in."},
	CodeInvalid:           {"code_invalid", "The code is incorrect."},
}

// Code is the machine-readable identifier, stable across releases.
func (r Reason) Code() string { return reasonTable[r].code }

// Message is the internal, precise description.
func (r Reason) Message() string { return reasonTable[r].message }

// PublicMessage is safe to show to an unauthenticated caller. It never tells
// an unknown identifier apart from a wrong password.
func (r Reason) PublicMessage() string {
	if r == UnknownUser {
		return InvalidCredentials.Message()
	}
	return r.Message()
}

// PublicCode is the code to expose to clients; see PublicMessage.
func (r Reason) PublicCode() string {
	if r == UnknownUser {
		return InvalidCredentials.Code()
	}
	return r.Code()
}

func (r Reason) String() string { return r.Code() }

// Result is the outcome of an authentication attempt. It is immutable.
type Result struct {
	ok     bool
	reason Reason
	user   *domain.User
	extra  any
}

// Success carries the authenticated user and optional strategy data
// (the matched token identity, decoded JWT claims).
func Success(user *domain.User, extra any) Result {
	return Result{ok: true, user: user, extra: extra}
}

// Failure carries the reason and an optional diagnostic (a ban message, an
// action name). It never carries a password hash or secret.
func Failure(reason Reason, extra any) Result {
	return Result{reason: reason, extra: extra}
}

// Pending is a failure that still identifies the user: credentials were
// accepted but action must verify first.
func Pending(user *domain.User, action domain.IdentityType) Result {
	return Result{reason: ActionPending, user: user, extra: action}
}

func (r Result) OK() bool       { return r.ok }
func (r Result) Reason() Reason { return r.reason }

// Message is the public message for a failure, empty on success.
func (r Result) Message() string { return r.reason.PublicMessage() }

// User is the authenticated user on success, the pending user for
// ActionPending, and nil otherwise.
func (r Result) User() *domain.User { return r.user }

func (r Result) Extra() any { return r.extra }
