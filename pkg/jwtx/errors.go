package jwtx

import "errors"

// Decode failures. Each maps to one stable cause so callers can translate
// them into user-facing reasons without string matching.
var (
	ErrMalformed     = errors.New("jwtx: malformed token")
	ErrAlgMismatch   = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID    = errors.New("jwtx: unknown kid")
	ErrInvalidSig    = errors.New("jwtx: invalid signature")
	ErrUnknownKeyset = errors.New("jwtx: unknown keyset")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Configuration errors. These indicate a programming or deployment mistake
// rather than a bad token.
var (
	ErrNoKey           = errors.New("jwtx: no signing key")
	ErrAmbiguousExpiry = errors.New("jwtx: both exp claim and ttl supplied")
	ErrDuplicateKID    = errors.New("jwtx: duplicate kid")
	ErrUnsupportedAlg  = errors.New("jwtx: unsupported algorithm")
)
