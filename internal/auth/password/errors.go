package password

import (
	"errors"
	"fmt"
)

// Kind identifies which rule a password failed.
type Kind string

const (
	KindEmpty       Kind = "empty"
	KindTooShort    Kind = "too-short"
	KindTooLong     Kind = "too-long"
	KindTooCommon   Kind = "too-common"
	KindTooPersonal Kind = "too-personal"
	KindTooSimilar  Kind = "too-similar"
	KindBreached    Kind = "breached"

	// KindBreachCheckUnavailable is only reported when the breach check is strict.
	KindBreachCheckUnavailable Kind = "breach-check-unavailable"
)

// ErrWeakPassword matches every *WeakPasswordError with errors.Is.
var ErrWeakPassword = errors.New("password: weak password")

// WeakPasswordError carries the failed rule and a suggestion that can be shown
// to the user. Count is the breach corpus occurrence count for KindBreached.
type WeakPasswordError struct {
	Kind       Kind
	Suggestion string
	Count      int
}

func (e *WeakPasswordError) Error() string {
	if e.Kind == KindBreached {
		return fmt.Sprintf("password: %s (seen %d times)", e.Kind, e.Count)
	}
	return fmt.Sprintf("password: %s", e.Kind)
}

func (e *WeakPasswordError) Is(target error) bool { return target == ErrWeakPassword }

// KindOf returns the Kind of a weak password error, or "" for any other error.
func KindOf(err error) Kind {
	var weak *WeakPasswordError
	if errors.As(err, &weak) {
		return weak.Kind
	}
	return ""
}

func weak(kind Kind, suggestion string) *WeakPasswordError {
	return &WeakPasswordError{Kind: kind, Suggestion: suggestion}
}
