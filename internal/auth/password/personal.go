package password

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
)

// minPersonalToken keeps tiny fragments like "x" in "x.com" from matching.
const minPersonalToken = 3

// fold case-folds and NFKC-normalises s for comparison.
func fold(s string) string {
	return norm.NFKC.String(cases.Fold().String(s))
}

// personalTokens returns the folded username, email local part and its
// pieces, and the non-TLD labels of the email domain.
func personalTokens(u *domain.User) []string {
	var tokens []string
	add := func(s string) {
		if len([]rune(s)) >= minPersonalToken {
			tokens = append(tokens, s)
		}
	}

	if u.Username != "" {
		add(fold(u.Username))
	}
	if u.Email != "" {
		local, domainPart, _ := strings.Cut(fold(u.Email), "@")
		add(local)
		for _, piece := range strings.FieldsFunc(local, func(r rune) bool {
			return r == '.' || r == '-' || r == '_' || r == '+'
		}) {
			add(piece)
		}
		labels := strings.Split(domainPart, ".")
		if len(labels) > 1 {
			labels = labels[:len(labels)-1]
		}
		for _, label := range labels {
			add(label)
		}
	}
	return tokens
}

func isPersonal(password string, u *domain.User) bool {
	pw := fold(password)
	for _, tok := range personalTokens(u) {
		if strings.Contains(pw, tok) || strings.Contains(tok, pw) {
			return true
		}
	}
	return false
}

func isTooSimilar(password string, u *domain.User, maxPercent int) bool {
	pw := []rune(fold(password))
	candidates := []string{u.Username}
	if local, _, ok := strings.Cut(u.Email, "@"); ok {
		candidates = append(candidates, local)
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if similarity(pw, []rune(fold(c))) >= maxPercent {
			return true
		}
	}
	return false
}

// similarity is the percentage of characters a and b share, counted by
// repeatedly taking the longest common substring and recursing on both sides.
func similarity(a, b []rune) int {
	if len(a)+len(b) == 0 {
		return 0
	}
	return commonChars(a, b) * 2 * 100 / (len(a) + len(b))
}

func commonChars(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	best, posA, posB := 0, 0, 0
	for i := range a {
		for j := range b {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > best {
				best, posA, posB = k, i, j
			}
		}
	}
	if best == 0 {
		return 0
	}
	return best + commonChars(a[:posA], b[:posB]) + commonChars(a[posA+best:], b[posB+best:])
}
