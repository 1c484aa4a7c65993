package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxPasses bounds the fixed-point loop in Normalize. NFKC can expand a rune into
// characters the filter removes, so one extra pass is usually enough.
const maxPasses = 8

// Normalize canonicalizes free text for hashing and fuzzy matching.
//
// Steps: lower-case, trim, newlines to spaces, collapse whitespace runs, drop
// runes other than letters, numbers, underscore, whitespace, '-', '.' and ',',
// apply NFKC, trim. The steps repeat until the output stops changing, which
// makes Normalize idempotent.
func Normalize(s string) string {
	out := s
	for i := 0; i < maxPasses; i++ {
		next := pass(out)
		if next == out {
			return next
		}
		out = next
	}
	return out
}

// NormalizeAny normalizes v if it is a string (or *string) and returns "" otherwise
func NormalizeAny(v any) string {
	switch t := v.(type) {
	case string:
		return Normalize(t)
	case *string:
		if t == nil {
			return ""
		}
		return Normalize(*t)
	default:
		return ""
	}
}

func pass(s string) string {
	if s == "" {
		return ""
	}
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
	s = collapseSpace(s)
	s = strings.Map(keepRune, s)
	s = norm.NFKC.String(s)
	return strings.TrimSpace(s)
}

// collapseSpace replaces each run of Unicode whitespace with a single ASCII space
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func keepRune(r rune) rune {
	switch {
	case unicode.IsLetter(r), unicode.IsNumber(r), unicode.IsSpace(r):
		return r
	case r == '_', r == '-', r == '.', r == ',':
		return r
	}
	return -1
}
