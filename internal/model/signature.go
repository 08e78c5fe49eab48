package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"
)

// NormalizeDescription lower-cases, trims and strips a line-item description
// of everything but letters, digits and single spaces. Rule matching and
// memory signatures both operate on the normalized form.
func NormalizeDescription(description string) string {
	var b strings.Builder
	b.Grow(len(description))

	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(description)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) && !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}

	return strings.TrimRight(b.String(), " ")
}

// Signature returns the SHA-256 hex digest of the normalized description,
// used as the classification memory cache key.
func Signature(description string) string {
	hash := sha256.Sum256([]byte(NormalizeDescription(description)))
	return fmt.Sprintf("%x", hash)
}
