// Package naming normalizes router and backend type names.
package naming

import (
	"strings"
	"unicode"
)

// Normalize converts a router or backend type name to its canonical
// lower_snake form, so "FileMetadata", "file-metadata" and "file_metadata"
// all address the same registry slot.
func Normalize(s string) string {
	return ToSnake(strings.TrimSpace(s))
}

// ToSnake converts the provided string to snake_case using ASCII-aware rules.
// Punctuation collapses into a single separator and is trimmed at both ends.
func ToSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if (unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower) && !lastUnderscore {
					b.WriteByte('_')
					lastUnderscore = true
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false

		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false

		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}

// Valid reports whether name is already in canonical form and non-empty.
func Valid(name string) bool {
	return name != "" && Normalize(name) == name
}
