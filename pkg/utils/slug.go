package utils

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	slugRegex    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// ValidSlug reports whether s is lowercase alphanumeric and hyphens, 2 to 64 chars.
func ValidSlug(s string) bool {
	return slugRegex.MatchString(s)
}

// Slugify derives a slug from a display name: accents stripped, runs of other characters collapsed to '-'.
func Slugify(name string) string {
	decomposed := norm.NFD.String(strings.ToLower(strings.TrimSpace(name)))
	var b strings.Builder
	for _, r := range decomposed {
		if r >= 0x300 && r <= 0x36f { // combining diacritical marks
			continue
		}
		b.WriteRune(r)
	}
	s := strings.Trim(nonSlugChars.ReplaceAllString(b.String(), "-"), "-")
	if len(s) > 64 {
		s = strings.TrimRight(s[:64], "-")
	}
	return s
}
