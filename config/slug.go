package config

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSlugChars = regexp.MustCompile("[^a-z0-9-]+")
	repeatDashes = regexp.MustCompile("-+")
)

// Slug turns a project name into a file-name friendly token.
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	s, _, _ = transform.String(t, s)

	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = repeatDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > 64 {
		s = strings.TrimRight(s[:64], "-")
	}
	return s
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
