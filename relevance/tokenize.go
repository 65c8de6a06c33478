package relevance

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Tokenize lower-cases text and splits it on every rune that is not a
// letter or digit. Compatibility forms are folded first, so full-width
// letters and ligatures match their plain spelling.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ToLower(norm.NFKC.String(text))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
