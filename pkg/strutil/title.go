// Package strutil holds small string helpers shared by the renderer and models.
package strutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CamelToTitleCase splits a camel case identifier into title case words:
// "HelloWorld123" becomes "Hello World 123". A space is inserted before an
// upper case letter that follows a lower case one, and before the first digit
// of a run that follows a letter.
func CamelToTitleCase(s string) string {
	if s == "" {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 4)

	first, size := utf8.DecodeRuneInString(s)
	b.WriteRune(unicode.ToUpper(first))

	prev := first
	for _, r := range s[size:] {
		switch {
		case unicode.IsLower(prev) && unicode.IsUpper(r):
			b.WriteByte(' ')
		case unicode.IsLetter(prev) && unicode.IsDigit(r):
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prev = r
	}

	return b.String()
}
