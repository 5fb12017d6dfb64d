package gallery

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey turns a folder or person name into an identity key:
// trimmed, NFC composed and lower-cased.
func NormalizeKey(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	return cases.Lower(language.Und).String(name)
}

// DisplayName returns the title-cased form of an identity key for labels and
// human readable output.
func DisplayName(key string) string {
	return cases.Title(language.Und).String(key)
}
