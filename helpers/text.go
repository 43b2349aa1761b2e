package helpers

import "strings"

// narrowSpaces are the no-break and thin space variants storefront markup
// uses inside prices and names.
var narrowSpaces = strings.NewReplacer(
	"\u00a0", " ",
	"\u2009", " ",
	"\u202f", " ",
)

// Normalize trims s, turns no-break and thin spaces into ordinary spaces and
// collapses every whitespace run into a single space. It never fails; an
// empty input yields an empty output.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(narrowSpaces.Replace(s)), " ")
}

// FirstNonEmpty returns the first argument that is not empty after trimming.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
