package export

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	unsafeRun = regexp.MustCompile(`[^a-zA-Z0-9\-_]+`)
	hasAlnum  = regexp.MustCompile(`[a-z0-9]`)

	// combining diacritical marks block, U+0300..U+036F
	diacritics = runes.In(&unicode.RangeTable{R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}}})
)

// SafeFilename turns a display name into a lower-case ASCII file base. Names that
// keep no letter or digit (for example an all-Thai name) return fallback unchanged.
func SafeFilename(name, fallback string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(diacritics))
	ascii, _, err := transform.String(t, name)
	if err != nil {
		return fallback
	}
	ascii = unsafeRun.ReplaceAllString(ascii, "_")
	ascii = strings.ToLower(strings.Trim(ascii, "_"))
	if !hasAlnum.MatchString(ascii) {
		return fallback
	}
	return ascii
}
