package portal

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Leftovers seen on the portal that a single charmap round trip misses.
var mojibakeReplacer = strings.NewReplacer(
	"Ã¶", "ö",
	"Ã¤", "ä",
	"Ã¼", "ü",
	"Ã–", "Ö",
	"Ã„", "Ä",
	"Ãœ", "Ü",
	"ÃŸ", "ß",
	"Â´", "'",
	"├Â", "ö",
	"&amp;", "&",
)

// mojibakeCharmaps lists the single-byte encodings UTF-8 titles have been
// misread as. The first one whose round trip yields different valid UTF-8 wins.
var mojibakeCharmaps = []*charmap.Charmap{
	charmap.Windows1252,
	charmap.ISO8859_1,
	charmap.CodePage437,
}

// FixText repairs titles whose UTF-8 bytes were decoded as a single-byte
// code page.
func FixText(value string) string {
	value = strings.TrimSpace(value)
	if !looksMisdecoded(value) {
		return value
	}
	for _, cm := range mojibakeCharmaps {
		raw, err := cm.NewEncoder().String(value)
		if err != nil {
			continue
		}
		if raw != value && utf8.ValidString(raw) {
			return raw
		}
	}
	return mojibakeReplacer.Replace(value)
}

func looksMisdecoded(value string) bool {
	return strings.ContainsAny(value, "ÃÂ├") || strings.Contains(value, "&amp;")
}
