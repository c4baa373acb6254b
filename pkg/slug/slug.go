package slug

import (
	"strings"
	"unicode"
)

var foldReplacer = strings.NewReplacer(
	"ç", "c", "ğ", "g", "ı", "i", "ö", "o", "ş", "s", "ü", "u",
	"à", "a", "á", "a", "â", "a", "ã", "a", "ä", "a", "å", "a", "æ", "ae",
	"è", "e", "é", "e", "ê", "e", "ë", "e",
	"ì", "i", "í", "i", "î", "i", "ï", "i",
	"ñ", "n", "ò", "o", "ó", "o", "ô", "o", "õ", "o", "ø", "o", "œ", "oe",
	"ù", "u", "ú", "u", "û", "u", "ý", "y", "ÿ", "y", "ß", "ss",
)

// Transliterate lower-cases s and folds common accented Latin letters to ASCII.
func Transliterate(s string) string {
	return foldReplacer.Replace(strings.ToLower(s))
}

// Generate builds a hyphen-separated slug. Characters outside [a-z0-9] and
// whitespace are dropped rather than treated as separators, so
// "Ace's Repairs!" becomes "aces-repairs".
//
// Examples:
//   - "Kadın Giyim" → "kadin-giyim"
//   - "Café  Olé" → "cafe-ole"
//   - "Bob & Sons" → "bob-sons"
func Generate(name string) string {
	folded := Transliterate(name)

	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range folded {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSep = true
		}
	}
	return b.String()
}

// Truncate cuts s to at most max bytes without leaving a trailing hyphen.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return strings.TrimRight(s[:max], "-")
}
