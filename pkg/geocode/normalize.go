package geocode

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Longer phrases first so "northeast corner of" wins over "corner of".
var locatorPhrases = []string{
	"northeast corner of",
	"northwest corner of",
	"southeast corner of",
	"southwest corner of",
	"north corner of",
	"south corner of",
	"east corner of",
	"west corner of",
	"intersection of",
	"corner of",
	"near",
	"at",
}

var streetSuffixes = map[string]bool{
	"roads": true, "road": true, "rd": true,
	"streets": true, "street": true, "st": true,
	"avenues": true, "avenue": true, "ave": true,
	"boulevard": true, "blvd": true,
	"drive": true, "dr": true,
	"lane": true, "ln": true,
	"highway": true, "hwy": true,
	"parkway": true, "pkwy": true,
	"way": true,
}

// Normalize lower-cases text, folds diacritics, spells out "&", drops punctuation, locator
// phrases ("corner of", "near") and street-type suffixes, and collapses whitespace.
func Normalize(text string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), text)
	if err != nil {
		folded = text
	}
	folded = strings.ToLower(strings.ReplaceAll(folded, "&", " and "))

	folded = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)

	words := strings.Fields(folded)
	joined := " " + strings.Join(words, " ") + " "
	for _, p := range locatorPhrases {
		for strings.Contains(joined, " "+p+" ") {
			joined = strings.ReplaceAll(joined, " "+p+" ", " ")
		}
	}

	kept := make([]string, 0, len(words))
	for _, w := range strings.Fields(joined) {
		if streetSuffixes[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// cacheKey returns the SHA-256 hex of the normalized text.
func cacheKey(text string) string {
	h := sha256.Sum256([]byte(Normalize(text)))
	return fmt.Sprintf("%x", h)
}
