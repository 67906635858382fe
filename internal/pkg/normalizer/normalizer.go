// Package normalizer holds the text primitives every comparison in the catalog
// goes through: accent folding, title casing, edit distance and encoding repair.
package normalizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// connectors stay lowercase inside a title-cased name unless they lead it.
// Catalan "i" and the Galician contractions sit next to the Castilian set.
var connectors = map[string]struct{}{
	"de":  {},
	"del": {},
	"la":  {},
	"las": {},
	"el":  {},
	"los": {},
	"y":   {},
	"i":   {},
	"da":  {},
	"do":  {},
	"das": {},
	"dos": {},
}

// Normalize lowercases text, strips diacritics, collapses inner whitespace
// and trims. The result is only ever used for comparison, never stored.
func Normalize(text string) string {
	lower := strings.ToLower(text)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if result, _, err := transform.String(t, lower); err == nil {
		lower = result
	}
	return strings.Join(strings.Fields(lower), " ")
}

// Key is the map-lookup form of a name. It is Normalize.
func Key(text string) string {
	return Normalize(text)
}

// TitleCase capitalizes every word except connectors that are not the first word.
// Repeated spaces collapse to one.
func TitleCase(text string) string {
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		if _, ok := connectors[w]; ok && i > 0 {
			continue
		}
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}

// EditDistance is the Levenshtein distance between a and b counted in runes.
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// FixMojibake repairs UTF-8 text that was decoded as Windows-1252 somewhere
// upstream ("CoruÃ±a" becomes "Coruña"). Text that does not look double
// encoded is returned unchanged.
func FixMojibake(text string) string {
	if !strings.ContainsAny(text, "ÃÂâ") {
		return text
	}

	raw, err := charmap.Windows1252.NewEncoder().String(text)
	if err != nil || !utf8.ValidString(raw) {
		return text
	}
	return raw
}

// Clean trims text, repairs mojibake and collapses inner whitespace.
func Clean(text string) string {
	return strings.Join(strings.Fields(FixMojibake(text)), " ")
}
