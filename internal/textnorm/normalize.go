// Package textnorm reduces extracted document text to a fixed character set.
package textnorm

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// punctuation maps CJK punctuation to the ASCII form kept in the output.
var punctuation = map[rune]rune{
	'，': ',',
	'。': '.',
	'！': '!',
	'？': '?',
	'；': ';',
	'：': ':',
}

// Allowed reports whether r survives normalization.
func Allowed(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FA5:
		return true
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune(".,!?;:", r)
}

func mapPunctuation(r rune) rune {
	if ascii, ok := punctuation[r]; ok {
		return ascii
	}
	return r
}

// Normalize collapses whitespace, drops every character outside the allowed
// set (CJK ideographs, ASCII letters and digits, and , . ! ? ; :) and folds the
// full-width punctuation variants to ASCII. Spaces are not in the allowed set,
// so the collapsed separators are removed as well.
func Normalize(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if collapsed == "" {
		return ""
	}
	// transform.Chain keeps internal buffers, so it is built per call.
	t := transform.Chain(
		runes.Map(mapPunctuation),
		runes.Remove(runes.Predicate(func(r rune) bool { return !Allowed(r) })),
	)
	out, _, err := transform.String(t, collapsed)
	if err != nil {
		return ""
	}
	return out
}
