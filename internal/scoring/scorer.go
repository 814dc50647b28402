// Package scoring implements the keyword heuristic that maps a text and a genre's
// keyword list to a 0-100 probability percent.
package scoring

import (
	"math"
	"regexp"
	"strings"
)

// MaxPercent is the upper clamp for every score.
const MaxPercent = 100

// wordPattern matches a word token: a maximal run of letters, digits or underscores.
// Combining marks split words.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Score returns round(matched keywords / total words * 100), clamped to [0,100].
//
// Matching is plain substring containment on the lower-cased text, so "cat" matches
// "concatenate". The denominator is the word count of the text, not the keyword count,
// which means longer texts dilute the score. Halves round to even.
func Score(text, keywords string) int {
	if text == "" || keywords == "" {
		return 0
	}
	tokens := ParseKeywords(keywords)
	if len(tokens) == 0 {
		return 0
	}
	totalWords := CountWords(text)
	if totalWords == 0 {
		return 0
	}

	lowered := strings.ToLower(text)
	matches := 0
	for _, kw := range tokens {
		if strings.Contains(lowered, kw) {
			matches++
		}
	}

	percent := int(math.RoundToEven(float64(matches) / float64(totalWords) * 100))
	if percent > MaxPercent {
		return MaxPercent
	}
	return percent
}

// ParseKeywords splits a comma-delimited keyword list into distinct, trimmed,
// lower-cased, non-empty tokens in first-seen order.
func ParseKeywords(keywords string) []string {
	parts := strings.Split(strings.ToLower(keywords), ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		kw := strings.TrimSpace(p)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// CountWords counts word tokens in text. Casing does not affect the count.
func CountWords(text string) int {
	return len(wordPattern.FindAllStringIndex(text, -1))
}
