// Package textsim provides the lexical similarity primitives used to compare
// agent output: whitespace and case normalization, Jaccard word overlap,
// numeric-literal sensitive fact matching and citation text equivalence.
//
// Matching is deliberately lexical. Numbers are treated as load-bearing and are
// never matched fuzzily.
package textsim

import (
	"regexp"
	"strings"
	"unicode"
)

// Tunable heuristics. Values are preserved for behavioral compatibility.
var (
	// FactSimilarityThreshold is the minimum Jaccard overlap for two facts to match
	FactSimilarityThreshold = 0.70

	// CitationLengthRatio is the minimum shorter/longer length ratio for citation text
	CitationLengthRatio = 0.80

	// CitationCharMatchRatio is the minimum positional character match ratio for citation text
	CitationCharMatchRatio = 0.90
)

var numberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// NormalizeWhitespace trims s and collapses internal whitespace runs to one space
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeFact lowercases s and collapses whitespace. Punctuation is kept.
func NormalizeFact(s string) string {
	return NormalizeWhitespace(strings.ToLower(s))
}

// NormalizeText lowercases s, drops everything that is not a letter, digit or
// space, and collapses whitespace
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return NormalizeWhitespace(b.String())
}

// Words splits s on whitespace into a set
func Words(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b| over whitespace-separated words.
// Two empty inputs have no union and score 0.
func Jaccard(a, b string) float64 {
	return jaccardSets(Words(a), Words(b))
}

func jaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// ExtractNumbers returns the numeric literals in s in order of appearance,
// with thousands separators removed ("1,200" -> "1200")
func ExtractNumbers(s string) []string {
	matches := numberPattern.FindAllString(s, -1)
	for i, m := range matches {
		matches[i] = strings.ReplaceAll(m, ",", "")
	}
	return matches
}

// FactsAreSimilar reports whether two facts state the same thing.
// If either fact carries numbers, the numeric sequences must match exactly.
// Otherwise the normalized word sets must overlap by FactSimilarityThreshold.
func FactsAreSimilar(f1, f2 string) bool {
	n1, n2 := ExtractNumbers(f1), ExtractNumbers(f2)
	if len(n1) > 0 || len(n2) > 0 {
		if len(n1) != len(n2) {
			return false
		}
		for i := range n1 {
			if n1[i] != n2[i] {
				return false
			}
		}
	}
	return Jaccard(NormalizeFact(f1), NormalizeFact(f2)) >= FactSimilarityThreshold
}

// TextsAreEquivalent reports whether a quoted citation text matches the actual
// source text, ignoring case, punctuation and whitespace differences and
// tolerating small offset errors
func TextsAreEquivalent(a, b string) bool {
	na, nb := NormalizeText(a), NormalizeText(b)
	if na == nb {
		return true
	}

	ra, rb := []rune(na), []rune(nb)
	shorter, longer := ra, rb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(longer) == 0 || len(shorter) == 0 {
		return false
	}
	if float64(len(shorter))/float64(len(longer)) < CitationLengthRatio {
		return false
	}

	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	matches := 0
	for i := range shorter {
		if shorter[i] == longer[i] {
			matches++
		}
	}
	return float64(matches)/float64(len(longer)) >= CitationCharMatchRatio
}
