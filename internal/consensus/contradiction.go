package consensus

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ppiankov/concord/internal/textsim"
)

// Subject overlap thresholds. Short facts compare their first three words,
// longer facts their first four.
const (
	shortFactWords        = 6
	shortSubjectWords     = 3
	longSubjectWords      = 4
	shortSubjectThreshold = 0.5
	longSubjectThreshold  = 0.6
)

// AntonymPairs is the fixed table of opposing words. A fact using one side and
// another fact on the same subject using the other side contradict.
var AntonymPairs = [][2]string{
	{"is", "isn't"},
	{"are", "aren't"},
	{"was", "wasn't"},
	{"were", "weren't"},
	{"can", "cannot"},
	{"does", "doesn't"},
	{"did", "didn't"},
	{"has", "hasn't"},
	{"will", "won't"},
	{"true", "false"},
	{"good", "bad"},
	{"large", "small"},
	{"big", "small"},
	{"high", "low"},
	{"increase", "decrease"},
	{"increased", "decreased"},
	{"increases", "decreases"},
	{"more", "less"},
	{"before", "after"},
	{"first", "last"},
	{"always", "never"},
	{"positive", "negative"},
	{"success", "failure"},
	{"possible", "impossible"},
	{"legal", "illegal"},
	{"alive", "dead"},
	{"open", "closed"},
	{"north", "south"},
	{"east", "west"},
}

var negationPattern = regexp.MustCompile(`\b(is|are|was|were|does|did|has|will) not\b`)

var contractions = map[string]string{
	"is": "isn't", "are": "aren't", "was": "wasn't", "were": "weren't",
	"does": "doesn't", "did": "didn't", "has": "hasn't", "will": "won't",
}

// FactsAreContradictory reports whether two facts talk about the same subject
// but disagree on a number or take opposite sides of an antonym pair.
// Similar facts are never contradictory.
func FactsAreContradictory(f1, f2 string) bool {
	if textsim.FactsAreSimilar(f1, f2) {
		return false
	}

	w1 := strings.Fields(textsim.NormalizeText(f1))
	w2 := strings.Fields(textsim.NormalizeText(f2))

	n, threshold := longSubjectWords, longSubjectThreshold
	if len(w1) < shortFactWords || len(w2) < shortFactWords {
		n, threshold = shortSubjectWords, shortSubjectThreshold
	}
	if subjectOverlap(head(w1, n), head(w2, n)) < threshold {
		return false
	}

	n1, n2 := textsim.ExtractNumbers(f1), textsim.ExtractNumbers(f2)
	for i := 0; i < len(n1) && i < len(n2); i++ {
		if n1[i] != n2[i] {
			return true
		}
	}

	t1, t2 := antonymTokens(f1), antonymTokens(f2)
	for _, pair := range AntonymPairs {
		a, b := pair[0], pair[1]
		if t1[a] && t2[b] && !t1[b] && !t2[a] {
			return true
		}
		if t1[b] && t2[a] && !t1[a] && !t2[b] {
			return true
		}
	}
	return false
}

func head(words []string, n int) []string {
	if len(words) < n {
		return words
	}
	return words[:n]
}

// subjectOverlap returns |s1 ∩ s2| / max(|s1|, |s2|) over distinct words
func subjectOverlap(s1, s2 []string) float64 {
	a := textsim.Words(strings.Join(s1, " "))
	b := textsim.Words(strings.Join(s2, " "))
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	if denom == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(denom)
}

// antonymTokens lowercases f, folds "is not" style negations into their
// contracted form and returns the word set with apostrophes kept
func antonymTokens(f string) map[string]bool {
	s := strings.ToLower(f)
	s = strings.ReplaceAll(s, "’", "'")
	s = strings.ReplaceAll(s, "can not", "cannot")
	s = negationPattern.ReplaceAllStringFunc(s, func(m string) string {
		return contractions[strings.Fields(m)[0]]
	})

	tokens := make(map[string]bool)
	for _, field := range strings.Fields(s) {
		tok := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
		})
		tok = strings.Trim(tok, "'")
		if tok != "" {
			tokens[tok] = true
		}
	}
	return tokens
}
