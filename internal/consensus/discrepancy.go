package consensus

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/textsim"
)

const unknownSection = "Unknown section"

var stopWords = setOf(
	"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
	"of", "in", "on", "at", "to", "for", "with", "by", "from", "into",
	"and", "or", "but", "as", "than", "that", "this", "these", "those",
	"it", "its", "has", "have", "had", "do", "does", "did", "not", "no",
	"will", "would", "can", "could", "should", "may", "might", "about",
	"there", "their", "they", "he", "she", "his", "her", "which", "who",
	"isnt", "arent", "wasnt", "werent", "doesnt", "didnt", "cannot",
)

var predicateAdjectives = setOf(
	"tall", "short", "large", "small", "big", "high", "low", "long", "wide",
	"old", "new", "young", "good", "bad", "true", "false", "heavy", "light",
	"famous", "popular", "important", "major", "minor", "first", "last",
	"largest", "smallest", "tallest", "oldest", "biggest", "highest", "lowest",
	"best", "worst", "more", "less", "always", "never",
)

var pureNumber = regexp.MustCompile(`^\d+$`)

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// TopicKey derives the subject of a fact: the first two tokens left after
// dropping stop words, predicate adjectives and pure numbers.
// It returns "" when nothing is left.
func TopicKey(fact string) string {
	var tokens []string
	for _, tok := range strings.Fields(textsim.NormalizeText(fact)) {
		if stopWords[tok] || predicateAdjectives[tok] || pureNumber.MatchString(tok) {
			continue
		}
		tokens = append(tokens, tok)
		if len(tokens) == 2 {
			break
		}
	}
	return strings.Join(tokens, " ")
}

// Detect finds topic contradictions and citation-location conflicts between
// agents. Fewer than two extractions never produce discrepancies.
func Detect(extractions []model.FactExtraction) []model.SourceDiscrepancy {
	out := []model.SourceDiscrepancy{}
	if len(extractions) < 2 {
		return out
	}
	out = append(out, detectTopicContradictions(extractions)...)
	out = append(out, detectCitationConflicts(extractions)...)
	return out
}

type agentFact struct {
	agent string
	fact  string
}

type topicGroup struct {
	canonical string
	members   []agentFact
}

func detectTopicContradictions(extractions []model.FactExtraction) []model.SourceDiscrepancy {
	var order []string
	byTopic := make(map[string][]*topicGroup)

	for _, ext := range extractions {
		for _, fact := range ext.Facts {
			topic := TopicKey(fact)
			if topic == "" {
				continue
			}
			groups, seen := byTopic[topic]
			if !seen {
				order = append(order, topic)
			}

			var match *topicGroup
			for _, g := range groups {
				if textsim.FactsAreSimilar(g.canonical, fact) {
					match = g
					break
				}
			}
			if match == nil {
				match = &topicGroup{canonical: fact}
				groups = append(groups, match)
			}
			match.members = append(match.members, agentFact{agent: ext.AgentID, fact: fact})
			byTopic[topic] = groups
		}
	}

	var out []model.SourceDiscrepancy
	for _, topic := range order {
		groups := byTopic[topic]
		if len(groups) < 2 {
			continue
		}

		implicated := make([]bool, len(groups))
		found := false
		for i := 0; i < len(groups); i++ {
			for j := i + 1; j < len(groups); j++ {
				if spansAgents(groups[i], groups[j]) && FactsAreContradictory(groups[i].canonical, groups[j].canonical) {
					implicated[i], implicated[j] = true, true
					found = true
				}
			}
		}
		if !found {
			continue
		}

		var agents, facts []string
		var members []agentFact
		for i, g := range groups {
			if !implicated[i] {
				continue
			}
			facts = appendUnique(facts, g.canonical)
			for _, m := range g.members {
				agents = appendUnique(agents, m.agent)
				members = append(members, m)
			}
		}

		out = append(out, model.SourceDiscrepancy{
			Description:                fmt.Sprintf("Agents disagree about %q", topic),
			SourceSection:              citedRange(extractions, members),
			AgentsInvolved:             agents,
			ConflictingInterpretations: facts,
		})
	}
	return out
}

// spansAgents reports whether two groups hold facts from at least two
// distinct agents. An agent contradicting only itself is not a discrepancy.
func spansAgents(a, b *topicGroup) bool {
	first := ""
	for _, g := range []*topicGroup{a, b} {
		for _, m := range g.members {
			if first == "" {
				first = m.agent
			} else if m.agent != first {
				return true
			}
		}
	}
	return false
}

// citedRange returns "start-end" spanning every citation an implicated agent
// gave for one of its implicated facts
func citedRange(extractions []model.FactExtraction, members []agentFact) string {
	start, end := -1, -1
	for _, ext := range extractions {
		for _, c := range ext.Citations {
			for _, m := range members {
				if m.agent != ext.AgentID || !textsim.FactsAreSimilar(c.SupportsFact, m.fact) {
					continue
				}
				if start < 0 || c.Start < start {
					start = c.Start
				}
				if c.End > end {
					end = c.End
				}
				break
			}
		}
	}
	if start < 0 {
		return unknownSection
	}
	return fmt.Sprintf("%d-%d", start, end)
}

type agentCitation struct {
	agent    string
	citation model.Citation
}

type citationGroup struct {
	canonical string
	entries   []agentCitation
}

func detectCitationConflicts(extractions []model.FactExtraction) []model.SourceDiscrepancy {
	var groups []*citationGroup
	for _, ext := range extractions {
		for _, c := range ext.Citations {
			if textsim.NormalizeFact(c.SupportsFact) == "" {
				continue
			}
			var match *citationGroup
			for _, g := range groups {
				if textsim.FactsAreSimilar(g.canonical, c.SupportsFact) {
					match = g
					break
				}
			}
			if match == nil {
				match = &citationGroup{canonical: c.SupportsFact}
				groups = append(groups, match)
			}
			match.entries = append(match.entries, agentCitation{agent: ext.AgentID, citation: c})
		}
	}

	var out []model.SourceDiscrepancy
	for _, g := range groups {
		var agents []string
		for _, e := range g.entries {
			agents = appendUnique(agents, e.agent)
		}
		if len(agents) < 2 || crossAgentOverlap(g.entries) {
			continue
		}

		var ranges, interpretations []string
		for _, e := range g.entries {
			r := fmt.Sprintf("%d-%d", e.citation.Start, e.citation.End)
			ranges = appendUnique(ranges, r)
			interpretations = append(interpretations, fmt.Sprintf("%s: %s", e.agent, r))
		}

		out = append(out, model.SourceDiscrepancy{
			Description:                fmt.Sprintf("Agents cite different source locations for %q", g.canonical),
			SourceSection:              strings.Join(ranges, ", "),
			AgentsInvolved:             agents,
			ConflictingInterpretations: interpretations,
		})
	}
	return out
}

// crossAgentOverlap reports whether any two citations from different agents
// share at least one character
func crossAgentOverlap(entries []agentCitation) bool {
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			if a.agent == b.agent {
				continue
			}
			if a.citation.Start < b.citation.End && b.citation.Start < a.citation.End {
				return true
			}
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
