// Package consensus compares fact extractions from independent agents.
//
// Compare groups equivalent facts across agents and buckets them by how many
// agents produced them. Detect looks for topic-level contradictions and
// citation-location conflicts. Both are pure functions over collected
// extractions and hold no shared state.
package consensus

import (
	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/textsim"
)

// factGroup is one canonical fact and the agents that produced an equivalent fact
type factGroup struct {
	canonical string
	agents    []string
}

func (g *factGroup) addAgent(id string) {
	for _, a := range g.agents {
		if a == id {
			return
		}
	}
	g.agents = append(g.agents, id)
}

// groupFacts attaches every fact to the first similar canonical fact, in
// extraction order and then fact order within each extraction
func groupFacts(extractions []model.FactExtraction) []*factGroup {
	var groups []*factGroup
	for _, ext := range extractions {
		for _, fact := range ext.Facts {
			if textsim.NormalizeFact(fact) == "" {
				continue
			}
			var match *factGroup
			for _, g := range groups {
				if textsim.FactsAreSimilar(g.canonical, fact) {
					match = g
					break
				}
			}
			if match == nil {
				match = &factGroup{canonical: fact}
				groups = append(groups, match)
			}
			match.addAgent(ext.AgentID)
		}
	}
	return groups
}

// Compare buckets every fact into agreed, partial or disagreed.
// A fact produced by every agent is agreed, by exactly one agent disagreed,
// otherwise partial. Failed agents still count toward the total.
func Compare(extractions []model.FactExtraction) model.ExtractionConsensus {
	result := model.ExtractionConsensus{
		AgreedFacts:           []string{},
		PartialAgreementFacts: []model.ConsensusFact{},
		DisagreedFacts:        []string{},
	}

	total := len(extractions)
	if total == 0 {
		return result
	}

	for _, g := range groupFacts(extractions) {
		ratio := float64(len(g.agents)) / float64(total)
		switch {
		case ratio >= 1.0:
			result.AgreedFacts = append(result.AgreedFacts, g.canonical)
		case len(g.agents) == 1:
			result.DisagreedFacts = append(result.DisagreedFacts, g.canonical)
		default:
			result.PartialAgreementFacts = append(result.PartialAgreementFacts, model.ConsensusFact{
				Fact:                g.canonical,
				AgreeingAgents:      append([]string(nil), g.agents...),
				DisagreeingAgents:   complement(extractions, g.agents),
				AgreementPercentage: ratio * 100,
			})
		}
	}

	return result
}

// complement returns the agents, in extraction order, not present in agreeing
func complement(extractions []model.FactExtraction, agreeing []string) []string {
	in := make(map[string]bool, len(agreeing))
	for _, a := range agreeing {
		in[a] = true
	}
	out := []string{}
	for _, ext := range extractions {
		if in[ext.AgentID] {
			continue
		}
		in[ext.AgentID] = true
		out = append(out, ext.AgentID)
	}
	return out
}

// ValidationConfidence blends mean agent confidence with the consensus ratio:
// 0.5*mean + 0.5*(agreed + 0.5*partial)/total, clamped to [0,1]
func ValidationConfidence(extractions []model.FactExtraction, c model.ExtractionConsensus) float64 {
	if len(extractions) == 0 {
		return 0
	}

	var sum float64
	for _, ext := range extractions {
		sum += ext.Confidence
	}
	mean := sum / float64(len(extractions))

	var ratio float64
	if total := c.Total(); total > 0 {
		ratio = (float64(len(c.AgreedFacts)) + 0.5*float64(len(c.PartialAgreementFacts))) / float64(total)
	}

	return clamp(0.5*mean + 0.5*ratio)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
