package model

// ConsensusFact is a fact some, but not all, agents agreed on
type ConsensusFact struct {
	Fact                string   `json:"fact"`
	AgreeingAgents      []string `json:"agreeingAgents"`
	DisagreeingAgents   []string `json:"disagreeingAgents"`
	AgreementPercentage float64  `json:"agreementPercentage"` // 0-100
}

// ExtractionConsensus buckets every extracted fact by how many agents produced it.
// Each fact lands in exactly one bucket, keyed by its first-seen form.
type ExtractionConsensus struct {
	AgreedFacts           []string        `json:"agreedFacts"`
	PartialAgreementFacts []ConsensusFact `json:"partialAgreementFacts"`
	DisagreedFacts        []string        `json:"disagreedFacts"`
}

// Total returns the number of distinct fact groups across all buckets
func (c ExtractionConsensus) Total() int {
	return len(c.AgreedFacts) + len(c.PartialAgreementFacts) + len(c.DisagreedFacts)
}

// SourceDiscrepancy records agents contradicting each other about the source
type SourceDiscrepancy struct {
	Description                string   `json:"description"`
	SourceSection              string   `json:"sourceSection"`
	AgentsInvolved             []string `json:"agentsInvolved"`
	ConflictingInterpretations []string `json:"conflictingInterpretations"`
}
