package model

// Citation is a span of the source text an agent claims supports one of its facts.
// Start and End are rune offsets into the source; End is exclusive.
type Citation struct {
	Start        int    `json:"start"`
	End          int    `json:"end"`
	Text         string `json:"text"`
	SupportsFact string `json:"supportsFact"`
}

// FactExtraction is one agent's answer to the extraction prompt.
// A failed or unparsable agent is still represented, with no facts and zero confidence.
type FactExtraction struct {
	AgentID    string     `json:"agentId"`
	Facts      []string   `json:"facts"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"` // 0.0-1.0

	Error            string `json:"error,omitempty"`            // Why the agent produced nothing, if it failed
	Attempts         int    `json:"attempts,omitempty"`         // Invocations spent on this agent
	CitationsDropped int    `json:"citationsDropped,omitempty"` // Citations rejected against the source
}

// EmptyExtraction returns the zero-confidence record used for a failed agent
func EmptyExtraction(agentID string, reason string) FactExtraction {
	return FactExtraction{
		AgentID:    agentID,
		Facts:      []string{},
		Citations:  []Citation{},
		Confidence: 0,
		Error:      reason,
	}
}

// Failed reports whether the extraction carries nothing usable
func (e FactExtraction) Failed() bool {
	return e.Error != "" && len(e.Facts) == 0
}
