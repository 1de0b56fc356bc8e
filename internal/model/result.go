package model

import "time"

// SourceValidationResult is the outcome of one validation call.
// It is built once and never updated.
type SourceValidationResult struct {
	RunID                string              `json:"runId"`
	CreatedAt            time.Time           `json:"createdAt"`
	SourceContent        string              `json:"sourceContent"`
	Extractions          []FactExtraction    `json:"extractions"`
	FactConsensus        ExtractionConsensus `json:"factConsensus"`
	Discrepancies        []SourceDiscrepancy `json:"discrepancies"`
	ValidationConfidence float64             `json:"validationConfidence"`

	SourceRef   string      `json:"sourceRef,omitempty"`
	SourceTitle string      `json:"sourceTitle,omitempty"`
	Hint        string      `json:"hint,omitempty"`
	Assessment  *Assessment `json:"assessment,omitempty"`

	Degraded bool        `json:"degraded,omitempty"` // Fewer agents than required contributed
	Recovery *Resolution `json:"recovery,omitempty"` // How a quorum failure was resolved
	Cached   bool        `json:"cached,omitempty"`   // Served from the result cache
}

// SuccessfulAgents counts extractions that did not fail
func (r *SourceValidationResult) SuccessfulAgents() int {
	n := 0
	for _, e := range r.Extractions {
		if !e.Failed() {
			n++
		}
	}
	return n
}

// Resolution is the recovery action chosen for a system-level consensus failure
type Resolution struct {
	Reason  string `json:"reason"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

// AgentAnswer is one agent's free-form response in a council run
type AgentAnswer struct {
	AgentID    string  `json:"agentId"`
	Text       string  `json:"text"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	Similarity float64 `json:"similarity"` // Mean word overlap with the other answers
}

// CouncilResult is the outcome of asking every agent the same question
type CouncilResult struct {
	RunID     string        `json:"runId"`
	CreatedAt time.Time     `json:"createdAt"`
	Prompt    string        `json:"prompt"`
	Answers   []AgentAnswer `json:"answers"`
	Selected  string        `json:"selected"`  // Agent whose answer best matches the rest
	Answer    string        `json:"answer"`    // Text of the selected answer
	Agreement float64       `json:"agreement"` // Selected answer's mean similarity (0-1)
	Cached    bool          `json:"cached,omitempty"`
}
