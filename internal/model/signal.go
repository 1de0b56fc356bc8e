package model

// Severity grades a diagnostic signal
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SignalType names what a signal measures
type SignalType string

const (
	SignalParticipation SignalType = "agent_participation"
	SignalAgreement     SignalType = "fact_agreement"
	SignalGrounding     SignalType = "citation_grounding"
	SignalDiscrepancy   SignalType = "discrepancies"
	SignalRecovery      SignalType = "recovery"
)

// Signal is one diagnostic observation about a validation run
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    Severity               `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Assessment summarizes how far a validation result can be trusted
type Assessment struct {
	Level   string   `json:"level"` // high, medium, low
	Signals []Signal `json:"signals"`
}
