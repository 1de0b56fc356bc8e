package recovery

import (
	"fmt"
	"strings"
)

// AgentError is a failure attributed to one agent
type AgentError struct {
	AgentID  string
	Category Category // Empty means classify from the message
	Err      error
}

func (e *AgentError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("agent %s [%s]: %v", e.AgentID, e.Category, e.Err)
	}
	return fmt.Sprintf("agent %s: %v", e.AgentID, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// AbortError signals that the run cannot reach quorum and must stop
type AbortError struct {
	AgentID     string
	Category    Category
	Message     string
	Suggestions []string
	Cause       error
}

func (e *AbortError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if len(e.Suggestions) > 0 {
		b.WriteString(" (suggestions: ")
		b.WriteString(strings.Join(e.Suggestions, "; "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}
