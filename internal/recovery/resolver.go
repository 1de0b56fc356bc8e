package recovery

import (
	"fmt"

	"github.com/ppiankov/concord/internal/model"
)

// FailureReason is a system-level reason consensus could not be reached
type FailureReason string

const (
	ReasonInsufficientAgents    FailureReason = "insufficient_agents"
	ReasonMaxIterationsExceeded FailureReason = "max_iterations_exceeded"
	ReasonCircularReasoning     FailureReason = "circular_reasoning"
	ReasonAllAgentsFailed       FailureReason = "all_agents_failed"
	ReasonValidationFailure     FailureReason = "validation_failure"
)

// ResolutionAction is the recovery chosen for a consensus failure
type ResolutionAction string

const (
	ResolveFallbackSingleAgent ResolutionAction = "FALLBACK_SINGLE_AGENT"
	ResolveNotifyPartial       ResolutionAction = "NOTIFY_PARTIAL"
	ResolveAbort               ResolutionAction = "ABORT"
)

// Settings are the read-only inputs of the resolver
type Settings struct {
	MinModelsRequired int
	FallbackEnabled   bool
}

// ResolveConsensusFailure maps a failure reason to a recovery action:
//
//	insufficient_agents      available >= min: NOTIFY_PARTIAL; fallback and available >= 1: FALLBACK; else ABORT
//	max_iterations_exceeded  NOTIFY_PARTIAL
//	circular_reasoning       NOTIFY_PARTIAL
//	all_agents_failed        fallback and available >= 1: FALLBACK; else ABORT
//	validation_failure       available >= min: NOTIFY_PARTIAL; fallback and available >= 1: FALLBACK; else ABORT
//
// Unknown reasons abort.
func ResolveConsensusFailure(reason FailureReason, s Settings, availableAgents int) model.Resolution {
	canFallback := s.FallbackEnabled && availableAgents >= 1
	quorum := availableAgents >= s.MinModelsRequired

	var action ResolutionAction
	var msg string

	switch reason {
	case ReasonInsufficientAgents, ReasonValidationFailure:
		switch {
		case quorum:
			action = ResolveNotifyPartial
			msg = fmt.Sprintf("%d agents available; results may be incomplete", availableAgents)
		case canFallback:
			action = ResolveFallbackSingleAgent
			msg = fmt.Sprintf("Only %d of %d required agents available; falling back to single-agent results", availableAgents, s.MinModelsRequired)
		default:
			action = ResolveAbort
			msg = fmt.Sprintf("Only %d of %d required agents available and fallback is disabled", availableAgents, s.MinModelsRequired)
		}
	case ReasonMaxIterationsExceeded:
		action = ResolveNotifyPartial
		msg = "Maximum iterations reached before agents converged; returning partial consensus"
	case ReasonCircularReasoning:
		action = ResolveNotifyPartial
		msg = "Agents keep repeating the same positions; returning partial consensus"
	case ReasonAllAgentsFailed:
		if canFallback {
			action = ResolveFallbackSingleAgent
			msg = "All agents failed consensus; falling back to a single agent"
		} else {
			action = ResolveAbort
			msg = "All agents failed and no fallback is possible"
		}
	default:
		action = ResolveAbort
		msg = fmt.Sprintf("Unknown consensus failure: %s", reason)
	}

	return model.Resolution{
		Reason:  string(reason),
		Action:  string(action),
		Message: msg,
	}
}
