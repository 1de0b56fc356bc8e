package recovery

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/logging"
	"github.com/ppiankov/concord/internal/metrics"
)

// Action is what to do about one failed agent
type Action string

const (
	ActionRetry Action = "RETRY"
	ActionSkip  Action = "SKIP"
	ActionAbort Action = "ABORT"
)

// ErrorContext describes the run state when an agent failed.
// It is built fresh for every failure.
type ErrorContext struct {
	AgentID           string
	RetryCount        int
	TotalAgents       int
	SuccessfulAgents  int
	MinAgentsRequired int
	CurrentRound      *int
	MaxRounds         *int
}

// Decision is the outcome of handling one agent failure
type Decision struct {
	Action      Action
	Category    Category
	RetryDelay  time.Duration // Set only for ActionRetry
	Message     string
	Suggestions []string
}

// Handler turns agent failures into retry, skip or abort decisions
type Handler struct {
	policy Policy
	logger *zap.Logger
}

// NewHandler creates a handler for the given policy
func NewHandler(policy Policy, logger *zap.Logger) *Handler {
	return &Handler{
		policy: policy,
		logger: logging.OrNop(logger),
	}
}

// Policy returns the retry policy in use
func (h *Handler) Policy() Policy {
	return h.policy
}

// HandleAgentError decides how to recover from err.
// Retryable failures are retried until MaxRetries. After that, the run aborts
// only if dropping this agent makes the quorum unreachable even if every
// other agent succeeds; otherwise the agent is skipped.
func (h *Handler) HandleAgentError(err error, ec ErrorContext) Decision {
	category := Classify(err)
	d := Decision{
		Category:    category,
		Suggestions: Suggestions(category),
	}

	switch {
	case category.Retryable() && ec.RetryCount < h.policy.MaxRetries:
		d.Action = ActionRetry
		d.RetryDelay = h.policy.Backoff(ec.RetryCount)
		d.Message = fmt.Sprintf("Agent %s failed (%s), retrying in %s (attempt %d of %d)",
			ec.AgentID, category, d.RetryDelay, ec.RetryCount+1, h.policy.MaxRetries)
	case ec.SuccessfulAgents+(ec.TotalAgents-1) < ec.MinAgentsRequired:
		d.Action = ActionAbort
		d.Message = fmt.Sprintf("Agent %s failed (%s) and at most %d of %d required agents can still succeed",
			ec.AgentID, category, ec.SuccessfulAgents+ec.TotalAgents-1, ec.MinAgentsRequired)
	default:
		d.Action = ActionSkip
		d.Message = fmt.Sprintf("Agent %s failed (%s), continuing without it", ec.AgentID, category)
	}

	metrics.AgentErrors.WithLabelValues(string(category), string(d.Action)).Inc()

	fields := []zap.Field{
		zap.String("agent", ec.AgentID),
		zap.String("category", string(category)),
		zap.String("action", string(d.Action)),
		zap.Int("retry_count", ec.RetryCount),
		zap.Int("successful", ec.SuccessfulAgents),
		zap.Int("total", ec.TotalAgents),
		zap.Error(err),
	}
	if ec.CurrentRound != nil {
		fields = append(fields, zap.Int("round", *ec.CurrentRound))
	}
	if d.Action == ActionAbort {
		h.logger.Error("agent failure is fatal", fields...)
	} else {
		h.logger.Warn("agent failure", fields...)
	}

	return d
}

// AbortError converts an abort decision into an error
func (d Decision) AbortError(agentID string, cause error) *AbortError {
	return &AbortError{
		AgentID:     agentID,
		Category:    d.Category,
		Message:     d.Message,
		Suggestions: d.Suggestions,
		Cause:       cause,
	}
}
