package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/concord/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{errors.New("dial tcp: connection refused"), CategoryNetwork},
		{errors.New("request Timeout"), CategoryNetwork},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), CategoryNetwork},
		{errors.New("openai API error (status 429): slow down"), CategoryRateLimit},
		{errors.New("Rate limit reached"), CategoryRateLimit},
		{errors.New("status 401: Unauthorized"), CategoryAuthentication},
		{errors.New("invalid_api_key provided"), CategoryAuthentication},
		{errors.New("validation failed: model missing"), CategoryValidation},
		{errors.New("400 Bad Request"), CategoryValidation},
		{errors.New("cannot unmarshal response"), CategoryParse},
		{errors.New("unexpected token < in JSON"), CategoryParse},
		{errors.New("503 Service Unavailable"), CategoryServiceUnavailable},
		{errors.New("model is overloaded"), CategoryServiceUnavailable},
		{errors.New("something odd happened"), CategoryUnknown},
		{nil, CategoryUnknown},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// Mentions both a timeout and a 503; network comes first
	assert.Equal(t, CategoryNetwork, ClassifyMessage("503 upstream timeout"))
	// Mentions both auth and validation; auth comes first
	assert.Equal(t, CategoryAuthentication, ClassifyMessage("invalid api key"))
}

func TestClassify_AgentError(t *testing.T) {
	typed := &AgentError{AgentID: "gpt", Category: CategoryRateLimit, Err: errors.New("boom")}
	assert.Equal(t, CategoryRateLimit, Classify(fmt.Errorf("wrapped: %w", typed)))

	// The agent id never influences classification
	untyped := &AgentError{AgentID: "json-parser-bot", Err: errors.New("connection reset by peer")}
	assert.Equal(t, CategoryNetwork, Classify(untyped))
}

func TestCategory_Retryable(t *testing.T) {
	for _, c := range []Category{CategoryNetwork, CategoryRateLimit, CategoryServiceUnavailable, CategoryParse} {
		assert.True(t, c.Retryable(), c)
	}
	for _, c := range []Category{CategoryAuthentication, CategoryValidation, CategoryUnknown} {
		assert.False(t, c.Retryable(), c)
	}
}

func TestSuggestions_NeverEmpty(t *testing.T) {
	all := []Category{
		CategoryNetwork, CategoryRateLimit, CategoryAuthentication, CategoryValidation,
		CategoryParse, CategoryServiceUnavailable, CategoryUnknown,
	}
	for _, c := range all {
		assert.NotEmpty(t, Suggestions(c), c)
	}
}

func TestPolicy_Backoff(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 1*time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 16*time.Second, p.Backoff(4))
	assert.Equal(t, 30*time.Second, p.Backoff(5))
	assert.Equal(t, 30*time.Second, p.Backoff(5000))
}

func TestNewPolicy_Options(t *testing.T) {
	p := NewPolicy(WithMaxRetries(5), WithBaseDelay(100*time.Millisecond), WithMaxDelay(time.Second), WithMultiplier(3))
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, 300*time.Millisecond, p.Backoff(1))
	assert.Equal(t, time.Second, p.Backoff(3))
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(model.RetryConfig{MaxRetries: 0})
	defaults := DefaultPolicy()
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, defaults.BaseDelay, p.BaseDelay)
	assert.Equal(t, defaults.MaxDelay, p.MaxDelay)
	assert.Equal(t, defaults.Multiplier, p.Multiplier)

	p = PolicyFromConfig(model.RetryConfig{MaxRetries: 5, BaseDelay: 2 * time.Second, MaxDelay: time.Minute, Multiplier: 3})
	assert.Equal(t, Policy{MaxRetries: 5, BaseDelay: 2 * time.Second, MaxDelay: time.Minute, Multiplier: 3}, p)
}

func TestHandleAgentError_RetryableUnderLimit(t *testing.T) {
	h := NewHandler(DefaultPolicy(), zaptest.NewLogger(t))
	d := h.HandleAgentError(errors.New("connection refused"), ErrorContext{
		AgentID: "a", RetryCount: 1, TotalAgents: 3, SuccessfulAgents: 0, MinAgentsRequired: 2,
	})

	assert.Equal(t, ActionRetry, d.Action)
	assert.Equal(t, CategoryNetwork, d.Category)
	assert.Equal(t, 2*time.Second, d.RetryDelay)
	assert.NotEmpty(t, d.Suggestions)
}

func TestHandleAgentError_NetworkAtMaxRetriesNeverRetries(t *testing.T) {
	h := NewHandler(DefaultPolicy(), nil)
	for successful := 0; successful <= 3; successful++ {
		for total := 1; total <= 4; total++ {
			d := h.HandleAgentError(errors.New("network unreachable"), ErrorContext{
				AgentID: "a", RetryCount: 3, TotalAgents: total, SuccessfulAgents: successful, MinAgentsRequired: 2,
			})
			assert.NotEqual(t, ActionRetry, d.Action, "successful=%d total=%d", successful, total)
		}
	}
}

func TestHandleAgentError_SkipOrAbort(t *testing.T) {
	h := NewHandler(DefaultPolicy(), nil)

	tests := []struct {
		name string
		ec   ErrorContext
		want Action
	}{
		{
			name: "others can still reach quorum",
			ec:   ErrorContext{AgentID: "a", TotalAgents: 3, SuccessfulAgents: 1, MinAgentsRequired: 2},
			want: ActionSkip,
		},
		{
			name: "quorum unreachable",
			ec:   ErrorContext{AgentID: "a", TotalAgents: 2, SuccessfulAgents: 0, MinAgentsRequired: 2},
			want: ActionAbort,
		},
		{
			name: "exactly reachable",
			ec:   ErrorContext{AgentID: "a", TotalAgents: 3, SuccessfulAgents: 0, MinAgentsRequired: 2},
			want: ActionSkip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Authentication failures are never retried
			d := h.HandleAgentError(errors.New("401 unauthorized"), tt.ec)
			assert.Equal(t, tt.want, d.Action)
			assert.Zero(t, d.RetryDelay)
			assert.NotEmpty(t, d.Message)
		})
	}
}

func TestDecision_AbortError(t *testing.T) {
	h := NewHandler(DefaultPolicy(), nil)
	cause := errors.New("403 forbidden")
	d := h.HandleAgentError(cause, ErrorContext{AgentID: "a", TotalAgents: 1, MinAgentsRequired: 1})
	require.Equal(t, ActionAbort, d.Action)

	err := d.AbortError("a", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Check the API key")

	var abort *AbortError
	require.ErrorAs(t, error(err), &abort)
	assert.Equal(t, CategoryAuthentication, abort.Category)
}

func TestResolveConsensusFailure(t *testing.T) {
	tests := []struct {
		name      string
		reason    FailureReason
		fallback  bool
		available int
		want      ResolutionAction
	}{
		{"insufficient with quorum", ReasonInsufficientAgents, false, 2, ResolveNotifyPartial},
		{"insufficient with fallback", ReasonInsufficientAgents, true, 1, ResolveFallbackSingleAgent},
		{"insufficient no fallback", ReasonInsufficientAgents, false, 1, ResolveAbort},
		{"insufficient none available", ReasonInsufficientAgents, true, 0, ResolveAbort},
		{"max iterations", ReasonMaxIterationsExceeded, false, 0, ResolveNotifyPartial},
		{"circular", ReasonCircularReasoning, true, 3, ResolveNotifyPartial},
		{"all failed with fallback", ReasonAllAgentsFailed, true, 1, ResolveFallbackSingleAgent},
		{"all failed no fallback", ReasonAllAgentsFailed, false, 3, ResolveAbort},
		{"all failed nothing left", ReasonAllAgentsFailed, true, 0, ResolveAbort},
		{"validation with quorum", ReasonValidationFailure, false, 2, ResolveNotifyPartial},
		{"validation fallback", ReasonValidationFailure, true, 1, ResolveFallbackSingleAgent},
		{"validation abort", ReasonValidationFailure, false, 1, ResolveAbort},
		{"unknown reason", FailureReason("cosmic_rays"), true, 5, ResolveAbort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ResolveConsensusFailure(tt.reason, Settings{MinModelsRequired: 2, FallbackEnabled: tt.fallback}, tt.available)
			assert.Equal(t, string(tt.want), r.Action)
			assert.Equal(t, string(tt.reason), r.Reason)
			assert.NotEmpty(t, r.Message)
		})
	}
}
