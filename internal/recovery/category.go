// Package recovery classifies agent failures and decides how the engine
// recovers from them: retry the agent, skip it, or abort the run.
package recovery

import (
	"context"
	"errors"
	"strings"
)

// Category is the failure taxonomy. Classification order is fixed and the
// first matching category wins.
type Category string

const (
	CategoryNetwork            Category = "NETWORK"
	CategoryRateLimit          Category = "RATE_LIMIT"
	CategoryAuthentication     Category = "AUTHENTICATION"
	CategoryValidation         Category = "VALIDATION"
	CategoryParse              Category = "PARSE_ERROR"
	CategoryServiceUnavailable Category = "SERVICE_UNAVAILABLE"
	CategoryUnknown            Category = "UNKNOWN"
)

type rule struct {
	category Category
	keywords []string
}

var rules = []rule{
	{CategoryNetwork, []string{
		"network", "econnrefused", "econnreset", "etimedout", "connection refused",
		"connection reset", "timeout", "timed out", "fetch failed", "no such host",
		"dns", "deadline exceeded",
	}},
	{CategoryRateLimit, []string{"rate limit", "rate_limit", "ratelimit", "429", "too many requests", "quota"}},
	{CategoryAuthentication, []string{
		"401", "403", "unauthorized", "forbidden", "api key", "api_key",
		"authentication", "invalid_api_key",
	}},
	{CategoryValidation, []string{"validation", "invalid", "400", "bad request"}},
	{CategoryParse, []string{"parse", "json", "unexpected token", "unmarshal", "syntax"}},
	{CategoryServiceUnavailable, []string{
		"500", "502", "503", "504", "service unavailable", "overloaded",
		"bad gateway", "internal server error",
	}},
}

var retryable = map[Category]bool{
	CategoryNetwork:            true,
	CategoryRateLimit:          true,
	CategoryServiceUnavailable: true,
	CategoryParse:              true,
}

// Retryable reports whether failures of this category are worth retrying
func (c Category) Retryable() bool {
	return retryable[c]
}

// Classify assigns a category by inspecting the error message.
// An AgentError that already carries a category keeps it.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork
	}

	// The agent id is not part of the failure text
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		if agentErr.Category != "" {
			return agentErr.Category
		}
		if agentErr.Err != nil {
			return ClassifyMessage(agentErr.Err.Error())
		}
	}

	return ClassifyMessage(err.Error())
}

// ClassifyMessage assigns a category to a raw failure message
func ClassifyMessage(msg string) Category {
	s := strings.ToLower(msg)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(s, kw) {
				return r.category
			}
		}
	}
	return CategoryUnknown
}

// Suggestions returns concrete next steps for a failure category
func Suggestions(c Category) []string {
	switch c {
	case CategoryNetwork:
		return []string{
			"Check your network connection",
			"Verify the agent base_url is reachable",
			"Increase consensus.timeout",
		}
	case CategoryRateLimit:
		return []string{
			"Reduce the number of parallel agents",
			"Lower requests_per_second for this agent",
			"Wait a minute before retrying",
		}
	case CategoryAuthentication:
		return []string{
			"Check the API key for this agent",
			"Verify api_key_env names a variable that is set",
			"Confirm the account has access to the configured model",
		}
	case CategoryValidation:
		return []string{
			"Check the configured model name",
			"Reduce the source size or max_tokens",
		}
	case CategoryParse:
		return []string{
			"Retry: the agent returned malformed JSON",
			"Use a model that follows JSON instructions reliably",
			"Lower the agent temperature",
		}
	case CategoryServiceUnavailable:
		return []string{
			"The provider is overloaded; retry later",
			"Temporarily disable this agent",
		}
	default:
		return []string{
			"Re-run with --log-level debug for details",
			"Check the agent configuration with 'concord config show'",
		}
	}
}
