package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/concord/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		return nil, fmt.Errorf("provider is required")

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// defaultKeyEnv is consulted when an agent names no api_key_env
var defaultKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"claude":    "ANTHROPIC_API_KEY",
}

// ConfigFromAgent builds the provider config for one agent. The API key comes
// from the agent's api_key, then api_key_env, then the provider's usual
// environment variable.
func ConfigFromAgent(agent model.AgentConfig, timeout time.Duration, http model.HTTPConfig) Config {
	provider := strings.ToLower(agent.Provider)

	key := agent.APIKey
	if key == "" && agent.APIKeyEnv != "" {
		key = os.Getenv(agent.APIKeyEnv)
	}
	if key == "" {
		if env, ok := defaultKeyEnv[provider]; ok {
			key = os.Getenv(env)
		}
	}

	return Config{
		Provider:    provider,
		Model:       agent.Model,
		APIKey:      key,
		BaseURL:     agent.BaseURL,
		Timeout:     timeout,
		MaxTokens:   agent.MaxTokens,
		Temperature: agent.Temperature,
		HTTPProxy:   http.HTTPProxy,
		HTTPSProxy:  http.HTTPSProxy,
		NoProxy:     http.NoProxy,
	}
}
