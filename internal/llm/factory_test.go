package llm

import (
	"testing"
	"time"

	"github.com/ppiankov/concord/internal/model"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantName string
		wantErr  bool
	}{
		{name: "openai", config: Config{Provider: "openai", APIKey: "k"}, wantName: "openai"},
		{name: "anthropic", config: Config{Provider: "Anthropic", APIKey: "k"}, wantName: "anthropic"},
		{name: "claude alias", config: Config{Provider: "claude", APIKey: "k"}, wantName: "anthropic"},
		{name: "ollama", config: Config{Provider: "ollama", Model: "llama3"}, wantName: "ollama"},
		{name: "empty", config: Config{}, wantErr: true},
		{name: "unknown", config: Config{Provider: "gemini"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider failed: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Expected %s, got %s", tt.wantName, p.Name())
			}
		})
	}
}

func TestConfigFromAgent_KeyPrecedence(t *testing.T) {
	t.Setenv("CONCORD_TEST_KEY", "from-env")
	t.Setenv("OPENAI_API_KEY", "from-default")

	httpCfg := model.HTTPConfig{HTTPSProxy: "http://proxy:3128"}

	cfg := ConfigFromAgent(model.AgentConfig{ID: "a", Provider: "OpenAI", APIKey: "inline", APIKeyEnv: "CONCORD_TEST_KEY"}, time.Second, httpCfg)
	if cfg.APIKey != "inline" {
		t.Errorf("Expected inline key, got %q", cfg.APIKey)
	}
	if cfg.Provider != "openai" {
		t.Errorf("Expected lowercased provider, got %q", cfg.Provider)
	}
	if cfg.HTTPSProxy != "http://proxy:3128" {
		t.Errorf("Expected proxy to carry over, got %q", cfg.HTTPSProxy)
	}

	cfg = ConfigFromAgent(model.AgentConfig{ID: "a", Provider: "openai", APIKeyEnv: "CONCORD_TEST_KEY"}, time.Second, httpCfg)
	if cfg.APIKey != "from-env" {
		t.Errorf("Expected key from api_key_env, got %q", cfg.APIKey)
	}

	cfg = ConfigFromAgent(model.AgentConfig{ID: "a", Provider: "openai"}, time.Second, httpCfg)
	if cfg.APIKey != "from-default" {
		t.Errorf("Expected key from OPENAI_API_KEY, got %q", cfg.APIKey)
	}
}
