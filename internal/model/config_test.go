package model

import (
	"math"
	"strings"
	"testing"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Consensus.Timeout.Seconds() != 60 {
		t.Errorf("expected 60s shared agent timeout, got %v", cfg.Consensus.Timeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "missing agent id",
			mutate: func(c *Config) {
				c.Agents = []AgentConfig{{Provider: "openai"}}
			},
			wantErr: "id is required",
		},
		{
			name: "duplicate agent id",
			mutate: func(c *Config) {
				c.Agents = []AgentConfig{{ID: "a", Provider: "openai"}, {ID: "a", Provider: "ollama"}}
			},
			wantErr: "duplicate id",
		},
		{
			name: "missing provider",
			mutate: func(c *Config) {
				c.Agents = []AgentConfig{{ID: "a"}}
			},
			wantErr: "provider is required",
		},
		{
			name:    "zero quorum",
			mutate:  func(c *Config) { c.Consensus.MinModelsRequired = 0 },
			wantErr: "min_models_required",
		},
		{
			name: "NaN temperature",
			mutate: func(c *Config) {
				c.Agents = []AgentConfig{{ID: "a", Provider: "openai", Temperature: math.NaN()}}
			},
			wantErr: "temperature must be a finite number",
		},
		{
			name: "infinite temperature",
			mutate: func(c *Config) {
				c.Agents = []AgentConfig{{ID: "a", Provider: "openai", Temperature: math.Inf(1)}}
			},
			wantErr: "temperature must be a finite number",
		},
		{
			name: "NaN rate limit",
			mutate: func(c *Config) {
				c.Agents = []AgentConfig{{ID: "a", Provider: "openai", RequestsPerSecond: math.NaN()}}
			},
			wantErr: "requests_per_second",
		},
		{
			name:    "NaN multiplier",
			mutate:  func(c *Config) { c.Retry.Multiplier = math.NaN() },
			wantErr: "retry.multiplier",
		},
		{
			name:    "infinite multiplier",
			mutate:  func(c *Config) { c.Retry.Multiplier = math.Inf(1) },
			wantErr: "retry.multiplier",
		},
		{
			name:    "bad backend",
			mutate:  func(c *Config) { c.Cache.Backend = "memcached" },
			wantErr: "unknown cache backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_EnabledAgents(t *testing.T) {
	off := false
	cfg := DefaultConfig()
	cfg.Agents = []AgentConfig{
		{ID: "a", Provider: "openai"},
		{ID: "b", Provider: "ollama", Enabled: &off},
		{ID: "c", Provider: "anthropic"},
	}

	agents := cfg.EnabledAgents()
	if len(agents) != 2 {
		t.Fatalf("expected 2 enabled agents, got %d", len(agents))
	}
	if agents[0].ID != "a" || agents[1].ID != "c" {
		t.Errorf("unexpected agents: %+v", agents)
	}
}
