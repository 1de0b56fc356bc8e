package model

import (
	"fmt"
	"math"
	"time"
)

// Config is the full concord configuration tree
type Config struct {
	Agents      []AgentConfig     `yaml:"agents" mapstructure:"agents"`
	Consensus   ConsensusConfig   `yaml:"consensus" mapstructure:"consensus"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// AgentConfig describes one model endpoint taking part in consensus
type AgentConfig struct {
	ID                string  `yaml:"id" mapstructure:"id"`
	Provider          string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model             string  `yaml:"model" mapstructure:"model"`
	BaseURL           string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env,omitempty" mapstructure:"api_key_env"`
	APIKey            string  `yaml:"-" mapstructure:"api_key"` // Never written back to disk
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Enabled           *bool   `yaml:"enabled,omitempty" mapstructure:"enabled"`
}

// IsEnabled reports whether the agent participates (agents are enabled unless disabled)
func (a AgentConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// ConsensusConfig holds quorum and timeout settings
type ConsensusConfig struct {
	MinModelsRequired int           `yaml:"min_models_required" mapstructure:"min_models_required"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"` // Shared across all agents per call
	FallbackEnabled   bool          `yaml:"fallback_enabled" mapstructure:"fallback_enabled"`
	ContinueOnError   bool          `yaml:"continue_on_error" mapstructure:"continue_on_error"`
}

// RetryConfig holds per-agent retry and backoff tunables
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// CacheConfig controls the result cache and its persistence backend
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend   string        `yaml:"backend" mapstructure:"backend"` // file, sqlite, redis, memory
	Path      string        `yaml:"path" mapstructure:"path"`
	RedisAddr string        `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"` // 0 means entries never expire
}

// HTTPConfig controls fetching of URL sources
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// ConcurrencyConfig controls batch fan-out
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr        string   `yaml:"addr" mapstructure:"addr"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
	IncludeSource bool `yaml:"include_source" mapstructure:"include_source"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // console, json
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Agents: []AgentConfig{},
		Consensus: ConsensusConfig{
			MinModelsRequired: 2,
			Timeout:           60 * time.Second,
			FallbackEnabled:   true,
			ContinueOnError:   true,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
			Multiplier: 2.0,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "file",
			Path:    "",
			TTL:     24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "Concord/0.1 (+https://github.com/ppiankov/concord)",
			MaxBodyBytes:  2_000_000,
			RespectRobots: true,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8088",
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// EnabledAgents returns the agents that take part in consensus
func (c *Config) EnabledAgents() []AgentConfig {
	var out []AgentConfig
	for _, a := range c.Agents {
		if a.IsEnabled() {
			out = append(out, a)
		}
	}
	return out
}

// Validate checks the configuration for settings the engine cannot run with
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
		if a.Provider == "" {
			return fmt.Errorf("agent %s: provider is required", a.ID)
		}
		if !finite(a.Temperature) {
			return fmt.Errorf("agent %s: temperature must be a finite number", a.ID)
		}
		if !finite(a.RequestsPerSecond) {
			return fmt.Errorf("agent %s: requests_per_second must be a finite number", a.ID)
		}
	}
	if c.Consensus.MinModelsRequired < 1 {
		return fmt.Errorf("consensus.min_models_required must be >= 1, got %d", c.Consensus.MinModelsRequired)
	}
	if c.Consensus.Timeout <= 0 {
		return fmt.Errorf("consensus.timeout must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if !finite(c.Retry.Multiplier) || c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1, got %.2f", c.Retry.Multiplier)
	}
	switch c.Cache.Backend {
	case "", "file", "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unknown cache backend: %s (supported: file, sqlite, redis, memory)", c.Cache.Backend)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
