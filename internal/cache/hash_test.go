package cache

import (
	"testing"
	"time"

	"github.com/ppiankov/concord/internal/model"
)

func TestDJB2(t *testing.T) {
	// h = 5381*33 + 'a'
	if got := djb2([]byte("a")); got != "0002b606" {
		t.Errorf("djb2(a) = %s", got)
	}
	if got := djb2(nil); got != "00001505" {
		t.Errorf("djb2(empty) = %s", got)
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("Paris is the capital of France.", "")
	if a != ContentHash("Paris is the capital of France.", "") {
		t.Error("content hash is not stable")
	}
	if a == ContentHash("Paris is the capital of France.", "geography") {
		t.Error("hint should change the content hash")
	}
	if a == ContentHash("Paris is the capital of France!", "") {
		t.Error("content change should change the hash")
	}
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Agents = []model.AgentConfig{
		{ID: "gpt", Provider: "openai", Model: "gpt-4o-mini", MaxTokens: 2000, APIKey: "sk-1"},
		{ID: "claude", Provider: "anthropic", Model: "claude-3-5-haiku", MaxTokens: 2000},
	}
	return cfg
}

func TestSettingsHash_AgentOrderIrrelevant(t *testing.T) {
	a := testConfig()
	b := testConfig()
	b.Agents[0], b.Agents[1] = b.Agents[1], b.Agents[0]

	if SettingsHash(a) != SettingsHash(b) {
		t.Error("agent order should not change the settings hash")
	}
}

func TestSettingsHash_ExcludedFields(t *testing.T) {
	base := SettingsHash(testConfig())

	mutations := map[string]func(*model.Config){
		"api key":      func(c *model.Config) { c.Agents[0].APIKey = "sk-2" },
		"api key env":  func(c *model.Config) { c.Agents[0].APIKeyEnv = "OTHER_KEY" },
		"rate limit":   func(c *model.Config) { c.Agents[0].RequestsPerSecond = 9 },
		"log level":    func(c *model.Config) { c.Log.Level = "debug" },
		"cache ttl":    func(c *model.Config) { c.Cache.TTL = time.Minute },
		"server addr":  func(c *model.Config) { c.Server.Addr = ":1" },
		"http timeout": func(c *model.Config) { c.HTTP.Timeout = time.Hour },
	}

	for name, mutate := range mutations {
		cfg := testConfig()
		mutate(cfg)
		if SettingsHash(cfg) != base {
			t.Errorf("%s should not change the settings hash", name)
		}
	}
}

func TestSettingsHash_IncludedFields(t *testing.T) {
	base := SettingsHash(testConfig())
	off := false

	mutations := map[string]func(*model.Config){
		"model":       func(c *model.Config) { c.Agents[0].Model = "gpt-4o" },
		"temperature": func(c *model.Config) { c.Agents[1].Temperature = 0.7 },
		"agent set":   func(c *model.Config) { c.Agents = c.Agents[:1] },
		"disabled":    func(c *model.Config) { c.Agents[1].Enabled = &off },
		"quorum":      func(c *model.Config) { c.Consensus.MinModelsRequired = 3 },
		"timeout":     func(c *model.Config) { c.Consensus.Timeout = 90 * time.Second },
		"retries":     func(c *model.Config) { c.Retry.MaxRetries = 5 },
	}

	for name, mutate := range mutations {
		cfg := testConfig()
		mutate(cfg)
		if SettingsHash(cfg) == base {
			t.Errorf("%s should change the settings hash", name)
		}
	}
}
