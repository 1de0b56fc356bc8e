package cache

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/textsim"
)

// djb2 is the classic h*33+c string hash, seeded with 5381
func djb2(data []byte) string {
	h := uint32(5381)
	for _, c := range data {
		h = h*33 + uint32(c)
	}
	return fmt.Sprintf("%08x", h)
}

func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only plain structs of strings and numbers are hashed
		panic(fmt.Sprintf("cache: hash input not serializable: %v", err))
	}
	return djb2(data)
}

type contentKey struct {
	Content string `json:"content"`
	Hint    string `json:"hint"`
}

// ContentHash identifies a source document plus its optional topical hint
func ContentHash(content, hint string) string {
	return hashJSON(contentKey{Content: content, Hint: hint})
}

type agentKey struct {
	ID          string  `json:"id"`
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	BaseURL     string  `json:"base_url"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type settingsKey struct {
	Agents            []agentKey `json:"agents"`
	MinModelsRequired int        `json:"min_models_required"`
	TimeoutMs         int64      `json:"timeout_ms"`
	FallbackEnabled   bool       `json:"fallback_enabled"`
	ContinueOnError   bool       `json:"continue_on_error"`
	MaxRetries        int        `json:"max_retries"`
	BaseDelayMs       int64      `json:"base_delay_ms"`
	MaxDelayMs        int64      `json:"max_delay_ms"`
	Multiplier        float64    `json:"multiplier"`
	FactThreshold     float64    `json:"fact_threshold"`
	LengthRatio       float64    `json:"length_ratio"`
	CharMatchRatio    float64    `json:"char_match_ratio"`
}

// SettingsHash identifies the result-relevant part of the configuration:
// enabled agents sorted by id, quorum, timeout, retry values and matching
// thresholds. Keys, logging, output and transport settings are excluded.
func SettingsHash(cfg *model.Config) string {
	agents := make([]agentKey, 0, len(cfg.Agents))
	for _, a := range cfg.EnabledAgents() {
		agents = append(agents, agentKey{
			ID:          a.ID,
			Provider:    a.Provider,
			Model:       a.Model,
			BaseURL:     a.BaseURL,
			MaxTokens:   a.MaxTokens,
			Temperature: a.Temperature,
		})
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })

	return hashJSON(settingsKey{
		Agents:            agents,
		MinModelsRequired: cfg.Consensus.MinModelsRequired,
		TimeoutMs:         cfg.Consensus.Timeout.Milliseconds(),
		FallbackEnabled:   cfg.Consensus.FallbackEnabled,
		ContinueOnError:   cfg.Consensus.ContinueOnError,
		MaxRetries:        cfg.Retry.MaxRetries,
		BaseDelayMs:       cfg.Retry.BaseDelay.Milliseconds(),
		MaxDelayMs:        cfg.Retry.MaxDelay.Milliseconds(),
		Multiplier:        cfg.Retry.Multiplier,
		FactThreshold:     textsim.FactSimilarityThreshold,
		LengthRatio:       textsim.CitationLengthRatio,
		CharMatchRatio:    textsim.CitationCharMatchRatio,
	})
}
