// Package validate checks agent citations against the source document.
package validate

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/logging"
	"github.com/ppiankov/concord/internal/metrics"
	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/textsim"
)

// Drop reasons, also used as metric labels
const (
	DropSpan = "span" // out of bounds or empty
	DropText = "text" // quoted text does not match the source span
	DropFact = "fact" // supported fact is not one of the agent's facts
)

// Check returns "" if the citation is valid for the given facts and source
// runes, or the reason it must be dropped
func Check(c model.Citation, facts []string, source []rune) string {
	if c.Start < 0 || c.End > len(source) || c.Start >= c.End {
		return DropSpan
	}
	if !textsim.TextsAreEquivalent(c.Text, string(source[c.Start:c.End])) {
		return DropText
	}
	for _, f := range facts {
		if textsim.FactsAreSimilar(c.SupportsFact, f) {
			return ""
		}
	}
	return DropFact
}

// Citations filters out citations that fail any check. Survivors keep their
// order and are returned unmodified. Offsets are rune offsets into source.
func Citations(citations []model.Citation, facts []string, source string) []model.Citation {
	runes := []rune(source)
	kept := make([]model.Citation, 0, len(citations))
	for _, c := range citations {
		if Check(c, facts, runes) == "" {
			kept = append(kept, c)
		}
	}
	return kept
}

// Validator validates citations of many extractions concurrently
type Validator struct {
	logger     *zap.Logger
	maxWorkers int
}

// NewValidator creates a new validator
func NewValidator(logger *zap.Logger, maxWorkers int) *Validator {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Validator{
		logger:     logging.OrNop(logger),
		maxWorkers: maxWorkers,
	}
}

// Validate returns copies of the extractions with invalid citations removed.
// Input order is preserved; the input slice is not modified.
func (v *Validator) Validate(ctx context.Context, extractions []model.FactExtraction, source string) []model.FactExtraction {
	results := make([]model.FactExtraction, len(extractions))
	if len(extractions) == 0 {
		return results
	}

	runes := []rune(source)
	var wg sync.WaitGroup

	// Create semaphore to limit concurrent validation
	semaphore := make(chan struct{}, v.maxWorkers)

	for i, ext := range extractions {
		wg.Add(1)
		go func(idx int, e model.FactExtraction) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				// Cancelled: keep facts but trust no citations
				e.CitationsDropped = len(e.Citations)
				e.Citations = []model.Citation{}
				results[idx] = e
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = v.validateOne(e, runes)
		}(i, ext)
	}

	wg.Wait()
	return results
}

func (v *Validator) validateOne(e model.FactExtraction, source []rune) model.FactExtraction {
	kept := make([]model.Citation, 0, len(e.Citations))
	for _, c := range e.Citations {
		reason := Check(c, e.Facts, source)
		if reason == "" {
			kept = append(kept, c)
			continue
		}
		metrics.CitationsDropped.WithLabelValues(reason).Inc()
		v.logger.Debug("dropping citation",
			zap.String("agent", e.AgentID),
			zap.String("reason", reason),
			zap.Int("start", c.Start),
			zap.Int("end", c.End),
		)
	}

	if dropped := len(e.Citations) - len(kept); dropped > 0 {
		v.logger.Info("citations rejected",
			zap.String("agent", e.AgentID),
			zap.Int("kept", len(kept)),
			zap.Int("dropped", dropped),
		)
	}

	e.CitationsDropped = len(e.Citations) - len(kept)
	e.Citations = kept
	return e
}
