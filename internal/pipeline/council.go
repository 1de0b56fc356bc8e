package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/cache"
	"github.com/ppiankov/concord/internal/coordinator"
	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/textsim"
)

// Council asks every agent the same question and selects the answer that
// overlaps most with the others
func (p *Pipeline) Council(ctx context.Context, req CouncilRequest) (*model.CouncilResult, error) {
	question := strings.TrimSpace(req.Prompt)
	if question == "" {
		return nil, ErrEmptyPrompt
	}
	system := req.System
	if system == "" {
		system = CouncilSystemPrompt
	}

	contentHash := cache.ContentHash(question, system)
	if p.cache != nil && !req.NoCache {
		var cached model.CouncilResult
		if p.cache.Lookup(ctx, cache.KindCouncil, contentHash, p.settingsHash, &cached) {
			cached.Cached = true
			return &cached, nil
		}
	}

	agents := p.invoker.AgentIDs()
	prompts := make([]coordinator.Prompt, 0, len(agents))
	for _, id := range agents {
		prompts = append(prompts, coordinator.Prompt{AgentID: id, System: system, User: question})
	}

	responses := p.invoker.InvokeAll(ctx, prompts, coordinator.Options{
		Timeout:         p.config.Consensus.Timeout,
		ContinueOnError: true,
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("council: %w", err)
	}

	answers := make([]model.AgentAnswer, len(responses))
	var firstErr error
	successful := 0
	for i, r := range responses {
		answers[i] = model.AgentAnswer{AgentID: r.AgentID}
		if r.Success && r.RawText != nil && strings.TrimSpace(*r.RawText) != "" {
			answers[i].Text = strings.TrimSpace(*r.RawText)
			answers[i].Success = true
			successful++
			continue
		}
		err := r.Err
		if err == nil {
			err = fmt.Errorf("agent %s: empty answer", r.AgentID)
		}
		answers[i].Error = err.Error()
		if firstErr == nil {
			firstErr = err
		}
	}

	if successful == 0 {
		return nil, fmt.Errorf("council: %w: %v", ErrNoAnswers, firstErr)
	}

	selected := scoreAnswers(answers)

	result := &model.CouncilResult{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Prompt:    question,
		Answers:   answers,
		Selected:  answers[selected].AgentID,
		Answer:    answers[selected].Text,
		Agreement: answers[selected].Similarity,
	}

	p.logger.Info("council complete",
		zap.String("run_id", result.RunID),
		zap.Int("answered", successful),
		zap.Int("agents", len(agents)),
		zap.String("selected", result.Selected),
		zap.Float64("agreement", result.Agreement),
	)

	if p.cache != nil && successful >= p.config.Consensus.MinModelsRequired {
		if err := p.cache.Set(ctx, cache.KindCouncil, contentHash, p.settingsHash, result, p.cacheTTL()); err != nil {
			p.logger.Warn("cache store failed", zap.Error(err))
		}
	}

	return result, nil
}

// scoreAnswers sets each successful answer's mean word overlap with the
// other successful answers and returns the index of the highest. Ties go to
// the earlier agent. A lone answer scores 0.
func scoreAnswers(answers []model.AgentAnswer) int {
	normalized := make([]string, len(answers))
	for i, a := range answers {
		if a.Success {
			normalized[i] = textsim.NormalizeText(a.Text)
		}
	}

	best := -1
	for i := range answers {
		if !answers[i].Success {
			continue
		}
		sum, n := 0.0, 0
		for j := range answers {
			if i == j || !answers[j].Success {
				continue
			}
			sum += textsim.Jaccard(normalized[i], normalized[j])
			n++
		}
		if n > 0 {
			answers[i].Similarity = sum / float64(n)
		}
		if best < 0 || answers[i].Similarity > answers[best].Similarity {
			best = i
		}
	}
	return best
}
