// Package pipeline runs the validation and council flows end to end: agent
// fan-out, recovery, citation checks, consensus and caching.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/cache"
	"github.com/ppiankov/concord/internal/consensus"
	"github.com/ppiankov/concord/internal/coordinator"
	"github.com/ppiankov/concord/internal/extract"
	"github.com/ppiankov/concord/internal/logging"
	"github.com/ppiankov/concord/internal/metrics"
	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/recovery"
	"github.com/ppiankov/concord/internal/score"
	"github.com/ppiankov/concord/internal/source"
	"github.com/ppiankov/concord/internal/validate"
)

var (
	ErrNoAgents    = errors.New("no agents configured")
	ErrEmptySource = errors.New("source is empty")
	ErrEmptyPrompt = errors.New("prompt is empty")
	ErrNoAnswers   = errors.New("no agent answered")
)

// Invoker fans prompts out to agents. *coordinator.Coordinator implements it.
type Invoker interface {
	AgentIDs() []string
	InvokeAll(ctx context.Context, prompts []coordinator.Prompt, opts coordinator.Options) []coordinator.Response
}

// Request is one validation call
type Request struct {
	Source    string
	Hint      string
	SourceRef string // Where the source came from, for reports
	Title     string
	NoCache   bool // Skip the cache lookup; the result is still stored
}

// CouncilRequest is one council call
type CouncilRequest struct {
	Prompt  string
	System  string // Defaults to CouncilSystemPrompt
	NoCache bool
}

// CouncilSystemPrompt frames free-form council answers
const CouncilSystemPrompt = `Answer the question directly and factually.
Keep the answer short. Do not hedge or add unrelated detail.`

// ConsensusError reports a quorum failure the resolver could not recover from
type ConsensusError struct {
	Resolution model.Resolution
}

func (e *ConsensusError) Error() string {
	return fmt.Sprintf("consensus failed (%s): %s", e.Resolution.Reason, e.Resolution.Message)
}

// Pipeline orchestrates validation and council runs
type Pipeline struct {
	config       *model.Config
	invoker      Invoker
	handler      *recovery.Handler
	validator    *validate.Validator
	scorer       *score.Scorer
	cache        *cache.ResultCache // nil disables caching
	loader       *source.Loader
	renderer     *Renderer
	out          io.Writer
	logger       *zap.Logger
	sleep        func(context.Context, time.Duration) error
	settingsHash string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithCache enables the result cache
func WithCache(c *cache.ResultCache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithLoader replaces the source loader used by ValidateSource
func WithLoader(l *source.Loader) Option {
	return func(p *Pipeline) {
		p.loader = l
	}
}

// WithOutput sets where summaries are printed
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) {
		p.out = w
	}
}

// WithSleep replaces the retry backoff wait
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(p *Pipeline) {
		p.sleep = sleep
	}
}

// New creates a pipeline over the given agents
func New(cfg *model.Config, invoker Invoker, opts ...Option) (*Pipeline, error) {
	if invoker == nil || len(invoker.AgentIDs()) == 0 {
		return nil, ErrNoAgents
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Pipeline{
		config:  cfg,
		invoker: invoker,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger = logging.OrNop(p.logger)
	p.handler = recovery.NewHandler(recovery.PolicyFromConfig(cfg.Retry), p.logger)
	p.validator = validate.NewValidator(p.logger, cfg.Concurrency.Workers)
	p.scorer = score.NewScorer(cfg.Consensus.MinModelsRequired)
	p.settingsHash = cache.SettingsHash(cfg)
	if p.loader == nil {
		p.loader = source.NewLoader(cfg.HTTP, p.logger)
	}
	p.renderer = NewRenderer(cfg.Output, p.out)

	return p, nil
}

// Agents returns the IDs of the agents taking part, in order
func (p *Pipeline) Agents() []string {
	return p.invoker.AgentIDs()
}

// Loader returns the source loader
func (p *Pipeline) Loader() *source.Loader {
	return p.loader
}

// SettingsHash returns the hash of the settings results are cached under
func (p *Pipeline) SettingsHash() string {
	return p.settingsHash
}

// Validate runs every agent over the source and builds the consensus result
func (p *Pipeline) Validate(ctx context.Context, req Request) (*model.SourceValidationResult, error) {
	if strings.TrimSpace(req.Source) == "" {
		return nil, ErrEmptySource
	}

	contentHash := cache.ContentHash(req.Source, req.Hint)

	// 1. Cache lookup
	if p.cache != nil && !req.NoCache {
		var cached model.SourceValidationResult
		if p.cache.Lookup(ctx, cache.KindConsensus, contentHash, p.settingsHash, &cached) {
			cached.Cached = true
			p.logger.Info("validation served from cache",
				zap.String("run_id", cached.RunID),
				zap.String("content_hash", contentHash),
			)
			return &cached, nil
		}
	}

	// 2. Extraction with per-agent recovery
	prompt := extract.BuildPrompt(req.Source, req.Hint)
	extractions, err := p.extractAll(ctx, prompt)
	if err != nil {
		return nil, err
	}

	// 3. Citation validation
	extractions = p.validator.Validate(ctx, extractions, req.Source)

	result := &model.SourceValidationResult{
		SourceContent: req.Source,
		Extractions:   extractions,
		SourceRef:     req.SourceRef,
		SourceTitle:   req.Title,
		Hint:          req.Hint,
	}

	// 4. Quorum check, then consensus over the contributing extractions
	contributing := extractions
	successful := result.SuccessfulAgents()
	minRequired := p.config.Consensus.MinModelsRequired
	if successful < minRequired {
		reason := recovery.ReasonInsufficientAgents
		if successful == 0 {
			reason = recovery.ReasonAllAgentsFailed
		}
		res := recovery.ResolveConsensusFailure(reason, recovery.Settings{
			MinModelsRequired: minRequired,
			FallbackEnabled:   p.config.Consensus.FallbackEnabled,
		}, successful)
		metrics.ConsensusFailures.WithLabelValues(string(reason), res.Action).Inc()

		p.logger.Warn("quorum not met",
			zap.String("reason", res.Reason),
			zap.String("action", res.Action),
			zap.Int("successful", successful),
			zap.Int("required", minRequired),
		)

		switch recovery.ResolutionAction(res.Action) {
		case recovery.ResolveAbort:
			return nil, &ConsensusError{Resolution: res}
		case recovery.ResolveFallbackSingleAgent:
			contributing = []model.FactExtraction{bestExtraction(extractions)}
		}
		result.Degraded = true
		result.Recovery = &res
	}

	result.FactConsensus = consensus.Compare(contributing)
	result.Discrepancies = consensus.Detect(contributing)
	result.ValidationConfidence = consensus.ValidationConfidence(contributing, result.FactConsensus)

	result.RunID = uuid.NewString()
	result.CreatedAt = time.Now().UTC()

	assessment := p.scorer.Assess(result)
	result.Assessment = &assessment

	metrics.ValidationConfidence.Observe(result.ValidationConfidence)
	metrics.Discrepancies.Add(float64(len(result.Discrepancies)))

	p.logger.Info("validation complete",
		zap.String("run_id", result.RunID),
		zap.Int("agents", len(extractions)),
		zap.Int("successful", successful),
		zap.Int("agreed", len(result.FactConsensus.AgreedFacts)),
		zap.Int("discrepancies", len(result.Discrepancies)),
		zap.Float64("confidence", result.ValidationConfidence),
		zap.Bool("degraded", result.Degraded),
	)

	// 5. Degraded results are never cached
	if p.cache != nil && !result.Degraded {
		if err := p.cache.Set(ctx, cache.KindConsensus, contentHash, p.settingsHash, result, p.cacheTTL()); err != nil {
			p.logger.Warn("cache store failed", zap.Error(err))
		}
	}

	return result, nil
}

// ValidateSource loads a file, URL or inline reference and validates it
func (p *Pipeline) ValidateSource(ctx context.Context, ref string) (*model.SourceValidationResult, error) {
	return p.ValidateRef(ctx, ref, "")
}

// ValidateRef loads ref and validates it with an optional hint
func (p *Pipeline) ValidateRef(ctx context.Context, ref, hint string) (*model.SourceValidationResult, error) {
	src, err := p.loader.Load(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}
	return p.Validate(ctx, Request{
		Source:    src.Text,
		Hint:      hint,
		SourceRef: src.Ref,
		Title:     src.Title,
	})
}

type agentFailure struct {
	agentID string
	err     error
}

// extractAll runs retry rounds until every agent has an extraction or has
// been skipped. Only agents whose failures were judged retryable are sent
// again, after the longest backoff of the round.
func (p *Pipeline) extractAll(ctx context.Context, prompt extract.Prompt) ([]model.FactExtraction, error) {
	agents := p.invoker.AgentIDs()
	byAgent := make(map[string]model.FactExtraction, len(agents))
	attempts := make(map[string]int, len(agents))
	retries := make(map[string]int, len(agents))
	successful := 0

	maxRounds := p.handler.Policy().MaxRetries + 1
	pending := agents

	for round := 1; len(pending) > 0; round++ {
		prompts := make([]coordinator.Prompt, 0, len(pending))
		for _, id := range pending {
			prompts = append(prompts, coordinator.Prompt{
				AgentID: id,
				System:  prompt.System,
				User:    prompt.User,
				JSON:    true,
			})
		}

		responses := p.invoker.InvokeAll(ctx, prompts, coordinator.Options{
			Timeout:         p.config.Consensus.Timeout,
			ContinueOnError: p.config.Consensus.ContinueOnError,
		})
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("validate: %w", err)
		}

		// Successes first, so each failure is judged against the whole round
		var failures []agentFailure
		for _, r := range responses {
			attempts[r.AgentID]++
			if !r.Success || r.RawText == nil {
				err := r.Err
				if err == nil {
					err = errors.New("no response")
				}
				failures = append(failures, agentFailure{agentID: r.AgentID, err: err})
				continue
			}

			parsed, err := extract.Parse(*r.RawText)
			if err != nil {
				failures = append(failures, agentFailure{agentID: r.AgentID, err: err})
				continue
			}
			e := parsed.ToExtraction(r.AgentID)
			e.Attempts = attempts[r.AgentID]
			byAgent[r.AgentID] = e
			successful++

			p.logger.Debug("agent extraction parsed",
				zap.String("agent", r.AgentID),
				zap.String("method", parsed.Method),
				zap.Int("facts", len(e.Facts)),
				zap.Int("citations", len(e.Citations)),
			)
		}

		var next []string
		var delay time.Duration
		for _, f := range failures {
			currentRound, rounds := round, maxRounds
			agentErr := &recovery.AgentError{AgentID: f.agentID, Err: f.err}
			// The reply snippet in a parse error must not drive classification
			var parseErr *extract.ParseError
			if errors.As(f.err, &parseErr) {
				agentErr.Category = recovery.CategoryParse
			}
			d := p.handler.HandleAgentError(agentErr, recovery.ErrorContext{
				AgentID:           f.agentID,
				RetryCount:        retries[f.agentID],
				TotalAgents:       len(agents),
				SuccessfulAgents:  successful,
				MinAgentsRequired: p.config.Consensus.MinModelsRequired,
				CurrentRound:      &currentRound,
				MaxRounds:         &rounds,
			})

			switch d.Action {
			case recovery.ActionRetry:
				retries[f.agentID]++
				next = append(next, f.agentID)
				if d.RetryDelay > delay {
					delay = d.RetryDelay
				}
			case recovery.ActionAbort:
				return nil, d.AbortError(f.agentID, f.err)
			default:
				e := model.EmptyExtraction(f.agentID, f.err.Error())
				e.Attempts = attempts[f.agentID]
				byAgent[f.agentID] = e
			}
		}

		if len(next) > 0 && delay > 0 {
			if err := p.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("validate: %w", err)
			}
		}
		pending = next
	}

	out := make([]model.FactExtraction, 0, len(agents))
	for _, id := range agents {
		out = append(out, byAgent[id])
	}
	return out, nil
}

// bestExtraction returns the successful extraction with the highest
// confidence, first in agent order on ties
func bestExtraction(extractions []model.FactExtraction) model.FactExtraction {
	best := -1
	for i, e := range extractions {
		if e.Failed() {
			continue
		}
		if best < 0 || e.Confidence > extractions[best].Confidence {
			best = i
		}
	}
	if best < 0 {
		return extractions[0]
	}
	return extractions[best]
}

func (p *Pipeline) cacheTTL() *time.Duration {
	if p.config.Cache.TTL <= 0 {
		return nil
	}
	ttl := p.config.Cache.TTL
	return &ttl
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
