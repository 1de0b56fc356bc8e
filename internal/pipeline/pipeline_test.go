package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/concord/internal/cache"
	"github.com/ppiankov/concord/internal/coordinator"
	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/recovery"
)

const parisSource = "Paris is the capital of France. The Eiffel Tower is 330m tall."

const (
	capitalFact = "Paris is the capital of France"
	towerFact   = "The Eiffel Tower is 330m tall"
)

type reply struct {
	text string
	err  error
}

// scriptedInvoker answers each agent from a script, one entry per call.
// The last entry repeats once the script runs out.
type scriptedInvoker struct {
	mu      sync.Mutex
	agents  []string
	scripts map[string][]reply
	calls   map[string]int
	rounds  [][]string
	prompts []coordinator.Prompt
}

func newInvoker(scripts map[string][]reply, agents ...string) *scriptedInvoker {
	return &scriptedInvoker{
		agents:  agents,
		scripts: scripts,
		calls:   make(map[string]int),
	}
}

func (s *scriptedInvoker) AgentIDs() []string {
	return append([]string(nil), s.agents...)
}

func (s *scriptedInvoker) InvokeAll(ctx context.Context, prompts []coordinator.Prompt, opts coordinator.Options) []coordinator.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	var round []string
	out := make([]coordinator.Response, len(prompts))
	for i, p := range prompts {
		round = append(round, p.AgentID)
		s.prompts = append(s.prompts, p)

		script := s.scripts[p.AgentID]
		n := s.calls[p.AgentID]
		s.calls[p.AgentID]++
		if n >= len(script) {
			n = len(script) - 1
		}
		r := script[n]
		if r.err != nil {
			out[i] = coordinator.Response{AgentID: p.AgentID, Err: r.err}
			continue
		}
		text := r.text
		out[i] = coordinator.Response{AgentID: p.AgentID, RawText: &text, Success: true}
	}
	s.rounds = append(s.rounds, round)
	return out
}

func (s *scriptedInvoker) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func extractionJSON(t *testing.T, confidence float64, facts ...string) string {
	t.Helper()
	spans := map[string]model.Citation{
		capitalFact: {Start: 0, End: 31, Text: "Paris is the capital of France.", SupportsFact: capitalFact},
		towerFact:   {Start: 32, End: 62, Text: "The Eiffel Tower is 330m tall.", SupportsFact: towerFact},
	}
	citations := []model.Citation{}
	for _, f := range facts {
		if c, ok := spans[f]; ok {
			citations = append(citations, c)
		}
	}
	data, err := json.Marshal(map[string]any{
		"facts":      facts,
		"citations":  citations,
		"confidence": confidence,
	})
	require.NoError(t, err)
	return string(data)
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Agents = []model.AgentConfig{
		{ID: "a", Provider: "ollama", Model: "m"},
		{ID: "b", Provider: "ollama", Model: "m"},
		{ID: "c", Provider: "ollama", Model: "m"},
	}
	cfg.Consensus.MinModelsRequired = 2
	cfg.Retry.MaxRetries = 2
	cfg.Retry.BaseDelay = time.Second
	cfg.Retry.Multiplier = 2
	return cfg
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newPipeline(t *testing.T, cfg *model.Config, inv Invoker, opts ...Option) (*Pipeline, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithSleep(rec.sleep), WithOutput(&discard{})}, opts...)
	p, err := New(cfg, inv, opts...)
	require.NoError(t, err)
	return p, rec
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestNew_RequiresAgents(t *testing.T) {
	_, err := New(testConfig(), newInvoker(nil))
	assert.ErrorIs(t, err, ErrNoAgents)

	_, err = New(testConfig(), nil)
	assert.ErrorIs(t, err, ErrNoAgents)
}

func TestNew_RejectsNonFiniteTemperature(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[0].Temperature = math.NaN()

	_, err := New(cfg, newInvoker(nil, "a", "b", "c"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature must be a finite number")
}

func TestValidate_AllAgentsAgree(t *testing.T) {
	both := extractionJSON(t, 0.9, capitalFact, towerFact)
	inv := newInvoker(map[string][]reply{
		"a": {{text: both}},
		"b": {{text: "```json\n" + both + "\n```"}},
		"c": {{text: "Here you go: " + both}},
	}, "a", "b", "c")
	p, _ := newPipeline(t, testConfig(), inv)

	result, err := p.Validate(context.Background(), Request{Source: parisSource})
	require.NoError(t, err)

	assert.Equal(t, []string{capitalFact, towerFact}, result.FactConsensus.AgreedFacts)
	assert.Empty(t, result.FactConsensus.PartialAgreementFacts)
	assert.Empty(t, result.FactConsensus.DisagreedFacts)
	assert.Empty(t, result.Discrepancies)
	assert.InDelta(t, 0.95, result.ValidationConfidence, 1e-9)
	assert.False(t, result.Degraded)
	assert.Nil(t, result.Recovery)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, parisSource, result.SourceContent)

	require.Len(t, result.Extractions, 3)
	for _, e := range result.Extractions {
		assert.Len(t, e.Citations, 2, "agent %s", e.AgentID)
		assert.Equal(t, 1, e.Attempts)
	}

	require.NotNil(t, result.Assessment)
	assert.Equal(t, "high", result.Assessment.Level)

	// Every agent got the JSON extraction prompt
	require.Len(t, inv.prompts, 3)
	for _, pr := range inv.prompts {
		assert.True(t, pr.JSON)
		assert.Contains(t, pr.User, parisSource)
	}
}

func TestValidate_InvalidCitationsDropped(t *testing.T) {
	bad, err := json.Marshal(map[string]any{
		"facts": []string{capitalFact},
		"citations": []model.Citation{
			{Start: 0, End: 31, Text: "Berlin is the capital of Germany", SupportsFact: capitalFact},
		},
		"confidence": 0.8,
	})
	require.NoError(t, err)

	good := extractionJSON(t, 0.8, capitalFact)
	inv := newInvoker(map[string][]reply{
		"a": {{text: good}},
		"b": {{text: string(bad)}},
	}, "a", "b")
	p, _ := newPipeline(t, testConfig(), inv)

	result, err := p.Validate(context.Background(), Request{Source: parisSource})
	require.NoError(t, err)

	assert.Len(t, result.Extractions[0].Citations, 1)
	assert.Empty(t, result.Extractions[1].Citations)
	assert.Equal(t, 1, result.Extractions[1].CitationsDropped)
	// Facts survive citation rejection
	assert.Equal(t, []string{capitalFact}, result.FactConsensus.AgreedFacts)
}

func TestValidate_RetriesRetryableFailures(t *testing.T) {
	good := extractionJSON(t, 0.9, capitalFact)
	inv := newInvoker(map[string][]reply{
		"a": {{text: good}},
		"b": {{err: errors.New("dial tcp: connection refused")}, {text: good}},
		"c": {{text: "I cannot help with that."}, {text: good}},
	}, "a", "b", "c")
	p, rec := newPipeline(t, testConfig(), inv)

	result, err := p.Validate(context.Background(), Request{Source: parisSource})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "b", "c"}, {"b", "c"}}, inv.rounds)
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
	assert.Equal(t, 1, result.Extractions[0].Attempts)
	assert.Equal(t, 2, result.Extractions[1].Attempts)
	assert.Equal(t, 2, result.Extractions[2].Attempts)
	assert.Equal(t, []string{capitalFact}, result.FactConsensus.AgreedFacts)
}

func TestValidate_UnparsableReplyRetriedWhateverItSays(t *testing.T) {
	good := extractionJSON(t, 0.9, capitalFact)
	// Prose mentioning a status code or an invalid key must still count as a parse failure
	inv := newInvoker(map[string][]reply{
		"a": {{text: "The tower is about 400 metres tall, I think."}, {text: good}},
		"b": {{text: "Sorry, that looks like an invalid api key request."}, {text: good}},
		"c": {{text: good}},
	}, "a", "b", "c")
	p, rec := newPipeline(t, testConfig(), inv)

	result, err := p.Validate(context.Background(), Request{Source: parisSource})
	require.NoError(t, err)

	assert.Equal(t, 2, inv.calls["a"])
	assert.Equal(t, 2, inv.calls["b"])
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
	assert.Equal(t, 3, result.SuccessfulAgents())
	assert.Equal(t, []string{capitalFact}, result.FactConsensus.AgreedFacts)
}

func TestValidate_RetriesBoundedByMaxRetries(t *testing.T) {
	good := extractionJSON(t, 0.9, capitalFact)
	inv := newInvoker(map[string][]reply{
		"a": {{text: good}},
		"b": {{text: good}},
		"c": {{err: errors.New("503 service unavailable")}},
	}, "a", "b", "c")
	p, rec := newPipeline(t, testConfig(), inv)

	result, err := p.Validate(context.Background(), Request{Source: parisSource})
	require.NoError(t, err)

	// One initial call plus MaxRetries retries, with exponential backoff
	assert.Equal(t, 3, inv.calls["c"])
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)

	failed := result.Extractions[2]
	assert.True(t, failed.Failed())
	assert.Equal(t, 3, failed.Attempts)
	assert.Contains(t, failed.Error, "503")
	assert.False(t, result.Degraded)

	// The failed agent still counts toward the total
	require.Len(t, result.FactConsensus.PartialAgreementFacts, 1)
	assert.Equal(t, []string{"c"}, result.FactConsensus.PartialAgreementFacts[0].DisagreeingAgents)
}

func TestValidate_NonRetryableFailureSkipped(t *testing.T) {
	good := extractionJSON(t, 0.9, capitalFact)
	inv := newInvoker(map[string][]reply{
		"a": {{text: good}},
		"b": {{text: good}},
		"c": {{err: errors.New("401 unauthorized")}},
	}, "a", "b", "c")
	p, rec := newPipeline(t, testConfig(), inv)

	result, err := p.Validate(context.Background(), Request{Source: parisSource})
	require.NoError(t, err)

	assert.Equal(t, 1, inv.calls["c"])
	assert.Empty(t, rec.delays)
	assert.True(t, result.Extractions[2].Failed())
	assert.Equal(t, 2, result.SuccessfulAgents())
}

func TestValidate_AbortsWhenQuorumUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Consensus.MinModelsRequired = 3
	inv := newInvoker(map[string][]reply{
		"a": {{err: errors.New("401 unauthorized")}},
		"b": {{err: errors.New("401 unauthorized")}},
		"c": {{err: errors.New("401 unauthorized")}},
	}, "a", "b", "c")
	p, _ := newPipeline(t, cfg, inv)

	_, err := p.Validate(context.Background(), Request{Source: parisSource})
	require.Error(t, err)

	var abort *recovery.AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "a", abort.AgentID)
	assert.Equal(t, recovery.CategoryAuthentication, abort.Category)
	assert.NotEmpty(t, abort.Suggestions)
}

func TestValidate_FallbackToSingleAgent(t *testing.T) {
	cfg := testConfig()
	cfg.Agents = cfg.Agents[:2]
	inv := newInvoker(map[string][]reply{
		"a": {{text: extractionJSON(t, 0.8, capitalFact, towerFact)}},
		"b": {{err: errors.New("403 forbidden")}},
	}, "a", "b")

	store := cache.NewMemoryStore()
	rc, err := cache.New(context.Background(), store, nil)
	require.NoError(t, err)
	p, _ := newPipeline(t, cfg, inv, WithCache(rc))

	result, err := p.Validate(context.Background(), Request{Source: parisSource})
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	require.NotNil(t, result.Recovery)
	assert.Equal(t, string(recovery.ReasonInsufficientAgents), result.Recovery.Reason)
	assert.Equal(t, string(recovery.ResolveFallbackSingleAgent), result.Recovery.Action)

	// Consensus is computed over the surviving agent only
	assert.Equal(t, []string{capitalFact, towerFact}, result.FactConsensus.AgreedFacts)
	assert.InDelta(t, 0.9, result.ValidationConfidence, 1e-9)
	assert.Len(t, result.Extractions, 2)

	// Degraded results are not cached
	assert.Equal(t, 0, rc.Len())
	assert.Equal(t, "low", result.Assessment.Level)
}

func TestValidate_NoFallbackFails(t *testing.T) {
	cfg := testConfig()
	cfg.Agents = cfg.Agents[:2]
	cfg.Consensus.FallbackEnabled = false
	inv := newInvoker(map[string][]reply{
		"a": {{text: extractionJSON(t, 0.8, capitalFact)}},
		"b": {{err: errors.New("403 forbidden")}},
	}, "a", "b")
	p, _ := newPipeline(t, cfg, inv)

	_, err := p.Validate(context.Background(), Request{Source: parisSource})

	var ce *ConsensusError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, string(recovery.ResolveAbort), ce.Resolution.Action)
}

func TestValidate_AllAgentsFailed(t *testing.T) {
	cfg := testConfig()
	cfg.Consensus.MinModelsRequired = 1
	inv := newInvoker(map[string][]reply{
		"a": {{err: errors.New("401 unauthorized")}},
		"b": {{err: errors.New("401 unauthorized")}},
	}, "a", "b")
	p, _ := newPipeline(t, cfg, inv)

	_, err := p.Validate(context.Background(), Request{Source: parisSource})

	var ce *ConsensusError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, string(recovery.ReasonAllAgentsFailed), ce.Resolution.Reason)
	assert.Equal(t, string(recovery.ResolveAbort), ce.Resolution.Action)
}

func TestValidate_CacheHit(t *testing.T) {
	good := extractionJSON(t, 0.9, capitalFact)
	inv := newInvoker(map[string][]reply{
		"a": {{text: good}},
		"b": {{text: good}},
	}, "a", "b")
	rc, err := cache.New(context.Background(), cache.NewMemoryStore(), nil)
	require.NoError(t, err)
	p, _ := newPipeline(t, testConfig(), inv, WithCache(rc))
	ctx := context.Background()

	first, err := p.Validate(ctx, Request{Source: parisSource, Hint: "geography"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 2, inv.totalCalls())

	second, err := p.Validate(ctx, Request{Source: parisSource, Hint: "geography"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.FactConsensus, second.FactConsensus)
	assert.Equal(t, 2, inv.totalCalls(), "cache hit must not invoke agents")

	// A different hint is a different cache key
	_, err = p.Validate(ctx, Request{Source: parisSource, Hint: "landmarks"})
	require.NoError(t, err)
	assert.Equal(t, 4, inv.totalCalls())

	// NoCache bypasses the lookup
	third, err := p.Validate(ctx, Request{Source: parisSource, Hint: "geography", NoCache: true})
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.NotEqual(t, first.RunID, third.RunID)
	assert.Equal(t, 6, inv.totalCalls())
}

func TestValidate_EmptySource(t *testing.T) {
	p, _ := newPipeline(t, testConfig(), newInvoker(nil, "a"))

	_, err := p.Validate(context.Background(), Request{Source: "  \n\t"})
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestValidate_Cancelled(t *testing.T) {
	good := extractionJSON(t, 0.9, capitalFact)
	inv := newInvoker(map[string][]reply{"a": {{text: good}}, "b": {{text: good}}}, "a", "b")
	p, _ := newPipeline(t, testConfig(), inv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Validate(ctx, Request{Source: parisSource})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateSource_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paris.txt")
	require.NoError(t, os.WriteFile(path, []byte(parisSource+"\n"), 0o644))

	good := extractionJSON(t, 0.9, capitalFact)
	inv := newInvoker(map[string][]reply{"a": {{text: good}}, "b": {{text: good}}}, "a", "b")
	p, _ := newPipeline(t, testConfig(), inv)

	result, err := p.ValidateSource(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, result.SourceRef)
	assert.Equal(t, "paris", result.SourceTitle)
	assert.Equal(t, []string{capitalFact}, result.FactConsensus.AgreedFacts)
}

func TestValidateSource_Missing(t *testing.T) {
	p, _ := newPipeline(t, testConfig(), newInvoker(nil, "a"))

	_, err := p.ValidateSource(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load source")
}

func TestBestExtraction(t *testing.T) {
	extractions := []model.FactExtraction{
		model.EmptyExtraction("a", "boom"),
		{AgentID: "b", Facts: []string{"x"}, Confidence: 0.6},
		{AgentID: "c", Facts: []string{"y"}, Confidence: 0.8},
		{AgentID: "d", Facts: []string{"z"}, Confidence: 0.8},
	}

	assert.Equal(t, "c", bestExtraction(extractions).AgentID)
}
