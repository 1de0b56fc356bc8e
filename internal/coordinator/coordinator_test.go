package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/concord/internal/llm"
	"github.com/ppiankov/concord/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	name  string
	text  string
	err   error
	delay time.Duration
	calls int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return f.err == nil }

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.text + "|" + req.Prompt}, nil
}

func newCoordinator(t *testing.T, agents ...Agent) *Coordinator {
	t.Helper()
	c, err := New(agents, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return c
}

func TestInvokeAll_AllSucceed(t *testing.T) {
	c := newCoordinator(t,
		Agent{ID: "a", Provider: &fakeProvider{name: "fake", text: "alpha"}},
		Agent{ID: "b", Provider: &fakeProvider{name: "fake", text: "beta"}},
	)

	responses := c.InvokeAll(context.Background(), c.Broadcast("sys", "doc", true), Options{Timeout: time.Second, ContinueOnError: true})

	require.Len(t, responses, 2)
	assert.Equal(t, "a", responses[0].AgentID)
	assert.Equal(t, "b", responses[1].AgentID)
	for _, r := range responses {
		require.True(t, r.Success)
		require.NotNil(t, r.RawText)
		assert.NoError(t, r.Err)
	}
	assert.Equal(t, "alpha|doc", *responses[0].RawText)
	assert.Equal(t, "beta|doc", *responses[1].RawText)
}

func TestInvokeAll_SlowAgentDoesNotBlockFastOnes(t *testing.T) {
	c := newCoordinator(t,
		Agent{ID: "fast", Provider: &fakeProvider{text: "ok"}},
		Agent{ID: "slow", Provider: &fakeProvider{text: "late", delay: 5 * time.Second}},
	)

	start := time.Now()
	responses := c.InvokeAll(context.Background(), c.Broadcast("", "doc", false), Options{Timeout: 50 * time.Millisecond, ContinueOnError: true})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*time.Second)
	require.Len(t, responses, 2)

	assert.True(t, responses[0].Success)
	assert.False(t, responses[1].Success)
	assert.Nil(t, responses[1].RawText)
	assert.True(t, errors.Is(responses[1].Err, context.DeadlineExceeded), "got %v", responses[1].Err)
}

func TestInvokeAll_FailureIsolatedWhenContinuing(t *testing.T) {
	c := newCoordinator(t,
		Agent{ID: "bad", Provider: &fakeProvider{err: errors.New("401 unauthorized")}},
		Agent{ID: "good", Provider: &fakeProvider{text: "ok", delay: 20 * time.Millisecond}},
	)

	responses := c.InvokeAll(context.Background(), c.Broadcast("", "doc", false), Options{Timeout: time.Second, ContinueOnError: true})

	assert.False(t, responses[0].Success)
	assert.EqualError(t, responses[0].Err, "401 unauthorized")
	assert.True(t, responses[1].Success)
}

func TestInvokeAll_FirstFailureCancelsRest(t *testing.T) {
	slow := &fakeProvider{text: "ok", delay: 5 * time.Second}
	c := newCoordinator(t,
		Agent{ID: "bad", Provider: &fakeProvider{err: errors.New("boom")}},
		Agent{ID: "slow", Provider: slow},
	)

	start := time.Now()
	responses := c.InvokeAll(context.Background(), c.Broadcast("", "doc", false), Options{Timeout: 10 * time.Second, ContinueOnError: false})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, responses[0].Success)
	assert.False(t, responses[1].Success)
	assert.True(t, errors.Is(responses[1].Err, context.Canceled), "got %v", responses[1].Err)
}

func TestInvokeAll_UnknownAgent(t *testing.T) {
	c := newCoordinator(t, Agent{ID: "a", Provider: &fakeProvider{text: "ok"}})

	responses := c.InvokeAll(context.Background(), []Prompt{{AgentID: "ghost", User: "doc"}}, Options{ContinueOnError: true})

	require.Len(t, responses, 1)
	assert.False(t, responses[0].Success)
	assert.ErrorIs(t, responses[0].Err, ErrUnknownAgent)
}

func TestInvokeAll_Empty(t *testing.T) {
	c := newCoordinator(t)
	assert.Empty(t, c.InvokeAll(context.Background(), nil, Options{}))
}

func TestInvokeAll_ParentCancelled(t *testing.T) {
	c := newCoordinator(t, Agent{ID: "a", Provider: &fakeProvider{text: "ok", delay: time.Second}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	responses := c.InvokeAll(ctx, c.Broadcast("", "doc", false), Options{ContinueOnError: true})
	assert.False(t, responses[0].Success)
	assert.Error(t, responses[0].Err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New([]Agent{{ID: "", Provider: &fakeProvider{}}})
	assert.Error(t, err)

	_, err = New([]Agent{{ID: "a"}})
	assert.Error(t, err)

	_, err = New([]Agent{{ID: "a", Provider: &fakeProvider{}}, {ID: "a", Provider: &fakeProvider{}}})
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	disabled := false
	cfg := model.DefaultConfig()
	cfg.Agents = []model.AgentConfig{
		{ID: "local", Provider: "ollama", Model: "llama3"},
		{ID: "off", Provider: "ollama", Model: "mistral", Enabled: &disabled},
	}

	c, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"local"}, c.AgentIDs())

	cfg.Agents = append(cfg.Agents, model.AgentConfig{ID: "broken", Provider: "nope"})
	_, err = FromConfig(cfg)
	assert.Error(t, err)
}

func TestBroadcast(t *testing.T) {
	c := newCoordinator(t,
		Agent{ID: "a", Provider: &fakeProvider{}},
		Agent{ID: "b", Provider: &fakeProvider{}},
	)

	prompts := c.Broadcast("sys", "user", true)
	require.Len(t, prompts, 2)
	assert.Equal(t, Prompt{AgentID: "a", System: "sys", User: "user", JSON: true}, prompts[0])
	assert.Equal(t, "b", prompts[1].AgentID)
}

func TestProbe(t *testing.T) {
	c := newCoordinator(t,
		Agent{ID: "up", Provider: &fakeProvider{name: "openai"}},
		Agent{ID: "down", Provider: &fakeProvider{name: "ollama", err: errors.New("connection refused")}},
	)

	statuses := c.Probe(context.Background())

	assert.Equal(t, []AgentStatus{
		{AgentID: "up", Provider: "openai", Available: true},
		{AgentID: "down", Provider: "ollama", Available: false},
	}, statuses)
}
