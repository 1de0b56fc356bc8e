// Package coordinator dispatches one prompt per agent in parallel and
// collects every agent's raw reply under a single shared deadline.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/concord/internal/llm"
	"github.com/ppiankov/concord/internal/logging"
	"github.com/ppiankov/concord/internal/metrics"
	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/worker"
)

// DefaultTimeout bounds one InvokeAll call, not each agent
const DefaultTimeout = 60 * time.Second

// Agent is a configured model endpoint
type Agent struct {
	ID       string
	Provider llm.Provider

	// RequestsPerSecond caps calls to this agent; zero means unlimited
	RequestsPerSecond float64
}

// Prompt is addressed to one agent
type Prompt struct {
	AgentID string
	System  string
	User    string
	JSON    bool
}

// Options control a single InvokeAll call
type Options struct {
	// Timeout is shared by every agent in the call
	Timeout time.Duration

	// ContinueOnError keeps other agents running after one fails. When false
	// the first failure cancels the rest.
	ContinueOnError bool
}

// Response is one agent's settled outcome. RawText is nil on failure.
type Response struct {
	AgentID  string
	RawText  *string
	Success  bool
	Err      error
	Duration time.Duration
}

// GetError returns the failure, if any
func (r *Response) GetError() error {
	return r.Err
}

// ErrUnknownAgent is returned for prompts addressed to an unconfigured agent
var ErrUnknownAgent = errors.New("unknown agent")

// Coordinator owns the agent set and their rate limits
type Coordinator struct {
	agents  map[string]Agent
	order   []string
	limiter *worker.Limiter
	logger  *zap.Logger
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logging.OrNop(logger)
	}
}

// New creates a coordinator over agents. Agent IDs must be unique.
func New(agents []Agent, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		agents:  make(map[string]Agent, len(agents)),
		limiter: worker.NewLimiter(0, 1),
		logger:  zap.NewNop(),
	}

	for _, a := range agents {
		if a.ID == "" {
			return nil, fmt.Errorf("agent id is required")
		}
		if a.Provider == nil {
			return nil, fmt.Errorf("agent %s: provider is required", a.ID)
		}
		if _, dup := c.agents[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", a.ID)
		}
		c.agents[a.ID] = a
		c.order = append(c.order, a.ID)
		if a.RequestsPerSecond > 0 {
			c.limiter.SetRate(a.ID, a.RequestsPerSecond, 1)
		}
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// FromConfig builds providers for every enabled agent in cfg
func FromConfig(cfg *model.Config, opts ...Option) (*Coordinator, error) {
	var agents []Agent
	for _, ac := range cfg.EnabledAgents() {
		provider, err := llm.NewProvider(llm.ConfigFromAgent(ac, cfg.Consensus.Timeout, cfg.HTTP))
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.ID, err)
		}
		agents = append(agents, Agent{
			ID:                ac.ID,
			Provider:          provider,
			RequestsPerSecond: ac.RequestsPerSecond,
		})
	}
	return New(agents, opts...)
}

// AgentIDs returns the configured agents in configuration order
func (c *Coordinator) AgentIDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

// AgentStatus reports whether an agent's endpoint answered a probe
type AgentStatus struct {
	AgentID   string `json:"agentId"`
	Provider  string `json:"provider"`
	Available bool   `json:"available"`
}

// Probe checks every agent's endpoint concurrently and returns their
// statuses in configuration order
func (c *Coordinator) Probe(ctx context.Context) []AgentStatus {
	statuses := make([]AgentStatus, len(c.order))

	var g errgroup.Group
	for i, id := range c.order {
		agent := c.agents[id]
		g.Go(func() error {
			statuses[i] = AgentStatus{
				AgentID:   agent.ID,
				Provider:  agent.Provider.Name(),
				Available: agent.Provider.IsAvailable(ctx),
			}
			return nil
		})
	}
	_ = g.Wait()

	return statuses
}

// Broadcast addresses the same prompt to every agent
func (c *Coordinator) Broadcast(system, user string, jsonReply bool) []Prompt {
	prompts := make([]Prompt, 0, len(c.order))
	for _, id := range c.order {
		prompts = append(prompts, Prompt{AgentID: id, System: system, User: user, JSON: jsonReply})
	}
	return prompts
}

// InvokeAll runs every prompt concurrently and returns once all have settled
// or the shared deadline passes. The result has one entry per prompt, in
// prompt order.
func (c *Coordinator) InvokeAll(ctx context.Context, prompts []Prompt, opts Options) []Response {
	responses := make([]Response, len(prompts))
	if len(prompts) == 0 {
		return responses
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool := worker.NewPool(callCtx, len(prompts))
	pool.Start()

	for _, p := range prompts {
		pool.Submit(&agentJob{
			coordinator:     c,
			prompt:          p,
			timeout:         timeout,
			continueOnError: opts.ContinueOnError,
			cancel:          cancel,
		})
	}

	results := pool.Wait()

	for i, p := range prompts {
		if i < len(results) && results[i] != nil {
			responses[i] = *results[i].(*Response)
			continue
		}
		// The pool was cancelled before this agent reported
		err := callCtx.Err()
		if err == nil {
			err = context.Canceled
		}
		responses[i] = Response{AgentID: p.AgentID, Err: fmt.Errorf("agent %s: %w", p.AgentID, err)}
	}

	return responses
}

type agentJob struct {
	coordinator     *Coordinator
	prompt          Prompt
	timeout         time.Duration
	continueOnError bool
	cancel          context.CancelFunc
}

func (j *agentJob) Execute(ctx context.Context) worker.Result {
	resp := j.coordinator.invoke(ctx, j.prompt, j.timeout)
	if !resp.Success && !j.continueOnError {
		j.cancel()
	}
	return resp
}

func (c *Coordinator) invoke(ctx context.Context, p Prompt, timeout time.Duration) *Response {
	resp := &Response{AgentID: p.AgentID}

	agent, ok := c.agents[p.AgentID]
	if !ok {
		resp.Err = fmt.Errorf("%w: %s", ErrUnknownAgent, p.AgentID)
		return resp
	}

	if err := c.limiter.Wait(ctx, agent.ID); err != nil {
		resp.Err = deadlineError(ctx, err, timeout)
		return resp
	}

	start := time.Now()
	out, err := agent.Provider.Complete(ctx, llm.CompletionRequest{
		System: p.System,
		Prompt: p.User,
		JSON:   p.JSON,
	})
	resp.Duration = time.Since(start)
	metrics.AgentLatency.WithLabelValues(agent.ID).Observe(resp.Duration.Seconds())

	if err != nil {
		resp.Err = deadlineError(ctx, err, timeout)
		metrics.AgentCalls.WithLabelValues(agent.ID, "error").Inc()
		c.logger.Debug("agent call failed",
			zap.String("agent", agent.ID),
			zap.Duration("duration", resp.Duration),
			zap.Error(resp.Err))
		return resp
	}

	text := out.Text
	resp.RawText = &text
	resp.Success = true
	metrics.AgentCalls.WithLabelValues(agent.ID, "success").Inc()
	c.logger.Debug("agent call succeeded",
		zap.String("agent", agent.ID),
		zap.Duration("duration", resp.Duration),
		zap.Int("tokens", out.TokensUsed))

	return resp
}

// deadlineError makes an expired shared deadline recognizable with
// errors.Is(err, context.DeadlineExceeded) whatever the transport wrapped.
func deadlineError(ctx context.Context, err error, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timeout after %s: %w (%v)", timeout, context.DeadlineExceeded, err)
	}
	return err
}
