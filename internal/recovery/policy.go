package recovery

import (
	"math"
	"time"

	"github.com/ppiankov/concord/internal/model"
)

// Policy defines per-agent retry behavior
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultPolicy returns the default retry policy
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

// PolicyOption configures a policy
type PolicyOption func(*Policy)

// WithMaxRetries sets the maximum number of retries per agent
func WithMaxRetries(n int) PolicyOption {
	return func(p *Policy) {
		p.MaxRetries = n
	}
}

// WithBaseDelay sets the initial delay
func WithBaseDelay(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.BaseDelay = d
	}
}

// WithMaxDelay sets the delay cap
func WithMaxDelay(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.MaxDelay = d
	}
}

// WithMultiplier sets the exponential multiplier
func WithMultiplier(m float64) PolicyOption {
	return func(p *Policy) {
		p.Multiplier = m
	}
}

// NewPolicy creates a policy from the defaults and options
func NewPolicy(opts ...PolicyOption) Policy {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// PolicyFromConfig builds a policy from retry settings. MaxRetries is taken
// as given; BaseDelay, MaxDelay and Multiplier keep their defaults when not
// positive.
func PolicyFromConfig(cfg model.RetryConfig) Policy {
	p := DefaultPolicy()
	p.MaxRetries = cfg.MaxRetries
	if cfg.BaseDelay > 0 {
		p.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		p.MaxDelay = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		p.Multiplier = cfg.Multiplier
	}
	return p
}

// Backoff returns min(MaxDelay, BaseDelay * Multiplier^retryCount)
func (p Policy) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retryCount))
	if delay > float64(p.MaxDelay) || math.IsInf(delay, 1) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
