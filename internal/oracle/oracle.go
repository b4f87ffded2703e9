// Package oracle wraps the external text generation service behind a
// synchronous request/response contract. Grammar conformance of replies is
// never checked here; only transport health is.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/scenegen/internal/metrics"
)

// #region types

// Role tags a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Oracle is the capability every pipeline stage calls.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Invoke(ctx context.Context, messages []Message) (string, error)
}

// FinishStop is the only normal completion reason.
const FinishStop = "stop"

// Completion is one raw backend reply.
type Completion struct {
	Text         string
	FinishReason string
}

// Backend performs a single completion call against a concrete service.
type Backend interface {
	Name() string
	Complete(ctx context.Context, model string, messages []Message) (Completion, error)
}

// #endregion types

// #region errors

// TransportError is returned after every attempt ended abnormally. It is the
// only hard failure the pipeline propagates.
type TransportError struct {
	Backend  string
	Attempts int
	Last     string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oracle %s: %d attempts failed: %v", e.Backend, e.Attempts, e.Err)
	}
	return fmt.Sprintf("oracle %s: %d attempts failed: finish reason %q", e.Backend, e.Attempts, e.Last)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err carries a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// #endregion errors

// #region client

// DefaultAttempts is the transport retry count per call.
const DefaultAttempts = 5

// Client adapts a Backend to the Oracle contract, retrying abnormal
// completions.
type Client struct {
	backend  Backend
	model    string
	attempts int
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAttempts overrides the transport retry count.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithRateLimit caps calls per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient binds backend and model name.
func NewClient(backend Backend, model string, opts ...Option) *Client {
	c := &Client{
		backend:  backend,
		model:    model,
		attempts: DefaultAttempts,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("oracle").With(zap.String("backend", backend.Name()), zap.String("model", model))
	return c
}

// Generate sends a single user prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.Invoke(ctx, []Message{User(prompt)})
}

// Invoke sends a conversation and returns the reply with trailing whitespace
// removed.
func (c *Client) Invoke(ctx context.Context, messages []Message) (string, error) {
	var last Completion
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limit: %w", err)
			}
		}
		start := time.Now()
		comp, err := c.backend.Complete(ctx, c.model, messages)
		metrics.OracleLatency.WithLabelValues(c.backend.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			metrics.OracleCalls.WithLabelValues(c.backend.Name(), "error").Inc()
			c.logger.Warn("completion failed", zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			continue
		}
		if comp.FinishReason != FinishStop {
			metrics.OracleCalls.WithLabelValues(c.backend.Name(), "abnormal").Inc()
			c.logger.Warn("abnormal finish", zap.Int("attempt", attempt), zap.String("finish_reason", comp.FinishReason))
			last, lastErr = comp, nil
			continue
		}
		metrics.OracleCalls.WithLabelValues(c.backend.Name(), "stop").Inc()
		return strings.TrimRight(comp.Text, " \t\r\n"), nil
	}
	return "", &TransportError{
		Backend:  c.backend.Name(),
		Attempts: c.attempts,
		Last:     last.FinishReason,
		Err:      lastErr,
	}
}

// #endregion client

// #region router

// Router picks an oracle per pipeline stage, falling back to a default.
type Router struct {
	Default Oracle
	Stages  map[string]Oracle
}

// For returns the oracle configured for stage.
func (r Router) For(stage string) Oracle {
	if o, ok := r.Stages[stage]; ok && o != nil {
		return o
	}
	return r.Default
}

// #endregion router
