package analysis

import (
	"context"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/internal/metrics"
	"github.com/akolanti/ChatAnalyzer/internal/pacing"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// Caller makes follow-up calls (summaries, extraction, header checks) under
// the same pacing and retry policy as chunk analysis, without per chunk
// persistence.
type Caller struct {
	provider     llm.Provider
	pacer        *pacing.Controller
	estimator    pacing.TokenEstimator
	retryCeiling int
	logger       *logger_i.Logger
}

func NewCaller(provider llm.Provider, pacer *pacing.Controller, estimator pacing.TokenEstimator, retryCeiling int) *Caller {
	if estimator == nil {
		estimator = pacing.CharEstimator{}
	}
	if retryCeiling < 0 {
		retryCeiling = config.RetryCeiling
	}
	return &Caller{
		provider:     provider,
		pacer:        pacer,
		estimator:    estimator,
		retryCeiling: retryCeiling,
		logger:       logger_i.NewLogger("caller"),
	}
}

func (c *Caller) Provider() llm.Provider { return c.provider }

// Call returns the model output, retrying rate limited and transient
// failures up to the ceiling. The returned error is always a *llm.CallError
// or a context error.
func (c *Caller) Call(ctx context.Context, req llm.Request) (string, error) {
	return c.call(ctx, req, c.retryCeiling)
}

// CallOnce makes exactly one paced call.
func (c *Caller) CallOnce(ctx context.Context, req llm.Request) (string, error) {
	return c.call(ctx, req, 0)
}

func (c *Caller) call(ctx context.Context, req llm.Request, retries int) (string, error) {
	tokens := c.estimator.EstimateTokens(req.Prompt + req.Text)
	for attempt := 1; ; attempt++ {
		if _, err := c.pacer.Wait(ctx, tokens); err != nil {
			return "", err
		}
		start := time.Now()
		out, err := c.provider.Analyze(ctx, req)
		metrics.CaptureExecutionMetrics(c.provider.Name(), time.Since(start))
		if err == nil {
			c.pacer.OnSuccess(tokens)
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		classified := llm.Classify(err)
		if classified.Class == llm.RateLimited {
			c.pacer.OnRateLimited(classified.RetryAfter, tokens)
		}
		if !classified.Retryable() || attempt > retries {
			return "", classified
		}
		c.logger.Warn("retrying follow-up call", "class", classified.Class, "attempt", attempt)
	}
}
