package pacing

import (
	"context"
	"sync"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/metrics"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	"golang.org/x/time/rate"
)

// Controller owns the mutable delay of one (provider, tier). All mutation
// goes through its mutex, and every caller waits on the same limiter, so
// concurrent flows against one provider are spaced by a single schedule.
type Controller struct {
	profile Profile

	mu        sync.Mutex
	current   time.Duration
	successes int
	limiter   *rate.Limiter

	logger *logger_i.Logger
}

func NewController(p Profile) *Controller {
	p = p.withDefaults()
	return &Controller{
		profile: p,
		limiter: rate.NewLimiter(rate.Every(p.Floor), 1),
		logger:  logger_i.NewLogger("pacing").With("profile", p.Key()),
	}
}

func (c *Controller) Profile() Profile { return c.profile }

// Delay is the wait that precedes a call of the given size. It never drops
// below the static base delay for that size.
func (c *Controller) Delay(tokens int) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effective(tokens)
}

func (c *Controller) effective(tokens int) time.Duration {
	base := c.profile.BaseDelay(tokens)
	if c.current > base {
		return c.current
	}
	return base
}

// Wait blocks until the next call of the given size may start and returns
// the delay it applied.
func (c *Controller) Wait(ctx context.Context, tokens int) (time.Duration, error) {
	c.mu.Lock()
	d := c.effective(tokens)
	limiter := c.limiter
	if d > 0 {
		limiter.SetLimit(rate.Every(d))
	}
	c.mu.Unlock()

	if d <= 0 {
		return 0, ctx.Err()
	}

	if err := limiter.Wait(ctx); err != nil {
		return d, err
	}
	return d, nil
}

// OnRateLimited raises the delay for this profile. The new delay is the
// largest of the multiplied delay, the provider's retry hint and one
// minimum step above the old delay, capped at the ceiling. The limiter is
// drained so the retry waits the full new delay.
func (c *Controller) OnRateLimited(retryAfter time.Duration, tokens int) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.effective(tokens)
	next := time.Duration(float64(before) * c.profile.Factor)
	if retryAfter > next {
		next = retryAfter
	}
	if step := before + c.profile.MinStep; step > next {
		next = step
	}
	if next > c.profile.Ceiling {
		next = c.profile.Ceiling
	}
	if next < before {
		next = before
	}
	c.current = next
	c.successes = 0

	c.limiter = rate.NewLimiter(rate.Every(next), 1)
	c.limiter.Allow()

	metrics.IncrementRateLimited(c.profile.Provider)
	metrics.SetPacingDelay(c.profile.Key(), next)
	c.logger.Warn("throttled, delay raised", "from", before, "to", next, "retryAfter", retryAfter)
	return next
}

// OnSuccess counts consecutive successes and, after enough of them, decays
// the adaptive delay back toward the base.
func (c *Controller) OnSuccess(tokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == 0 {
		return
	}
	c.successes++
	if c.successes < c.profile.DecayAfter {
		return
	}
	c.successes = 0

	base := c.profile.BaseDelay(tokens)
	next := time.Duration(float64(c.current) / c.profile.Factor)
	if next <= base {
		next = 0
	}
	c.logger.Debug("delay decayed", "from", c.current, "to", next)
	c.current = next
	metrics.SetPacingDelay(c.profile.Key(), c.effective(tokens))
}

// Adaptive is the raised delay, 0 when the controller runs at base.
func (c *Controller) Adaptive() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
