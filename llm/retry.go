package llm

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/c360studio/workbench/model"
)

// RetryConfig bounds how often one model endpoint is retried before the
// client moves down the capability's fallback chain. Validation runs while a
// user waits on a lock action, so the defaults give up on an endpoint fast.
type RetryConfig struct {
	// MaxAttempts is the number of calls made to one endpoint.
	MaxAttempts int

	// BackoffBase is the wait after the first failed call.
	BackoffBase time.Duration

	// BackoffMultiplier grows the wait on each later failure.
	BackoffMultiplier float64

	// MaxBackoff caps the wait.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the retry bounds used when none are configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		BackoffBase:       500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        4 * time.Second,
	}
}

// withDefaults fills unset bounds from DefaultRetryConfig.
func (rc RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = d.MaxAttempts
	}
	if rc.BackoffBase <= 0 {
		rc.BackoffBase = d.BackoffBase
	}
	if rc.BackoffMultiplier < 1 {
		rc.BackoffMultiplier = d.BackoffMultiplier
	}
	if rc.MaxBackoff < rc.BackoffBase {
		rc.MaxBackoff = rc.BackoffBase
	}
	return rc
}

// backoff returns the wait after failed call number attempt, with +/-25%
// jitter so validators sharing an endpoint do not retry in step.
func (rc RetryConfig) backoff(attempt int) time.Duration {
	wait := float64(rc.BackoffBase)
	for i := 1; i < attempt; i++ {
		wait *= rc.BackoffMultiplier
	}
	if wait > float64(rc.MaxBackoff) {
		wait = float64(rc.MaxBackoff)
	}
	return time.Duration(wait + wait*0.25*(rand.Float64()*2-1))
}

// retryable reports whether calling the same endpoint again can help.
// Auth and bad-request errors say nothing about endpoint health.
func (rc RetryConfig) retryable(err error, attempt int) bool {
	return attempt < rc.MaxAttempts && !IsFatal(err)
}

// tryEndpoint calls one endpoint until it answers or the retry bounds run
// out, and returns the number of calls made. Exhausting the bounds counts
// as one failure against the endpoint's circuit.
func (c *Client) tryEndpoint(ctx context.Context, ep *model.EndpointConfig, modelName string, req Request) (*Response, int, error) {
	rc := c.retryConfig.withDefaults()
	for attempt := 1; ; attempt++ {
		resp, err := c.doRequest(ctx, ep, req)
		if err == nil {
			c.registry.MarkEndpointSuccess(modelName)
			return resp, attempt, nil
		}
		if IsFatal(err) {
			return nil, attempt, err
		}
		if !rc.retryable(err, attempt) {
			c.registry.MarkEndpointFailure(modelName)
			return nil, attempt, err
		}

		wait := rc.backoff(attempt)
		c.logger.Debug("Model call failed, retrying endpoint",
			"capability", req.Capability,
			"model", modelName,
			"provider", ep.Provider,
			"attempt", attempt,
			"max_attempts", rc.MaxAttempts,
			"backoff", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(wait):
		}
	}
}
