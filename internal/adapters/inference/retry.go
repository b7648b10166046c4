package inference

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds retries of transient provider failures. The source
// system retried forever; here exhaustion surfaces as a normal permanent
// failure instead.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the backoff before the second attempt; it doubles per
	// attempt up to MaxDelay, with jitter.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

func (p RetryPolicy) sanitized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// delayFor computes the jittered backoff before the next attempt (1-based).
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	// Half fixed, half jitter, so concurrent workers spread out.
	half := delay / 2
	return half + rand.N(half+1)
}

// do runs fn under the retry policy, classifying each failure. Transient
// failures are retried up to MaxAttempts with exponential backoff; permanent
// failures return immediately; unknown failures are appended to the durable
// error log tagged with op, then returned without retry.
func (c *Client) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		switch ClassifyFailure(err) {
		case FailurePermanent:
			return fmt.Errorf("%s: %w", op, err)
		case FailureUnknown:
			if c.errLog != nil {
				if logErr := c.errLog.Write(op, err); logErr != nil && c.logger != nil {
					c.logger.ErrorContext(ctx, "write unhandled error log", "op", op, "error", logErr)
				}
			}
			return fmt.Errorf("%s: %w", op, err)
		case FailureTransient:
			// fall through to backoff
		}

		if attempt >= c.retry.MaxAttempts {
			return fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, attempt, err)
		}
		if c.logger != nil {
			c.logger.WarnContext(ctx, "transient provider failure, retrying",
				"op", op, "attempt", attempt, "error", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(c.retry.delayFor(attempt)):
		}
	}
}
