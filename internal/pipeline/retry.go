package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/googleapis/gax-go/v2"
)

// RetryPolicy bounds retries of transient external-call failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy mirrors the upload retry loop: four attempts starting at
// one second and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
	}
}

// Do calls op until it succeeds, fails permanently, or the attempt budget is
// spent. It returns the number of attempts made. A transient error that
// exhausts the budget comes back demoted to permanent.
func (p RetryPolicy) Do(ctx context.Context, stage Stage, op func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	bo := gax.Backoff{
		Initial:    p.InitialBackoff,
		Max:        p.MaxBackoff,
		Multiplier: p.Multiplier,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if !IsTransient(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}

		pause := bo.Pause()
		slog.Warn(
			"Call failed, will retry.",
			"stage", stage,
			"attempt", attempt,
			"maxAttempts", maxAttempts,
			"backoff", pause.String(),
			"error", lastErr,
		)
		if err := gax.Sleep(ctx, pause); err != nil {
			return attempt, Permanent(stage, fmt.Errorf("retry aborted: %w", err))
		}
	}
	return maxAttempts, Permanent(stage, fmt.Errorf("gave up after %d attempts: %w", maxAttempts, lastErr))
}
