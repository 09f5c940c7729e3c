package speech

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxAttempts  = 60
)

// StatusChecker is the slice of Client the poll loop needs.
type StatusChecker interface {
	CheckJobStatus(ctx context.Context) (StatusResponse, error)
}

type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	Logger      *zap.Logger

	// Sleep replaces the inter-attempt wait, so tests can run the full
	// scenario matrix without real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// WaitForCompletion polls the job state at a fixed cadence until it reaches a
// terminal state or the attempt ceiling. The interval is deliberately
// constant: the remote service rate-limits on fixed cadence assumptions, so
// no backoff or jitter is applied.
//
// A failed status check counts as an attempt and polling continues; the only
// retry in the whole workflow is this loop's own re-attempt cadence.
func WaitForCompletion(ctx context.Context, checker StatusChecker, opts PollOptions) error {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		status, err := checker.CheckJobStatus(ctx)
		if err != nil {
			opts.Logger.Warn("status check failed, continuing to poll",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", opts.MaxAttempts),
				zap.Error(err))
		} else {
			switch status.State {
			case StateCompleted:
				opts.Logger.Info("job completed", zap.Int("attempts", attempt))
				return nil
			case StateFailed:
				return &RemoteJobError{Message: status.ErrorMessage}
			default:
				opts.Logger.Info("job still in progress",
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", opts.MaxAttempts),
					zap.String("state", status.RawState))
			}
		}

		if attempt == opts.MaxAttempts {
			break
		}
		if err := opts.Sleep(ctx, opts.Interval); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrPollTimeout, opts.MaxAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
