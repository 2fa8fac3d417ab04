package store

import (
	"context"
	"errors"
	"time"

	"github.com/googleapis/gax-go/v2"
)

// RetryPolicy bounds how often a read is retried.
type RetryPolicy struct {
	Attempts int
	Backoff  gax.Backoff
}

var DefaultRetry = RetryPolicy{
	Attempts: 4,
	Backoff: gax.Backoff{
		Initial:    100 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
	},
}

// Retry calls fn until it succeeds, returns a permanent error, runs out of
// attempts or ctx ends. ErrNotFound and ErrConflict are permanent.
func Retry(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	bo := p.Backoff
	attempts := max(p.Attempts, 1)

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || permanent(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		if sleepErr := gax.Sleep(ctx, bo.Pause()); sleepErr != nil {
			return errors.Join(err, sleepErr)
		}
	}
	return err
}

func permanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
