package remote

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls the backoff applied to connection establishment.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	InitialWait time.Duration // wait before the second attempt
	MaxWait     time.Duration
	Multiplier  float64
	Jitter      float64 // 0-1
}

// DefaultRetryPolicy allows three attempts with exponential waits from one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		InitialWait: time.Second,
		MaxWait:     30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// transientError marks a failure worth another attempt.
type transientError struct {
	err error
}

func (e transientError) Error() string { return e.err.Error() }

func (e transientError) Unwrap() error { return e.err }

func transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

func (p RetryPolicy) wait(attempt int) time.Duration {
	wait := float64(p.InitialWait) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxWait > 0 && wait > float64(p.MaxWait) {
		wait = float64(p.MaxWait)
	}
	if p.Jitter > 0 {
		wait += wait * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(wait)
}

// withRetry runs attempt until it succeeds, returns a permanent error, or the
// policy runs out of attempts. Every failure comes back as *ConnectionError.
func withRetry(ctx context.Context, p RetryPolicy, log *zap.Logger, server string, attempt func(context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		err := attempt(ctx)
		if err == nil {
			return nil
		}

		var t transientError
		if errors.As(err, &t) {
			lastErr = t.err
		} else {
			return &ConnectionError{Server: server, Err: err}
		}

		if n == maxAttempts {
			break
		}
		if ctx.Err() != nil {
			return &ConnectionError{Server: server, Err: ctx.Err()}
		}

		log.Info("retrying connection",
			zap.Int("attempt", n+1),
			zap.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return &ConnectionError{Server: server, Err: ctx.Err()}
		case <-time.After(p.wait(n)):
		}
	}

	log.Error("connection failed after retries",
		zap.Int("attempts", maxAttempts),
		zap.Error(lastErr),
	)
	return &ConnectionError{Server: server, Err: lastErr}
}
