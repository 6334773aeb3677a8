package runner

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollExhausted is returned by Poll when the condition never held.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// HTTPError represents an HTTP request failure with status details.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// FailureLogger logs failed connections and requests.
type FailureLogger interface {
	LogFailure(err error)
}

// PollPolicy configures how long a correlation wait keeps checking.
type PollPolicy struct {
	Attempts    int           // total checks including the first one
	Interval    time.Duration // delay before the second check
	Multiplier  float64       // interval growth per attempt (<=1 keeps it fixed)
	MaxInterval time.Duration // cap for the grown interval (0 means no cap)
}

// DefaultPollPolicy checks every 100ms for up to five seconds.
var DefaultPollPolicy = PollPolicy{Attempts: 50, Interval: 100 * time.Millisecond}

// delay returns the wait after the given 1-based attempt.
func (p PollPolicy) delay(attempt int) time.Duration {
	d := p.Interval
	if p.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * p.Multiplier)
			if p.MaxInterval > 0 && d >= p.MaxInterval {
				return p.MaxInterval
			}
		}
	}
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// Poll evaluates cond until it returns true, the attempts run out or ctx is
// done. It returns nil on success, ErrPollExhausted when the policy ran out
// and ctx.Err() on cancellation.
func Poll(ctx context.Context, policy PollPolicy, cond func() bool) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if cond() {
			return nil
		}

		// Don't delay after the last attempt.
		if attempt < policy.Attempts {
			if delay := policy.delay(attempt); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
			}
		}
	}
	return ErrPollExhausted
}
