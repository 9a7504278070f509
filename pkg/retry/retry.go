// Package retry runs an operation again when it fails with a transient error,
// sleeping with exponential backoff and jitter between attempts.
package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 50 * time.Millisecond
	defaultMaxDelay    = time.Second
)

// Policy bounds how many times and how long an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Defaults to pkgerrors.IsTransient.
	Retryable func(error) bool
	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Retryable == nil {
		p.Retryable = pkgerrors.IsTransient
	}
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	p := policy.withDefaults()

	var err error
	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !p.Retryable(err) || attempt >= p.MaxAttempts {
			return err
		}

		// Additive jitter: the wait lands in [delay, 1.5*delay).
		wait := Jitter(delay, delay/2)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if sleepErr := Sleep(ctx, wait); sleepErr != nil {
			return err
		}
		delay = NextBackoff(delay, p.BaseDelay, p.MaxDelay)
	}
}

// NextBackoff doubles current, starting from base and capped at max.
func NextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Jitter adds a random duration in [0, window) to d.
func Jitter(d, window time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if window <= 0 {
		return d
	}
	jitterMu.Lock()
	extra := time.Duration(jitterSource.Int63n(int64(window)))
	jitterMu.Unlock()
	return d + extra
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
