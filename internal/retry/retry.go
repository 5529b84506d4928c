// Package retry wraps calls to external collaborators (store, vector index,
// feedback channel, AI client) with bounded exponential backoff and jitter.
package retry

import (
	"context"
	"math/rand"
	"time"

	"finlens/statement-ledger/internal/parsererror"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger allows setting a configured logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// Policy holds the backoff parameters. Zero values fall back to defaults.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy matches the configured defaults.
var DefaultPolicy = Policy{
	MaxAttempts:  5,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultPolicy.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	return p
}

// Do runs fn under the policy. Between attempts the delay doubles, capped
// at MaxDelay, with up to 50% random jitter added. Context cancellation
// stops the wait immediately. When all attempts fail the last error is
// wrapped in an ExternalServiceError naming the collaborator.
func Do(ctx context.Context, p Policy, name string, fn func(ctx context.Context) error) error {
	p = p.normalized()

	var lastErr error
	delay := p.InitialDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == p.MaxAttempts {
			break
		}

		log.WithFields(logrus.Fields{
			"service": name,
			"attempt": attempt,
			"error":   lastErr,
		}).Warn("External call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(withJitter(delay)):
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return &parsererror.ExternalServiceError{
		Service:  name,
		Attempts: p.MaxAttempts,
		Err:      lastErr,
	}
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}
