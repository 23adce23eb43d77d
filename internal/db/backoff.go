// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff produces the wait between connection attempts.
type Backoff interface {
	// NewBackOff returns a fresh policy for one series of attempts.
	NewBackOff() backoff.BackOff
}

// ConstBackoff waits a fixed duration between a bounded number of attempts.
type ConstBackoff struct {
	DurationMs time.Duration
	MaxRetries uint64
}

func (b ConstBackoff) NewBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond*b.DurationMs), b.MaxRetries)
}

// ExpBackoff grows the wait exponentially until MaxElapsed has passed.
type ExpBackoff struct {
	MaxElapsed time.Duration
}

func (b ExpBackoff) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 250 * time.Millisecond
	eb.MaxElapsedTime = b.MaxElapsed
	if eb.MaxElapsedTime == 0 {
		eb.MaxElapsedTime = 30 * time.Second
	}
	return eb
}

func permanent(err error) error {
	return backoff.Permanent(err)
}

func retry(ctx context.Context, b Backoff, f func() error) error {
	if b == nil {
		return f()
	}
	return backoff.Retry(f, backoff.WithContext(b.NewBackOff(), ctx))
}
