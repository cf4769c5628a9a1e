package usecase

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds a local retry loop. The delay before retry k
// (0-based failed attempt) is BaseDelay*2^k plus a uniform jitter in
// [0, Jitter).
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	Jitter    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Second, Jitter: time.Second}
}

// Delay returns the wait after failed attempt k given a sample r in [0,1).
func (p RetryPolicy) Delay(k int, r float64) time.Duration {
	d := p.BaseDelay << uint(k)
	return d + time.Duration(r*float64(p.Jitter))
}

// Retry calls fn until it succeeds, the policy is exhausted or ctx ends.
// The last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var (
		out T
		err error
	)
	for k := 0; k < attempts; k++ {
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if k == attempts-1 {
			break
		}
		t := time.NewTimer(p.Delay(k, rand.Float64()))
		select {
		case <-ctx.Done():
			t.Stop()
			return out, ctx.Err()
		case <-t.C:
		}
	}
	return out, err
}
