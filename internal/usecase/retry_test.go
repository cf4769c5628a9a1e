//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{Attempts: 4}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("attempt failed")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.EqualError(t, err, "attempt failed")
}

func TestRetry_StopsOnSuccess(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), RetryPolicy{Attempts: 3}, func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Retry(ctx, RetryPolicy{Attempts: 3, BaseDelay: time.Hour}, func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("down")
		})
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, time.Second, p.Delay(0, 0))
	assert.Equal(t, 2*time.Second+500*time.Millisecond, p.Delay(1, 0.5))
	assert.Equal(t, 4*time.Second, p.Delay(2, 0))
}
