package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxAttempts int) Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("always failing")
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return wantErr
	})
	require.Error(t, err)
	assert.Equal(t, wantErr, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	wantErr := errors.New("bad request")
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return Permanent(wantErr)
	})
	require.Error(t, err)
	// The permanent wrapper is removed before the error is returned.
	assert.Equal(t, wantErr, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastConfig(3), func() error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestBackoff_CappedAtMaxDelay(t *testing.T) {
	cfg := Config{
		InitialDelay:   time.Second,
		MaxDelay:       2 * time.Second,
		Multiplier:     10,
		JitterFraction: 0,
	}
	assert.Equal(t, 2*time.Second, backoff(cfg, 5))
}
