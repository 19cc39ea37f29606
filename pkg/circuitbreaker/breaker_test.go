package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing(b *Breaker) error {
	return b.Execute(context.Background(), func() error { return errBoom })
}

func succeeding(b *Breaker) error {
	return b.Execute(context.Background(), func() error { return nil })
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New("test", Config{FailureThreshold: 2, OpenTimeout: time.Minute})

	require.Error(t, failing(b))
	assert.Equal(t, StateClosed, b.State())

	require.Error(t, failing(b))
	assert.Equal(t, StateOpen, b.State())

	err := succeeding(b)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("test", Config{FailureThreshold: 2})

	require.Error(t, failing(b))
	require.NoError(t, succeeding(b))
	require.Error(t, failing(b))

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAfterTimeoutThenCloses(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond})

	require.Error(t, failing(b))
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, succeeding(b))
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, succeeding(b))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, OpenTimeout: 10 * time.Millisecond})

	require.Error(t, failing(b))
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	require.Error(t, failing(b))
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_CancelledContext(t *testing.T) {
	b := New("test", Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func() error {
		t.Fatal("should not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
