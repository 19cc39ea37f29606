package llm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ReusesHandleForSameKey(t *testing.T) {
	pool := NewPool("test-key", 4)

	a, err := pool.Get("gpt-4", Options{Temperature: 0.1, MaxTokens: 100})
	require.NoError(t, err)
	b, err := pool.Get("gpt-4", Options{Temperature: 0.1, MaxTokens: 100})
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, pool.Size())
}

func TestPool_DistinctConfigsGetDistinctHandles(t *testing.T) {
	pool := NewPool("test-key", 4)

	a, err := pool.Get("gpt-4", Options{Temperature: 0.1})
	require.NoError(t, err)
	b, err := pool.Get("gpt-4", Options{Temperature: 0.9})
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, pool.Size())
}

func TestPool_RejectsWhenFull(t *testing.T) {
	pool := NewPool("test-key", 2)

	for i := 0; i < 2; i++ {
		_, err := pool.Get(fmt.Sprintf("model-%d", i), Options{})
		require.NoError(t, err)
	}

	_, err := pool.Get("model-overflow", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full")

	// Existing handles stay reachable even when the pool is full.
	_, err = pool.Get("model-0", Options{})
	assert.NoError(t, err)
}

func TestPool_DefaultSize(t *testing.T) {
	pool := NewPool("test-key", 0)

	for i := 0; i < 4; i++ {
		_, err := pool.Get(fmt.Sprintf("model-%d", i), Options{})
		require.NoError(t, err)
	}
	_, err := pool.Get("model-4", Options{})
	assert.Error(t, err)
}
