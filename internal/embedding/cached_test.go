package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	vectors map[string][]float32
	getErr  error
	setErr  error
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{vectors: make(map[string][]float32)}
}

func (f *fakeCache) GetEmbedding(_ context.Context, key string) ([]float32, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	vec, ok := f.vectors[key]
	return vec, ok, nil
}

func (f *fakeCache) SetEmbedding(_ context.Context, key string, embedding []float32, _ time.Duration) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.vectors[key] = embedding
	return nil
}

func TestCachedProvider_SecondCallServedFromCache(t *testing.T) {
	inner := &fakeProvider{embedFn: func(texts []string) ([][]float32, error) {
		return vectorsFor(texts), nil
	}}
	cached := NewCachedProvider(inner, newFakeCache(), time.Hour)

	first, err := cached.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := cached.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// Only the first call reached the inner provider.
	assert.Len(t, inner.calls, 1)
}

func TestCachedProvider_PartialHitEmbedsOnlyMisses(t *testing.T) {
	inner := &fakeProvider{embedFn: func(texts []string) ([][]float32, error) {
		return vectorsFor(texts), nil
	}}
	cached := NewCachedProvider(inner, newFakeCache(), time.Hour)

	_, err := cached.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)

	vectors, err := cached.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"b"}, inner.calls[1])
}

func TestCachedProvider_ReadFailureDegradesToMiss(t *testing.T) {
	inner := &fakeProvider{embedFn: func(texts []string) ([][]float32, error) {
		return vectorsFor(texts), nil
	}}
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	cached := NewCachedProvider(inner, cache, time.Hour)

	vectors, err := cached.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Len(t, inner.calls, 1)
}

func TestCachedProvider_WriteFailureTolerated(t *testing.T) {
	inner := &fakeProvider{embedFn: func(texts []string) ([][]float32, error) {
		return vectorsFor(texts), nil
	}}
	cache := newFakeCache()
	cache.setErr = errors.New("redis down")
	cached := NewCachedProvider(inner, cache, time.Hour)

	vectors, err := cached.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, 1, cache.sets)
}

func TestCachedProvider_ShortInnerResponseErrors(t *testing.T) {
	inner := &fakeProvider{embedFn: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0}}, nil
	}}
	cached := NewCachedProvider(inner, newFakeCache(), time.Hour)

	_, err := cached.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)

	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, "cache-fill", embErr.Op)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestCachedProvider_InnerErrorPropagates(t *testing.T) {
	inner := &fakeProvider{embedFn: func(texts []string) ([][]float32, error) {
		return nil, errors.New("provider down")
	}}
	cached := NewCachedProvider(inner, newFakeCache(), time.Hour)

	_, err := cached.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}
