package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/knowledgehub/backend/internal/metrics"
	"github.com/knowledgehub/backend/pkg/logger"
	"github.com/knowledgehub/backend/pkg/utils"
)

// Cache is the vector store the cached provider reads through. The redis
// client implements it.
type Cache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, embedding []float32, ttl time.Duration) error
}

// CachedProvider wraps a Provider with a read-through cache. Keys are
// derived from (model, text) so a model change can never serve stale vectors.
type CachedProvider struct {
	inner Provider
	cache Cache
	ttl   time.Duration
}

func NewCachedProvider(inner Provider, cache Cache, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedProvider{inner: inner, cache: cache, ttl: ttl}
}

func (c *CachedProvider) Model() string  { return c.inner.Model() }
func (c *CachedProvider) Dimension() int { return c.inner.Dimension() }

func (c *CachedProvider) Ping(ctx context.Context) error { return c.inner.Ping(ctx) }

func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := c.key(text)
		vec, ok, err := c.cache.GetEmbedding(ctx, key)
		if err != nil {
			// Cache trouble degrades to a miss, never to a failed embed.
			logger.Warn("Embedding cache read failed", zap.Error(err))
		}
		if ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			vectors[i] = vec
			continue
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, &EmbeddingError{
			Op:  "cache-fill",
			Err: fmt.Errorf("vector count mismatch: got %d, want %d", len(fresh), len(missTexts)),
		}
	}

	for j, idx := range missIdx {
		vectors[idx] = fresh[j]
		if err := c.cache.SetEmbedding(ctx, c.key(texts[idx]), fresh[j], c.ttl); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}

	return vectors, nil
}

func (c *CachedProvider) key(text string) string {
	return utils.HashKey(c.inner.Model(), text)
}
