package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/knowledgehub/backend/pkg/logger"
)

// Provider turns text into fixed-dimension vectors. Implementations must be
// deterministic for a given model version; vectors are only comparable to
// vectors produced by the same model, so Model is part of the contract.
type Provider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
	Ping(ctx context.Context) error
}

// EmbeddingError reports a rejected input or an unavailable provider.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string { return fmt.Sprintf("embedding %s: %v", e.Op, e.Err) }
func (e *EmbeddingError) Unwrap() error { return e.Err }

// EmbedAll embeds texts in batches of batchSize (everything at once when
// batchSize <= 0). When a batch fails its items are retried individually, so
// one malformed item cannot sink the whole batch. It fails if any item still
// cannot be embedded: a document must never be indexed with missing vectors.
func EmbedAll(ctx context.Context, p Provider, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := embedBatch(ctx, p, texts[start:end], start)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func embedBatch(ctx context.Context, p Provider, texts []string, offset int) ([][]float32, error) {
	vectors, err := p.Embed(ctx, texts)
	if err == nil {
		if len(vectors) != len(texts) {
			return nil, &EmbeddingError{
				Op:  "batch",
				Err: fmt.Errorf("vector count mismatch: got %d, want %d", len(vectors), len(texts)),
			}
		}
		return vectors, nil
	}

	logger.Warn("Batch embedding failed, retrying items individually",
		zap.Int("batch_size", len(texts)),
		zap.Error(err),
	)

	vectors = make([][]float32, len(texts))
	for i, text := range texts {
		single, singleErr := p.Embed(ctx, []string{text})
		if singleErr != nil {
			return nil, &EmbeddingError{
				Op:  "item",
				Err: fmt.Errorf("item %d failed after batch fallback: %w", offset+i, singleErr),
			}
		}
		if len(single) != 1 {
			return nil, &EmbeddingError{
				Op:  "item",
				Err: fmt.Errorf("item %d: expected 1 vector, got %d", offset+i, len(single)),
			}
		}
		vectors[i] = single[0]
	}

	return vectors, nil
}
