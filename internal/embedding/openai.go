package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/knowledgehub/backend/pkg/circuitbreaker"
	"github.com/knowledgehub/backend/pkg/logger"
	"github.com/knowledgehub/backend/pkg/retry"
)

// OpenAIProvider implements Provider against the OpenAI embeddings API.
// Calls are batched, bounded by a timeout and guarded by a circuit breaker.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	dimension   int
	maxBatch    int
	breaker     *circuitbreaker.Breaker
	retryConfig retry.Config
}

func NewOpenAIProvider(apiKey, model string, dimension, maxBatch int) *OpenAIProvider {
	if maxBatch <= 0 {
		maxBatch = 100
	}

	breaker := circuitbreaker.New("embedding", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.DefaultConfig()
	retryConfig.Logger = logger.GetLogger()

	logger.Info("Embedding provider initialized",
		zap.String("model", model),
		zap.Int("dimension", dimension),
		zap.Int("max_batch", maxBatch),
	)

	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		dimension:   dimension,
		maxBatch:    maxBatch,
		breaker:     breaker,
		retryConfig: retryConfig,
	}
}

func (p *OpenAIProvider) Model() string  { return p.model }
func (p *OpenAIProvider) Dimension() int { return p.dimension }

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > p.maxBatch {
		return nil, &EmbeddingError{
			Op:  "batch",
			Err: fmt.Errorf("batch of %d exceeds maximum %d", len(texts), p.maxBatch),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var vectors [][]float32

	err := p.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, p.retryConfig, func() error {
			resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: texts,
				Model: openai.EmbeddingModel(p.model),
			})
			if err != nil {
				return err
			}

			vectors = make([][]float32, len(resp.Data))
			for i, data := range resp.Data {
				vectors[i] = data.Embedding
			}
			return nil
		})
	})
	if err != nil {
		return nil, &EmbeddingError{Op: "embed", Err: err}
	}

	logger.Debug("Embeddings generated", zap.Int("count", len(vectors)))

	return vectors, nil
}

func (p *OpenAIProvider) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{"ping"},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return &EmbeddingError{Op: "ping", Err: err}
	}
	return nil
}
