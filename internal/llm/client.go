package llm

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

// GenerationError reports a generation capability that failed after the retry
// policy was exhausted.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generation: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// Options configures one generation client; together with the model id it
// forms the pool key.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Client calls the chat completion capability with low-temperature settings:
// factual grounding, not creativity, is the goal.
type Client struct {
	client      *openai.Client
	model       string
	opts        Options
	breaker     *circuitbreaker.Breaker
	retryConfig retry.Config
}

func NewClient(apiKey, model string, opts Options) *Client {
	if opts.Temperature <= 0 {
		opts.Temperature = 0.1
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}

	breaker := circuitbreaker.New("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.DefaultConfig()
	retryConfig.Logger = logger.GetLogger()

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.Float32("temperature", opts.Temperature),
	)

	return &Client{
		client:      openai.NewClient(apiKey),
		model:       model,
		opts:        opts,
		breaker:     breaker,
		retryConfig: retryConfig,
	}
}

func (c *Client) Model() string { return c.model }

// Generate runs one system+user completion and returns the generated text.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	}

	var content string

	err := c.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    messages,
				Temperature: c.opts.Temperature,
				MaxTokens:   c.opts.MaxTokens,
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return retry.Permanent(fmt.Errorf("completion returned no choices"))
			}

			logger.Debug("Completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return "", &GenerationError{Err: err}
	}

	return content, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.client.ListModels(ctx)
	if err != nil {
		return &GenerationError{Err: err}
	}
	return nil
}
