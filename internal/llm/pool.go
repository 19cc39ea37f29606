package llm

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/knowledgehub/backend/pkg/logger"
	"github.com/knowledgehub/backend/pkg/utils"
)

// Pool is a bounded set of initialized generation clients keyed by
// (model id, options hash). Handles are created lazily and shared read-only
// across concurrent callers. The pool is an explicit dependency handed to its
// consumers, not an ambient global.
type Pool struct {
	apiKey  string
	maxSize int

	mu      sync.Mutex
	clients map[string]*Client
}

func NewPool(apiKey string, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 4
	}
	return &Pool{
		apiKey:  apiKey,
		maxSize: maxSize,
		clients: make(map[string]*Client),
	}
}

// Get returns the shared client for (model, opts), creating it on first use.
// It fails when the pool is full rather than silently evicting a handle that
// other callers hold.
func (p *Pool) Get(model string, opts Options) (*Client, error) {
	key := poolKey(model, opts)

	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[key]; ok {
		return client, nil
	}

	if len(p.clients) >= p.maxSize {
		return nil, fmt.Errorf("llm pool is full (%d handles)", p.maxSize)
	}

	client := NewClient(p.apiKey, model, opts)
	p.clients[key] = client

	logger.Debug("LLM pool handle created",
		zap.String("model", model),
		zap.Int("pool_size", len(p.clients)),
	)

	return client, nil
}

// Size reports the number of initialized handles.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func poolKey(model string, opts Options) string {
	return utils.HashKey(model, fmt.Sprintf("%.3f", opts.Temperature), fmt.Sprintf("%d", opts.MaxTokens))
}
