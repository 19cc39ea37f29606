package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowledgehub/backend/internal/embedding"
	"github.com/knowledgehub/backend/internal/metrics"
	"github.com/knowledgehub/backend/internal/vector"
	"github.com/knowledgehub/backend/pkg/logger"
)

// Generator is the narrow generation capability the engine calls.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// Options carries the engine policy knobs. The marker lists are heuristics,
// not contracts, hence configurable.
type Options struct {
	DefaultLimit        int
	DefaultThreshold    float64
	NoContextConfidence float64
	UncertaintyMarkers  []string
	CitationMarkers     []string
	Timeout             time.Duration
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 5
	}
	if o.DefaultThreshold <= 0 {
		o.DefaultThreshold = 0.7
	}
	if o.NoContextConfidence <= 0 {
		o.NoContextConfidence = 0.1
	}
	if len(o.UncertaintyMarkers) == 0 {
		o.UncertaintyMarkers = []string{"i don't know", "unclear", "insufficient information"}
	}
	if len(o.CitationMarkers) == 0 {
		o.CitationMarkers = []string{"document "}
	}
	return o
}

type Request struct {
	Query     string
	Limit     int
	Threshold float64
	Filters   map[string]string
}

// Source cites one retrieved chunk. Ephemeral: constructed per query, never
// persisted.
type Source struct {
	Content    string  `json:"content"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Certainty  float64 `json:"certainty"`
	Ordinal    int     `json:"ordinal"`
	Metadata   string  `json:"metadata,omitempty"`
}

type ResponseMetadata struct {
	Model           string  `json:"model"`
	EmbeddingModel  string  `json:"embedding_model"`
	Threshold       float64 `json:"threshold"`
	RetrievedChunks int     `json:"retrieved_chunks"`
	FallbackUsed    bool    `json:"fallback_used"`
	Degraded        bool    `json:"degraded"`
}

type Response struct {
	ID          string           `json:"id"`
	Query       string           `json:"query"`
	Answer      string           `json:"answer"`
	Sources     []Source         `json:"sources"`
	ContextUsed bool             `json:"context_used"`
	Confidence  float64          `json:"confidence"`
	LatencyMS   int64            `json:"latency_ms"`
	Metadata    ResponseMetadata `json:"metadata"`
	Timestamp   time.Time        `json:"timestamp"`
}

const insufficientContextAnswer = "I don't have enough information in the knowledge base to answer this question."

const generationFallbackAnswer = "[Answer generation failed] The sources below were retrieved for this question, but an answer could not be generated from them."

// Engine answers one natural-language question from indexed knowledge, with
// citations and a calibrated confidence score. Stateless: every invocation
// carries its own request-scoped data.
type Engine struct {
	embedder  embedding.Provider
	index     vector.Index
	generator Generator
	opts      Options
}

func NewEngine(embedder embedding.Provider, index vector.Index, generator Generator, opts Options) *Engine {
	return &Engine{
		embedder:  embedder,
		index:     index,
		generator: generator,
		opts:      opts.withDefaults(),
	}
}

func (e *Engine) Query(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()
	queryID := uuid.New().String()

	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	// Embedding, search, and generation all inherit this deadline, so one
	// stalled dependency cannot hold the query open past the budget.
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = e.opts.DefaultThreshold
	}

	logger.Info("Processing query",
		zap.String("query_id", queryID),
		zap.Int("limit", limit),
		zap.Float64("threshold", threshold),
	)

	// Step 1: embed the query with the same provider used at ingestion.
	vectors, err := e.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error", "false").Inc()
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	if len(vectors) != 1 {
		metrics.QueryTotal.WithLabelValues("error", "false").Inc()
		return nil, fmt.Errorf("query embedding: expected 1 vector, got %d", len(vectors))
	}

	// Step 2: retrieve. The embedding-model filter makes cross-model vector
	// comparison structurally impossible rather than merely assumed.
	filters := make(map[string]string, len(req.Filters)+1)
	for k, v := range req.Filters {
		filters[k] = v
	}
	filters["embedding_model"] = e.embedder.Model()

	results, err := e.index.Search(ctx, vector.SearchRequest{
		Vector:    vectors[0],
		Limit:     limit,
		Threshold: threshold,
		Filters:   filters,
	})
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error", "false").Inc()
		return nil, err
	}

	sources := rankSources(results)
	metrics.RetrievedChunks.Observe(float64(len(sources)))

	base := Response{
		ID:    queryID,
		Query: req.Query,
		Metadata: ResponseMetadata{
			Model:           e.generator.Model(),
			EmbeddingModel:  e.embedder.Model(),
			Threshold:       threshold,
			RetrievedChunks: len(sources),
		},
		Timestamp: time.Now(),
	}

	// Step 3: zero chunks above threshold. Policy: refuse rather than answer
	// un-grounded, so a degraded answer can never masquerade as a grounded
	// one.
	if len(sources) == 0 {
		base.Answer = insufficientContextAnswer
		base.Sources = []Source{}
		base.ContextUsed = false
		base.Confidence = e.opts.NoContextConfidence
		base.LatencyMS = time.Since(started).Milliseconds()

		metrics.QueryTotal.WithLabelValues("ok", "false").Inc()
		metrics.QueryDuration.WithLabelValues("ok").Observe(time.Since(started).Seconds())

		logger.Info("Query answered without context",
			zap.String("query_id", queryID),
			zap.Float64("threshold", threshold),
		)
		return &base, nil
	}

	// Step 4: generate from the labeled context.
	systemPrompt, userPrompt := buildPrompt(req.Query, sources)
	answer, err := e.generator.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		// Sources without prose still carry value: return them with a
		// clearly marked fallback answer instead of failing the query.
		logger.Warn("Generation failed, returning sources with fallback answer",
			zap.String("query_id", queryID),
			zap.Error(err),
		)
		base.Answer = generationFallbackAnswer
		base.Sources = sources
		base.ContextUsed = true
		base.Confidence = clamp(meanCertainty(sources) * uncertaintyFactor)
		base.LatencyMS = time.Since(started).Milliseconds()
		base.Metadata.FallbackUsed = true
		base.Metadata.Degraded = true

		metrics.DegradedResponses.Inc()
		metrics.QueryTotal.WithLabelValues("fallback", "true").Inc()
		metrics.QueryDuration.WithLabelValues("fallback").Observe(time.Since(started).Seconds())
		return &base, nil
	}

	// Step 5: confidence from retrieval certainty, adjusted by the answer's
	// own uncertainty and citation language.
	confidence := scoreConfidence(sources, answer, e.opts.UncertaintyMarkers, e.opts.CitationMarkers)

	base.Answer = answer
	base.Sources = sources
	base.ContextUsed = true
	base.Confidence = confidence
	base.LatencyMS = time.Since(started).Milliseconds()

	metrics.QueryTotal.WithLabelValues("ok", "true").Inc()
	metrics.QueryDuration.WithLabelValues("ok").Observe(time.Since(started).Seconds())
	metrics.ConfidenceScore.Observe(confidence)

	logger.Info("Query answered",
		zap.String("query_id", queryID),
		zap.Int("sources", len(sources)),
		zap.Float64("confidence", confidence),
		zap.Int64("latency_ms", base.LatencyMS),
	)

	return &base, nil
}

// rankSources orders results by certainty descending, breaking ties by
// ordinal then document id so the ranking is deterministic.
func rankSources(results []vector.SearchResult) []Source {
	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			Content:    r.Payload.Content,
			DocumentID: r.Payload.DocumentID,
			Title:      r.Payload.Title,
			Certainty:  r.Certainty,
			Ordinal:    r.Payload.Ordinal,
			Metadata:   r.Payload.Metadata,
		}
	}

	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Certainty != sources[j].Certainty {
			return sources[i].Certainty > sources[j].Certainty
		}
		if sources[i].Ordinal != sources[j].Ordinal {
			return sources[i].Ordinal < sources[j].Ordinal
		}
		return sources[i].DocumentID < sources[j].DocumentID
	})

	return sources
}
