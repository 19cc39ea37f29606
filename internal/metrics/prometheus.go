package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "knowledgehub_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"status"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledgehub_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status", "context_used"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "knowledgehub_confidence_score",
			Help:    "Response confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	RetrievedChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "knowledgehub_retrieved_chunks",
			Help:    "Number of chunks retrieved per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledgehub_documents_ingested_total",
			Help: "Total documents ingested",
		},
		[]string{"status"},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledgehub_chunks_indexed_total",
			Help: "Total chunks written to the vector index",
		},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "knowledgehub_ingest_duration_seconds",
			Help:    "Document ingestion duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	ChunkCoherence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "knowledgehub_chunk_coherence",
			Help:    "Per-chunk coherence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledgehub_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledgehub_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DegradedResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledgehub_degraded_responses_total",
			Help: "Responses served while a dependency was degraded",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(RetrievedChunks)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(ChunkCoherence)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DegradedResponses)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
