package milvus

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/knowledgehub/backend/internal/vector"
	"github.com/knowledgehub/backend/pkg/logger"
)

// Client implements vector.Index against a Milvus collection.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(ctx context.Context, endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, &vector.RetrievalError{Op: "connect", Err: err}
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error { return m.client.Close() }

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return &vector.RetrievalError{Op: "has-collection", Err: err}
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Knowledge base chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:     "ordinal",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "metadata",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
			{
				Name:       "embedding_model",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return &vector.RetrievalError{Op: "create-collection", Err: err}
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return &vector.RetrievalError{Op: "create-index", Err: err}
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return &vector.RetrievalError{Op: "create-index", Err: err}
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return &vector.RetrievalError{Op: "load-collection", Err: err}
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

// Upsert inserts the items as one columnar call. Callers replacing a document
// delete its prior chunk set first; primary keys are unique per chunk so a
// replace can never double-index.
func (m *Client) Upsert(ctx context.Context, items []vector.Item) error {
	if len(items) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(items))
	embeddings := make([][]float32, len(items))
	contents := make([]string, len(items))
	documentIDs := make([]string, len(items))
	titles := make([]string, len(items))
	ordinals := make([]int64, len(items))
	metadatas := make([]string, len(items))
	embeddingModels := make([]string, len(items))

	for i, item := range items {
		chunkIDs[i] = item.ID
		embeddings[i] = item.Vector
		contents[i] = item.Payload.Content
		documentIDs[i] = item.Payload.DocumentID
		titles[i] = item.Payload.Title
		ordinals[i] = int64(item.Payload.Ordinal)
		metadatas[i] = item.Payload.Metadata
		embeddingModels[i] = item.Payload.EmbeddingModel
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnInt64("ordinal", ordinals),
		entity.NewColumnVarChar("metadata", metadatas),
		entity.NewColumnVarChar("embedding_model", embeddingModels),
	)
	if err != nil {
		return &vector.RetrievalError{Op: "upsert", Err: err}
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return &vector.RetrievalError{Op: "flush", Err: err}
	}

	logger.Info("Chunks upserted into vector index", zap.Int("count", len(items)))

	return nil
}

func (m *Client) DeleteByDocument(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf(`document_id == "%s"`, escapeExprValue(documentID))
	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return &vector.RetrievalError{Op: "delete", Err: err}
	}

	logger.Debug("Document chunks deleted from vector index", zap.String("document_id", documentID))
	return nil
}

func (m *Client) Search(ctx context.Context, req vector.SearchRequest) ([]vector.SearchResult, error) {
	expr := buildExpr(vector.OrderFilters(req.Filters))

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "content", "document_id", "title", "ordinal", "metadata", "embedding_model"},
		[]entity.Vector{entity.FloatVector(req.Vector)},
		"embedding",
		entity.L2,
		req.Limit,
		sp,
	)
	if err != nil {
		return nil, &vector.RetrievalError{Op: "search", Err: err}
	}

	var results []vector.SearchResult
	for _, sr := range searchResult {
		results = append(results, collectResults(sr.Fields, sr.Scores, sr.ResultCount, req.Threshold)...)
	}

	logger.Debug("Vector search completed",
		zap.Int("limit", req.Limit),
		zap.Float64("threshold", req.Threshold),
		zap.Int("results", len(results)),
		zap.String("filter", expr),
	)

	return results, nil
}

func (m *Client) Ping(ctx context.Context) error {
	if _, err := m.client.HasCollection(ctx, m.collectionName); err != nil {
		return &vector.RetrievalError{Op: "ping", Err: err}
	}
	return nil
}

// collectResults converts one result set into domain results, dropping every
// row whose normalized certainty falls below the threshold. Milvus reports
// squared L2 distance, so scores are square-rooted before normalization.
func collectResults(fields client.ResultSet, scores []float32, count int, threshold float64) []vector.SearchResult {
	contentCol := fields.GetColumn("content")
	documentIDCol := fields.GetColumn("document_id")
	titleCol := fields.GetColumn("title")
	ordinalCol := fields.GetColumn("ordinal")
	metadataCol := fields.GetColumn("metadata")
	modelCol := fields.GetColumn("embedding_model")

	var results []vector.SearchResult
	for i := 0; i < count; i++ {
		certainty := vector.NormalizeCertainty(vector.MetricL2, math.Sqrt(float64(scores[i])))
		if certainty < threshold {
			continue
		}

		content, _ := contentCol.GetAsString(i)
		documentID, _ := documentIDCol.GetAsString(i)
		title, _ := titleCol.GetAsString(i)
		ordinal, _ := ordinalCol.GetAsInt64(i)
		metadata, _ := metadataCol.GetAsString(i)
		model, _ := modelCol.GetAsString(i)

		results = append(results, vector.SearchResult{
			Payload: vector.Payload{
				DocumentID:     documentID,
				Title:          title,
				Ordinal:        int(ordinal),
				Content:        content,
				Metadata:       metadata,
				EmbeddingModel: model,
			},
			Certainty: certainty,
		})
	}
	return results
}

// buildExpr renders the ordered filters into a Milvus boolean expression,
// preserving the selectivity order.
func buildExpr(filters []vector.Filter) string {
	if len(filters) == 0 {
		return ""
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if f.Field == "ordinal" {
			parts = append(parts, fmt.Sprintf("ordinal == %s", f.Value))
			continue
		}
		parts = append(parts, fmt.Sprintf(`%s == "%s"`, f.Field, escapeExprValue(f.Value)))
	}
	return strings.Join(parts, " && ")
}

func escapeExprValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}
