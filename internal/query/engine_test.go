package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgehub/backend/internal/vector"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string              { return "emb-model" }
func (f *fakeEmbedder) Dimension() int             { return 3 }
func (f *fakeEmbedder) Ping(context.Context) error { return nil }

type fakeIndex struct {
	lastReq     vector.SearchRequest
	results     []vector.SearchResult
	err         error
	deadlineSet bool
	waitForCtx  bool
}

func (f *fakeIndex) Upsert(context.Context, []vector.Item) error { return nil }

func (f *fakeIndex) Search(ctx context.Context, req vector.SearchRequest) ([]vector.SearchResult, error) {
	f.lastReq = req
	_, f.deadlineSet = ctx.Deadline()
	if f.waitForCtx {
		<-ctx.Done()
		return nil, &vector.RetrievalError{Op: "search", Err: ctx.Err()}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeIndex) DeleteByDocument(context.Context, string) error { return nil }
func (f *fakeIndex) Ping(context.Context) error                     { return nil }

type fakeGenerator struct {
	answer     string
	err        error
	userPrompt string
	called     bool
}

func (f *fakeGenerator) Generate(_ context.Context, _, userPrompt string) (string, error) {
	f.called = true
	f.userPrompt = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) Model() string { return "gen-model" }

func result(certainty float64, docID string, ordinal int, content string) vector.SearchResult {
	return vector.SearchResult{
		Payload: vector.Payload{
			DocumentID:     docID,
			Title:          "Title " + docID,
			Ordinal:        ordinal,
			Content:        content,
			EmbeddingModel: "emb-model",
		},
		Certainty: certainty,
	}
}

func newTestEngine(index *fakeIndex, gen *fakeGenerator) *Engine {
	return NewEngine(&fakeEmbedder{}, index, gen, Options{})
}

func TestQuery_EmptyQueryRejected(t *testing.T) {
	engine := newTestEngine(&fakeIndex{}, &fakeGenerator{})

	_, err := engine.Query(context.Background(), Request{Query: "   "})
	require.Error(t, err)
}

func TestQuery_DefaultsAndModelFilter(t *testing.T) {
	index := &fakeIndex{results: []vector.SearchResult{result(0.9, "doc-a", 0, "content")}}
	engine := newTestEngine(index, &fakeGenerator{answer: "An answer."})

	resp, err := engine.Query(context.Background(), Request{
		Query:   "what is this",
		Filters: map[string]string{"document_id": "doc-a"},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, index.lastReq.Limit)
	assert.Equal(t, 0.7, index.lastReq.Threshold)
	// The model filter is always injected; caller filters pass through.
	assert.Equal(t, "emb-model", index.lastReq.Filters["embedding_model"])
	assert.Equal(t, "doc-a", index.lastReq.Filters["document_id"])

	assert.Equal(t, "gen-model", resp.Metadata.Model)
	assert.Equal(t, "emb-model", resp.Metadata.EmbeddingModel)
	assert.Equal(t, 0.7, resp.Metadata.Threshold)
}

func TestQuery_ExplicitLimitAndThreshold(t *testing.T) {
	index := &fakeIndex{}
	engine := newTestEngine(index, &fakeGenerator{answer: "x"})

	_, err := engine.Query(context.Background(), Request{Query: "q", Limit: 12, Threshold: 0.4})
	require.NoError(t, err)

	assert.Equal(t, 12, index.lastReq.Limit)
	assert.Equal(t, 0.4, index.lastReq.Threshold)
}

func TestQuery_NoContextRefusal(t *testing.T) {
	gen := &fakeGenerator{answer: "should not be used"}
	engine := newTestEngine(&fakeIndex{}, gen)

	resp, err := engine.Query(context.Background(), Request{Query: "anything relevant?"})
	require.NoError(t, err)

	assert.False(t, gen.called)
	assert.False(t, resp.ContextUsed)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, insufficientContextAnswer, resp.Answer)
	assert.InDelta(t, 0.1, resp.Confidence, 1e-9)
	assert.Equal(t, 0, resp.Metadata.RetrievedChunks)
}

func TestQuery_SourcesRankedDeterministically(t *testing.T) {
	index := &fakeIndex{results: []vector.SearchResult{
		result(0.8, "doc-a", 0, "third"),
		result(0.9, "doc-b", 5, "second"),
		result(0.9, "doc-a", 2, "first"),
	}}
	engine := newTestEngine(index, &fakeGenerator{answer: "ok"})

	resp, err := engine.Query(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	require.Len(t, resp.Sources, 3)

	// Certainty descending, ties broken by ordinal then document id.
	assert.Equal(t, "first", resp.Sources[0].Content)
	assert.Equal(t, "second", resp.Sources[1].Content)
	assert.Equal(t, "third", resp.Sources[2].Content)
}

func TestQuery_PromptLabelsFollowRankOrder(t *testing.T) {
	index := &fakeIndex{results: []vector.SearchResult{
		result(0.7, "doc-b", 1, "lower ranked content"),
		result(0.95, "doc-a", 0, "top ranked content"),
	}}
	gen := &fakeGenerator{answer: "According to Document 1, it works."}
	engine := newTestEngine(index, gen)

	_, err := engine.Query(context.Background(), Request{Query: "how does it work?"})
	require.NoError(t, err)

	assert.Contains(t, gen.userPrompt, "Document 1")
	assert.Contains(t, gen.userPrompt, "Document 2")
	assert.Contains(t, gen.userPrompt, "how does it work?")
	// Document 1 must be the highest-certainty chunk.
	assert.Less(t,
		strings.Index(gen.userPrompt, "top ranked content"),
		strings.Index(gen.userPrompt, "lower ranked content"),
	)
}

func TestQuery_GenerationFailureFallsBackWithSources(t *testing.T) {
	index := &fakeIndex{results: []vector.SearchResult{
		result(0.8, "doc-a", 0, "evidence"),
		result(0.6, "doc-b", 1, "more evidence"),
	}}
	engine := newTestEngine(index, &fakeGenerator{err: errors.New("model overloaded")})

	resp, err := engine.Query(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	assert.Equal(t, generationFallbackAnswer, resp.Answer)
	assert.True(t, resp.ContextUsed)
	assert.True(t, resp.Metadata.FallbackUsed)
	assert.True(t, resp.Metadata.Degraded)
	require.Len(t, resp.Sources, 2)
	// Mean certainty 0.7, discounted for the missing prose.
	assert.InDelta(t, 0.7*uncertaintyFactor, resp.Confidence, 1e-9)
}

func TestQuery_RetrievalErrorPropagates(t *testing.T) {
	index := &fakeIndex{err: &vector.RetrievalError{Op: "search", Err: errors.New("down")}}
	engine := newTestEngine(index, &fakeGenerator{})

	_, err := engine.Query(context.Background(), Request{Query: "q"})
	require.Error(t, err)

	var retErr *vector.RetrievalError
	assert.ErrorAs(t, err, &retErr)
}

func TestQuery_EmbeddingErrorPropagates(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{err: errors.New("provider down")}, &fakeIndex{}, &fakeGenerator{}, Options{})

	_, err := engine.Query(context.Background(), Request{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query embedding")
}

func TestQuery_TimeoutBoundsRetrieval(t *testing.T) {
	index := &fakeIndex{results: []vector.SearchResult{result(0.9, "doc-a", 0, "content")}}
	engine := NewEngine(&fakeEmbedder{}, index, &fakeGenerator{answer: "ok"}, Options{Timeout: time.Minute})

	_, err := engine.Query(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	assert.True(t, index.deadlineSet)
}

func TestQuery_TimeoutFailsStalledRetrieval(t *testing.T) {
	index := &fakeIndex{waitForCtx: true}
	engine := NewEngine(&fakeEmbedder{}, index, &fakeGenerator{}, Options{Timeout: 10 * time.Millisecond})

	_, err := engine.Query(context.Background(), Request{Query: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQuery_ConfidenceReflectsAnswerLanguage(t *testing.T) {
	index := &fakeIndex{results: []vector.SearchResult{result(0.8, "doc-a", 0, "evidence")}}

	hedged := newTestEngine(index, &fakeGenerator{answer: "It is unclear from the context."})
	hedgedResp, err := hedged.Query(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	cited := newTestEngine(index, &fakeGenerator{answer: "According to Document 1, yes."})
	citedResp, err := cited.Query(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	assert.Less(t, hedgedResp.Confidence, citedResp.Confidence)
	assert.InDelta(t, 0.8*uncertaintyFactor, hedgedResp.Confidence, 1e-9)
	assert.InDelta(t, 0.8*citationFactor, citedResp.Confidence, 1e-9)
}
