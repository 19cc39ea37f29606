package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	embedFn func(texts []string) ([][]float32, error)
	calls   [][]string
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	return f.embedFn(texts)
}

func (f *fakeProvider) Model() string              { return "fake-model" }
func (f *fakeProvider) Dimension() int             { return 3 }
func (f *fakeProvider) Ping(context.Context) error { return nil }

func vectorsFor(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 0, 0}
	}
	return out
}

func TestEmbedAll_Batches(t *testing.T) {
	p := &fakeProvider{embedFn: func(texts []string) ([][]float32, error) {
		return vectorsFor(texts), nil
	}}

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := EmbedAll(context.Background(), p, texts, 2)
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	// 5 texts at batch size 2 means three calls: 2+2+1.
	require.Len(t, p.calls, 3)
	assert.Equal(t, []string{"a", "b"}, p.calls[0])
	assert.Equal(t, []string{"e"}, p.calls[2])
}

func TestEmbedAll_EmptyInput(t *testing.T) {
	p := &fakeProvider{embedFn: func(texts []string) ([][]float32, error) {
		t.Fatal("should not be called")
		return nil, nil
	}}

	vectors, err := EmbedAll(context.Background(), p, nil, 10)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedAll_BatchFailureFallsBackToItems(t *testing.T) {
	p := &fakeProvider{}
	p.embedFn = func(texts []string) ([][]float32, error) {
		if len(texts) > 1 {
			return nil, errors.New("batch rejected")
		}
		return vectorsFor(texts), nil
	}

	texts := []string{"a", "b", "c"}
	vectors, err := EmbedAll(context.Background(), p, texts, 3)
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
	// One failed batch call plus one call per item.
	assert.Len(t, p.calls, 4)
}

func TestEmbedAll_ItemFailureAfterFallback(t *testing.T) {
	p := &fakeProvider{}
	p.embedFn = func(texts []string) ([][]float32, error) {
		if len(texts) > 1 {
			return nil, errors.New("batch rejected")
		}
		if texts[0] == "poison" {
			return nil, errors.New("bad input")
		}
		return vectorsFor(texts), nil
	}

	_, err := EmbedAll(context.Background(), p, []string{"a", "poison", "c"}, 3)
	require.Error(t, err)

	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, "item", embErr.Op)
	assert.Contains(t, err.Error(), "item 1")
}

func TestEmbedAll_CountMismatch(t *testing.T) {
	p := &fakeProvider{embedFn: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0}}, nil
	}}

	_, err := EmbedAll(context.Background(), p, []string{"a", "b"}, 2)
	require.Error(t, err)

	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Contains(t, fmt.Sprint(err), "mismatch")
}
