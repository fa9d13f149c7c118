package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/mentis/internal/embedding"
	"github.com/hyperjump/mentis/internal/models"
)

func TestSimpleRag_RanksTuesdayAboveMonday(t *testing.T) {
	ctx := context.Background()
	r, err := NewSimpleRag(newDeps(t), sentenceOptions(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultSimpleCollection, r.Collection())
	assert.Equal(t, KindSimple, r.Name())

	report, err := r.Encode(ctx, scenarioDiary)
	require.NoError(t, err)
	require.Equal(t, 2, report.NumChunks)

	res, err := r.Query(ctx, "Who did I meet this week?", 2)
	require.NoError(t, err)
	require.Len(t, res.Passages, 2)
	assert.True(t, strings.HasPrefix(res.Passages[0].Text, "Tuesday"), "got %q first", res.Passages[0].Text)
	assert.True(t, strings.HasPrefix(res.Passages[1].Text, "Monday"))
	assert.Greater(t, res.Passages[0].Score, res.Passages[1].Score)
}

func TestSimpleRag_AtMostKOrdered(t *testing.T) {
	ctx := context.Background()
	deps := newDeps(t)
	deps.Embedder = embedding.NewMockEmbedder(32)
	r, err := NewSimpleRag(deps, sentenceOptions("notes"))
	require.NoError(t, err)

	_, err = r.Encode(ctx, "Went to the gym. Read a book about birds. Cooked pasta with Sam. "+
		"Walked the dog in the rain. Called mum about the birds. Slept early.")
	require.NoError(t, err)

	for _, k := range []int{1, 3, 10} {
		res, err := r.Query(ctx, "birds and books", k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Passages), k)
		for i := 1; i < len(res.Passages); i++ {
			prev, cur := res.Passages[i-1], res.Passages[i]
			assert.GreaterOrEqual(t, prev.Score, cur.Score)
			if prev.Score == cur.Score {
				assert.Less(t, prev.ID, cur.ID)
			}
		}
	}

	res, err := r.Query(ctx, "birds", 0)
	require.NoError(t, err)
	assert.Len(t, res.Passages, models.DefaultTopK)
}

func TestSimpleRag_EmptyStore(t *testing.T) {
	r, err := NewSimpleRag(newDeps(t), sentenceOptions(""))
	require.NoError(t, err)
	res, err := r.Query(context.Background(), "anything at all?", 5)
	require.NoError(t, err)
	assert.NotNil(t, res.Passages)
	assert.Empty(t, res.Passages)
}

func TestSimpleRag_ReencodeReplaces(t *testing.T) {
	ctx := context.Background()
	deps := newDeps(t)
	r, err := NewSimpleRag(deps, sentenceOptions(""))
	require.NoError(t, err)

	_, err = r.Encode(ctx, scenarioDiary)
	require.NoError(t, err)
	first, err := deps.Store.List(ctx, r.Collection())
	require.NoError(t, err)

	_, err = r.Encode(ctx, scenarioDiary)
	require.NoError(t, err)
	second, err := deps.Store.List(ctx, r.Collection())
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestSimpleRag_EmptyQuery(t *testing.T) {
	r, err := NewSimpleRag(newDeps(t), sentenceOptions(""))
	require.NoError(t, err)
	_, err = r.Query(context.Background(), "   ", 5)
	assert.Error(t, err)
}

func TestSimpleRag_QueryEmbeddingFailure(t *testing.T) {
	deps := newDeps(t)
	deps.Embedder = brokenEmbedder{}
	r, err := NewSimpleRag(deps, sentenceOptions(""))
	require.NoError(t, err)

	_, err = r.Query(context.Background(), "who?", 5)
	var pe *models.ProviderError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "test", pe.Provider)
	assert.Equal(t, "embed query", pe.Op)
}

func TestNewSimpleRag_InvalidChunking(t *testing.T) {
	opts := sentenceOptions("")
	opts.Chunking.Size = 0
	_, err := NewSimpleRag(newDeps(t), opts)
	var ce *models.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestSimpleRag_Append(t *testing.T) {
	ctx := context.Background()
	deps := newDeps(t)
	r, err := NewSimpleRag(deps, sentenceOptions(""))
	require.NoError(t, err)
	_, err = r.Encode(ctx, scenarioDiary)
	require.NoError(t, err)

	var _ Appender = r
	_, err = r.Append(ctx, "Wednesday: met a friend for coffee.")
	require.NoError(t, err)
	count, _ := deps.Store.Count(ctx, r.Collection())
	assert.Equal(t, 3, count)

	res, err := r.Query(ctx, "Who did I meet?", 3)
	require.NoError(t, err)
	require.Len(t, res.Passages, 3)
	assert.False(t, strings.HasPrefix(res.Passages[0].Text, "Monday"))
}
