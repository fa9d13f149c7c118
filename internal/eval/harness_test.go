package eval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retriever"
)

// stubRetriever returns one passage echoing the query, nothing for queries in emptyOn, or fails
// for queries in failOn.
type stubRetriever struct {
	name    string
	failOn  map[string]bool
	emptyOn map[string]bool
}

func (s stubRetriever) Name() string       { return s.name }
func (s stubRetriever) Collection() string { return s.name }
func (s stubRetriever) Encode(context.Context, string) (*encoder.Report, error) {
	return &encoder.Report{}, nil
}
func (s stubRetriever) Query(ctx context.Context, text string, topK int) (*models.RetrievalResult, error) {
	if s.failOn[text] {
		return nil, &models.StorageError{Op: "query", Collection: s.name, Err: errors.New("locked")}
	}
	if s.emptyOn[text] {
		return &models.RetrievalResult{Retriever: s.name, Query: text}, nil
	}
	return &models.RetrievalResult{Retriever: s.name, Query: text, Passages: []*models.Passage{{ID: "1", Text: "ctx for " + text, Score: 1}}}, nil
}

func TestHarness_JudgeFailureExcludedFromMean(t *testing.T) {
	dir := t.TempDir()
	scores := map[string]float64{"q1": 1, "q3": 0.5}
	judge := JudgeFunc(func(ctx context.Context, query string, contexts []string) (float64, error) {
		if query == "q2" {
			return 0, &models.ProviderError{Provider: "llm", Op: "judge", Err: errors.New("timeout")}
		}
		return scores[query], nil
	})
	h := NewHarness(judge, WithResultsDir(dir))

	reports, err := h.Evaluate(context.Background(),
		map[string]retriever.Retriever{"simple": stubRetriever{name: "simple"}},
		[]string{"q1", "q2", "q3"})
	require.NoError(t, err)

	r := reports["simple"]
	require.NotNil(t, r)
	assert.Equal(t, 3, r.NumQueries)
	assert.Equal(t, 2, r.NumScored)
	assert.Equal(t, 1, r.NumFailed())
	require.NotNil(t, r.ContextRelevance)
	assert.InDelta(t, 0.75, *r.ContextRelevance, 1e-9)
	assert.Nil(t, r.RawResults[1].Score)
	assert.Contains(t, r.RawResults[1].Error, "timeout")
	assert.Equal(t, []string{"ctx for q1"}, r.RawResults[0].Contexts)
	assert.NotEmpty(t, r.RunID)

	stored, err := ReadArtifact(dir, "simple")
	require.NoError(t, err)
	assert.Equal(t, r.RunID, stored.RunID)
	assert.Equal(t, 2, stored.NumScored)
}

func TestHarness_AllJudgementsFail(t *testing.T) {
	judge := JudgeFunc(func(ctx context.Context, query string, contexts []string) (float64, error) {
		return 0, errors.New("judge down")
	})
	h := NewHarness(judge)
	reports, err := h.Evaluate(context.Background(),
		map[string]retriever.Retriever{"simple": stubRetriever{name: "simple"}},
		[]string{"a", "b"})
	require.NoError(t, err)
	r := reports["simple"]
	assert.Equal(t, 2, r.NumQueries)
	assert.Equal(t, 0, r.NumScored)
	assert.Nil(t, r.ContextRelevance)
}

func TestHarness_QueryFailureRecorded(t *testing.T) {
	judge := JudgeFunc(func(ctx context.Context, query string, contexts []string) (float64, error) { return 1, nil })
	h := NewHarness(judge)
	reports, err := h.Evaluate(context.Background(), map[string]retriever.Retriever{
		"simple":  stubRetriever{name: "simple"},
		"summary": stubRetriever{name: "summary", failOn: map[string]bool{"b": true}},
	}, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, reports["simple"].NumScored)
	assert.Equal(t, 1, reports["summary"].NumScored)
	assert.Contains(t, reports["summary"].RawResults[1].Error, "locked")
	assert.Empty(t, reports["summary"].RawResults[1].Contexts)
}

func TestHarness_EmptyRetrievalIsNotScored(t *testing.T) {
	judged := 0
	judge := JudgeFunc(func(ctx context.Context, query string, contexts []string) (float64, error) {
		judged++
		return 1, nil
	})
	h := NewHarness(judge)
	reports, err := h.Evaluate(context.Background(),
		map[string]retriever.Retriever{"simple": stubRetriever{name: "simple", emptyOn: map[string]bool{"b": true}}},
		[]string{"a", "b"})
	require.NoError(t, err)

	r := reports["simple"]
	assert.Equal(t, 1, judged)
	assert.Equal(t, 2, r.NumQueries)
	assert.Equal(t, 1, r.NumScored)
	require.NotNil(t, r.ContextRelevance)
	assert.InDelta(t, 1.0, *r.ContextRelevance, 1e-9)
	assert.Nil(t, r.RawResults[1].Score)
	assert.Equal(t, ErrNoContexts.Error(), r.RawResults[1].Error)
}

func TestHarness_OverwritesArtifact(t *testing.T) {
	dir := t.TempDir()
	judge := JudgeFunc(func(ctx context.Context, query string, contexts []string) (float64, error) { return 1, nil })
	h := NewHarness(judge, WithResultsDir(dir))
	rs := map[string]retriever.Retriever{"simple": stubRetriever{name: "simple"}}

	first, err := h.Evaluate(context.Background(), rs, []string{"a"})
	require.NoError(t, err)
	second, err := h.Evaluate(context.Background(), rs, []string{"a", "b"})
	require.NoError(t, err)
	assert.NotEqual(t, first["simple"].RunID, second["simple"].RunID)

	stored, err := ReadArtifact(dir, "simple")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.NumQueries)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should not be left behind")
}

func TestHarness_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := NewHarness(JudgeFunc(func(ctx context.Context, query string, contexts []string) (float64, error) { return 1, nil }))
	_, err := h.Evaluate(ctx, map[string]retriever.Retriever{"simple": stubRetriever{name: "simple"}}, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadArtifact(t *testing.T) {
	_, err := ReadArtifact(t.TempDir(), "missing")
	assert.True(t, os.IsNotExist(err))

	_, err = ReadArtifact(t.TempDir(), "../etc")
	assert.Error(t, err)
}

func TestLoadQueries(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0600))
		return p
	}

	qs, err := LoadQueries(write("ok.json", `{"queries": ["Who did I meet?", "  ", "What did I eat?"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Who did I meet?", "What did I eat?"}, qs)

	for name, path := range map[string]string{
		"missing":   filepath.Join(dir, "nope.json"),
		"malformed": write("bad.json", `{"queries": [`),
		"empty":     write("empty.json", `{"queries": []}`),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadQueries(path)
			var ce *models.ConfigError
			assert.True(t, errors.As(err, &ce), "got %v", err)
		})
	}
}
