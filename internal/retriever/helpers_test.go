package retriever

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/retry"
	"github.com/hyperjump/mentis/internal/vector"
)

const scenarioDiary = "Monday: ran 5k. Tuesday: met Alice for coffee."

// conceptEmbedder maps words onto four hand-picked axes: social, exercise, time, other.
type conceptEmbedder struct{}

var concepts = map[string]int{
	"meet": 0, "met": 0, "alice": 0, "coffee": 0, "friend": 0,
	"ran": 1, "run": 1, "5k": 1, "gym": 1,
	"monday": 2, "tuesday": 2, "week": 2, "today": 2,
}

func (conceptEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 4)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		axis, ok := concepts[w]
		if !ok {
			axis = 3
		}
		v[axis]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[3] = 1
		return v, nil
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / math.Sqrt(norm))
	}
	return v, nil
}

func (e conceptEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (conceptEmbedder) Dimensions() int { return 4 }
func (conceptEmbedder) Close() error    { return nil }

// brokenEmbedder always fails.
type brokenEmbedder struct{ conceptEmbedder }

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}
}

func sentenceOptions(collection string) Options {
	return Options{
		Collection: collection,
		Chunking:   encoder.ChunkingOptions{Policy: encoder.PolicySentences, Size: 1},
	}
}

func newDeps(t *testing.T) Deps {
	t.Helper()
	store, err := vector.NewMemoryStore("")
	if err != nil {
		t.Fatal(err)
	}
	return Deps{Embedder: conceptEmbedder{}, Store: store, Retry: fastRetry(), ProviderName: "test", Logger: zap.NewNop()}
}
