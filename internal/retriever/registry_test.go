package retriever

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/mentis/internal/keyword"
)

func TestRegistry(t *testing.T) {
	deps := newDeps(t)
	simple, err := NewSimpleRag(deps, sentenceOptions(""))
	require.NoError(t, err)
	idx, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	hybrid, err := NewHybridRag(deps, idx, HybridOptions{Options: sentenceOptions("")})
	require.NoError(t, err)

	reg, err := NewRegistry(simple, hybrid)
	require.NoError(t, err)
	assert.Equal(t, []string{KindHybrid, KindSimple}, reg.Names())

	got, err := reg.Get(KindSimple)
	require.NoError(t, err)
	assert.Same(t, simple, got)

	_, err = reg.Get("graph")
	assert.True(t, errors.Is(err, ErrUnknownRetriever))
	assert.Len(t, reg.All(), 2)
	assert.NoError(t, reg.Close())
}

func TestRegistry_DuplicateName(t *testing.T) {
	deps := newDeps(t)
	a, _ := NewSimpleRag(deps, sentenceOptions("a"))
	b, _ := NewSimpleRag(deps, sentenceOptions("b"))
	_, err := NewRegistry(a, b)
	assert.Error(t, err)
}
