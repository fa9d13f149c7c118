package models

import (
	"errors"
	"io"
	"testing"
)

func TestQuery_Validate(t *testing.T) {
	tests := []struct {
		name     string
		query    *Query
		wantErr  bool
		wantTopK int
	}{
		{"empty query", &Query{Text: ""}, true, 0},
		{"whitespace query", &Query{Text: "   "}, true, 0},
		{"valid query", &Query{Text: "hello", TopK: 3}, false, 3},
		{"sets default top_k", &Query{Text: "x"}, false, DefaultTopK},
		{"caps top_k", &Query{Text: "x", TopK: 500}, false, MaxTopK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.TopK != tt.wantTopK {
				t.Errorf("TopK = %d, want %d", tt.query.TopK, tt.wantTopK)
			}
		})
	}
}

func TestErrorKinds_Unwrap(t *testing.T) {
	var err error = &ProviderError{Provider: "openai", Op: "embed", Err: io.ErrUnexpectedEOF}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Op != "embed" {
		t.Fatalf("errors.As ProviderError failed: %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("ProviderError should unwrap to its cause")
	}

	err = &StorageError{Op: "replace", Collection: "simple_rag", Err: io.EOF}
	if !errors.Is(err, io.EOF) {
		t.Error("StorageError should unwrap to its cause")
	}
	if got := err.Error(); got != `storage: replace "simple_rag": EOF` {
		t.Errorf("StorageError.Error() = %q", got)
	}

	err = &ConfigError{Field: "OPENAI_API_KEY", Err: errors.New("not set")}
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "OPENAI_API_KEY" {
		t.Errorf("errors.As ConfigError failed: %v", err)
	}
}

func TestRetrievalResult_Texts(t *testing.T) {
	var nilResult *RetrievalResult
	if nilResult.Texts() != nil {
		t.Error("nil result should yield nil texts")
	}
	r := &RetrievalResult{Passages: []*Passage{{Text: "a"}, {Text: "b"}}}
	got := r.Texts()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Texts() = %v", got)
	}
}
