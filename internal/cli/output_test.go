package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/mentis/internal/chat"
	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/eval"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/vector"
)

func sampleResult() *models.RetrievalResult {
	return &models.RetrievalResult{
		Retriever: "summary",
		Query:     "who did I meet",
		QueryTime: 12,
		Passages: []*models.Passage{
			{ID: "s-1", Text: "Met Alice for coffee.", Score: 0.91, SourceChunkIDs: []string{"c-1", "c-2"},
				Metadata: map[string]string{models.MetaDate: "Tuesday, March 5, 2024"}},
			{ID: "s-2", Text: "Ran 5k.", Score: 0.2},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want OutputFormat
		err  bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, sampleResult(), OutputJSON); err != nil {
		t.Fatalf("WriteResult(json): %v", err)
	}
	var decoded models.RetrievalResult
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Retriever != "summary" || len(decoded.Passages) != 2 {
		t.Fatalf("unexpected decoded result: %+v", decoded)
	}
	if got := decoded.Passages[0].SourceChunkIDs; len(got) != 2 || got[0] != "c-1" {
		t.Errorf("source ids = %v", got)
	}
}

func TestWriteResult_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, sampleResult(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"[summary] 2 passages in 12ms", "Rank: 1 | Score: 0.9100 | ID: s-1",
		"Date: Tuesday, March 5, 2024", "Sources: c-1, c-2", "Ran 5k."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "s-1") > strings.Index(out, "s-2") {
		t.Error("passages should print in rank order")
	}
}

func TestWriteEncodeOutcomes_Text(t *testing.T) {
	outcomes := []EncodeOutcome{
		{Retriever: "simple", Report: &encoder.Report{Collection: "simple_rag", NumChunks: 4, Duration: 1500 * time.Millisecond}},
		{Retriever: "summary", Error: "llm: summarize: timeout"},
	}
	var buf bytes.Buffer
	if err := WriteEncodeOutcomes(&buf, outcomes, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `simple: 4 chunks into "simple_rag"`) {
		t.Errorf("missing success line:\n%s", out)
	}
	if !strings.Contains(out, "1 succeeded, 1 failed") {
		t.Errorf("missing counts:\n%s", out)
	}
}

func TestWriteEvalReports(t *testing.T) {
	mean := 0.75
	reports := map[string]*eval.Report{
		"simple": {Retriever: "simple", NumQueries: 3, NumScored: 2, ContextRelevance: &mean},
		"hybrid": {Retriever: "hybrid", NumQueries: 3},
	}
	var buf bytes.Buffer
	if err := WriteEvalReports(&buf, reports, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "context_relevance=0.7500 scored 2/3") {
		t.Errorf("missing simple line:\n%s", out)
	}
	if !strings.Contains(out, "context_relevance=n/a scored 0/3") {
		t.Errorf("missing hybrid line:\n%s", out)
	}
	if strings.Index(out, "hybrid") > strings.Index(out, "simple") {
		t.Error("reports should be sorted by name")
	}

	buf.Reset()
	if err := WriteEvalReports(&buf, reports, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded []eval.Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 || decoded[0].Retriever != "hybrid" || decoded[0].ContextRelevance != nil {
		t.Errorf("unexpected JSON reports: %+v", decoded)
	}
}

func TestWriteAnswers(t *testing.T) {
	var buf bytes.Buffer
	WriteAnswers(&buf, []chat.Answer{
		{Retriever: "simple", Text: "  You met Alice.\n"},
		{Retriever: "summary", Err: errors.New("boom")},
	})
	out := buf.String()
	if !strings.Contains(out, "[simple] You met Alice.") || !strings.Contains(out, "[summary] error: boom") {
		t.Errorf("unexpected answers:\n%s", out)
	}
}

func TestWriteStatus(t *testing.T) {
	s := &Status{
		Backend:        "sqlite",
		DatabasePath:   "/tmp/mentis.db",
		DiskUsageBytes: 2048,
		Retrievers:     []string{"simple", "summary"},
		Collections:    []vector.CollectionInfo{{Name: "simple_rag", Dimensions: 1536, Count: 12}},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "/tmp/mentis.db (2.0 KiB)") || !strings.Contains(out, "simple_rag") {
		t.Errorf("unexpected status:\n%s", out)
	}

	buf.Reset()
	s.Collections = nil
	if err := WriteStatus(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "none (run encode-all)") {
		t.Errorf("empty store should hint at encode-all:\n%s", buf.String())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{0: "0 B", 1023: "1023 B", 1024: "1.0 KiB", 1536: "1.5 KiB", 5 << 20: "5.0 MiB"}
	for n, want := range tests {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
