package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Record is the outcome of one (retriever, query) pair. Score is nil when the query could not
// be judged, and Error then says why.
type Record struct {
	Query    string   `json:"query"`
	Contexts []string `json:"contexts"`
	Score    *float64 `json:"score"`
	Error    string   `json:"error,omitempty"`
}

// Report aggregates one retriever's run. ContextRelevance is the mean over scored records and
// is nil when nothing was scored.
type Report struct {
	Retriever        string    `json:"retriever"`
	NumQueries       int       `json:"num_queries"`
	NumScored        int       `json:"num_scored"`
	ContextRelevance *float64  `json:"context_relevance"`
	RawResults       []Record  `json:"raw_results"`
	GeneratedAt      time.Time `json:"generated_at"`
	RunID            string    `json:"run_id"`
}

// NumFailed returns how many queries were attempted but not scored.
func (r *Report) NumFailed() int {
	return r.NumQueries - r.NumScored
}

func (r *Report) aggregate() {
	r.NumQueries = len(r.RawResults)
	r.NumScored = 0
	r.ContextRelevance = nil
	var sum float64
	for _, rec := range r.RawResults {
		if rec.Score == nil {
			continue
		}
		sum += *rec.Score
		r.NumScored++
	}
	if r.NumScored > 0 {
		mean := sum / float64(r.NumScored)
		r.ContextRelevance = &mean
	}
}

// ArtifactPath returns where the artifact for retriever is stored under dir.
func ArtifactPath(dir, retriever string) (string, error) {
	if retriever == "" || strings.ContainsAny(retriever, `/\`) || retriever == "." || retriever == ".." {
		return "", fmt.Errorf("invalid retriever name %q", retriever)
	}
	return filepath.Join(dir, retriever+".json"), nil
}

// WriteArtifact writes report to dir/<retriever>.json, replacing any previous run.
func WriteArtifact(dir string, report *Report) error {
	path, err := ArtifactPath(dir, report.Retriever)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create results dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+report.Retriever+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// ReadArtifact loads the last stored report for retriever. A missing artifact returns an
// error satisfying os.IsNotExist.
func ReadArtifact(dir, retriever string) (*Report, error) {
	path, err := ArtifactPath(dir, retriever)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w", path, err)
	}
	return &r, nil
}
