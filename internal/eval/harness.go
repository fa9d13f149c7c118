package eval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/retriever"
)

// Harness runs a query set against retrievers and judges the contexts they return.
type Harness struct {
	judge      Judge
	resultsDir string
	topK       int
	logger     *zap.Logger
	now        func() time.Time
}

// HarnessOption configures a Harness.
type HarnessOption func(*Harness)

// WithResultsDir sets where artifacts are written. Empty disables persistence.
func WithResultsDir(dir string) HarnessOption {
	return func(h *Harness) { h.resultsDir = dir }
}

// WithTopK sets how many contexts are retrieved per query.
func WithTopK(k int) HarnessOption {
	return func(h *Harness) {
		if k > 0 {
			h.topK = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) HarnessOption {
	return func(h *Harness) { h.logger = l }
}

// NewHarness returns a harness scoring with judge.
func NewHarness(judge Judge, opts ...HarnessOption) *Harness {
	h := &Harness{judge: judge, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Evaluate queries every retriever, in name order, with every query, in order. A query whose
// retrieval or judgment fails, or that retrieves no contexts, is recorded with its error and left out of the mean; the run
// goes on. Only cancellation or failing to write an artifact is returned as an error, along
// with the reports produced so far.
func (h *Harness) Evaluate(ctx context.Context, retrievers map[string]retriever.Retriever, queries []string) (map[string]*Report, error) {
	names := make([]string, 0, len(retrievers))
	for name := range retrievers {
		names = append(names, name)
	}
	sort.Strings(names)

	runID := uuid.NewString()
	reports := make(map[string]*Report, len(names))
	var writeErrs []error
	for _, name := range names {
		report := &Report{Retriever: name, RunID: runID, RawResults: make([]Record, 0, len(queries))}
		for _, q := range queries {
			if err := ctx.Err(); err != nil {
				return reports, err
			}
			report.RawResults = append(report.RawResults, h.evaluateQuery(ctx, name, retrievers[name], q))
		}
		report.aggregate()
		report.GeneratedAt = h.now().UTC()
		reports[name] = report

		fields := []zap.Field{
			zap.String("retriever", name),
			zap.Int("num_queries", report.NumQueries),
			zap.Int("num_scored", report.NumScored),
		}
		if report.ContextRelevance != nil {
			fields = append(fields, zap.Float64("context_relevance", *report.ContextRelevance))
		}
		h.logger.Info("evaluated retriever", fields...)

		if h.resultsDir != "" {
			if err := WriteArtifact(h.resultsDir, report); err != nil {
				writeErrs = append(writeErrs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	return reports, errors.Join(writeErrs...)
}

func (h *Harness) evaluateQuery(ctx context.Context, name string, r retriever.Retriever, query string) Record {
	rec := Record{Query: query, Contexts: []string{}}
	res, err := r.Query(ctx, query, h.topK)
	if err != nil {
		rec.Error = fmt.Sprintf("query: %v", err)
		h.logger.Warn("evaluation query failed", zap.String("retriever", name), zap.String("query", query), zap.Error(err))
		return rec
	}
	rec.Contexts = res.Texts()
	if len(rec.Contexts) == 0 {
		rec.Error = ErrNoContexts.Error()
		h.logger.Warn("nothing to judge", zap.String("retriever", name), zap.String("query", query))
		return rec
	}
	score, err := h.judge.Judge(ctx, query, rec.Contexts)
	if err != nil {
		rec.Error = fmt.Sprintf("judge: %v", err)
		h.logger.Warn("judge failed", zap.String("retriever", name), zap.String("query", query), zap.Error(err))
		return rec
	}
	rec.Score = &score
	return rec
}
