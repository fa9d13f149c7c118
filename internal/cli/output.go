// Package cli provides output helpers for the Mentis commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/mentis/internal/chat"
	"github.com/hyperjump/mentis/internal/encoder"
	"github.com/hyperjump/mentis/internal/eval"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/vector"
	"github.com/hyperjump/mentis/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────\n"

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", &models.ConfigError{Field: "output", Err: fmt.Errorf("unknown format %q (supported: text, json)", s)}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteResult writes a retrieval result to w in the given format.
func WriteResult(w io.Writer, result *models.RetrievalResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "\n[%s] %d passages in %dms\n\n", result.Retriever, len(result.Passages), result.QueryTime)
	for i, p := range result.Passages {
		fmt.Fprint(w, rule)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | ID: %s\n", i+1, p.Score, p.ID)
		if date := p.Metadata[models.MetaDate]; date != "" {
			fmt.Fprintf(w, "Date: %s\n", date)
		}
		if len(p.SourceChunkIDs) > 0 {
			fmt.Fprintf(w, "Sources: %s\n", strings.Join(p.SourceChunkIDs, ", "))
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(p.Text, 300))
	}
	return nil
}

// EncodeOutcome is one retriever's result in an encode run.
type EncodeOutcome struct {
	Retriever string          `json:"retriever"`
	Report    *encoder.Report `json:"report,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// WriteEncodeOutcomes writes encode results followed by succeeded/failed counts.
func WriteEncodeOutcomes(w io.Writer, outcomes []EncodeOutcome, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, outcomes)
	}
	failed := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
			fmt.Fprintf(w, "✗ %s: %s\n", o.Retriever, o.Error)
			continue
		}
		r := o.Report
		fmt.Fprintf(w, "✓ %s: %d chunks into %q in %s\n", o.Retriever, r.NumChunks, r.Collection, r.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "\n%d succeeded, %d failed\n", len(outcomes)-failed, failed)
	return nil
}

// WriteEvalReports writes one summary line per retriever, sorted by name.
func WriteEvalReports(w io.Writer, reports map[string]*eval.Report, format OutputFormat) error {
	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)
	if format == OutputJSON {
		ordered := make([]*eval.Report, len(names))
		for i, name := range names {
			ordered[i] = reports[name]
		}
		return writeJSON(w, ordered)
	}
	for _, name := range names {
		r := reports[name]
		relevance := "n/a"
		if r.ContextRelevance != nil {
			relevance = fmt.Sprintf("%.4f", *r.ContextRelevance)
		}
		fmt.Fprintf(w, "%-16s context_relevance=%s scored %d/%d\n", name, relevance, r.NumScored, r.NumQueries)
	}
	return nil
}

// WriteAnswers writes chat answers, one block per retriever.
func WriteAnswers(w io.Writer, answers []chat.Answer) {
	for _, a := range answers {
		if a.Err != nil {
			fmt.Fprintf(w, "[%s] error: %v\n\n", a.Retriever, a.Err)
			continue
		}
		fmt.Fprintf(w, "[%s] %s\n\n", a.Retriever, strings.TrimSpace(a.Text))
	}
}

// Status describes the store for the status command.
type Status struct {
	Backend        string                  `json:"backend"`
	DatabasePath   string                  `json:"database_path,omitempty"`
	DiskUsageBytes int64                   `json:"disk_usage_bytes"`
	Collections    []vector.CollectionInfo `json:"collections"`
	Retrievers     []string                `json:"retrievers"`
}

// WriteStatus writes the store status.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Backend:     %s\n", s.Backend)
	if s.DatabasePath != "" {
		fmt.Fprintf(w, "Database:    %s (%s)\n", s.DatabasePath, FormatBytes(s.DiskUsageBytes))
	}
	fmt.Fprintf(w, "Retrievers:  %s\n", strings.Join(s.Retrievers, ", "))
	if len(s.Collections) == 0 {
		fmt.Fprintln(w, "Collections: none (run encode-all)")
		return nil
	}
	fmt.Fprintln(w, "Collections:")
	for _, c := range s.Collections {
		fmt.Fprintf(w, "  %-24s %6d records  %5d dims\n", c.Name, c.Count, c.Dimensions)
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
