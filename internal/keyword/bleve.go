package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const (
	fieldText = "text"
	fieldDate = "date"
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so names like "Alice" match exactly.
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldText, textField)
	docMapping.AddFieldMappingsAt(fieldDate, textField)
	docMapping.AddFieldMappingsAt("id", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("passage", docMapping)
	im.DefaultType = "passage"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex opens the index at path, creating it if needed. An empty path gives an
// in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create Bleve index dir: %w", err)
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Replace deletes every indexed passage and indexes docs in one batch.
func (b *BleveIndex) Replace(ctx context.Context, docs []Doc) error {
	existing, err := b.allIDs()
	if err != nil {
		return err
	}
	batch := b.index.NewBatch()
	keep := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		keep[d.ID] = struct{}{}
	}
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			batch.Delete(id)
		}
	}
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(d.ID, d); err != nil {
			return fmt.Errorf("failed to index passage %s: %w", d.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Add indexes docs in one batch without touching other passages.
func (b *BleveIndex) Add(ctx context.Context, docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(d.ID, d); err != nil {
			return fmt.Errorf("failed to index passage %s: %w", d.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

func (b *BleveIndex) allIDs() ([]string, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count passages: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list passages: %w", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Search returns up to limit hits ordered by descending score, ties by id.
// With a date or phrase boost, date and text matches are scored separately and added,
// then scaled by squared query term coverage so passages matching every term rank first.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Result, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	var o SearchOptions
	if opts != nil {
		o = *opts
	}
	if o.DateBoost <= 1 && o.PhraseBoost <= 1 {
		return b.searchSingle(query, limit, o.Fuzziness)
	}
	return b.searchWithBoosts(query, limit, o)
}

func (b *BleveIndex) searchSingle(query string, limit, fuzziness int) ([]Result, error) {
	req := bleve.NewSearchRequest(buildQuery(query, fuzziness, ""))
	req.Size = limit
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	scores := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		scores[hit.ID] = hit.Score
	}
	return topResults(scores, limit), nil
}

func (b *BleveIndex) searchWithBoosts(query string, limit int, o SearchOptions) ([]Result, error) {
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}
	dateBoost := o.DateBoost
	if dateBoost <= 0 {
		dateBoost = 1
	}

	dateHits, err := b.fieldScores(buildQuery(query, o.Fuzziness, fieldDate), reqSize)
	if err != nil {
		return nil, fmt.Errorf("Bleve date search failed: %w", err)
	}
	textHits, err := b.fieldScores(buildQuery(query, o.Fuzziness, fieldText), reqSize)
	if err != nil {
		return nil, fmt.Errorf("Bleve text search failed: %w", err)
	}

	terms := tokenizeQuery(query)
	var coverage map[string]int
	if len(terms) > 1 {
		coverage = b.termCoverage(terms, reqSize, o.Fuzziness)
	}
	phrases := map[string]float64{}
	if o.PhraseBoost > 1 && len(terms) > 1 {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField(fieldText)
		if hits, err := b.fieldScores(pq, reqSize); err == nil {
			phrases = hits
		}
	}

	scores := make(map[string]float64)
	for id, s := range dateHits {
		scores[id] += s * dateBoost
	}
	for id, s := range textHits {
		scores[id] += s
	}
	for id, s := range scores {
		if len(terms) > 1 {
			matched := coverage[id]
			if matched == 0 {
				matched = 1
			}
			c := float64(matched) / float64(len(terms))
			s *= c * c
		}
		if _, ok := phrases[id]; ok {
			s *= o.PhraseBoost
		}
		scores[id] = s
	}
	return topResults(scores, limit), nil
}

func (b *BleveIndex) fieldScores(q blevequery.Query, size int) (map[string]float64, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	res, err := b.index.Search(req)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		out[hit.ID] = hit.Score
	}
	return out, nil
}

// termCoverage counts how many distinct query terms each passage matches.
func (b *BleveIndex) termCoverage(terms []string, size, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		hits, err := b.fieldScores(buildQuery(term, fuzziness, ""), size)
		if err != nil {
			continue
		}
		for id := range hits {
			coverage[id]++
		}
	}
	return coverage
}

func topResults(scores map[string]float64, limit int) []Result {
	out := make([]Result, 0, len(scores))
	for id, s := range scores {
		out = append(out, Result{ID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func tokenizeQuery(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r == '\'' || r == '-' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 127)
	})
	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

// buildQuery returns a match query, or an OR of fuzzy term queries when fuzziness > 0.
// An empty field searches all fields.
func buildQuery(query string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(query)
	if fuzziness <= 0 || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DocCount returns the number of indexed passages.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
