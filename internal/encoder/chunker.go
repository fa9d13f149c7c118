package encoder

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/mentis/internal/models"
)

// Chunking policies.
const (
	PolicyWindow    = "window"
	PolicySentences = "sentences"
	PolicyWords     = "words"
	PolicyEntries   = "entries"
)

// Chunker splits preprocessed text into ordered chunks. IDs are assigned by the Encoder.
type Chunker interface {
	Chunk(text string) []models.Chunk
}

// ChunkingOptions selects and parameterizes a Chunker. Size and Overlap are measured in
// characters for window, sentences for sentences, and words for words.
type ChunkingOptions struct {
	Policy    string `yaml:"policy" json:"policy"`
	Size      int    `yaml:"size" json:"size"`
	Overlap   int    `yaml:"overlap" json:"overlap"`
	MinLength int    `yaml:"min_length" json:"min_length"`
}

// NewChunker returns the chunker for opts.Policy, or a ConfigError if the parameters are invalid.
func NewChunker(opts ChunkingOptions) (Chunker, error) {
	switch opts.Policy {
	case PolicyWindow, "":
		return NewWindowChunker(opts.Size, opts.Overlap)
	case PolicySentences, PolicyWords:
		if err := checkWindow(opts.Size, opts.Overlap); err != nil {
			return nil, err
		}
		if opts.Policy == PolicyWords {
			return &WordChunker{size: opts.Size, overlap: opts.Overlap}, nil
		}
		return &SentenceChunker{size: opts.Size, overlap: opts.Overlap}, nil
	case PolicyEntries:
		return NewEntryChunker(opts.MinLength), nil
	default:
		return nil, &models.ConfigError{Field: "chunking.policy", Err: fmt.Errorf("unknown policy %q (supported: window, sentences, words, entries)", opts.Policy)}
	}
}

func checkWindow(size, overlap int) error {
	if size <= 0 {
		return &models.ConfigError{Field: "chunking.size", Err: fmt.Errorf("must be positive, got %d", size)}
	}
	if overlap < 0 || overlap >= size {
		return &models.ConfigError{Field: "chunking.overlap", Err: fmt.Errorf("must be in [0, %d), got %d", size, overlap)}
	}
	return nil
}

// span is a byte range of the source text.
type span struct{ start, end int }

// windows groups units into windows of size with overlap and emits one chunk per window,
// covering the source from the first unit's start to the last unit's end.
func windows(text string, units []span, size, overlap int) []models.Chunk {
	if len(units) == 0 {
		return nil
	}
	var chunks []models.Chunk
	for i := 0; ; i += size - overlap {
		end := i + size
		if end > len(units) {
			end = len(units)
		}
		s, e := units[i].start, units[end-1].end
		chunks = append(chunks, models.Chunk{Index: len(chunks), Start: s, End: e, Text: text[s:e]})
		if end >= len(units) {
			break
		}
	}
	return chunks
}

// WindowChunker cuts fixed-size character windows that overlap by a fixed number of characters.
// Text no longer than one window becomes a single chunk.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates size > 0 and 0 <= overlap < size.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if err := checkWindow(size, overlap); err != nil {
		return nil, err
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Chunk splits text on rune boundaries.
func (c *WindowChunker) Chunk(text string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	units := make([]span, 0, utf8.RuneCountInString(text))
	for i, r := range text {
		units = append(units, span{i, i + utf8.RuneLen(r)})
	}
	return windows(text, units, c.size, c.overlap)
}

var wordRe = regexp.MustCompile(`\S+`)

// WordChunker groups whitespace-separated words into overlapping windows.
type WordChunker struct {
	size    int
	overlap int
}

// Chunk splits text into word windows.
func (c *WordChunker) Chunk(text string) []models.Chunk {
	return windows(text, toSpans(wordRe.FindAllStringIndex(text, -1)), c.size, c.overlap)
}

var sentenceRe = regexp.MustCompile(`[^.!?\s][^.!?]*(?:[.!?]+|$)`)

// SentenceChunker groups sentences into overlapping windows of whole sentences.
type SentenceChunker struct {
	size    int
	overlap int
}

// Chunk splits text into sentence windows. A trailing fragment without a terminator is its own sentence.
func (c *SentenceChunker) Chunk(text string) []models.Chunk {
	var units []span
	for _, m := range sentenceRe.FindAllStringIndex(text, -1) {
		s := text[m[0]:m[1]]
		trimmed := strings.TrimRight(s, " \n\t")
		if trimmed == "" {
			continue
		}
		units = append(units, span{m[0], m[0] + len(trimmed)})
	}
	return windows(text, units, c.size, c.overlap)
}

// dateLineRe matches diary headings such as "Sunday, 14 June, 1942".
var dateLineRe = regexp.MustCompile(`^(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\s*,.*\d{4}$`)

// EntryChunker splits a diary at date lines. Each chunk starts with its date line, which is
// also recorded as the chunk's date metadata. Text before the first date line forms an
// undated entry. Entries no longer than minLength characters are discarded.
type EntryChunker struct {
	minLength int
}

// NewEntryChunker returns an entry chunker; minLength <= 0 uses 10.
func NewEntryChunker(minLength int) *EntryChunker {
	if minLength <= 0 {
		minLength = 10
	}
	return &EntryChunker{minLength: minLength}
}

// Chunk splits text into diary entries.
func (c *EntryChunker) Chunk(text string) []models.Chunk {
	var chunks []models.Chunk
	start, date := 0, ""
	flush := func(end int) {
		raw := text[start:end]
		trimmed := strings.TrimSpace(raw)
		if utf8.RuneCountInString(trimmed) <= c.minLength {
			return
		}
		s := start + strings.Index(raw, trimmed)
		ch := models.Chunk{Index: len(chunks), Start: s, End: s + len(trimmed), Text: trimmed}
		if date != "" {
			ch.Metadata = map[string]string{models.MetaDate: date}
		}
		chunks = append(chunks, ch)
	}
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		heading := strings.TrimSpace(line)
		if dateLineRe.MatchString(heading) {
			flush(offset)
			start, date = offset, heading
		}
		offset += len(line)
	}
	flush(len(text))
	return chunks
}

func toSpans(idx [][]int) []span {
	out := make([]span, len(idx))
	for i, m := range idx {
		out[i] = span{m[0], m[1]}
	}
	return out
}
