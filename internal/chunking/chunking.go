// Package chunking splits ingested document text into retrieval-sized
// pieces, ported from original_source/core/rag/chunking.py.
//
// Four strategies are provided: FixedSizeChunker (pure character windows),
// SemanticChunker (paragraph-respecting), RecursiveChunker (separator
// hierarchy fallback), and ContextualChunker (wraps another chunker and
// widens each chunk's content with surrounding sentences while keeping the
// wrapped chunk's chunk_id/start_pos/end_pos, per the documented offset
// resolution).
package chunking

import (
	"fmt"
	"regexp"
	"strings"
)

// Strategy names a chunking algorithm.
type Strategy string

const (
	FixedSize  Strategy = "fixed_size"
	Semantic   Strategy = "semantic"
	Recursive  Strategy = "recursive"
	Contextual Strategy = "contextual"
)

// Chunk is a piece of a document with its location and metadata.
type Chunk struct {
	ChunkID  string
	Content  string
	StartPos int
	EndPos   int
	Metadata map[string]interface{}
}

// Chunker splits text into Chunks.
type Chunker interface {
	ChunkText(text, docID string, baseMetadata map[string]interface{}) []Chunk
}

func cloneMeta(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FixedSizeChunker splits text into fixed-width, overlapping windows.
type FixedSizeChunker struct {
	ChunkSize int
	Overlap   int
}

// NewFixedSizeChunker returns a FixedSizeChunker with the reference's
// defaults: 1000 chars where chunkSize <= 0, and 200 overlap where overlap
// is negative (an overlap of 0 means no overlap).
func NewFixedSizeChunker(chunkSize, overlap int) *FixedSizeChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 200
	}
	return &FixedSizeChunker{ChunkSize: chunkSize, Overlap: overlap}
}

func (c *FixedSizeChunker) ChunkText(text, docID string, baseMetadata map[string]interface{}) []Chunk {
	runes := []rune(text)
	var chunks []Chunk
	start := 0
	idx := 0

	for start < len(runes) {
		end := start + c.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		meta := cloneMeta(baseMetadata)
		meta["chunk_index"] = idx
		chunks = append(chunks, Chunk{
			ChunkID:  fmt.Sprintf("%s_chunk_%d", docID, idx),
			Content:  string(runes[start:end]),
			StartPos: start,
			EndPos:   end,
			Metadata: meta,
		})

		if end < len(runes) {
			start = end - c.Overlap
		} else {
			start = end
		}
		idx++
	}
	return chunks
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// SemanticChunker accumulates whole paragraphs up to chunk_size.
type SemanticChunker struct {
	ChunkSize    int
	MinChunkSize int
}

// NewSemanticChunker returns a SemanticChunker with the reference's
// defaults (1000/100) where size/minSize are <= 0.
func NewSemanticChunker(chunkSize, minChunkSize int) *SemanticChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if minChunkSize <= 0 {
		minChunkSize = 100
	}
	return &SemanticChunker{ChunkSize: chunkSize, MinChunkSize: minChunkSize}
}

func (c *SemanticChunker) ChunkText(text, docID string, baseMetadata map[string]interface{}) []Chunk {
	paragraphs := splitParagraphs(text)

	var chunks []Chunk
	var current strings.Builder
	currentStart := 0
	idx := 0

	flush := func() {
		content := strings.TrimSpace(current.String())
		if content == "" {
			return
		}
		meta := cloneMeta(baseMetadata)
		meta["chunk_index"] = idx
		chunks = append(chunks, Chunk{
			ChunkID:  fmt.Sprintf("%s_chunk_%d", docID, idx),
			Content:  content,
			StartPos: currentStart,
			EndPos:   currentStart + current.Len(),
			Metadata: meta,
		})
		idx++
	}

	for _, p := range paragraphs {
		if current.Len() > 0 && current.Len()+len(p.text) > c.ChunkSize && current.Len() >= c.MinChunkSize {
			flush()
			current.Reset()
			current.WriteString(p.text)
			currentStart = p.start
		} else {
			if current.Len() == 0 {
				currentStart = p.start
			}
			current.WriteString(p.text)
		}
	}
	flush()
	return chunks
}

type paragraph struct {
	start int
	text  string
}

func splitParagraphs(text string) []paragraph {
	var out []paragraph
	searchFrom := 0
	for _, part := range paragraphSplit.Split(text, -1) {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		start := strings.Index(text[searchFrom:], part)
		if start < 0 {
			start = 0
		} else {
			start += searchFrom
		}
		out = append(out, paragraph{start: start, text: part + "\n\n"})
		searchFrom = start + len(part)
	}
	return out
}

// RecursiveChunker tries a hierarchy of separators, recursing into
// over-long splits with the next separator down.
type RecursiveChunker struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

// NewRecursiveChunker returns a RecursiveChunker with the reference's
// default separator hierarchy (paragraph, line, sentence, word) if none is
// given.
func NewRecursiveChunker(chunkSize, overlap int, separators []string) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 200
	}
	if len(separators) == 0 {
		separators = []string{"\n\n", "\n", ". ", " "}
	}
	return &RecursiveChunker{ChunkSize: chunkSize, Overlap: overlap, Separators: separators}
}

func (c *RecursiveChunker) ChunkText(text, docID string, baseMetadata map[string]interface{}) []Chunk {
	splits := c.recursiveSplit(text, c.Separators)

	var chunks []Chunk
	var current strings.Builder
	currentStart := 0
	idx := 0
	textPos := 0

	flush := func() {
		content := strings.TrimSpace(current.String())
		if content == "" {
			return
		}
		meta := cloneMeta(baseMetadata)
		meta["chunk_index"] = idx
		chunks = append(chunks, Chunk{
			ChunkID:  fmt.Sprintf("%s_chunk_%d", docID, idx),
			Content:  content,
			StartPos: currentStart,
			EndPos:   currentStart + current.Len(),
			Metadata: meta,
		})
		idx++
	}

	for _, split := range splits {
		if current.Len() > 0 && current.Len()+len(split) > c.ChunkSize {
			flush()

			overlapText := ""
			if c.Overlap > 0 {
				buf := current.String()
				if len(buf) > c.Overlap {
					overlapText = buf[len(buf)-c.Overlap:]
				} else {
					overlapText = buf
				}
			}
			current.Reset()
			current.WriteString(overlapText)
			current.WriteString(split)
			currentStart = textPos - len(overlapText)
		} else {
			if current.Len() == 0 {
				currentStart = textPos
			}
			current.WriteString(split)
		}
		textPos += len(split)
	}
	flush()
	return chunks
}

func (c *RecursiveChunker) recursiveSplit(text string, separators []string) []string {
	if len(separators) == 0 {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	separator := separators[0]
	remaining := separators[1:]
	parts := strings.Split(text, separator)

	var result []string
	for _, part := range parts {
		if len(part) > c.ChunkSize && len(remaining) > 0 {
			result = append(result, c.recursiveSplit(part, remaining)...)
		} else if part != "" {
			result = append(result, part+separator)
		}
	}
	return result
}

var sentencePattern = regexp.MustCompile(`[.!?]+\s+`)

// ContextualChunker wraps another Chunker and widens each chunk's content
// to include surrounding sentences, while keeping the base chunk's
// chunk_id/start_pos/end_pos.
type ContextualChunker struct {
	Base             Chunker
	ContextSentences int
}

// NewContextualChunker returns a ContextualChunker wrapping base with the
// reference's default of 3 context sentences if contextSentences <= 0.
func NewContextualChunker(base Chunker, contextSentences int) *ContextualChunker {
	if contextSentences <= 0 {
		contextSentences = 3
	}
	return &ContextualChunker{Base: base, ContextSentences: contextSentences}
}

type sentence struct {
	pos  int
	text string
}

func extractSentences(text string) []sentence {
	var sentences []sentence
	pos := 0
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		start := pos
		end := loc[1]
		s := strings.TrimSpace(text[start:end])
		if s != "" {
			sentences = append(sentences, sentence{pos: start, text: s})
		}
		pos = end
	}
	if pos < len(text) {
		s := strings.TrimSpace(text[pos:])
		if s != "" {
			sentences = append(sentences, sentence{pos: pos, text: s})
		}
	}
	return sentences
}

func findSentenceIndex(sentences []sentence, position int) int {
	for i, s := range sentences {
		if s.pos <= position && position < s.pos+len(s.text) {
			return i
		}
	}
	if len(sentences) > 0 {
		return len(sentences) - 1
	}
	return 0
}

func (c *ContextualChunker) ChunkText(text, docID string, baseMetadata map[string]interface{}) []Chunk {
	baseChunks := c.Base.ChunkText(text, docID, baseMetadata)
	sentences := extractSentences(text)

	out := make([]Chunk, 0, len(baseChunks))
	for _, chunk := range baseChunks {
		startSent := findSentenceIndex(sentences, chunk.StartPos)
		endSent := findSentenceIndex(sentences, chunk.EndPos)

		contextStart := startSent - c.ContextSentences
		if contextStart < 0 {
			contextStart = 0
		}
		contextEnd := endSent + c.ContextSentences + 1
		if contextEnd > len(sentences) {
			contextEnd = len(sentences)
		}

		var parts []string
		for _, s := range sentences[contextStart:contextEnd] {
			parts = append(parts, s.text)
		}
		content := strings.Join(parts, " ")
		if content == "" {
			content = chunk.Content
		}

		meta := cloneMeta(chunk.Metadata)
		meta["has_context"] = true
		meta["context_sentences_before"] = startSent - contextStart
		meta["context_sentences_after"] = contextEnd - endSent - 1

		out = append(out, Chunk{
			ChunkID:  chunk.ChunkID,
			Content:  content,
			StartPos: chunk.StartPos,
			EndPos:   chunk.EndPos,
			Metadata: meta,
		})
	}
	return out
}

// Options carries the strategy-specific settings New passes to each chunker.
type Options struct {
	Overlap          int
	MinChunkSize     int
	Separators       []string
	ContextSentences int
	BaseStrategy     Strategy
}

// New builds a Chunker for strategy with the given target chunkSize,
// matching the reference's create_chunker factory. Strategy-specific
// options (overlap, min chunk size, separators, context sentences, and the
// base strategy for Contextual) are taken from opts, defaulting per-chunker
// when omitted; an omitted (zero) Overlap means no overlap.
func New(strategy Strategy, chunkSize int, opts Options) (Chunker, error) {
	switch strategy {
	case FixedSize:
		return NewFixedSizeChunker(chunkSize, opts.Overlap), nil
	case Semantic:
		return NewSemanticChunker(chunkSize, opts.MinChunkSize), nil
	case Recursive:
		return NewRecursiveChunker(chunkSize, opts.Overlap, opts.Separators), nil
	case Contextual:
		base := opts.BaseStrategy
		if base == "" {
			base = Semantic
		}
		baseChunker, err := New(base, chunkSize, opts)
		if err != nil {
			return nil, err
		}
		return NewContextualChunker(baseChunker, opts.ContextSentences), nil
	default:
		return nil, fmt.Errorf("chunking: unknown strategy %q", strategy)
	}
}
