// Package ingest implements the full document ingestion pipeline: parse,
// chunk, domain-tag, embed, and upsert into the semantic store.
//
// Grounded on original_source/core/ingestion/pdf_ingestion_service.py and
// original_source/core/rag/document_parser.py's DocumentIngestionPipeline,
// with the embed-and-upsert stage's all-or-nothing transaction modeled on
// vector_document_repository.go's BulkCreate.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vasic-digital/memcore/internal/chunking"
	"github.com/vasic-digital/memcore/internal/domaintag"
	"github.com/vasic-digital/memcore/internal/embedclient"
	"github.com/vasic-digital/memcore/internal/memcore"
	"github.com/vasic-digital/memcore/internal/memcore/errs"
	"github.com/vasic-digital/memcore/internal/semanticstore"
)

// Format identifies an ingested document's source format, mirroring the
// reference's DocumentFormat enum.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatDOC      Format = "doc"
	FormatHTML     Format = "html"
	FormatHTM      Format = "htm"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
	FormatRTF      Format = "rtf"
	FormatXLSX     Format = "xlsx"
	FormatXLS      Format = "xls"
	FormatPPTX     Format = "pptx"
	FormatPPT      Format = "ppt"
	FormatUnknown  Format = ""
)

// DetectFormat maps a filename's extension to a Format, unrecognized
// extensions yielding FormatUnknown.
func DetectFormat(filename string) Format {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch Format(ext) {
	case FormatPDF, FormatDOCX, FormatDOC, FormatHTML, FormatHTM, FormatMarkdown,
		FormatText, FormatRTF, FormatXLSX, FormatXLS, FormatPPTX, FormatPPT:
		return Format(ext)
	default:
		return FormatUnknown
	}
}

// ParsedDocument is the output of a DocumentParser.
type ParsedDocument struct {
	Content  string
	Format   Format
	Metadata map[string]interface{}
	FileName string
}

// DocumentParser converts raw document bytes into plain/Markdown text plus
// extracted metadata. Implementations for binary formats (PDF, DOCX, ...)
// are expected to be wired in externally — this package ships only the
// text/Markdown path built in.
type DocumentParser interface {
	Parse(ctx context.Context, data []byte, filename string) (ParsedDocument, error)
}

// PlainTextParser handles the txt and md formats directly, and parses a file
// with no or an unrecognized extension as plain text; every other known
// format returns a validation error naming the format that needs an
// external parser (e.g. a MarkItDown-backed implementation) wired in.
type PlainTextParser struct{}

// NewPlainTextParser constructs the built-in parser.
func NewPlainTextParser() *PlainTextParser {
	return &PlainTextParser{}
}

func (p *PlainTextParser) Parse(ctx context.Context, data []byte, filename string) (ParsedDocument, error) {
	format := DetectFormat(filename)
	switch format {
	case FormatText, FormatMarkdown, FormatUnknown:
		// FormatUnknown (no extension, or an extension we don't recognize)
		// is treated as plain text, matching a permissive default for
		// ad hoc ingestion rather than rejecting it outright.
	default:
		return ParsedDocument{}, errs.Validation(
			"ingest: format %q requires an external document parser; built-in parser only handles text and markdown", format)
	}

	if !utf8.Valid(data) {
		return ParsedDocument{}, errs.Validation("ingest: %s is not valid UTF-8 text", filename)
	}

	content := string(bytes.TrimRight(data, "\x00"))
	return ParsedDocument{
		Content: content,
		Format:  format,
		Metadata: map[string]interface{}{
			"file_size": len(data),
		},
		FileName: filename,
	}, nil
}

// DefaultMaxFileBytes is the ingestion file-size cap applied when Config
// does not override it (INGEST_MAX_FILE_BYTES in deployment config).
const DefaultMaxFileBytes = 20 * 1024 * 1024

// Config parameterizes a Pipeline.
type Config struct {
	Strategy       chunking.Strategy
	ChunkSize      int
	ChunkOptions   chunking.Options
	MaxFileBytes   int64
	AdditionalTags []string
	EmbeddingModel string
}

// Result reports what Ingest produced for one document, mirroring the
// reference's IngestionResult dataclass.
type Result struct {
	DocumentID     string
	FileName       string
	PageCount      int
	ChunksCount    int
	RecordsCreated int
	DetectedTags   []string
	TagCounts      map[string]int
	Errors         []string
}

// Pipeline wires together a parser, chunker, domain tagger, embedder, and
// semantic store into the full ingest path.
type Pipeline struct {
	Parser   DocumentParser
	Embedder *embedclient.Client
	Store    *semanticstore.Store
	Config   Config
	log      *logrus.Logger
}

// New constructs a Pipeline. cfg's zero-valued fields are filled with the
// reference's defaults: Semantic strategy at chunk size 1000, 20 MB file cap.
func New(parser DocumentParser, embedder *embedclient.Client, store *semanticstore.Store, cfg Config, log *logrus.Logger) *Pipeline {
	if parser == nil {
		parser = NewPlainTextParser()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = chunking.Semantic
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{Parser: parser, Embedder: embedder, Store: store, Config: cfg, log: log}
}

// Ingest runs a document through parse -> chunk -> domain-tag -> embed ->
// upsert, all-or-nothing: if any stage after parsing fails, no record from
// this document is persisted.
func (p *Pipeline) Ingest(ctx context.Context, data []byte, filename, userID string) (Result, error) {
	if int64(len(data)) > p.Config.MaxFileBytes {
		return Result{}, errs.Validation("ingest: %s is %d bytes, exceeds cap of %d", filename, len(data), p.Config.MaxFileBytes)
	}

	parsed, err := p.Parser.Parse(ctx, data, filename)
	if err != nil {
		return Result{}, err
	}

	documentID := uuid.New().String()
	result := Result{DocumentID: documentID, FileName: filename}

	if pageCount, ok := parsed.Metadata["page_count"].(int); ok {
		result.PageCount = pageCount
	}

	chunker, err := chunking.New(p.Config.Strategy, p.Config.ChunkSize, p.Config.ChunkOptions)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: build chunker: %w", err)
	}

	baseMeta := map[string]interface{}{
		"document_id":       documentID,
		"original_filename": filename,
		"format":            string(parsed.Format),
	}
	for k, v := range parsed.Metadata {
		baseMeta[k] = v
	}

	chunks := chunker.ChunkText(parsed.Content, documentID, baseMeta)
	result.ChunksCount = len(chunks)
	if len(chunks) == 0 {
		return result, nil
	}

	texts := make([]string, len(chunks))
	perChunkCriteria := make([][]string, len(chunks))
	tagsByChunk := make([][]string, len(chunks))

	for i, c := range chunks {
		texts[i] = c.Content
		classified := domaintag.Classify(c.Content, p.Config.AdditionalTags)
		perChunkCriteria[i] = classified.DetectedCriteria
		tagsByChunk[i] = classified.Tags
	}

	result.TagCounts = domaintag.AggregateCounts(perChunkCriteria)
	result.DetectedTags = sortedKeys(result.TagCounts)

	var embeddings [][]float32
	if p.Embedder != nil {
		embeddings, err = p.Embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return result, fmt.Errorf("ingest: embed chunks: %w", err)
		}
	}

	records := make([]memcore.MemoryRecord, len(chunks))
	now := time.Now().UTC()
	for i, c := range chunks {
		meta := make(map[string]interface{}, len(c.Metadata)+2)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta["start_pos"] = c.StartPos
		meta["end_pos"] = c.EndPos

		rec := memcore.MemoryRecord{
			ID:         c.ChunkID,
			UserID:     userID,
			Type:       memcore.MemoryTypeSemantic,
			Text:       c.Content,
			Salience:   memcore.DefaultSalience,
			Confidence: memcore.DefaultConfidence,
			Source:     filename,
			Tags:       tagsByChunk[i],
			Metadata:   meta,
			CreatedAt:  now,
		}
		if i < len(embeddings) {
			rec.Embedding = embeddings[i]
			rec.EmbeddingModel = p.Config.EmbeddingModel
		}
		records[i] = rec
	}

	inserted, err := p.Store.InsertBatch(ctx, records)
	if err != nil {
		return result, fmt.Errorf("ingest: upsert chunks: %w", err)
	}
	result.RecordsCreated = len(inserted)

	p.log.WithFields(logrus.Fields{
		"document_id": documentID,
		"file_name":   filename,
		"chunks":      result.ChunksCount,
		"records":     result.RecordsCreated,
	}).Info("ingest.complete")

	return result, nil
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
