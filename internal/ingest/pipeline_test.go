package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormatRecognizesKnownExtensions(t *testing.T) {
	assert.Equal(t, FormatPDF, DetectFormat("contract.pdf"))
	assert.Equal(t, FormatMarkdown, DetectFormat("notes.md"))
	assert.Equal(t, FormatText, DetectFormat("raw.txt"))
}

func TestDetectFormatUnknownExtension(t *testing.T) {
	assert.Equal(t, FormatUnknown, DetectFormat("file.xyz"))
}

func TestPlainTextParserParsesTextAndMarkdown(t *testing.T) {
	p := NewPlainTextParser()

	doc, err := p.Parse(context.Background(), []byte("hello world"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", doc.Content)
	assert.Equal(t, FormatText, doc.Format)

	doc, err = p.Parse(context.Background(), []byte("# Title\n\nbody"), "doc.md")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, doc.Format)
}

func TestPlainTextParserRejectsBinaryFormat(t *testing.T) {
	p := NewPlainTextParser()
	_, err := p.Parse(context.Background(), []byte("%PDF-1.4"), "scan.pdf")
	assert.Error(t, err)
}

func TestPlainTextParserRejectsInvalidUTF8(t *testing.T) {
	p := NewPlainTextParser()
	_, err := p.Parse(context.Background(), []byte{0xff, 0xfe, 0x00}, "bad.txt")
	assert.Error(t, err)
}

func TestIngestRejectsOversizedFile(t *testing.T) {
	pipeline := New(NewPlainTextParser(), nil, nil, Config{MaxFileBytes: 4}, nil)
	_, err := pipeline.Ingest(context.Background(), []byte("too big"), "x.txt", "u1")
	assert.Error(t, err)
}

func TestIngestEmptyContentProducesZeroChunksWithoutError(t *testing.T) {
	pipeline := New(NewPlainTextParser(), nil, nil, Config{}, nil)
	result, err := pipeline.Ingest(context.Background(), []byte(""), "empty.txt", "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ChunksCount)
	assert.Equal(t, 0, result.RecordsCreated)
}

func TestSortedKeysIsDeterministic(t *testing.T) {
	keys := sortedKeys(map[string]int{"b": 1, "a": 2, "c": 3})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
