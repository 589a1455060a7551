package sparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRanksMoreRelevantDocumentHigher(t *testing.T) {
	r := New()
	r.Build([]string{
		"the cat sat on the mat",
		"dogs and cats are popular pets",
		"the weather today is sunny and warm",
	})

	results := r.Search("cat", 0)
	require.NotEmpty(t, results)
	assert.Equal(t, "the cat sat on the mat", results[0].Text)
}

func TestSearchEmptyQueryReturnsEmpty(t *testing.T) {
	r := New()
	r.Build([]string{"some document"})
	results := r.Search("", 10)
	assert.Empty(t, results)
}

func TestSearchEmptyIndexReturnsEmpty(t *testing.T) {
	r := New()
	results := r.Search("anything", 10)
	assert.Empty(t, results)
}

func TestSearchTopKLimitsResults(t *testing.T) {
	r := New()
	r.Build([]string{"alpha beta", "alpha gamma", "alpha delta"})
	results := r.Search("alpha", 2)
	assert.Len(t, results, 2)
}

func TestSearchNoOverlapReturnsEmpty(t *testing.T) {
	r := New()
	r.Build([]string{"completely unrelated content"})
	results := r.Search("zzz nonexistent term", 10)
	assert.Empty(t, results)
}

func TestUpdateIndexAppendsDocuments(t *testing.T) {
	r := New()
	r.Build([]string{"first document"})
	r.UpdateIndex([]string{"second document about cats"})

	stats := r.Stats()
	assert.Equal(t, 2, stats.DocumentCount)

	results := r.Search("cats", 0)
	assert.Len(t, results, 1)
}

func TestStatsReportsAverageLength(t *testing.T) {
	r := New()
	r.Build([]string{"a b c d", "e f g h"})
	stats := r.Stats()
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, 4.0, stats.AvgDocLength)
	assert.Equal(t, 8, stats.TotalTokens)
}

func TestWithTokenizerOverride(t *testing.T) {
	calls := 0
	custom := func(text string) []string {
		calls++
		return []string{"x"}
	}
	r := New().WithTokenizer(custom)
	r.Build([]string{"anything"})
	assert.True(t, calls > 0)
}

func TestSearchIsDeterministicOnTiedScores(t *testing.T) {
	r := New()
	r.Build([]string{"zeta shared", "alpha shared"})
	first := r.Search("shared", 0)
	second := r.Search("shared", 0)
	assert.Equal(t, first, second)
}
