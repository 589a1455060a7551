package consolidate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasic-digital/memcore/internal/memcore"
)

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityOrthogonalVectors(t *testing.T) {
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarityMismatchedLengthIsZero(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestCosineSimilarityEmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity(nil, []float32{1}))
}

func TestFindSemanticDuplicatesClustersSimilarRecords(t *testing.T) {
	records := []memcore.MemoryRecord{
		{ID: "a", Embedding: []float32{1, 0, 0}},
		{ID: "b", Embedding: []float32{1, 0, 0.001}},
		{ID: "c", Embedding: []float32{0, 1, 0}},
	}
	clusters := FindSemanticDuplicates(records, 0.92)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0], 2)
}

func TestFindSemanticDuplicatesIgnoresRecordsWithoutEmbeddings(t *testing.T) {
	records := []memcore.MemoryRecord{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b"},
	}
	clusters := FindSemanticDuplicates(records, 0.92)
	assert.Empty(t, clusters)
}

func TestFindSemanticDuplicatesFewerThanTwoEmbeddedReturnsNil(t *testing.T) {
	records := []memcore.MemoryRecord{{ID: "a", Embedding: []float32{1, 0}}}
	assert.Nil(t, FindSemanticDuplicates(records, 0.9))
}

func TestMergeDuplicateRecordsKeepsHighestSalienceAsBase(t *testing.T) {
	now := time.Now().UTC()
	dup1 := memcore.MemoryRecord{ID: "a", Text: "hello", Salience: 0.5, Confidence: 0.6, Tags: []string{"x"}, CreatedAt: now}
	dup2 := memcore.MemoryRecord{ID: "b", Text: "hello", Salience: 0.9, Confidence: 0.8, Tags: []string{"y"}, CreatedAt: now}

	merged, err := MergeDuplicateRecords([]memcore.MemoryRecord{dup1, dup2})
	require.NoError(t, err)
	assert.Equal(t, 0.9, merged.Salience)
	assert.Contains(t, merged.Tags, "x")
	assert.Contains(t, merged.Tags, "y")
	assert.InDelta(t, 0.7, merged.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{"a", "b"}, merged.Metadata["merged_from"])
}

func TestMergeDuplicateRecordsIDIsDeterministic(t *testing.T) {
	dup1 := memcore.MemoryRecord{ID: "a", Text: "same text", Salience: 0.5}
	dup2 := memcore.MemoryRecord{ID: "b", Text: "same text", Salience: 0.5}

	first, err := MergeDuplicateRecords([]memcore.MemoryRecord{dup1, dup2})
	require.NoError(t, err)
	second, err := MergeDuplicateRecords([]memcore.MemoryRecord{dup2, dup1})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "merged_", first.ID[:7])
	assert.Len(t, first.ID, 19)
}

func TestMergeDuplicateRecordsSingleElementReturnsItUnchanged(t *testing.T) {
	r := memcore.MemoryRecord{ID: "solo", Text: "x"}
	merged, err := MergeDuplicateRecords([]memcore.MemoryRecord{r})
	require.NoError(t, err)
	assert.Equal(t, r, merged)
}

func TestMergeDuplicateRecordsEmptyIsError(t *testing.T) {
	_, err := MergeDuplicateRecords(nil)
	assert.Error(t, err)
}

func TestCalculateDecayHalvesAtHalfLife(t *testing.T) {
	now := time.Now().UTC()
	createdAt := now.Add(-30 * 24 * time.Hour)
	decay := CalculateDecay(createdAt, 30, 0.1, now)
	assert.InDelta(t, 0.5, decay, 0.01)
}

func TestCalculateDecayFloorsAtMinImportance(t *testing.T) {
	now := time.Now().UTC()
	createdAt := now.Add(-365 * 24 * time.Hour)
	decay := CalculateDecay(createdAt, 30, 0.1, now)
	assert.Equal(t, 0.1, decay)
}

func TestCalculateDecayFutureDatedIsOne(t *testing.T) {
	now := time.Now().UTC()
	createdAt := now.Add(time.Hour)
	assert.Equal(t, 1.0, CalculateDecay(createdAt, 30, 0.1, now))
}

func TestApplyImportanceDecaySkipsZeroCreatedAt(t *testing.T) {
	records := []memcore.MemoryRecord{{ID: "a", Salience: 0.8}}
	out := ApplyImportanceDecay(records, 30, 0.1, time.Now().UTC())
	assert.Equal(t, 0.8, out[0].Salience)
}

func TestPolicyConsolidateDedupesAndDecays(t *testing.T) {
	now := time.Now().UTC()
	p := NewPolicy(DefaultConfig())
	p.Now = func() time.Time { return now }

	records := []memcore.MemoryRecord{
		{ID: "a", UserID: "u1", Text: "hello", Salience: 0.8, Embedding: []float32{1, 0}, CreatedAt: now},
		{ID: "b", UserID: "u1", Text: "hello again", Salience: 0.7, Embedding: []float32{1, 0.0001}, CreatedAt: now},
		{ID: "c", UserID: "u1", Text: "unrelated", Salience: 0.6, Embedding: []float32{0, 1}, CreatedAt: now},
	}

	out, result := p.Consolidate(records, "u1")
	assert.Equal(t, 3, result.TotalBefore)
	assert.Equal(t, 1, result.Merged)
	assert.Len(t, out, 2)
}

func TestPolicyConsolidateFiltersByUser(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	records := []memcore.MemoryRecord{
		{ID: "a", UserID: "u1", Text: "x", Salience: 0.5, CreatedAt: time.Now().UTC()},
		{ID: "b", UserID: "u2", Text: "y", Salience: 0.5, CreatedAt: time.Now().UTC()},
	}
	out, _ := p.Consolidate(records, "u1")
	require.Len(t, out, 1)
	assert.Equal(t, "u1", out[0].UserID)
}

func TestPolicyConsolidateEmptyInputReturnsEmptyResult(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	out, result := p.Consolidate(nil, "")
	assert.Empty(t, out)
	assert.Equal(t, 0, result.TotalBefore)
}

func TestPolicyConsolidateExactTextFallbackWhenSemanticDedupDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseSemanticDedup = false
	cfg.EnableDecay = false
	p := NewPolicy(cfg)

	records := []memcore.MemoryRecord{
		{ID: "a", UserID: "u1", Type: memcore.MemoryTypeSemantic, Text: "same", Salience: 0.5},
		{ID: "b", UserID: "u1", Type: memcore.MemoryTypeSemantic, Text: "same", Salience: 0.5},
	}
	out, result := p.Consolidate(records, "")
	assert.Len(t, out, 1)
	assert.Equal(t, 1, result.Deduplicated)
}
