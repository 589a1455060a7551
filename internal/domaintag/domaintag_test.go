package domaintag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDetectsAwardsCriterion(t *testing.T) {
	r := Classify("She received the national award for outstanding research.", nil)
	assert.Contains(t, r.DetectedCriteria, "eb1a_awards")
}

func TestClassifyIsWholeWordNotSubstring(t *testing.T) {
	// "award" does not match inside a longer word such as "awardees";
	// "rewarded" matches through its own keyword entry.
	r := Classify("The committee rewarded her efforts.", nil)
	assert.Contains(t, r.DetectedCriteria, "eb1a_awards")

	r = Classify("The awardees gathered.", nil)
	assert.NotContains(t, r.DetectedCriteria, "eb1a_awards")
}

func TestClassifyCaseInsensitive(t *testing.T) {
	r := Classify("AWARD winning research", nil)
	assert.Contains(t, r.DetectedCriteria, "eb1a_awards")
}

func TestClassifyNoMatchReturnsBaseTagsOnly(t *testing.T) {
	r := Classify("The quick brown fox jumps over the lazy dog.", nil)
	assert.Empty(t, r.DetectedCriteria)
	assert.Equal(t, BaseTags, r.Tags)
}

func TestClassifyIncludesAdditionalTags(t *testing.T) {
	r := Classify("plain text", []string{"case-123"})
	assert.Contains(t, r.Tags, "case-123")
	assert.Contains(t, r.Tags, "document")
}

func TestClassifyDedupesTags(t *testing.T) {
	r := Classify("an award for excellence", []string{"document"})
	seen := map[string]int{}
	for _, tag := range r.Tags {
		seen[tag]++
	}
	for tag, n := range seen {
		assert.Equal(t, 1, n, "tag %q should appear once", tag)
	}
}

func TestAggregateCountsAcrossChunks(t *testing.T) {
	counts := AggregateCounts([][]string{
		{"eb1a_awards", "eb1a_press"},
		{"eb1a_awards"},
		{},
	})
	assert.Equal(t, 2, counts["eb1a_awards"])
	assert.Equal(t, 1, counts["eb1a_press"])
}

func TestSummaryFormatsSortedCounts(t *testing.T) {
	s := Summary(map[string]int{"eb1a_press": 1, "eb1a_awards": 2})
	assert.Equal(t, "eb1a_awards(2), eb1a_press(1)", s)
}

func TestSummaryEmpty(t *testing.T) {
	assert.Equal(t, "no criteria detected", Summary(nil))
}
