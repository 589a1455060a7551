// Package domaintag classifies ingested text against the EB-1A
// extraordinary-ability criteria, recovered verbatim from
// original_source/core/ingestion/pdf_ingestion_service.py's
// EB1A_CRITERIA_KEYWORDS map. Matching is whole-word, case-insensitive, and
// first-match-wins: once a criterion's keyword is found in a chunk, its
// remaining keywords are not checked, so a chunk is tagged with a criterion
// once, not once per keyword.
package domaintag

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Criteria is the full EB-1A criteria keyword map.
var Criteria = map[string][]string{
	"eb1a_awards": {
		"award", "prize", "recognition", "honor", "medal", "scholarship", "grant",
		"fellowship", "distinguished", "excellence", "outstanding", "best",
		"winner", "recipient", "rewarded",
	},
	"eb1a_membership": {
		"member", "fellow", "society", "association", "academy", "organization",
		"institute", "professional body", "elected", "inducted", "admission",
	},
	"eb1a_press": {
		"published", "featured", "interview", "article about", "media coverage",
		"press", "newspaper", "magazine", "journal featured", "profiled",
		"highlighted", "reported on",
	},
	"eb1a_judging": {
		"judge", "reviewer", "evaluated", "assessed", "panel", "committee",
		"referee", "peer review", "adjudicator", "examiner", "appraiser",
	},
	"eb1a_contribution": {
		"developed", "invented", "pioneered", "breakthrough", "innovation",
		"novel", "original", "first", "unique", "groundbreaking",
		"revolutionary", "created", "designed", "implemented",
	},
	"eb1a_scholarly": {
		"publication", "journal", "paper", "research", "citation", "cited",
		"author", "co-author", "published in", "conference", "proceedings",
		"dissertation", "thesis",
	},
	"eb1a_leadership": {
		"director", "head", "lead", "chief", "manager", "supervisor",
		"president", "chairman", "founder", "co-founder", "executive",
		"senior", "principal", "team lead",
	},
	"eb1a_salary": {
		"salary", "compensation", "earnings", "income", "remuneration",
		"wages", "pay", "bonus", "stock options", "total compensation",
	},
	"eb1a_commercial": {
		"revenue", "sales", "market", "commercial", "profit", "business",
		"product", "customers", "clients", "adoption", "deployment",
		"implementation", "success",
	},
}

// BaseTags are applied to every ingested document regardless of detected
// criteria.
var BaseTags = []string{"document", "pdf"}

var (
	patternMu sync.Mutex
	patterns  map[string]*regexp.Regexp // keyword -> compiled \b...\b pattern
)

func compiledPattern(keyword string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if patterns == nil {
		patterns = make(map[string]*regexp.Regexp)
	}
	if p, ok := patterns[keyword]; ok {
		return p
	}
	p := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	patterns[keyword] = p
	return p
}

// Result is the outcome of classifying one chunk of text.
type Result struct {
	DetectedCriteria []string
	Tags             []string
}

// Classify scans text against every EB-1A criterion. For each criterion the
// first matching keyword is enough to mark it present for this chunk
// (one match per criterion, mirroring the reference's break-on-first-hit
// loop) — Classify does not count repeated keyword occurrences within a
// single chunk. Document-level counts across chunks are computed by
// AggregateCounts. The returned tag list is BaseTags plus detected criteria
// plus any additionalTags, deduplicated.
func Classify(text string, additionalTags []string) Result {
	var detected []string

	for criterion, keywords := range Criteria {
		for _, kw := range keywords {
			if compiledPattern(kw).MatchString(text) {
				detected = append(detected, criterion)
				break
			}
		}
	}
	sort.Strings(detected)

	tags := make([]string, 0, len(BaseTags)+len(detected)+len(additionalTags))
	tags = append(tags, BaseTags...)
	tags = append(tags, detected...)
	tags = append(tags, additionalTags...)

	return Result{DetectedCriteria: detected, Tags: dedupe(tags)}
}

// AggregateCounts counts, across a document's chunks, how many chunks each
// criterion was detected in — the document-level criteria_counts the
// ingestion pipeline reports alongside detected_criteria.
func AggregateCounts(perChunk [][]string) map[string]int {
	counts := make(map[string]int)
	for _, criteria := range perChunk {
		for _, c := range criteria {
			counts[c]++
		}
	}
	return counts
}

func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Summary renders a short human-readable line describing document-level
// criteria counts, e.g. "eb1a_awards(2), eb1a_press(1)". Useful for logging
// and ingestion result summaries.
func Summary(counts map[string]int) string {
	if len(counts) == 0 {
		return "no criteria detected"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, c := range keys {
		parts = append(parts, fmt.Sprintf("%s(%d)", c, counts[c]))
	}
	return strings.Join(parts, ", ")
}
