// Package hierarchy composes the semantic, episodic, and working-memory
// stores into a single facade for agent orchestration, ported from
// original_source/core/memory/memory_hierarchy.py's MemoryHierarchy.
package hierarchy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vasic-digital/memcore/internal/consolidate"
	"github.com/vasic-digital/memcore/internal/episodicstore"
	"github.com/vasic-digital/memcore/internal/memcore"
	"github.com/vasic-digital/memcore/internal/semanticstore"
	"github.com/vasic-digital/memcore/internal/workingmemory"
)

// DefaultHorizon is the episodic lookback window load_context uses when the
// caller does not override it, matching the reference's 6-hour default.
const DefaultHorizon = 6 * time.Hour

// compressEvent renders a one-line heuristic summary of an AuditEvent,
// ported from reflection.py's compress_event. Per the documented
// resolution, the WHOLE composed line is truncated to 200 characters
// (the reference truncates only the detail substring before composing).
func compressEvent(event memcore.AuditEvent) string {
	user := "u=?"
	if event.UserID != "" {
		user = "u=" + event.UserID
	}

	detail := ""
	if v, ok := event.Payload["summary"]; ok {
		detail = fmt.Sprintf("%v", v)
	} else if v, ok := event.Payload["text"]; ok {
		detail = fmt.Sprintf("%v", v)
	}

	line := strings.TrimSpace(fmt.Sprintf("[%s] %s %s %s", event.Source, event.Action, user, detail))
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}

func hasTag(tags []string, target string) bool {
	for _, t := range tags {
		if t == target {
			return true
		}
	}
	return false
}

// selectSalientFacts converts a notable AuditEvent into a semantic
// MemoryRecord, ported from reflection.py's select_salient_facts.
func selectSalientFacts(event memcore.AuditEvent) []memcore.MemoryRecord {
	var tags []string
	if event.Action == "handle_command" || event.Action == "node_complete" {
		tags = append(tags, "milestone")
	}
	if hasTag(event.Tags, "preference") {
		tags = append(tags, "preference")
	}

	return []memcore.MemoryRecord{{
		UserID:     event.UserID,
		Type:       memcore.MemoryTypeSemantic,
		Text:       compressEvent(event),
		Salience:   memcore.DefaultSalience,
		Confidence: memcore.DefaultConfidence,
		Source:     event.Source,
		Tags:       tags,
	}}
}

// Context is the aggregated view returned by LoadContext.
type Context struct {
	Reflected      []memcore.MemoryRecord
	Retrieved      []memcore.MemoryRecord
	EpisodicEvents []memcore.AuditEvent
	RMTSlots       map[string]string
}

// Health reports per-subsystem reachability.
type Health struct {
	Semantic bool
	Episodic bool
	Working  bool
}

// Hierarchy composes the three memory layers into the facade operations
// orchestrators use.
type Hierarchy struct {
	Semantic *semanticstore.Store
	Episodic *episodicstore.Store
	Working  workingmemory.Backend
	Policy   *consolidate.Policy
	log      *logrus.Logger
}

// New constructs a Hierarchy from its three backing stores and a
// consolidation policy. working may be a *workingmemory.Store (in-process)
// or a *workingmemory.RedisStore (shared across instances) — both satisfy
// workingmemory.Backend.
func New(semantic *semanticstore.Store, episodic *episodicstore.Store, working workingmemory.Backend, policy *consolidate.Policy, log *logrus.Logger) *Hierarchy {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hierarchy{Semantic: semantic, Episodic: episodic, Working: working, Policy: policy, log: log}
}

// RecordEvent logs event into episodic memory and, when reflect is true,
// writes back any semantic facts the reflection policy extracts from it.
func (h *Hierarchy) RecordEvent(ctx context.Context, event memcore.AuditEvent, reflect bool) ([]memcore.MemoryRecord, error) {
	appended, err := h.Episodic.Append(ctx, event)
	if err != nil {
		return nil, err
	}
	if !reflect {
		return nil, nil
	}
	return h.reflect(ctx, appended)
}

// RecordEvents is the bulk variant of RecordEvent.
func (h *Hierarchy) RecordEvents(ctx context.Context, events []memcore.AuditEvent, reflect bool) ([]memcore.MemoryRecord, error) {
	var reflected []memcore.MemoryRecord
	for _, event := range events {
		appended, err := h.Episodic.Append(ctx, event)
		if err != nil {
			return reflected, err
		}
		if reflect {
			recs, err := h.reflect(ctx, appended)
			if err != nil {
				return reflected, err
			}
			reflected = append(reflected, recs...)
		}
	}
	return reflected, nil
}

func (h *Hierarchy) reflect(ctx context.Context, event memcore.AuditEvent) ([]memcore.MemoryRecord, error) {
	facts := selectSalientFacts(event)
	out := make([]memcore.MemoryRecord, 0, len(facts))
	for _, f := range facts {
		inserted, err := h.Semantic.Insert(ctx, f)
		if err != nil {
			return out, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

// UpdateWorkingMemory persists the RMT buffer for a thread.
func (h *Hierarchy) UpdateWorkingMemory(threadID string, slots map[string]string) {
	h.Working.SetBuffer(threadID, slots)
}

// RetrieveSemantic is a thin wrapper over the semantic store's dense
// search, taking a precomputed query embedding.
func (h *Hierarchy) RetrieveSemantic(ctx context.Context, queryEmbedding []float32, topK int, filters semanticstore.Filters) ([]memcore.MemoryRecord, error) {
	return h.Semantic.Search(ctx, queryEmbedding, topK, filters)
}

// LoadContext assembles a full memory context for agent orchestration:
// optional semantic retrieval, episodic events within the horizon window,
// a reflection of the most recent episodic event, and the thread's working
// memory snapshot. A zero horizon uses DefaultHorizon; topK <= 0 uses 8.
func (h *Hierarchy) LoadContext(ctx context.Context, threadID string, queryEmbedding []float32, userID string, topK int, horizon time.Duration) (Context, error) {
	if topK <= 0 {
		topK = 8
	}
	if horizon == 0 {
		horizon = DefaultHorizon
	}

	var retrieved []memcore.MemoryRecord
	if len(queryEmbedding) > 0 {
		var err error
		retrieved, err = h.Semantic.Search(ctx, queryEmbedding, topK, semanticstore.Filters{UserID: userID})
		if err != nil {
			return Context{}, err
		}
	}

	events, err := h.Episodic.Query(ctx, episodicstore.QueryFilters{ThreadID: threadID, UserID: userID}, 0)
	if err != nil {
		return Context{}, err
	}

	cutoff := time.Now().UTC().Add(-horizon)
	var windowed []memcore.AuditEvent
	for _, e := range events {
		if e.Timestamp.After(cutoff) {
			windowed = append(windowed, e)
		}
	}

	var reflected []memcore.MemoryRecord
	if len(windowed) > 0 {
		reflected, err = h.reflect(ctx, windowed[len(windowed)-1])
		if err != nil {
			return Context{}, err
		}
	}

	slots := map[string]string{}
	if buf, ok := h.Working.GetBuffer(threadID); ok {
		slots = buf.Slots
	}

	return Context{
		Reflected:      reflected,
		Retrieved:      retrieved,
		EpisodicEvents: windowed,
		RMTSlots:       slots,
	}, nil
}

// GetThreadSnapshot renders the thread's episodic timeline as a compact
// multi-line string, one compressed event per line.
func (h *Hierarchy) GetThreadSnapshot(ctx context.Context, threadID string) (string, error) {
	events, err := h.Episodic.GetThreadEvents(ctx, threadID)
	if err != nil {
		return "", err
	}
	lines := make([]string, len(events))
	for i, e := range events {
		lines[i] = compressEvent(e)
	}
	return strings.Join(lines, "\n"), nil
}

// RecentTimeline returns compressed one-liners for events in the last
// `hours` hours on threadID.
func (h *Hierarchy) RecentTimeline(ctx context.Context, threadID string, hours int) ([]string, error) {
	if hours <= 0 {
		hours = 1
	}
	events, err := h.Episodic.GetThreadEvents(ctx, threadID)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	var lines []string
	for _, e := range events {
		if e.Timestamp.After(cutoff) {
			lines = append(lines, compressEvent(e))
		}
	}
	return lines, nil
}

// Consolidate runs the consolidation policy over every record for userID
// (fetched via Semantic.List) and writes the consolidated set back,
// returning the run's statistics.
func (h *Hierarchy) Consolidate(ctx context.Context, userID string) (consolidate.Result, error) {
	records, err := h.Semantic.List(ctx, semanticstore.Filters{}, 100000, 0)
	if err != nil {
		return consolidate.Result{}, err
	}

	consolidated, result := h.Policy.Consolidate(records, userID)

	for _, rec := range consolidated {
		if _, err := h.Semantic.Insert(ctx, rec); err != nil {
			return result, err
		}
	}
	return result, nil
}

// PurgeEpisodicBefore deletes episodic events older than cutoff, keeping
// the timeline bounded.
func (h *Hierarchy) PurgeEpisodicBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return h.Episodic.PurgeBefore(ctx, cutoff)
}

// HealthCheck reports reachability of each backing store.
// A working-memory backend without a HealthCheck method (the in-process
// Store) is reported as reachable.
func (h *Hierarchy) HealthCheck(ctx context.Context) Health {
	working := true
	if hc, ok := h.Working.(interface{ HealthCheck(context.Context) error }); ok {
		working = hc.HealthCheck(ctx) == nil
	}
	return Health{
		Semantic: h.Semantic.HealthCheck(ctx) == nil,
		Episodic: h.Episodic.HealthCheck(ctx) == nil,
		Working:  working,
	}
}
