// Package memcore defines the shared data model for the memory and retrieval
// core: semantic records, audit events, working-memory buffers, and the
// chunk unit produced by ingestion.
package memcore

import "time"

// MemoryType classifies a MemoryRecord.
type MemoryType string

const (
	MemoryTypeSemantic MemoryType = "semantic"
	MemoryTypeEpisodic MemoryType = "episodic"
	MemoryTypePersona  MemoryType = "persona"
	MemoryTypeOpenLoop MemoryType = "open_loop"
)

// MemoryRecord is a content-addressed fact with an optional embedding.
type MemoryRecord struct {
	ID             string
	UserID         string
	CaseID         string
	ThreadID       string
	Type           MemoryType
	Text           string
	Embedding      []float32
	Salience       float64
	Confidence     float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Source         string
	Tags           []string
	Metadata       map[string]interface{}
	EmbeddingModel string
}

// DefaultSalience and DefaultConfidence match the values new records receive
// when the caller does not set them explicitly.
const (
	DefaultSalience   = 0.7
	DefaultConfidence = 0.6
)

// AuditEvent is an immutable episodic log entry.
type AuditEvent struct {
	EventID   string
	Timestamp time.Time
	UserID    string
	ThreadID  string
	Source    string
	Action    string
	Payload   map[string]interface{}
	Tags      []string
}

// RMTBuffer is the working-memory slot set for one conversational thread.
type RMTBuffer struct {
	ThreadID  string
	Slots     map[string]string
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

// Recognized RMT slot names. Unknown slot keys are preserved but not
// special-cased by any component.
const (
	SlotPersona        = "persona"
	SlotLongTermFacts  = "long_term_facts"
	SlotOpenLoops      = "open_loops"
	SlotRecentSummary  = "recent_summary"
)

// DocumentChunk is a transient unit produced by the ingestion chunker before
// it is converted into a MemoryRecord.
type DocumentChunk struct {
	ChunkID  string
	Content  string
	StartPos int
	EndPos   int
	Metadata map[string]interface{}
}

// RetrievalQuery parameterizes a semantic search.
type RetrievalQuery struct {
	Query   string
	UserID  string
	TopK    int
	Filters map[string]interface{}
}

// ConsolidateStats summarizes the outcome of one consolidation pass.
type ConsolidateStats struct {
	Deduplicated int
	Decayed      int
	Merged       int
	Compressed   int
	TotalBefore  int
	TotalAfter   int
	Clusters     [][]string
}
