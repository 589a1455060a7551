// Package semanticstore persists long-lived MemoryRecord rows in
// mega_agent.memory_records and serves similarity search over their
// embeddings via pgvector's cosine-distance operator.
//
// Grounded on the reference's VectorDocumentRepository: dynamic filter
// construction with parameterized placeholders, bulk insert in a single
// transaction, and a thin Embedder seam so callers can swap in a live
// embedding client or a deterministic test double.
package semanticstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vasic-digital/memcore/internal/fusion"
	"github.com/vasic-digital/memcore/internal/memcore"
	"github.com/vasic-digital/memcore/internal/memcore/errs"
	"github.com/vasic-digital/memcore/internal/sparse"
)

// Embedder computes a vector embedding for a piece of text. Implemented by
// internal/embedclient.Client; a store caller that already has an embedding
// on the record may skip it entirely.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Filters narrows a List/Search call. Zero-valued fields are not applied.
type Filters struct {
	Type      memcore.MemoryType
	Tags      []string
	Source    string
	Namespace string
	CaseID    string
	ThreadID  string
	UserID    string
}

// Store is a pgvector-backed semantic memory store.
type Store struct {
	pool      *pgxpool.Pool
	embedder  Embedder
	fuser     *fusion.Fuser
	dimension int
	log       *logrus.Logger
}

// New constructs a Store. embedder may be nil if callers always supply a
// precomputed embedding on the record passed to Insert. dimension is the
// configured embedding width; a record whose embedding length does not
// match it is rejected by Insert/InsertBatch rather than persisted, per the
// store's dimension invariant. dimension <= 0 disables the check, for
// callers (tests, admin tooling) that do not care about a fixed width.
func New(pool *pgxpool.Pool, embedder Embedder, dimension int, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{pool: pool, embedder: embedder, fuser: fusion.NewFuser(), dimension: dimension, log: log}
}

// Insert writes rec to the store, computing an embedding first if rec.Embedding
// is empty and an Embedder was configured. Generates an ID if rec.ID is empty.
func (s *Store) Insert(ctx context.Context, rec memcore.MemoryRecord) (memcore.MemoryRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Type == "" {
		rec.Type = memcore.MemoryTypeSemantic
	}
	if rec.Salience == 0 {
		rec.Salience = memcore.DefaultSalience
	}
	if rec.Confidence == 0 {
		rec.Confidence = memcore.DefaultConfidence
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if len(rec.Embedding) == 0 && s.embedder != nil {
		emb, err := s.embedder.EmbedQuery(ctx, rec.Text)
		if err != nil {
			return memcore.MemoryRecord{}, errs.Embedding("embed record %s: %v", rec.ID, err)
		}
		rec.Embedding = emb
	}
	if s.dimension > 0 && len(rec.Embedding) > 0 && len(rec.Embedding) != s.dimension {
		return memcore.MemoryRecord{}, errs.Config("record %s embedding has dimension %d, store configured for %d",
			rec.ID, len(rec.Embedding), s.dimension)
	}

	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return memcore.MemoryRecord{}, errs.Validation("marshal metadata: %v", err)
	}

	ns, _ := rec.Metadata["namespace"].(string)
	if ns == "" {
		ns = "default"
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO mega_agent.memory_records
			(id, namespace, user_id, case_id, thread_id, type, text, source, tags,
			 metadata, embedding, embedding_model, embedding_dimension,
			 salience, confidence, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text, tags = EXCLUDED.tags, metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding, salience = EXCLUDED.salience,
			confidence = EXCLUDED.confidence, updated_at = EXCLUDED.updated_at
	`, rec.ID, ns, rec.UserID, nullable(rec.CaseID), nullable(rec.ThreadID), string(rec.Type),
		rec.Text, nullable(rec.Source), rec.Tags, metadataJSON, vectorLiteral(rec.Embedding),
		nullable(rec.EmbeddingModel), len(rec.Embedding), rec.Salience, rec.Confidence,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return memcore.MemoryRecord{}, errs.Store("insert memory record: %v", err)
	}

	s.log.WithFields(logrus.Fields{"record_id": rec.ID, "user_id": rec.UserID}).Debug("semanticstore.insert")
	return rec, nil
}

// InsertBatch writes every record in recs inside a single transaction: if
// any insert fails, the whole batch is rolled back and no record is
// persisted. Embeddings are computed outside the transaction (via Insert's
// embedder path is not reused here; callers are expected to have already
// populated rec.Embedding, as internal/ingest does).
func (s *Store) InsertBatch(ctx context.Context, recs []memcore.MemoryRecord) ([]memcore.MemoryRecord, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errs.Store("begin batch insert transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	out := make([]memcore.MemoryRecord, len(recs))
	for i, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.Type == "" {
			rec.Type = memcore.MemoryTypeSemantic
		}
		if rec.Salience == 0 {
			rec.Salience = memcore.DefaultSalience
		}
		if rec.Confidence == 0 {
			rec.Confidence = memcore.DefaultConfidence
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now

		if s.dimension > 0 && len(rec.Embedding) > 0 && len(rec.Embedding) != s.dimension {
			return nil, errs.Config("record %s embedding has dimension %d, store configured for %d",
				rec.ID, len(rec.Embedding), s.dimension)
		}

		metadataJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, errs.Validation("marshal metadata for record %s: %v", rec.ID, err)
		}

		ns, _ := rec.Metadata["namespace"].(string)
		if ns == "" {
			ns = "default"
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO mega_agent.memory_records
				(id, namespace, user_id, case_id, thread_id, type, text, source, tags,
				 metadata, embedding, embedding_model, embedding_dimension,
				 salience, confidence, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text, tags = EXCLUDED.tags, metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding, salience = EXCLUDED.salience,
				confidence = EXCLUDED.confidence, updated_at = EXCLUDED.updated_at
		`, rec.ID, ns, rec.UserID, nullable(rec.CaseID), nullable(rec.ThreadID), string(rec.Type),
			rec.Text, nullable(rec.Source), rec.Tags, metadataJSON, vectorLiteral(rec.Embedding),
			nullable(rec.EmbeddingModel), len(rec.Embedding), rec.Salience, rec.Confidence,
			rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return nil, errs.Store("insert record %s in batch: %v", rec.ID, err)
		}
		out[i] = rec
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errs.Store("commit batch insert transaction: %v", err)
	}

	s.log.WithFields(logrus.Fields{"count": len(out)}).Debug("semanticstore.insert_batch")
	return out, nil
}

// Search runs a pure dense (cosine similarity) search for queryEmbedding,
// applying filters, and returns up to topK records ordered by similarity.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, topK int, filters Filters) ([]memcore.MemoryRecord, error) {
	where, args := buildWhere(filters)
	args = append(args, vectorLiteral(queryEmbedding), topK)
	embedParam := len(args) - 1
	limitParam := len(args)

	query := fmt.Sprintf(`
		SELECT id, namespace, user_id, case_id, thread_id, type, text, source, tags,
		       metadata, embedding_model, salience, confidence, created_at, updated_at
		FROM mega_agent.memory_records
		%s
		ORDER BY embedding <=> $%d
		LIMIT $%d
	`, where, embedParam, limitParam)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errs.Store("dense search: %v", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// SearchKnowledgeBase restricts Search to records tagged "knowledge_base",
// matching the reference distinction between ingested reference material and
// per-case working documents. Per the documented semantics it applies no
// user scoping of its own — the knowledge base is shared across a
// namespace's users — so userID is accepted for call-site symmetry with
// SearchCaseDocuments/SearchHybrid but is not forwarded as a filter.
func (s *Store) SearchKnowledgeBase(ctx context.Context, queryEmbedding []float32, topK int, userID string) ([]memcore.MemoryRecord, error) {
	return s.Search(ctx, queryEmbedding, topK, Filters{Tags: []string{"knowledge_base"}})
}

// SearchCaseDocuments restricts Search to a single case, and to userID when
// non-empty.
func (s *Store) SearchCaseDocuments(ctx context.Context, queryEmbedding []float32, topK int, caseID, userID string) ([]memcore.MemoryRecord, error) {
	return s.Search(ctx, queryEmbedding, topK, Filters{CaseID: caseID, UserID: userID})
}

// SearchHybrid runs SearchKnowledgeBase and SearchCaseDocuments concurrently
// for the same queryEmbedding and fuses their rankings by weighted
// Reciprocal Rank Fusion with weights (kbWeight, 1-kbWeight). caseID and
// userID may be empty; an empty caseID means SearchCaseDocuments degenerates
// to an unscoped case search rather than being skipped, matching Search's
// existing zero-value-means-unfiltered convention. kbWeight is clamped to
// [0, 1].
func (s *Store) SearchHybrid(ctx context.Context, queryEmbedding []float32, caseID, userID string, topK int, kbWeight float64) ([]memcore.MemoryRecord, error) {
	if kbWeight < 0 {
		kbWeight = 0
	}
	if kbWeight > 1 {
		kbWeight = 1
	}

	legK := topK * 3
	if legK < topK {
		legK = topK
	}

	group, groupCtx := errgroup.WithContext(ctx)

	var kbHits []memcore.MemoryRecord
	group.Go(func() error {
		var err error
		kbHits, err = s.SearchKnowledgeBase(groupCtx, queryEmbedding, legK, userID)
		return err
	})

	var caseHits []memcore.MemoryRecord
	group.Go(func() error {
		var err error
		caseHits, err = s.SearchCaseDocuments(groupCtx, queryEmbedding, legK, caseID, userID)
		return err
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]memcore.MemoryRecord, len(kbHits)+len(caseHits))
	kbRanking := make([]fusion.Ranked, len(kbHits))
	for i, rec := range kbHits {
		kbRanking[i] = fusion.Ranked{DocID: rec.ID}
		byID[rec.ID] = rec
	}
	caseRanking := make([]fusion.Ranked, len(caseHits))
	for i, rec := range caseHits {
		caseRanking[i] = fusion.Ranked{DocID: rec.ID}
		byID[rec.ID] = rec
	}

	fused, err := s.fuser.Fuse([][]fusion.Ranked{kbRanking, caseRanking}, []float64{kbWeight, 1 - kbWeight}, topK)
	if err != nil {
		return nil, err
	}

	out := make([]memcore.MemoryRecord, 0, len(fused))
	for _, f := range fused {
		if rec, ok := byID[f.DocID]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SearchDenseSparse fuses a BM25 keyword search over a caller-populated
// sparse index with the dense pgvector search, via Reciprocal Rank Fusion.
// This is the HybridRetriever fan-out the ingestion/retrieval pipeline calls
// (dense+sparse over one corpus), distinct from SearchHybrid's KB-vs-case
// fusion above. retriever is expected to have been built (via
// Build/UpdateIndex) over the same records' Text; fusion keys both legs by
// record text since sparse.Retriever has no notion of a caller-assigned ID
// of its own.
func (s *Store) SearchDenseSparse(ctx context.Context, retriever *sparse.Retriever, query string, queryEmbedding []float32, topK int, filters Filters) ([]memcore.MemoryRecord, error) {
	denseK := topK * 2
	if denseK < topK {
		denseK = topK
	}

	// Dense and sparse legs run concurrently; if either fails the other is
	// cancelled rather than left to finish and have its result discarded.
	group, groupCtx := errgroup.WithContext(ctx)

	var dense []memcore.MemoryRecord
	group.Go(func() error {
		var err error
		dense, err = s.Search(groupCtx, queryEmbedding, denseK, filters)
		return err
	})

	var sparseHits []sparse.Scored
	group.Go(func() error {
		if retriever == nil {
			return nil
		}
		sparseHits = retriever.Search(query, denseK)
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	byText := make(map[string]memcore.MemoryRecord, len(dense))
	denseRanking := make([]fusion.Ranked, len(dense))
	for i, rec := range dense {
		denseRanking[i] = fusion.Ranked{DocID: rec.Text, Score: 0}
		byText[rec.Text] = rec
	}

	sparseRanking := make([]fusion.Ranked, len(sparseHits))
	for i, hit := range sparseHits {
		sparseRanking[i] = fusion.Ranked{DocID: hit.Text, Score: hit.Score}
	}

	fused, err := s.fuser.Fuse([][]fusion.Ranked{denseRanking, sparseRanking}, nil, topK)
	if err != nil {
		return nil, err
	}

	out := make([]memcore.MemoryRecord, 0, len(fused))
	for _, f := range fused {
		if rec, ok := byText[f.DocID]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// List returns records matching filters, most-recently-updated first.
func (s *Store) List(ctx context.Context, filters Filters, limit, offset int) ([]memcore.MemoryRecord, error) {
	where, args := buildWhere(filters)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT id, namespace, user_id, case_id, thread_id, type, text, source, tags,
		       metadata, embedding_model, salience, confidence, created_at, updated_at
		FROM mega_agent.memory_records
		%s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errs.Store("list memory records: %v", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Count returns the number of records matching filters.
func (s *Store) Count(ctx context.Context, filters Filters) (int, error) {
	where, args := buildWhere(filters)
	query := fmt.Sprintf(`SELECT count(*) FROM mega_agent.memory_records %s`, where)

	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, errs.Store("count memory records: %v", err)
	}
	return n, nil
}

// DeleteByUser removes every record owned by userID and returns the count
// deleted.
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mega_agent.memory_records WHERE user_id = $1`, userID)
	if err != nil {
		return 0, errs.Store("delete records for user %s: %v", userID, err)
	}
	return tag.RowsAffected(), nil
}

// HealthCheck verifies the underlying table is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, `SELECT 1 FROM mega_agent.memory_records LIMIT 1`).Scan(&one); err != nil && err != pgx.ErrNoRows {
		return errs.Store("semantic store health check: %v", err)
	}
	return nil
}

func buildWhere(f Filters) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if f.Type != "" {
		add("type", string(f.Type))
	}
	if f.Source != "" {
		add("source", f.Source)
	}
	if f.Namespace != "" {
		add("namespace", f.Namespace)
	}
	if f.CaseID != "" {
		add("case_id", f.CaseID)
	}
	if f.ThreadID != "" {
		add("thread_id", f.ThreadID)
	}
	if f.UserID != "" {
		add("user_id", f.UserID)
	}
	if len(f.Tags) > 0 {
		args = append(args, f.Tags)
		clauses = append(clauses, fmt.Sprintf("tags && $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanRecords(rows pgx.Rows) ([]memcore.MemoryRecord, error) {
	var out []memcore.MemoryRecord
	for rows.Next() {
		var rec memcore.MemoryRecord
		var caseID, threadID, source, embeddingModel *string
		var metadataJSON []byte
		var typ string

		if err := rows.Scan(&rec.ID, new(string), &rec.UserID, &caseID, &threadID, &typ,
			&rec.Text, &source, &rec.Tags, &metadataJSON, &embeddingModel,
			&rec.Salience, &rec.Confidence, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, errs.Store("scan memory record: %v", err)
		}

		rec.Type = memcore.MemoryType(typ)
		if caseID != nil {
			rec.CaseID = *caseID
		}
		if threadID != nil {
			rec.ThreadID = *threadID
		}
		if source != nil {
			rec.Source = *source
		}
		if embeddingModel != nil {
			rec.EmbeddingModel = *embeddingModel
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &rec.Metadata)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Store("iterate memory records: %v", err)
	}
	return out, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// vectorLiteral renders a float32 slice as a pgvector literal string
// ("[0.1,0.2,...]"). pgx has no native vector codec registered by default,
// so the driver sends it as text and pgvector parses it server-side.
func vectorLiteral(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", f)
	}
	b.WriteByte(']')
	return b.String()
}
