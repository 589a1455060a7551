// Package episodicstore persists the append-only audit timeline backing
// episodic memory in mega_agent.audit_events.
//
// Grounded on the reference's CogneeMemoryRepository (session/thread-keyed
// repository shape, logrus field logging) generalized to AuditEvent, and on
// original_source/core/memory/stores/episodic_store.py's grouping-by-thread
// shape. Unlike the Python store, GetAll returns a copy of the grouped map
// rather than the live one, so a caller iterating it cannot race a
// concurrent Append.
package episodicstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/vasic-digital/memcore/internal/memcore"
	"github.com/vasic-digital/memcore/internal/memcore/errs"
)

// Store is a Postgres-backed episodic event store.
type Store struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// New constructs a Store.
func New(pool *pgxpool.Pool, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{pool: pool, log: log}
}

// Append writes event, assigning an event ID and timestamp if absent.
func (s *Store) Append(ctx context.Context, event memcore.AuditEvent) (memcore.AuditEvent, error) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ThreadID == "" {
		event.ThreadID = "global"
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return memcore.AuditEvent{}, errs.Validation("marshal audit payload: %v", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO mega_agent.audit_events
			(event_id, "timestamp", user_id, thread_id, source, action, payload, tags)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, event.EventID, event.Timestamp, nullable(event.UserID), event.ThreadID,
		event.Source, event.Action, payloadJSON, event.Tags)
	if err != nil {
		return memcore.AuditEvent{}, errs.Store("append audit event: %v", err)
	}

	s.log.WithFields(logrus.Fields{
		"event_id":  event.EventID,
		"thread_id": event.ThreadID,
		"action":    event.Action,
	}).Debug("episodicstore.append")
	return event, nil
}

// GetThreadEvents returns every event recorded for threadID, oldest first.
func (s *Store) GetThreadEvents(ctx context.Context, threadID string) ([]memcore.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, "timestamp", user_id, thread_id, source, action, payload, tags
		FROM mega_agent.audit_events
		WHERE thread_id = $1
		ORDER BY "timestamp" ASC
	`, threadID)
	if err != nil {
		return nil, errs.Store("get thread events: %v", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetRecent returns the limit most recent events across all threads, newest
// first.
func (s *Store) GetRecent(ctx context.Context, limit int) ([]memcore.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, "timestamp", user_id, thread_id, source, action, payload, tags
		FROM mega_agent.audit_events
		ORDER BY "timestamp" DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errs.Store("get recent events: %v", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetAll returns every event, grouped by thread_id. The returned map is a
// fresh copy: mutating it or the slices it holds has no effect on the store.
func (s *Store) GetAll(ctx context.Context) (map[string][]memcore.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, "timestamp", user_id, thread_id, source, action, payload, tags
		FROM mega_agent.audit_events
		ORDER BY thread_id, "timestamp" ASC
	`)
	if err != nil {
		return nil, errs.Store("get all events: %v", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]memcore.AuditEvent)
	for _, e := range events {
		out[e.ThreadID] = append(out[e.ThreadID], e)
	}
	return out, nil
}

// QueryFilters narrows a Query call. Zero-valued fields are not applied;
// Since and Until bound "timestamp" inclusively when non-zero.
type QueryFilters struct {
	ThreadID string
	UserID   string
	Tags     []string
	Since    time.Time
	Until    time.Time
}

// Query returns events matching filters in chronological order. If Limit is
// set and the matching set is larger, the result is trimmed from the tail,
// keeping the most recent Limit events while preserving ascending order —
// matching the store's chronological-order invariant (unlike GetRecent,
// which is newest-first by design).
func (s *Store) Query(ctx context.Context, filters QueryFilters, limit int) ([]memcore.AuditEvent, error) {
	var tagsArg interface{}
	if len(filters.Tags) > 0 {
		tagsArg = filters.Tags
	}
	var since, until interface{}
	if !filters.Since.IsZero() {
		since = filters.Since
	}
	if !filters.Until.IsZero() {
		until = filters.Until
	}

	query := `
		SELECT event_id, "timestamp", user_id, thread_id, source, action, payload, tags
		FROM mega_agent.audit_events
		WHERE ($1 = '' OR thread_id = $1)
		  AND ($2 = '' OR user_id = $2)
		  AND ($3::text[] IS NULL OR tags && $3)
		  AND ($4::timestamptz IS NULL OR "timestamp" >= $4)
		  AND ($5::timestamptz IS NULL OR "timestamp" <= $5)
		ORDER BY "timestamp" ASC, event_id ASC
	`
	rows, err := s.pool.Query(ctx, query, filters.ThreadID, filters.UserID, tagsArg, since, until)
	if err != nil {
		return nil, errs.Store("query events: %v", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// PurgeBefore deletes every event older than cutoff and returns the count
// removed.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mega_agent.audit_events WHERE "timestamp" < $1`, cutoff)
	if err != nil {
		return 0, errs.Store("purge events before %s: %v", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// HealthCheck verifies the underlying table is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, `SELECT 1 FROM mega_agent.audit_events LIMIT 1`).Scan(&one); err != nil && err != pgx.ErrNoRows {
		return errs.Store("episodic store health check: %v", err)
	}
	return nil
}

func scanEvents(rows pgx.Rows) ([]memcore.AuditEvent, error) {
	var out []memcore.AuditEvent
	for rows.Next() {
		var e memcore.AuditEvent
		var userID *string
		var payloadJSON []byte

		if err := rows.Scan(&e.EventID, &e.Timestamp, &userID, &e.ThreadID, &e.Source, &e.Action, &payloadJSON, &e.Tags); err != nil {
			return nil, errs.Store("scan audit event: %v", err)
		}
		if userID != nil {
			e.UserID = *userID
		}
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &e.Payload)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Store("iterate audit events: %v", err)
	}
	return out, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
