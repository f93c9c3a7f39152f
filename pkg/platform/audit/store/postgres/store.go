package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	audit "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit"
	txcontext "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/tx"
)

// Schema creates the audit_events table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id        UUID PRIMARY KEY,
	category  TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	actor     TEXT NOT NULL,
	action    TEXT NOT NULL,
	entity    TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	detail    JSONB
);
CREATE INDEX IF NOT EXISTS audit_events_entity_idx ON audit_events (entity, entity_id);
CREATE INDEX IF NOT EXISTS audit_events_timestamp_idx ON audit_events (timestamp);
`

// Store implements audit.Store on the audit_events table. Appends join the
// caller's SQL transaction when one is carried in the context, so an audit
// row commits or rolls back with the state change it describes.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts one event. Category is always derived from the action.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	category := audit.AuditEvent(event.Action).Category()

	query := `
		INSERT INTO audit_events (id, category, timestamp, actor, action, entity, entity_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(category),
		event.Timestamp,
		event.Actor,
		event.Action,
		string(event.Entity),
		event.EntityID,
		detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns matching events, oldest first.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Entity != "" {
		add("entity = $%d", string(filter.Entity))
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if filter.Actor != "" {
		add("actor = $%d", filter.Actor)
	}
	if !filter.Since.IsZero() {
		add("timestamp >= $%d", filter.Since)
	}

	query := `SELECT category, timestamp, actor, action, entity, entity_id, detail FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	// Query orders newest first so LIMIT keeps the most recent; flip back.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			category string
			entity   string
			detail   []byte
		)
		if err := rows.Scan(&category, &event.Timestamp, &event.Actor, &event.Action, &entity, &event.EntityID, &detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Entity = audit.Entity(entity)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &event.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
