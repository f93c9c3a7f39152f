package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/dispute/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
)

// Schema creates the disputes table.
const Schema = `
CREATE TABLE IF NOT EXISTS disputes (
	id             UUID PRIMARY KEY,
	transaction_id UUID NOT NULL,
	raised_by      TEXT NOT NULL,
	automatic      BOOLEAN NOT NULL DEFAULT FALSE,
	reason         TEXT NOT NULL DEFAULT '',
	evidence       JSONB NOT NULL DEFAULT '[]',
	status         TEXT NOT NULL,
	opened_at      TIMESTAMPTZ NOT NULL,
	reviewed_at    TIMESTAMPTZ,
	escalated_at   TIMESTAMPTZ,
	resolution     JSONB
);
CREATE INDEX IF NOT EXISTS idx_disputes_transaction ON disputes (transaction_id);
CREATE INDEX IF NOT EXISTS idx_disputes_status ON disputes (status);
`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `
	SELECT id, transaction_id, raised_by, automatic, reason, evidence, status,
		opened_at, reviewed_at, escalated_at, resolution
	FROM disputes`

func (s *PostgresStore) Create(ctx context.Context, d *models.Dispute) error {
	evidence, resolution, err := encode(d)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO disputes (id, transaction_id, raised_by, automatic, reason, evidence, status,
			opened_at, reviewed_at, escalated_at, resolution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`,
		uuid.UUID(d.ID), uuid.UUID(d.TransactionID), string(d.RaisedBy), d.Automatic, d.Reason,
		evidence, string(d.Status), d.OpenedAt, d.ReviewedAt, d.EscalatedAt, resolution,
	)
	if err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	} else if n == 0 {
		return fmt.Errorf("dispute %s: %w", d.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.DisputeID) (*models.Dispute, error) {
	d, err := scanDispute(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("dispute %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get dispute: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Update(ctx context.Context, d *models.Dispute) error {
	evidence, resolution, err := encode(d)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE disputes SET evidence = $2, status = $3, reviewed_at = $4, escalated_at = $5, resolution = $6
		WHERE id = $1
	`, uuid.UUID(d.ID), evidence, string(d.Status), d.ReviewedAt, d.EscalatedAt, resolution)
	if err != nil {
		return fmt.Errorf("update dispute: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update dispute: %w", err)
	} else if n == 0 {
		return fmt.Errorf("dispute %s: %w", d.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.DisputeID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM disputes WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete dispute: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete dispute: %w", err)
	} else if n == 0 {
		return fmt.Errorf("dispute %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByTransaction(ctx context.Context, txID domain.TransactionID) ([]*models.Dispute, error) {
	return s.query(ctx, selectColumns+` WHERE transaction_id = $1 ORDER BY opened_at`, uuid.UUID(txID))
}

func (s *PostgresStore) ListOpen(ctx context.Context) ([]*models.Dispute, error) {
	open := []string{string(models.StatusOpen), string(models.StatusInvestigating)}
	return s.query(ctx, selectColumns+` WHERE status = ANY($1) ORDER BY opened_at`, pq.Array(open))
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Dispute, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	var out []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dispute row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate disputes: %w", err)
	}
	return out, nil
}

func encode(d *models.Dispute) (evidence, resolution []byte, err error) {
	items := d.Evidence
	if items == nil {
		items = []models.Evidence{}
	}
	if evidence, err = json.Marshal(items); err != nil {
		return nil, nil, fmt.Errorf("marshal evidence: %w", err)
	}
	if d.Resolution != nil {
		if resolution, err = json.Marshal(d.Resolution); err != nil {
			return nil, nil, fmt.Errorf("marshal resolution: %w", err)
		}
	}
	return evidence, resolution, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispute(row rowScanner) (*models.Dispute, error) {
	var (
		d                   models.Dispute
		id, txID            uuid.UUID
		raisedBy, status    string
		openedAt            time.Time
		reviewed, escalated sql.NullTime
		evidence, resolved  []byte
	)
	if err := row.Scan(&id, &txID, &raisedBy, &d.Automatic, &d.Reason, &evidence, &status,
		&openedAt, &reviewed, &escalated, &resolved); err != nil {
		return nil, err
	}
	d.ID = domain.DisputeID(id)
	d.TransactionID = domain.TransactionID(txID)
	d.RaisedBy = domain.PartyID(raisedBy)
	d.Status = models.Status(status)
	d.OpenedAt = openedAt.UTC()
	if reviewed.Valid {
		t := reviewed.Time.UTC()
		d.ReviewedAt = &t
	}
	if escalated.Valid {
		t := escalated.Time.UTC()
		d.EscalatedAt = &t
	}
	if err := json.Unmarshal(evidence, &d.Evidence); err != nil {
		return nil, fmt.Errorf("unmarshal evidence: %w", err)
	}
	if len(resolved) > 0 {
		d.Resolution = &models.Resolution{}
		if err := json.Unmarshal(resolved, d.Resolution); err != nil {
			return nil, fmt.Errorf("unmarshal resolution: %w", err)
		}
	}
	return &d, nil
}
