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

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
)

// Schema creates the transactions table.
const Schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id                    UUID PRIMARY KEY,
	sender                TEXT NOT NULL,
	receiver              TEXT NOT NULL,
	item_ref              TEXT NOT NULL,
	value                 DOUBLE PRECISION NOT NULL CHECK (value >= 0),
	metadata              JSONB NOT NULL DEFAULT '{}',
	state                 TEXT NOT NULL,
	escalated_from        TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL,
	deadline_anchor       TIMESTAMPTZ NOT NULL,
	timeout_at            TIMESTAMPTZ NOT NULL CHECK (timeout_at > created_at),
	sent_confirmation     JSONB,
	received_confirmation JSONB,
	ledger_recorded       BOOLEAN NOT NULL DEFAULT FALSE,
	history               JSONB NOT NULL DEFAULT '[]',
	version               BIGINT NOT NULL,
	CHECK (sender <> receiver)
);
CREATE INDEX IF NOT EXISTS idx_transactions_state ON transactions (state);
`

// PostgresStore persists transactions in PostgreSQL. The whole record,
// history and confirmations included, is written by one statement so a
// transition never lands partially.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `
	SELECT id, sender, receiver, item_ref, value, metadata, state, escalated_from,
		created_at, deadline_anchor, timeout_at, sent_confirmation, received_confirmation,
		ledger_recorded, history, version
	FROM transactions`

func (s *PostgresStore) Create(ctx context.Context, tx *models.Transaction) error {
	row, err := toRow(tx)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO transactions (id, sender, receiver, item_ref, value, metadata, state, escalated_from,
			created_at, deadline_anchor, timeout_at, sent_confirmation, received_confirmation,
			ledger_recorded, history, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(tx.ID), string(tx.Sender), string(tx.Receiver), tx.ItemRef, tx.Value,
		row.metadata, string(tx.State), string(tx.EscalatedFrom),
		tx.CreatedAt, tx.DeadlineAnchor, tx.TimeoutAt, row.sent, row.received,
		tx.LedgerRecorded, row.history,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, sentinel.ErrConflict)
	}
	tx.Version = 1
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.TransactionID) (*models.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) Update(ctx context.Context, tx *models.Transaction, expectedVersion int64) error {
	row, err := toRow(tx)
	if err != nil {
		return err
	}
	query := `
		UPDATE transactions SET
			metadata = $2,
			state = $3,
			escalated_from = $4,
			deadline_anchor = $5,
			timeout_at = $6,
			sent_confirmation = $7,
			received_confirmation = $8,
			ledger_recorded = $9,
			history = $10,
			version = version + 1
		WHERE id = $1 AND version = $11
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(tx.ID), row.metadata, string(tx.State), string(tx.EscalatedFrom),
		tx.DeadlineAnchor, tx.TimeoutAt, row.sent, row.received, tx.LedgerRecorded,
		row.history, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1)`, uuid.UUID(tx.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("check transaction: %w", err)
		}
		if !exists {
			return fmt.Errorf("transaction %s: %w", tx.ID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("transaction %s expected version %d: %w", tx.ID, expectedVersion, sentinel.ErrConflict)
	}
	tx.Version = expectedVersion + 1
	return nil
}

// Scan loads non-terminal rows and applies pred in process.
func (s *PostgresStore) Scan(ctx context.Context, pred Predicate) ([]*models.Transaction, error) {
	terminal := make([]string, len(models.TerminalStates))
	for i, st := range models.TerminalStates {
		terminal[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE state <> ALL($1) ORDER BY created_at`, pq.Array(terminal))
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		if pred(tx) {
			out = append(out, tx)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

type encodedRow struct {
	metadata []byte
	sent     []byte
	received []byte
	history  []byte
}

func toRow(tx *models.Transaction) (encodedRow, error) {
	var (
		r   encodedRow
		err error
	)
	metadata := tx.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	if r.metadata, err = json.Marshal(metadata); err != nil {
		return r, fmt.Errorf("marshal metadata: %w", err)
	}
	if tx.SentConfirmation != nil {
		if r.sent, err = json.Marshal(tx.SentConfirmation); err != nil {
			return r, fmt.Errorf("marshal sent confirmation: %w", err)
		}
	}
	if tx.ReceivedConfirmation != nil {
		if r.received, err = json.Marshal(tx.ReceivedConfirmation); err != nil {
			return r, fmt.Errorf("marshal received confirmation: %w", err)
		}
	}
	history := tx.History
	if history == nil {
		history = []models.HistoryEntry{}
	}
	if r.history, err = json.Marshal(history); err != nil {
		return r, fmt.Errorf("marshal history: %w", err)
	}
	return r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx                          models.Transaction
		id                          uuid.UUID
		sender, receiver            string
		state, escalatedFrom        string
		createdAt, anchor, deadline time.Time
		metadata, history           []byte
		sent, received              []byte
	)
	if err := row.Scan(&id, &sender, &receiver, &tx.ItemRef, &tx.Value, &metadata, &state, &escalatedFrom,
		&createdAt, &anchor, &deadline, &sent, &received, &tx.LedgerRecorded, &history, &tx.Version); err != nil {
		return nil, err
	}
	tx.ID = domain.TransactionID(id)
	tx.Sender = domain.PartyID(sender)
	tx.Receiver = domain.PartyID(receiver)
	tx.State = models.State(state)
	tx.EscalatedFrom = models.State(escalatedFrom)
	tx.CreatedAt = createdAt.UTC()
	tx.DeadlineAnchor = anchor.UTC()
	tx.TimeoutAt = deadline.UTC()

	if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if len(sent) > 0 {
		tx.SentConfirmation = &models.Confirmation{}
		if err := json.Unmarshal(sent, tx.SentConfirmation); err != nil {
			return nil, fmt.Errorf("unmarshal sent confirmation: %w", err)
		}
	}
	if len(received) > 0 {
		tx.ReceivedConfirmation = &models.Confirmation{}
		if err := json.Unmarshal(received, tx.ReceivedConfirmation); err != nil {
			return nil, fmt.Errorf("unmarshal received confirmation: %w", err)
		}
	}
	if err := json.Unmarshal(history, &tx.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return &tx, nil
}
