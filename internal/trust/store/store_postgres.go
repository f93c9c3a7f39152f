package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
	txcontext "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/tx"
)

// Schema creates the trust tables. Scores are stored in tenths.
const Schema = `
CREATE TABLE IF NOT EXISTS trust_scores (
	party      TEXT PRIMARY KEY,
	score      BIGINT NOT NULL CHECK (score >= 0),
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS trust_adjustments (
	id             UUID PRIMARY KEY,
	party          TEXT NOT NULL REFERENCES trust_scores (party),
	event_type     TEXT NOT NULL,
	delta          BIGINT NOT NULL,
	applied        BIGINT NOT NULL,
	score          BIGINT NOT NULL,
	transaction_id UUID,
	actor          TEXT NOT NULL DEFAULT '',
	at             TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trust_adjustments_party ON trust_adjustments (party, at);
`

// PostgresStore writes the score and its adjustment in one SQL transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Get(ctx context.Context, party domain.PartyID) (*models.Record, error) {
	record := &models.Record{Party: party}
	var score int64
	err := s.db.QueryRowContext(ctx,
		`SELECT score, updated_at FROM trust_scores WHERE party = $1`, string(party),
	).Scan(&score, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trust record %s: %w", party, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get trust score: %w", err)
	}
	record.Score = models.Points(score)

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, delta, applied, score, transaction_id, actor, at
		FROM trust_adjustments
		WHERE party = $1
		ORDER BY at, id
	`, string(party))
	if err != nil {
		return nil, fmt.Errorf("list trust adjustments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			adj                     models.Adjustment
			eventType, actor        string
			delta, applied, running int64
			txID                    uuid.NullUUID
		)
		if err := rows.Scan(&eventType, &delta, &applied, &running, &txID, &actor, &adj.At); err != nil {
			return nil, fmt.Errorf("scan trust adjustment: %w", err)
		}
		adj.EventType = models.EventType(eventType)
		adj.Delta = models.Points(delta)
		adj.Applied = models.Points(applied)
		adj.Score = models.Points(running)
		adj.Actor = domain.PartyID(actor)
		if txID.Valid {
			adj.TransactionID = domain.TransactionID(txID.UUID)
		}
		record.History = append(record.History, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trust adjustments: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Save(ctx context.Context, record *models.Record, adj models.Adjustment) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		_, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO trust_scores (party, score, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (party) DO UPDATE SET
				score = EXCLUDED.score,
				updated_at = EXCLUDED.updated_at
		`, string(record.Party), int64(record.Score), record.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert trust score: %w", err)
		}

		txID := uuid.NullUUID{UUID: uuid.UUID(adj.TransactionID), Valid: !adj.TransactionID.IsNil()}
		_, err = s.execer(ctx).ExecContext(ctx, `
			INSERT INTO trust_adjustments (id, party, event_type, delta, applied, score, transaction_id, actor, at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.New(), string(record.Party), string(adj.EventType), int64(adj.Delta), int64(adj.Applied),
			int64(adj.Score), txID, string(adj.Actor), adj.At)
		if err != nil {
			return fmt.Errorf("insert trust adjustment: %w", err)
		}
		return nil
	})
}
