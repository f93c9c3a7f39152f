// Package store persists trust records.
package store

import (
	"context"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// Store keeps one record per party. Get returns sentinel.ErrNotFound for a
// party without history. Save persists the record's score and appends adj.
type Store interface {
	Get(ctx context.Context, party domain.PartyID) (*models.Record, error)
	Save(ctx context.Context, record *models.Record, adj models.Adjustment) error
}
