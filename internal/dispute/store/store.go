package store

import (
	"context"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/dispute/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// Store persists disputes. Get returns sentinel.ErrNotFound for unknown ids;
// Create returns sentinel.ErrConflict when the id exists.
type Store interface {
	Create(ctx context.Context, d *models.Dispute) error
	Get(ctx context.Context, id domain.DisputeID) (*models.Dispute, error)
	Update(ctx context.Context, d *models.Dispute) error
	Delete(ctx context.Context, id domain.DisputeID) error
	ListByTransaction(ctx context.Context, txID domain.TransactionID) ([]*models.Dispute, error)
	ListOpen(ctx context.Context) ([]*models.Dispute, error)
}
