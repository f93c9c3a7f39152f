package store

import (
	"context"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// Store keeps stop records and the halted index consulted on every
// transition. A transaction (or party) is halted while at least one stop has
// it marked.
type Store interface {
	Create(ctx context.Context, stop *models.Stop) error
	Get(ctx context.Context, id domain.StopID) (*models.Stop, error)
	Update(ctx context.Context, stop *models.Stop) error
	ListActive(ctx context.Context) ([]*models.Stop, error)

	MarkHalted(ctx context.Context, stopID domain.StopID, txID domain.TransactionID) error
	UnmarkHalted(ctx context.Context, stopID domain.StopID, txID domain.TransactionID) error
	IsHalted(ctx context.Context, txID domain.TransactionID) (bool, error)

	MarkParty(ctx context.Context, stopID domain.StopID, party domain.PartyID) error
	UnmarkParty(ctx context.Context, stopID domain.StopID, party domain.PartyID) error
	IsPartyHalted(ctx context.Context, party domain.PartyID) (bool, error)
}
