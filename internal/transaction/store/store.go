// Package store persists transaction records. Every implementation hands out
// copies: a caller mutating a returned record never changes stored state.
package store

import (
	"context"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// Predicate selects transactions during a scan.
type Predicate func(*models.Transaction) bool

// Store is the transaction store contract shared by the in-memory and
// Postgres implementations.
//
// Create fails with sentinel.ErrConflict when the id exists. Get returns
// sentinel.ErrNotFound for unknown ids. Update writes tx only when the stored
// version equals expectedVersion (sentinel.ErrConflict otherwise) and bumps
// tx.Version on success. Scan visits non-terminal transactions only.
type Store interface {
	Create(ctx context.Context, tx *models.Transaction) error
	Get(ctx context.Context, id domain.TransactionID) (*models.Transaction, error)
	Update(ctx context.Context, tx *models.Transaction, expectedVersion int64) error
	Scan(ctx context.Context, pred Predicate) ([]*models.Transaction, error)
}

// All matches every transaction.
func All(*models.Transaction) bool { return true }

// InvolvingParty matches transactions where p is sender or receiver.
func InvolvingParty(p domain.PartyID) Predicate {
	return func(t *models.Transaction) bool { return t.IsParty(p) }
}

// InState matches transactions in any of the given states.
func InState(states ...models.State) Predicate {
	return func(t *models.Transaction) bool {
		for _, s := range states {
			if t.State == s {
				return true
			}
		}
		return false
	}
}
