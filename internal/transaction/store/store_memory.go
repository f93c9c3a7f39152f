package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
)

// InMemoryStore keeps transactions in a map. Suitable for tests and single
// node deployments without Postgres.
type InMemoryStore struct {
	mu   sync.RWMutex
	txns map[domain.TransactionID]*models.Transaction
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{txns: make(map[domain.TransactionID]*models.Transaction)}
}

func (s *InMemoryStore) Create(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[tx.ID]; ok {
		return fmt.Errorf("transaction %s: %w", tx.ID, sentinel.ErrConflict)
	}
	tx.Version = 1
	s.txns[tx.ID] = tx.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.TransactionID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
	}
	return tx.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, tx *models.Transaction, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.txns[tx.ID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", tx.ID, sentinel.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("transaction %s at version %d, expected %d: %w",
			tx.ID, current.Version, expectedVersion, sentinel.ErrConflict)
	}
	tx.Version = expectedVersion + 1
	s.txns[tx.ID] = tx.Clone()
	return nil
}

// Scan returns matching non-terminal transactions ordered by creation time.
func (s *InMemoryStore) Scan(ctx context.Context, pred Predicate) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Transaction
	for _, tx := range s.txns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tx.State.IsTerminal() || !pred(tx) {
			continue
		}
		out = append(out, tx.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
