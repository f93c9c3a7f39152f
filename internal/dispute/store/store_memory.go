package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/dispute/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	disputes map[domain.DisputeID]*models.Dispute
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{disputes: make(map[domain.DisputeID]*models.Dispute)}
}

func (s *InMemoryStore) Create(_ context.Context, d *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disputes[d.ID]; ok {
		return fmt.Errorf("dispute %s: %w", d.ID, sentinel.ErrConflict)
	}
	s.disputes[d.ID] = d.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.DisputeID) (*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.disputes[id]
	if !ok {
		return nil, fmt.Errorf("dispute %s: %w", id, sentinel.ErrNotFound)
	}
	return d.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, d *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disputes[d.ID]; !ok {
		return fmt.Errorf("dispute %s: %w", d.ID, sentinel.ErrNotFound)
	}
	s.disputes[d.ID] = d.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.DisputeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disputes[id]; !ok {
		return fmt.Errorf("dispute %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.disputes, id)
	return nil
}

func (s *InMemoryStore) ListByTransaction(_ context.Context, txID domain.TransactionID) ([]*models.Dispute, error) {
	return s.list(func(d *models.Dispute) bool { return d.TransactionID == txID }), nil
}

func (s *InMemoryStore) ListOpen(_ context.Context) ([]*models.Dispute, error) {
	return s.list((*models.Dispute).IsOpen), nil
}

func (s *InMemoryStore) list(keep func(*models.Dispute) bool) []*models.Dispute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Dispute
	for _, d := range s.disputes {
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}
