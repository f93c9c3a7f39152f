package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.PartyID]*models.Record
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.PartyID]*models.Record)}
}

func (s *InMemoryStore) Get(_ context.Context, party domain.PartyID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[party]
	if !ok {
		return nil, fmt.Errorf("trust record %s: %w", party, sentinel.ErrNotFound)
	}
	return clone(r), nil
}

func (s *InMemoryStore) Save(_ context.Context, record *models.Record, adj models.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.Party]
	if !ok {
		stored = &models.Record{Party: record.Party}
		s.records[record.Party] = stored
	}
	stored.Score = record.Score
	stored.UpdatedAt = record.UpdatedAt
	stored.History = append(stored.History, adj)
	return nil
}

func clone(r *models.Record) *models.Record {
	c := *r
	c.History = slices.Clone(r.History)
	return &c
}
