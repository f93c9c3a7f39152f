package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	stops   map[domain.StopID]*models.Stop
	halted  map[domain.TransactionID]map[domain.StopID]struct{}
	parties map[domain.PartyID]map[domain.StopID]struct{}
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		stops:   make(map[domain.StopID]*models.Stop),
		halted:  make(map[domain.TransactionID]map[domain.StopID]struct{}),
		parties: make(map[domain.PartyID]map[domain.StopID]struct{}),
	}
}

func (s *InMemoryStore) Create(_ context.Context, stop *models.Stop) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stops[stop.ID]; ok {
		return fmt.Errorf("stop %s: %w", stop.ID, sentinel.ErrConflict)
	}
	s.stops[stop.ID] = stop.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.StopID) (*models.Stop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stop, ok := s.stops[id]
	if !ok {
		return nil, fmt.Errorf("stop %s: %w", id, sentinel.ErrNotFound)
	}
	return stop.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, stop *models.Stop) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stops[stop.ID]; !ok {
		return fmt.Errorf("stop %s: %w", stop.ID, sentinel.ErrNotFound)
	}
	s.stops[stop.ID] = stop.Clone()
	return nil
}

func (s *InMemoryStore) ListActive(_ context.Context) ([]*models.Stop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Stop
	for _, stop := range s.stops {
		if stop.IsActive() {
			out = append(out, stop.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) MarkHalted(_ context.Context, stopID domain.StopID, txID domain.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mark(s.halted, txID, stopID)
	return nil
}

func (s *InMemoryStore) UnmarkHalted(_ context.Context, stopID domain.StopID, txID domain.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unmark(s.halted, txID, stopID)
	return nil
}

func (s *InMemoryStore) IsHalted(_ context.Context, txID domain.TransactionID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.halted[txID]) > 0, nil
}

func (s *InMemoryStore) MarkParty(_ context.Context, stopID domain.StopID, party domain.PartyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mark(s.parties, party, stopID)
	return nil
}

func (s *InMemoryStore) UnmarkParty(_ context.Context, stopID domain.StopID, party domain.PartyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unmark(s.parties, party, stopID)
	return nil
}

func (s *InMemoryStore) IsPartyHalted(_ context.Context, party domain.PartyID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parties[party]) > 0, nil
}

func mark[K comparable](index map[K]map[domain.StopID]struct{}, key K, stopID domain.StopID) {
	set, ok := index[key]
	if !ok {
		set = make(map[domain.StopID]struct{})
		index[key] = set
	}
	set[stopID] = struct{}{}
}

func unmark[K comparable](index map[K]map[domain.StopID]struct{}, key K, stopID domain.StopID) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, stopID)
	if len(set) == 0 {
		delete(index, key)
	}
}
