package store

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
)

type contractSuite struct {
	suite.Suite
	store Store
	reset func()
}

func (s *contractSuite) SetupTest() {
	if s.reset != nil {
		s.reset()
	}
}

func newStop(created time.Time) *models.Stop {
	txID := domain.NewTransactionID()
	return &models.Stop{
		ID:       domain.NewStopID(),
		Trigger:  models.TriggerManual,
		Reason:   "counterfeit batch reported",
		Actor:    "security-1",
		Severity: models.SeverityHigh,
		Affected: []domain.TransactionID{txID},
		Halted: []models.HaltedTransaction{
			{TransactionID: txID, Sender: "m1", Receiver: "r1", At: created},
		},
		Status:    models.StatusActive,
		CreatedAt: created,
	}
}

func (s *contractSuite) TestStopRecords() {
	ctx := context.Background()
	created := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	stop := newStop(created)

	s.Require().NoError(s.store.Create(ctx, stop))
	s.True(errors.Is(s.store.Create(ctx, stop), sentinel.ErrConflict))

	got, err := s.store.Get(ctx, stop.ID)
	s.Require().NoError(err)
	s.Equal(stop.Reason, got.Reason)
	s.Require().Len(got.Halted, 1)
	s.Equal(stop.Halted[0].TransactionID, got.Halted[0].TransactionID)
	s.Equal(domain.PartyID("r1"), got.Halted[0].Receiver)

	later := newStop(created.Add(time.Minute))
	s.Require().NoError(s.store.Create(ctx, later))

	active, err := s.store.ListActive(ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 2)
	s.Equal(stop.ID, active[0].ID)

	cleared := created.Add(time.Hour)
	got.Status = models.StatusCleared
	got.ClearedAt = &cleared
	got.Halted = nil
	s.Require().NoError(s.store.Update(ctx, got))

	active, err = s.store.ListActive(ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(later.ID, active[0].ID)

	again, err := s.store.Get(ctx, stop.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCleared, again.Status)
	s.Empty(again.Halted)
	s.Len(again.Affected, 1)

	_, err = s.store.Get(ctx, domain.NewStopID())
	s.True(errors.Is(err, sentinel.ErrNotFound))
	s.True(errors.Is(s.store.Update(ctx, newStop(created)), sentinel.ErrNotFound))
}

func (s *contractSuite) TestRejectedWritesLeaveActiveIndexAlone() {
	ctx := context.Background()
	created := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	stop := newStop(created)
	cleared := created.Add(time.Hour)
	stop.Status = models.StatusCleared
	stop.ClearedAt = &cleared
	s.Require().NoError(s.store.Create(ctx, stop))

	dup := stop.Clone()
	dup.Status = models.StatusActive
	dup.ClearedAt = nil
	s.True(errors.Is(s.store.Create(ctx, dup), sentinel.ErrConflict))

	missing := newStop(created)
	s.True(errors.Is(s.store.Update(ctx, missing), sentinel.ErrNotFound))

	active, err := s.store.ListActive(ctx)
	s.Require().NoError(err)
	s.Empty(active)

	got, err := s.store.Get(ctx, stop.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCleared, got.Status)
}

func (s *contractSuite) TestHaltedIndex() {
	ctx := context.Background()
	txID := domain.NewTransactionID()
	first, second := domain.NewStopID(), domain.NewStopID()

	halted, err := s.store.IsHalted(ctx, txID)
	s.Require().NoError(err)
	s.False(halted)

	s.Require().NoError(s.store.MarkHalted(ctx, first, txID))
	s.Require().NoError(s.store.MarkHalted(ctx, second, txID))
	s.Require().NoError(s.store.UnmarkHalted(ctx, first, txID))

	halted, err = s.store.IsHalted(ctx, txID)
	s.Require().NoError(err)
	s.True(halted, "still held by the second stop")

	s.Require().NoError(s.store.UnmarkHalted(ctx, second, txID))
	halted, err = s.store.IsHalted(ctx, txID)
	s.Require().NoError(err)
	s.False(halted)

	s.Require().NoError(s.store.MarkParty(ctx, first, "m1"))
	halted, err = s.store.IsPartyHalted(ctx, "m1")
	s.Require().NoError(err)
	s.True(halted)
	s.Require().NoError(s.store.UnmarkParty(ctx, first, "m1"))
	halted, err = s.store.IsPartyHalted(ctx, "m1")
	s.Require().NoError(err)
	s.False(halted)
}
