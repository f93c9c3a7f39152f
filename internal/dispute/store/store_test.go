package store

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/dispute/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
)

// contractSuite runs against every Store implementation.
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

func newDispute(txID domain.TransactionID, opened time.Time) *models.Dispute {
	return &models.Dispute{
		ID:            domain.NewDisputeID(),
		TransactionID: txID,
		RaisedBy:      "retailer-1",
		Reason:        "box arrived empty",
		Evidence:      []models.Evidence{{Ref: "photo-1", SubmittedBy: "retailer-1", At: opened}},
		Status:        models.StatusOpen,
		OpenedAt:      opened,
	}
}

func (s *contractSuite) TestCreateGetUpdate() {
	ctx := context.Background()
	opened := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	d := newDispute(domain.NewTransactionID(), opened)

	s.Require().NoError(s.store.Create(ctx, d))
	s.True(errors.Is(s.store.Create(ctx, d), sentinel.ErrConflict))

	got, err := s.store.Get(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(d.Reason, got.Reason)
	s.Require().Len(got.Evidence, 1)
	s.Equal("photo-1", got.Evidence[0].Ref)
	s.Nil(got.Resolution)

	reviewed := opened.Add(time.Hour)
	got.Status = models.StatusResolved
	got.ReviewedAt = &reviewed
	got.Resolution = &models.Resolution{Outcome: models.OutcomeFavorSender, ResolvedBy: "arb-1", At: reviewed}
	s.Require().NoError(s.store.Update(ctx, got))

	again, err := s.store.Get(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusResolved, again.Status)
	s.Require().NotNil(again.Resolution)
	s.Equal(models.OutcomeFavorSender, again.Resolution.Outcome)
	s.True(reviewed.Equal(*again.ReviewedAt))

	_, err = s.store.Get(ctx, domain.NewDisputeID())
	s.True(errors.Is(err, sentinel.ErrNotFound))
	s.True(errors.Is(s.store.Update(ctx, newDispute(domain.NewTransactionID(), opened)), sentinel.ErrNotFound))
}

func (s *contractSuite) TestListings() {
	ctx := context.Background()
	opened := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	txID := domain.NewTransactionID()

	first := newDispute(txID, opened)
	first.Status = models.StatusResolved
	second := newDispute(txID, opened.Add(time.Hour))
	other := newDispute(domain.NewTransactionID(), opened.Add(2*time.Hour))
	other.Status = models.StatusInvestigating
	for _, d := range []*models.Dispute{first, second, other} {
		s.Require().NoError(s.store.Create(ctx, d))
	}

	byTx, err := s.store.ListByTransaction(ctx, txID)
	s.Require().NoError(err)
	s.Require().Len(byTx, 2)
	s.Equal(first.ID, byTx[0].ID)

	open, err := s.store.ListOpen(ctx)
	s.Require().NoError(err)
	s.Require().Len(open, 2)
	s.Equal(second.ID, open[0].ID)
	s.Equal(other.ID, open[1].ID)
}

func (s *contractSuite) TestDelete() {
	ctx := context.Background()
	d := newDispute(domain.NewTransactionID(), time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	s.Require().NoError(s.store.Create(ctx, d))

	s.Require().NoError(s.store.Delete(ctx, d.ID))
	_, err := s.store.Get(ctx, d.ID)
	s.True(errors.Is(err, sentinel.ErrNotFound))
	s.True(errors.Is(s.store.Delete(ctx, d.ID), sentinel.ErrNotFound))
}
