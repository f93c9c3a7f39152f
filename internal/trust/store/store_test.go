package store

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/models"
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

func (s *contractSuite) TestSaveAppendsHistory() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	max := models.FromFloat(150)

	_, err := s.store.Get(ctx, "maison-a")
	s.ErrorIs(err, sentinel.ErrNotFound)

	rec := models.NewRecord("maison-a", models.FromFloat(50), now)
	txID := domain.NewTransactionID()
	adj := rec.Adjust(models.EventOnTimeConfirmation, models.FromFloat(0.5), max, txID, now)
	s.Require().NoError(s.store.Save(ctx, rec, adj))

	adj = rec.Adjust(models.EventTimeoutCaused, models.FromFloat(-2), max, domain.TransactionID{}, now.Add(time.Second))
	s.Require().NoError(s.store.Save(ctx, rec, adj))

	got, err := s.store.Get(ctx, "maison-a")
	s.Require().NoError(err)
	s.Equal(models.FromFloat(48.5), got.Score)
	s.Require().Len(got.History, 2)
	s.Equal(models.EventOnTimeConfirmation, got.History[0].EventType)
	s.Equal(txID, got.History[0].TransactionID)
	s.True(got.History[1].TransactionID.IsNil())
	s.Equal(models.FromFloat(48.5), got.History[1].Score)
}
