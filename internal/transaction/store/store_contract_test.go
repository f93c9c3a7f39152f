package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
)

// contractSuite exercises behavior every Store implementation must share.
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

func newTransaction(sender, receiver domain.PartyID, state models.State) *models.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Transaction{
		ID:             domain.NewTransactionID(),
		Sender:         sender,
		Receiver:       receiver,
		ItemRef:        "watch-42",
		Value:          1200,
		Metadata:       map[string]string{"purchase_order": "PO-77"},
		CreatedAt:      now,
		DeadlineAnchor: now,
		TimeoutAt:      now.Add(72 * time.Hour),
		State:          state,
	}
}

func (s *contractSuite) TestCreateAndGet() {
	ctx := context.Background()
	tx := newTransaction("maison-a", "boutique-b", models.StateInitiated)
	s.Require().NoError(s.store.Create(ctx, tx))
	s.Equal(int64(1), tx.Version)

	got, err := s.store.Get(ctx, tx.ID)
	s.Require().NoError(err)
	s.Equal(tx.ID, got.ID)
	s.Equal(tx.Sender, got.Sender)
	s.Equal("PO-77", got.Metadata["purchase_order"])
	s.True(tx.TimeoutAt.Equal(got.TimeoutAt))

	s.Run("duplicate id conflicts", func() {
		s.ErrorIs(s.store.Create(ctx, tx), sentinel.ErrConflict)
	})

	s.Run("unknown id is not found", func() {
		_, err := s.store.Get(ctx, domain.NewTransactionID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned records are copies", func() {
		got.Metadata["purchase_order"] = "mutated"
		again, err := s.store.Get(ctx, tx.ID)
		s.Require().NoError(err)
		s.Equal("PO-77", again.Metadata["purchase_order"])
	})
}

func (s *contractSuite) TestUpdateOptimisticVersion() {
	ctx := context.Background()
	tx := newTransaction("maison-a", "boutique-b", models.StateInitiated)
	s.Require().NoError(s.store.Create(ctx, tx))

	at := tx.CreatedAt.Add(time.Minute)
	tx.Apply(models.HistoryEntry{To: models.StateCreated, Actor: tx.Sender, At: at, Evidence: []string{"po.pdf"}})
	tx.SentConfirmation = nil
	s.Require().NoError(s.store.Update(ctx, tx, 1))
	s.Equal(int64(2), tx.Version)

	got, err := s.store.Get(ctx, tx.ID)
	s.Require().NoError(err)
	s.Equal(models.StateCreated, got.State)
	s.Require().Len(got.History, 1)
	s.Equal([]string{"po.pdf"}, got.History[0].Evidence)

	s.Run("stale version conflicts", func() {
		stale := got.Clone()
		stale.State = models.StateSent
		s.ErrorIs(s.store.Update(ctx, stale, 1), sentinel.ErrConflict)
	})

	s.Run("unknown id is not found", func() {
		other := newTransaction("x", "y", models.StateInitiated)
		s.ErrorIs(s.store.Update(ctx, other, 1), sentinel.ErrNotFound)
	})
}

func (s *contractSuite) TestConcurrentUpdatesOneWins() {
	ctx := context.Background()
	tx := newTransaction("maison-a", "boutique-b", models.StateCreated)
	s.Require().NoError(s.store.Create(ctx, tx))

	const writers = 20
	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := tx.Clone()
			c.State = models.StateSent
			if err := s.store.Update(ctx, c, 1); err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), success.Load())
}

func (s *contractSuite) TestScanSkipsTerminal() {
	ctx := context.Background()
	active := newTransaction("maison-a", "boutique-b", models.StateSent)
	other := newTransaction("maison-c", "boutique-d", models.StateCreated)
	done := newTransaction("maison-a", "boutique-d", models.StateValidated)
	for _, tx := range []*models.Transaction{active, other, done} {
		s.Require().NoError(s.store.Create(ctx, tx))
	}

	all, err := s.store.Scan(ctx, All)
	s.Require().NoError(err)
	s.Len(all, 2)

	mine, err := s.store.Scan(ctx, InvolvingParty("maison-a"))
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(active.ID, mine[0].ID)

	sent, err := s.store.Scan(ctx, InState(models.StateSent, models.StateReceived))
	s.Require().NoError(err)
	s.Len(sent, 1)
}
