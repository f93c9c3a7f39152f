package service

//go:generate mockgen -source=../../anomaly/anomaly.go -destination=../../anomaly/mocks/mocks.go -package=mocks Detector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/anomaly"
	anomalymocks "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/anomaly/mocks"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/store"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/ledger"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/config"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/timeout"
	txmodels "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	txservice "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/service"
	txstore "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/store"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	dErrors "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain-errors"
)

const (
	sender   domain.PartyID = "manufacturer-1"
	receiver domain.PartyID = "retailer-1"
)

var security = domain.Party("sec-1", domain.RoleSecurityTeam)

// flakyTxStore fails updates of selected transactions.
type flakyTxStore struct {
	*txstore.InMemoryStore
	mu   sync.Mutex
	fail map[domain.TransactionID]bool
}

func (f *flakyTxStore) failOn(ids ...domain.TransactionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = map[domain.TransactionID]bool{}
	for _, id := range ids {
		f.fail[id] = true
	}
}

func (f *flakyTxStore) Update(ctx context.Context, tx *txmodels.Transaction, expectedVersion int64) error {
	f.mu.Lock()
	failing := f.fail[tx.ID]
	f.mu.Unlock()
	if failing {
		return errors.New("db down")
	}
	return f.InMemoryStore.Update(ctx, tx, expectedVersion)
}

type EmergencyServiceSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	detector    *anomalymocks.MockDetector
	now         time.Time
	cfg         config.EmergencyConfig
	store       store.Store
	txStore     *flakyTxStore
	coordinator *txservice.Coordinator
	service     *Service
	stops       []events.StopEvent
	resumes     []events.ResumeEvent
}

func TestEmergencyServiceSuite(t *testing.T) {
	suite.Run(t, new(EmergencyServiceSuite))
}

func (s *EmergencyServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.detector = anomalymocks.NewMockDetector(s.ctrl)
	s.detector.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(anomaly.Assessment{}, nil).AnyTimes()
	s.now = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	s.cfg = config.Default().Emergency
	s.build()
}

func (s *EmergencyServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

// build wires a fresh coordinator and guard with the suite's config.
func (s *EmergencyServiceSuite) build() {
	clock := func() time.Time { return s.now }
	policy, err := timeout.NewPolicy(config.Default().Timeout)
	s.Require().NoError(err)

	bus := events.NewBus()
	s.stops, s.resumes = nil, nil
	bus.Subscribe("stops", func(_ context.Context, e events.Event) error {
		switch ev := e.(type) {
		case events.StopEvent:
			s.stops = append(s.stops, ev)
		case events.ResumeEvent:
			s.resumes = append(s.resumes, ev)
		}
		return nil
	}, events.KindStopTriggered, events.KindStopResumed)

	s.txStore = &flakyTxStore{InMemoryStore: txstore.NewInMemory()}
	s.coordinator, err = txservice.New(s.txStore, policy, ledger.NewLogWriter(nil),
		txservice.WithPublisher(bus),
		txservice.WithClock(clock),
	)
	s.Require().NoError(err)
	s.store = store.NewInMemory()
	s.service, err = New(s.store, s.coordinator, s.cfg,
		WithDetector(s.detector),
		WithPublisher(bus),
		WithClock(clock),
	)
	s.Require().NoError(err)
	s.coordinator.SetGuard(s.service)
}

func (s *EmergencyServiceSuite) create(value float64) *txmodels.Transaction {
	tx, err := s.coordinator.Create(context.Background(), txservice.CreateRequest{
		Sender: sender, Receiver: receiver, ItemRef: "watch-9", Value: value,
	}, domain.Party(sender))
	s.Require().NoError(err)
	return tx
}

func (s *EmergencyServiceSuite) state(id domain.TransactionID) txmodels.State {
	tx, err := s.coordinator.Get(context.Background(), id)
	s.Require().NoError(err)
	return tx.State
}

func (s *EmergencyServiceSuite) TestNewRequiresCollaborators() {
	_, err := New(nil, s.coordinator, s.cfg)
	s.Error(err)
	_, err = New(store.NewInMemory(), nil, s.cfg)
	s.Error(err)
}

func (s *EmergencyServiceSuite) TestEmergencyStopHaltsAndResumeReinstates() {
	ctx := context.Background()
	tx := s.create(500)
	tx, err := s.coordinator.RequestTransition(ctx, tx.ID, txmodels.StateCreated, domain.Party(sender))
	s.Require().NoError(err)

	stop, err := s.service.Trigger(ctx, security, TriggerRequest{Reason: "counterfeit batch", TransactionIDs: []domain.TransactionID{tx.ID}})
	s.Require().NoError(err)
	s.True(stop.IsActive())
	s.True(stop.Holds(tx.ID))
	s.Equal(txmodels.StateEscalated, s.state(tx.ID))

	_, err = s.coordinator.RequestTransition(ctx, tx.ID, txmodels.StateSent, domain.Party(sender))
	s.True(dErrors.HasCode(err, dErrors.CodeHalted), "got %v", err)

	resumed, err := s.service.Resume(ctx, stop.ID, security)
	s.Require().NoError(err)
	s.Equal(models.StatusCleared, resumed.Status)
	s.Equal(txmodels.StateCreated, s.state(tx.ID))

	got, err := s.coordinator.RequestTransition(ctx, tx.ID, txmodels.StateSent, domain.Party(sender))
	s.Require().NoError(err)
	s.Equal(txmodels.StateSent, got.State)

	s.Require().Len(s.stops, 1)
	s.ElementsMatch([]domain.PartyID{sender, receiver}, s.stops[0].Recipients)
	s.Require().Len(s.resumes, 1)
	s.True(s.resumes[0].StopCleared)
	s.Equal([]domain.TransactionID{tx.ID}, s.resumes[0].Reinstated)
}

func (s *EmergencyServiceSuite) TestTrigger() {
	ctx := context.Background()

	s.Run("unapproved actors are refused", func() {
		tx := s.create(500)
		_, err := s.service.Trigger(ctx, domain.Party(sender), TriggerRequest{Reason: "x", TransactionIDs: []domain.TransactionID{tx.ID}})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		halted, err := s.service.IsHalted(ctx, tx.ID)
		s.Require().NoError(err)
		s.False(halted)
	})

	s.Run("unknown transactions fail before anything is halted", func() {
		tx := s.create(500)
		_, err := s.service.Trigger(ctx, security, TriggerRequest{
			Reason:         "x",
			TransactionIDs: []domain.TransactionID{tx.ID, domain.NewTransactionID()},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal(txmodels.StateInitiated, s.state(tx.ID))
	})

	s.Run("a reason is required", func() {
		_, err := s.service.Trigger(ctx, security, TriggerRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown severity", func() {
		_, err := s.service.Trigger(ctx, security, TriggerRequest{Reason: "x", Severity: "apocalyptic"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *EmergencyServiceSuite) TestNetworkWideStop() {
	ctx := context.Background()
	a := s.create(500)
	b := s.create(700)
	done := s.create(800)
	_, err := s.coordinator.RequestTransition(ctx, done.ID, txmodels.StateCancelled, domain.Party(sender))
	s.Require().NoError(err)

	stop, err := s.service.Trigger(ctx, domain.System(), TriggerRequest{Reason: "ledger compromise", Severity: models.SeverityCritical})
	s.Require().NoError(err)
	s.ElementsMatch([]domain.TransactionID{a.ID, b.ID}, stop.Affected)
	s.False(stop.Holds(done.ID))
	s.Equal(txmodels.StateCancelled, s.state(done.ID))

	active, err := s.service.ActiveStops(ctx)
	s.Require().NoError(err)
	s.Len(active, 1)

	// partial resume keeps the stop active
	partial, err := s.service.Resume(ctx, stop.ID, security, a.ID)
	s.Require().NoError(err)
	s.True(partial.IsActive())
	s.Equal(txmodels.StateInitiated, s.state(a.ID))
	s.Equal(txmodels.StateEscalated, s.state(b.ID))

	cleared, err := s.service.Resume(ctx, stop.ID, security)
	s.Require().NoError(err)
	s.False(cleared.IsActive())
	s.NotNil(cleared.ClearedAt)

	again, err := s.service.Resume(ctx, stop.ID, security)
	s.Require().NoError(err)
	s.Equal(models.StatusCleared, again.Status)
	s.Len(s.resumes, 2)
}

func (s *EmergencyServiceSuite) TestOverlappingStops() {
	ctx := context.Background()
	tx := s.create(500)
	ids := []domain.TransactionID{tx.ID}

	first, err := s.service.Trigger(ctx, security, TriggerRequest{Reason: "first", TransactionIDs: ids})
	s.Require().NoError(err)
	second, err := s.service.Trigger(ctx, security, TriggerRequest{Reason: "second", TransactionIDs: ids})
	s.Require().NoError(err)
	h, ok := second.Held(tx.ID)
	s.Require().True(ok)
	s.False(h.WasEscalated, "escalation by the first stop is not the transaction's own")

	_, err = s.service.Resume(ctx, first.ID, security)
	s.Require().NoError(err)
	halted, err := s.service.IsHalted(ctx, tx.ID)
	s.Require().NoError(err)
	s.True(halted)
	s.Equal(txmodels.StateEscalated, s.state(tx.ID))

	_, err = s.service.Resume(ctx, second.ID, security)
	s.Require().NoError(err)
	s.Equal(txmodels.StateInitiated, s.state(tx.ID))
}

func (s *EmergencyServiceSuite) TestResume() {
	ctx := context.Background()

	s.Run("approval required", func() {
		tx := s.create(500)
		stop, err := s.service.Trigger(ctx, security, TriggerRequest{Reason: "x", TransactionIDs: []domain.TransactionID{tx.ID}})
		s.Require().NoError(err)
		_, err = s.service.Resume(ctx, stop.ID, domain.Party(sender))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown stop", func() {
		_, err := s.service.Resume(ctx, domain.NewStopID(), security)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("transaction outside the stop", func() {
		tx := s.create(500)
		other := s.create(600)
		stop, err := s.service.Trigger(ctx, security, TriggerRequest{Reason: "x", TransactionIDs: []domain.TransactionID{tx.ID}})
		s.Require().NoError(err)
		_, err = s.service.Resume(ctx, stop.ID, security, other.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("previously escalated transactions stay escalated", func() {
		tx := s.create(500)
		_, err := s.coordinator.Escalate(ctx, tx.ID, domain.System(), "manual review")
		s.Require().NoError(err)
		stop, err := s.service.Trigger(ctx, security, TriggerRequest{Reason: "x", TransactionIDs: []domain.TransactionID{tx.ID}})
		s.Require().NoError(err)
		s.Require().Len(stop.Halted, 1)
		s.True(stop.Halted[0].WasEscalated)

		_, err = s.service.Resume(ctx, stop.ID, security)
		s.Require().NoError(err)
		s.Equal(txmodels.StateEscalated, s.state(tx.ID))
		halted, err := s.service.IsHalted(ctx, tx.ID)
		s.Require().NoError(err)
		s.False(halted)
	})
}

func (s *EmergencyServiceSuite) TestScreen() {
	ctx := context.Background()

	s.Run("value above the limit", func() {
		tx := s.create(2_000_000)
		s.Equal(txmodels.StateEscalated, s.state(tx.ID))
		s.Require().NotEmpty(s.stops)
		last := s.stops[len(s.stops)-1]
		s.Equal(string(models.TriggerAutomaticThreshold), last.Trigger)
		s.Equal(string(models.SeverityCritical), last.Severity)
		s.Equal(domain.SystemActorID, last.Actor)
	})

	s.Run("risky transactions", func() {
		s.ctrl = gomock.NewController(s.T())
		s.detector = anomalymocks.NewMockDetector(s.ctrl)
		s.detector.EXPECT().Assess(gomock.Any(), gomock.Any()).
			Return(anomaly.Assessment{RiskScore: 0.93, Reasons: []string{"velocity"}}, nil)
		s.build()

		tx := s.create(500)
		s.Equal(txmodels.StateEscalated, s.state(tx.ID))
		s.Require().Len(s.stops, 1)
		s.Equal(string(models.TriggerAnomaly), s.stops[0].Trigger)
		s.Contains(s.stops[0].Reason, "velocity")
	})

	s.Run("parties under an active stop", func() {
		s.SetupTest()
		first := s.create(500)
		_, err := s.service.Trigger(ctx, security, TriggerRequest{Reason: "x", TransactionIDs: []domain.TransactionID{first.ID}})
		s.Require().NoError(err)

		tx := s.create(500)
		s.Equal(txmodels.StateEscalated, s.state(tx.ID))
		s.Equal(string(models.TriggerPropagation), s.stops[len(s.stops)-1].Trigger)
	})

	s.Run("detector failures do not halt", func() {
		s.ctrl = gomock.NewController(s.T())
		s.detector = anomalymocks.NewMockDetector(s.ctrl)
		s.detector.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(anomaly.Assessment{}, errors.New("model offline"))
		s.build()

		tx := s.create(500)
		s.NotEqual(txmodels.StateEscalated, s.state(tx.ID))
		s.Empty(s.stops)
	})
}

func (s *EmergencyServiceSuite) TestPartyLevelHalt() {
	ctx := context.Background()
	s.cfg.PartyLevelHalt = true
	s.build()

	tx := s.create(500)
	stop, err := s.service.Trigger(ctx, security, TriggerRequest{Reason: "x", TransactionIDs: []domain.TransactionID{tx.ID}})
	s.Require().NoError(err)
	s.ElementsMatch([]domain.PartyID{sender, receiver}, stop.HaltedParties)

	_, err = s.coordinator.Create(ctx, txservice.CreateRequest{Sender: sender, Receiver: "boutique-7", Value: 10}, domain.Party(sender))
	s.True(dErrors.HasCode(err, dErrors.CodeHalted))

	_, err = s.service.Resume(ctx, stop.ID, security)
	s.Require().NoError(err)
	halted, err := s.service.IsPartyHalted(ctx, sender)
	s.Require().NoError(err)
	s.False(halted)

	_, err = s.coordinator.Create(ctx, txservice.CreateRequest{Sender: sender, Receiver: "boutique-7", Value: 10}, domain.Party(sender))
	s.Require().NoError(err)
}

func (s *EmergencyServiceSuite) TestPartyHaltDisabledByDefault() {
	ctx := context.Background()
	tx := s.create(500)
	_, err := s.service.Trigger(ctx, security, TriggerRequest{Reason: "x", TransactionIDs: []domain.TransactionID{tx.ID}})
	s.Require().NoError(err)
	halted, err := s.service.IsPartyHalted(ctx, sender)
	s.Require().NoError(err)
	s.False(halted)
}

func (s *EmergencyServiceSuite) TestFailedTriggerStaysResumable() {
	ctx := context.Background()
	a := s.create(500)
	b := s.create(600)
	s.txStore.failOn(b.ID)

	stop, err := s.service.Trigger(ctx, security, TriggerRequest{
		Reason:         "recall",
		TransactionIDs: []domain.TransactionID{a.ID, b.ID},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal), "got %v", err)
	s.Require().NotNil(stop)
	s.True(stop.Holds(a.ID))

	persisted, err := s.service.Get(ctx, stop.ID)
	s.Require().NoError(err)
	s.True(persisted.Holds(a.ID))
	s.Equal(txmodels.StateEscalated, s.state(a.ID))

	s.txStore.failOn()
	_, err = s.service.Resume(ctx, stop.ID, security, a.ID)
	s.Require().NoError(err)
	halted, err := s.service.IsHalted(ctx, a.ID)
	s.Require().NoError(err)
	s.False(halted)
	s.Equal(txmodels.StateInitiated, s.state(a.ID))

	resumed, err := s.service.Resume(ctx, stop.ID, security)
	s.Require().NoError(err)
	s.Equal(models.StatusCleared, resumed.Status)
	for _, id := range []domain.TransactionID{a.ID, b.ID} {
		halted, err := s.service.IsHalted(ctx, id)
		s.Require().NoError(err)
		s.False(halted)
	}
}

func (s *EmergencyServiceSuite) TestTransitionsRacingTriggerSeeTheHalt() {
	ctx := context.Background()
	txs := make([]*txmodels.Transaction, 16)
	ids := make([]domain.TransactionID, len(txs))
	for i := range txs {
		tx := s.create(500)
		tx, err := s.coordinator.RequestTransition(ctx, tx.ID, txmodels.StateCreated, domain.Party(sender))
		s.Require().NoError(err)
		txs[i], ids[i] = tx, tx.ID
	}

	errs := make([]error, len(txs))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, tx := range txs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = s.coordinator.RequestTransition(ctx, tx.ID, txmodels.StateSent, domain.Party(sender))
		}()
	}
	var stop *models.Stop
	var triggerErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		stop, triggerErr = s.service.Trigger(ctx, security, TriggerRequest{Reason: "tampered seals", TransactionIDs: ids})
	}()
	close(start)
	wg.Wait()

	s.Require().NoError(triggerErr)
	s.ElementsMatch(ids, stop.Affected)
	for i, tx := range txs {
		got, err := s.coordinator.Get(ctx, tx.ID)
		s.Require().NoError(err)
		s.Equal(txmodels.StateEscalated, got.State)

		sentAt, escalatedAt := -1, -1
		for j, h := range got.History {
			switch h.To {
			case txmodels.StateSent:
				sentAt = j
			case txmodels.StateEscalated:
				escalatedAt = j
			}
		}
		s.Require().NotEqual(-1, escalatedAt)
		if errs[i] != nil {
			s.True(dErrors.HasCode(errs[i], dErrors.CodeHalted), "got %v", errs[i])
			s.Equal(-1, sentAt)
			continue
		}
		s.Less(sentAt, escalatedAt)
		s.Equal(txmodels.StateSent, got.EscalatedFrom)
	}
}
