package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	txmodels "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	audit "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit/publisher"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit/store/memory"
)

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, audit.Event) error { return errors.New("disk full") }

func TestRecorderThroughBus(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	store := memory.NewInMemoryStore()
	pub := publisher.NewPublisher(store)
	rec, err := New(pub)
	require.NoError(t, err)

	bus := events.NewBus()
	bus.Subscribe("audit", rec.HandleEvent, Kinds()...)

	tx := &txmodels.Transaction{ID: domain.NewTransactionID(), Sender: "m1", Receiver: "r1"}
	stopID := domain.NewStopID()
	bus.Publish(ctx, events.TransitionEvent{Transaction: tx, From: txmodels.StateSent, To: txmodels.StateEscalated, Actor: domain.SystemActorID, System: true, Cause: events.CauseTimeout, StepOwner: "r1", Overage: time.Hour, At: at})
	bus.Publish(ctx, events.LedgerEvent{TransactionID: tx.ID, Err: errors.New("broker down"), At: at})
	bus.Publish(ctx, events.StopEvent{StopID: stopID, Trigger: "manual", Severity: "high", Actor: "sec-1", Affected: []domain.TransactionID{tx.ID}, At: at})
	bus.Publish(ctx, events.ResumeEvent{StopID: stopID, Actor: "sec-1", Resumed: []domain.TransactionID{tx.ID}, StopCleared: true, At: at})
	bus.Publish(ctx, events.TrustAdjustedEvent{Party: "r1", EventType: "timeout", Applied: -2, Score: 48, At: at})
	// confirmations are not audited
	bus.Publish(ctx, events.ConfirmationEvent{TransactionID: tx.ID, Party: "m1", At: at})

	all, err := pub.List(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 5)

	assert.Equal(t, string(audit.EventTransitionApplied), all[0].Action)
	assert.Equal(t, audit.CategoryCompliance, all[0].Category)
	assert.Equal(t, "r1", all[0].Detail["step_owner"])
	assert.Equal(t, "timeout", all[0].Detail["cause"])

	assert.Equal(t, string(audit.EventLedgerFailed), all[1].Action)
	assert.Equal(t, "broker down", all[1].Detail["error"])

	assert.Equal(t, audit.CategorySecurity, all[2].Category)
	assert.Equal(t, string(audit.EventStopCleared), all[3].Action)

	assert.Equal(t, audit.EntityParty, all[4].Entity)
	assert.Equal(t, "system", all[4].Actor)
	assert.Equal(t, "48", all[4].Detail["score"])

	byTx, err := pub.List(ctx, audit.Filter{EntityID: tx.ID.String()})
	require.NoError(t, err)
	assert.Len(t, byTx, 2)
}

func TestRecorderReportsEmitFailures(t *testing.T) {
	rec, err := New(failingEmitter{})
	require.NoError(t, err)
	err = rec.HandleEvent(context.Background(), events.LedgerEvent{TransactionID: domain.NewTransactionID()})
	assert.ErrorContains(t, err, "disk full")

	_, err = New(nil)
	assert.Error(t, err)
}
