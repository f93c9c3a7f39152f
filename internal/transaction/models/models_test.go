package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

func newTx() *Transaction {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &Transaction{
		ID:             domain.NewTransactionID(),
		Sender:         "maison-a",
		Receiver:       "boutique-b",
		ItemRef:        "bag-001",
		Value:          500,
		Metadata:       map[string]string{"purchase_order": "PO-1"},
		CreatedAt:      now,
		DeadlineAnchor: now,
		TimeoutAt:      now.Add(72 * time.Hour),
		State:          StateInitiated,
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateInitiated, StateCreated, true},
		{StateCreated, StateSent, true},
		{StateSent, StateReceived, true},
		{StateReceived, StateValidated, true},
		{StateSent, StateDisputed, true},
		{StateDisputed, StateResolved, true},
		{StateEscalated, StateCancelled, true},
		{StateInitiated, StateSent, false},
		{StateCreated, StateDisputed, false},
		{StateCreated, StateValidated, false},
		{StateValidated, StateDisputed, false},
		{StateCancelled, StateEscalated, false},
		{StateResolved, StateEscalated, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to, ""), "%s -> %s", tc.from, tc.to)
	}
}

func TestCanTransition_Reinstate(t *testing.T) {
	assert.True(t, CanTransition(StateEscalated, StateSent, StateSent))
	assert.False(t, CanTransition(StateEscalated, StateReceived, StateSent))
	assert.False(t, CanTransition(StateEscalated, StateSent, ""))
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	all := []State{StateInitiated, StateCreated, StateSent, StateReceived, StateValidated,
		StateDisputed, StateEscalated, StateCancelled, StateResolved}
	for _, term := range TerminalStates {
		require.True(t, term.IsTerminal())
		for _, to := range all {
			assert.False(t, CanTransition(term, to, StateSent), "%s -> %s", term, to)
		}
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, newTx().Validate())

	tx := newTx()
	tx.Receiver = tx.Sender
	assert.Error(t, tx.Validate())

	tx = newTx()
	tx.Value = -1
	assert.Error(t, tx.Validate())

	tx = newTx()
	tx.TimeoutAt = tx.CreatedAt
	assert.Error(t, tx.Validate())

	tx = newTx()
	tx.Sender = ""
	assert.Error(t, tx.Validate())
}

func TestApplyTracksEscalationOrigin(t *testing.T) {
	tx := newTx()
	at := tx.CreatedAt.Add(time.Hour)
	tx.Apply(HistoryEntry{To: StateCreated, Actor: tx.Sender, At: at})
	tx.Apply(HistoryEntry{To: StateEscalated, Actor: domain.SystemActorID, At: at, System: true})

	assert.Equal(t, StateCreated, tx.EscalatedFrom)
	require.Len(t, tx.History, 2)
	assert.Equal(t, StateCreated, tx.History[1].From)
	assert.Equal(t, at, tx.PhaseStart())

	tx.Apply(HistoryEntry{To: StateCreated, Actor: "security-lead", At: at})
	assert.Empty(t, tx.EscalatedFrom)
}

func TestStepOwner(t *testing.T) {
	tx := newTx()
	assert.Equal(t, tx.Sender, tx.StepOwner())
	tx.State = StateSent
	assert.Equal(t, tx.Receiver, tx.StepOwner())
	tx.State = StateDisputed
	assert.Empty(t, tx.StepOwner())
}

func TestCloneIsDeep(t *testing.T) {
	tx := newTx()
	tx.SentConfirmation = &Confirmation{Actor: tx.Sender, At: tx.CreatedAt}
	tx.History = []HistoryEntry{{To: StateCreated, Evidence: []string{"doc-1"}}}

	c := tx.Clone()
	c.Metadata["purchase_order"] = "PO-2"
	c.SentConfirmation.Synthesized = true
	c.History[0].Evidence[0] = "doc-2"

	assert.Equal(t, "PO-1", tx.Metadata["purchase_order"])
	assert.False(t, tx.SentConfirmation.Synthesized)
	assert.Equal(t, "doc-1", tx.History[0].Evidence[0])
}
