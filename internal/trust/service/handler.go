package service

import (
	"context"
	"errors"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	txmodels "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// HandleEvent turns transaction outcomes into adjustments. It is registered
// on the event bus.
func (s *Service) HandleEvent(ctx context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.TransitionEvent:
		return s.onTransition(ctx, ev)
	case events.ConfirmationEvent:
		if ev.Synthesized || !ev.OnTime {
			return nil
		}
		_, err := s.Adjust(ctx, ev.Party, models.EventOnTimeConfirmation, ev.TransactionID)
		return err
	case events.DisputeResolvedEvent:
		return s.onDisputeResolved(ctx, ev)
	}
	return nil
}

func (s *Service) onTransition(ctx context.Context, ev events.TransitionEvent) error {
	tx := ev.Transaction
	if tx == nil {
		return nil
	}
	switch {
	case ev.To == txmodels.StateValidated:
		return errors.Join(
			s.adjustIgnoringEmpty(ctx, tx.Sender, models.EventSuccessfulTransaction, tx.ID),
			s.adjustIgnoringEmpty(ctx, tx.Receiver, models.EventSuccessfulTransaction, tx.ID),
		)
	case ev.To == txmodels.StateEscalated && ev.Cause == events.CauseTimeout:
		return s.adjustIgnoringEmpty(ctx, ev.StepOwner, models.EventTimeoutCaused, tx.ID)
	}
	return nil
}

func (s *Service) onDisputeResolved(ctx context.Context, ev events.DisputeResolvedEvent) error {
	var errs []error
	if ev.Winner != "" {
		errs = append(errs, s.adjustIgnoringEmpty(ctx, ev.Winner, models.EventDisputeWon, ev.TransactionID))
	}
	if ev.Loser != "" && ev.Loser == ev.RaisedBy {
		errs = append(errs, s.adjustIgnoringEmpty(ctx, ev.Loser, models.EventFalseClaim, ev.TransactionID))
	}
	return errors.Join(errs...)
}

func (s *Service) adjustIgnoringEmpty(ctx context.Context, party domain.PartyID, event models.EventType, txID domain.TransactionID) error {
	if party == "" || party == domain.SystemActorID {
		return nil
	}
	_, err := s.Adjust(ctx, party, event, txID)
	return err
}
