package notification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/circuit"
)

// FallbackNotifier always tries the primary notifier. Once the breaker opens,
// failed notifications go to the fallback instead of being dropped.
type FallbackNotifier struct {
	primary  Notifier
	fallback Notifier
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFallbackNotifier(primary, fallback Notifier, breaker *circuit.Breaker, logger *slog.Logger) (*FallbackNotifier, error) {
	if primary == nil || fallback == nil {
		return nil, errors.New("primary and fallback notifiers are required")
	}
	if breaker == nil {
		breaker = circuit.New("notification")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackNotifier{primary: primary, fallback: fallback, breaker: breaker, logger: logger}, nil
}

func (f *FallbackNotifier) Notify(ctx context.Context, n Notification) error {
	err := f.primary.Notify(ctx, n)
	if err == nil {
		if _, change := f.breaker.RecordSuccess(); change.Closed {
			f.logger.InfoContext(ctx, "notification circuit closed", "breaker", f.breaker.Name())
		}
		return nil
	}
	useFallback, change := f.breaker.RecordFailure()
	if change.Opened {
		f.logger.WarnContext(ctx, "notification circuit opened",
			"breaker", f.breaker.Name(),
			"error", err,
		)
	}
	if !useFallback {
		return err
	}
	return f.fallback.Notify(ctx, n)
}
