package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/audit"
	disputeservice "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/dispute/service"
	emergencymetrics "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/metrics"
	emergencyservice "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/service"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/notification"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/config"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/httpserver"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/logger"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/scheduler"
	schedulermetrics "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/scheduler/metrics"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/timeout"
	txmetrics "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/metrics"
	txservice "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/service"
	trustmetrics "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/metrics"
	trustservice "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/service"
	auditpublisher "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit/publisher"
)

const notificationQueueSize = 1024

// main wires the coordinator, its guards and collaborators, and runs the
// scheduler next to the ops listener until a signal arrives.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("coordinator stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	stores, err := buildStores(ctx, infra, log)
	if err != nil {
		return err
	}

	policy, err := timeout.NewPolicy(cfg.Timeout)
	if err != nil {
		return fmt.Errorf("build timeout policy: %w", err)
	}

	bus := events.NewBus(events.WithLogger(log))

	trust, err := trustservice.New(stores.trust, cfg.Trust,
		trustservice.WithLogger(log),
		trustservice.WithMetrics(trustmetrics.New(reg)),
		trustservice.WithPublisher(bus),
	)
	if err != nil {
		return err
	}

	writer, notifier, err := collaborators(infra, cfg, log)
	if err != nil {
		return err
	}

	coordinator, err := txservice.New(stores.transactions, policy, writer,
		txservice.WithLogger(log),
		txservice.WithMetrics(txmetrics.New(reg)),
		txservice.WithPublisher(bus),
		txservice.WithTrust(trust),
		txservice.WithTracer(otel.Tracer("twocheck/coordinator")),
	)
	if err != nil {
		return err
	}

	guard, err := emergencyservice.New(stores.stops, coordinator, cfg.Emergency,
		emergencyservice.WithLogger(log),
		emergencyservice.WithMetrics(emergencymetrics.New(reg)),
		emergencyservice.WithPublisher(bus),
	)
	if err != nil {
		return err
	}
	coordinator.SetGuard(guard)

	disputes, err := disputeservice.New(stores.disputes, coordinator, cfg.Dispute,
		disputeservice.WithLogger(log),
		disputeservice.WithPublisher(bus),
	)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(coordinator, policy,
		scheduler.WithInterval(cfg.Scheduler.Interval),
		scheduler.WithLogger(log),
		scheduler.WithPublisher(bus),
		scheduler.WithMetrics(schedulermetrics.New(reg)),
		scheduler.WithTracer(otel.Tracer("twocheck/scheduler")),
		scheduler.WithDisputeOpener(disputes.OpenAutomatic),
		scheduler.WithSweeper("dispute_grace", func(ctx context.Context, now time.Time) error {
			_, err := disputes.Sweep(ctx, now)
			return err
		}),
	)
	if err != nil {
		return err
	}

	auditPub := auditpublisher.NewPublisher(stores.audit,
		auditpublisher.WithAsyncBuffer(4096),
		auditpublisher.WithLogger(log),
	)
	defer auditPub.Close()
	recorder, err := audit.New(auditPub, audit.WithLogger(log))
	if err != nil {
		return err
	}

	dispatcher := notification.NewDispatcher(notifier,
		notification.WithLogger(log),
		notification.WithRegisterer(reg),
	)
	notifications := events.NewQueue("notification", notificationQueueSize, dispatcher.HandleEvent,
		events.WithQueueLogger(log),
	)
	defer notifications.Close()

	// Subscription order is delivery order: the scheduler's working set must
	// see a transition before anything reacting to it.
	bus.Subscribe("scheduler", sched.HandleEvent, events.KindTransition)
	bus.Subscribe("trust", trust.HandleEvent, events.KindTransition, events.KindConfirmation, events.KindDisputeResolved)
	bus.Subscribe("audit", recorder.HandleEvent, audit.Kinds()...)
	bus.Subscribe("notification", notifications.Handle,
		events.KindReminder,
		events.KindStopTriggered,
		events.KindStopResumed,
		events.KindDisputeOpened,
	)

	srv := httpserver.New(cfg.Server.Addr, httpserver.NewOpsRouter(reg, infra.Checks()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting ops listener", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	log.Info("coordinator running",
		"postgres", infra.db != nil,
		"redis", infra.redis != nil,
		"kafka", infra.kafka != nil,
	)
	return g.Wait()
}
