package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	disputestore "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/dispute/store"
	emergencystore "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/store"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/ledger"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/notification"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/config"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/httpserver"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/kafka"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/postgres"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/redis"
	txstore "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/store"
	truststore "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/store"
	audit "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit"
	auditmemory "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit/store/memory"
	auditpostgres "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit/store/postgres"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/circuit"
)

// infra holds the optional backing services. Each is nil when unconfigured.
type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kafka.Producer
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	in.db = db

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.redis = rc

	producer, err := kafka.NewProducer(cfg.Kafka, kafka.WithLogger(log))
	if err != nil {
		in.Close()
		return nil, err
	}
	in.kafka = producer
	if producer != nil {
		if err := producer.EnsureTopics(ctx, 3, 1, cfg.Kafka.LedgerTopic, cfg.Kafka.NotificationTopic); err != nil {
			in.Close()
			return nil, err
		}
	}
	return in, nil
}

// Checks feeds the readiness endpoint.
func (in *infra) Checks() map[string]httpserver.Check {
	checks := map[string]httpserver.Check{}
	if in.db != nil {
		checks["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.kafka != nil {
		checks["kafka"] = in.kafka.Health
	}
	return checks
}

func (in *infra) Close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}

type storeSet struct {
	transactions txstore.Store
	trust        truststore.Store
	disputes     disputestore.Store
	stops        emergencystore.Store
	audit        audit.Store
}

// buildStores picks Postgres for durable records and Redis for the stop
// index when configured, in-memory stores otherwise.
func buildStores(ctx context.Context, in *infra, log *slog.Logger) (storeSet, error) {
	set := storeSet{
		transactions: txstore.NewInMemory(),
		trust:        truststore.NewInMemory(),
		disputes:     disputestore.NewInMemory(),
		stops:        emergencystore.NewInMemory(),
		audit:        auditmemory.NewInMemoryStore(),
	}
	if in.db != nil {
		if err := postgres.Migrate(ctx, in.db,
			txstore.Schema,
			truststore.Schema,
			disputestore.Schema,
			auditpostgres.Schema,
		); err != nil {
			return storeSet{}, fmt.Errorf("migrate: %w", err)
		}
		set.transactions = txstore.NewPostgres(in.db)
		set.trust = truststore.NewPostgres(in.db)
		set.disputes = disputestore.NewPostgres(in.db)
		set.audit = auditpostgres.New(in.db)
	} else {
		log.Warn("DATABASE_URL not set, records are kept in memory")
	}
	if in.redis != nil {
		set.stops = emergencystore.NewRedis(in.redis.Client)
	}
	return set, nil
}

// collaborators returns the ledger writer and notifier: Kafka-backed when
// brokers are configured, log-backed otherwise. Notifications fall back to the
// log while the broker keeps failing.
func collaborators(in *infra, cfg config.Config, log *slog.Logger) (ledger.Writer, notification.Notifier, error) {
	if in.kafka == nil {
		return ledger.NewLogWriter(log), notification.NewLogNotifier(log), nil
	}
	writer, err := ledger.NewKafkaWriter(in.kafka, cfg.Kafka.LedgerTopic)
	if err != nil {
		return nil, nil, err
	}
	kafkaNotifier, err := notification.NewKafkaNotifier(in.kafka, cfg.Kafka.NotificationTopic)
	if err != nil {
		return nil, nil, err
	}
	notifier, err := notification.NewFallbackNotifier(kafkaNotifier, notification.NewLogNotifier(log), circuit.New("notification"), log)
	if err != nil {
		return nil, nil, err
	}
	return writer, notifier, nil
}
