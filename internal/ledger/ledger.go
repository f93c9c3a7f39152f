// Package ledger records validated transactions on the downstream ledger.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// Writer is the ledger collaborator. Record is invoked once per transaction
// when it reaches its final state; retries are driven by the caller.
type Writer interface {
	Record(ctx context.Context, txID domain.TransactionID, finalState models.State, metadata map[string]string) error
}

// Entry is the wire form published to the ledger topic.
type Entry struct {
	TransactionID string            `json:"transaction_id"`
	FinalState    string            `json:"final_state"`
	Metadata      map[string]string `json:"metadata"`
	RecordedAt    time.Time         `json:"recorded_at"`
}

// Producer publishes keyed records; *kafka.Producer satisfies it.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// KafkaWriter publishes ledger entries keyed by transaction id, so the ledger
// consumer sees each transaction's records in order.
type KafkaWriter struct {
	producer Producer
	topic    string
	now      func() time.Time
}

func NewKafkaWriter(producer Producer, topic string) (*KafkaWriter, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	if topic == "" {
		return nil, errors.New("ledger topic is required")
	}
	return &KafkaWriter{producer: producer, topic: topic, now: time.Now}, nil
}

func (w *KafkaWriter) Record(ctx context.Context, txID domain.TransactionID, finalState models.State, metadata map[string]string) error {
	payload, err := json.Marshal(Entry{
		TransactionID: txID.String(),
		FinalState:    string(finalState),
		Metadata:      metadata,
		RecordedAt:    w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	headers := map[string]string{"final_state": string(finalState)}
	if err := w.producer.Publish(ctx, w.topic, txID.String(), payload, headers); err != nil {
		return fmt.Errorf("publish ledger entry: %w", err)
	}
	return nil
}

// LogWriter only logs. It stands in for the ledger in development.
type LogWriter struct {
	logger *slog.Logger
}

func NewLogWriter(logger *slog.Logger) *LogWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Record(ctx context.Context, txID domain.TransactionID, finalState models.State, metadata map[string]string) error {
	w.logger.InfoContext(ctx, "ledger record",
		"transaction_id", txID.String(),
		"final_state", string(finalState),
		"metadata", metadata,
	)
	return nil
}
