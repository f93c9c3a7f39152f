// Package notification turns reminder and emergency events into outbound
// notifications. Delivery is best effort: failures are logged and counted,
// never returned to the transition that caused them.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// Notification is the collaborator contract.
type Notification struct {
	Kind          string            `json:"kind"`
	TransactionID string            `json:"transaction_id,omitempty"`
	StopID        string            `json:"stop_id,omitempty"`
	Recipients    []domain.PartyID  `json:"recipients"`
	Urgency       events.Urgency    `json:"urgency"`
	Payload       map[string]string `json:"payload,omitempty"`
	At            time.Time         `json:"at"`
}

// Key orders notifications for one subject on one partition.
func (n Notification) Key() string {
	if n.TransactionID != "" {
		return n.TransactionID
	}
	return n.StopID
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Producer publishes keyed records; *kafka.Producer satisfies it.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// KafkaNotifier hands notifications to delivery channels through a topic.
type KafkaNotifier struct {
	producer Producer
	topic    string
}

func NewKafkaNotifier(producer Producer, topic string) (*KafkaNotifier, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	if topic == "" {
		return nil, errors.New("notification topic is required")
	}
	return &KafkaNotifier{producer: producer, topic: topic}, nil
}

func (k *KafkaNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	headers := map[string]string{"kind": n.Kind, "urgency": string(n.Urgency)}
	if err := k.producer.Publish(ctx, k.topic, n.Key(), payload, headers); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.logger.InfoContext(ctx, "notification",
		"kind", n.Kind,
		"transaction_id", n.TransactionID,
		"stop_id", n.StopID,
		"recipients", n.Recipients,
		"urgency", string(n.Urgency),
	)
	return nil
}
