package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
)

const (
	stopKeyPrefix        = "twocheck:stop:"
	activeStopsKey       = "twocheck:stops:active"
	haltedTxKeyPrefix    = "twocheck:halted:tx:"
	haltedPartyKeyPrefix = "twocheck:halted:party:"
)

// RedisStore shares stops and the halted index between coordinator
// instances. Each halted transaction or party is a set of the stop ids
// holding it; it is halted while the set is non-empty.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type haltedRecord struct {
	TransactionID string    `json:"transaction_id"`
	Sender        string    `json:"sender"`
	Receiver      string    `json:"receiver"`
	WasEscalated  bool      `json:"was_escalated"`
	At            time.Time `json:"at"`
}

type stopRecord struct {
	ID            string         `json:"id"`
	Trigger       string         `json:"trigger"`
	Reason        string         `json:"reason"`
	Actor         string         `json:"actor"`
	Severity      string         `json:"severity"`
	Affected      []string       `json:"affected"`
	Halted        []haltedRecord `json:"halted"`
	HaltedParties []string       `json:"halted_parties"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	ClearedAt     *time.Time     `json:"cleared_at,omitempty"`
}

func (s *RedisStore) Create(ctx context.Context, stop *models.Stop) error {
	return s.write(ctx, stop, false)
}

func (s *RedisStore) Get(ctx context.Context, id domain.StopID) (*models.Stop, error) {
	raw, err := s.client.Get(ctx, stopKeyPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("stop %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get stop: %w", err)
	}
	return decodeStop(raw)
}

func (s *RedisStore) Update(ctx context.Context, stop *models.Stop) error {
	return s.write(ctx, stop, true)
}

// write stores the record and its active-index entry in one MULTI/EXEC.
// The record key is watched so a concurrent create or delete aborts it.
func (s *RedisStore) write(ctx context.Context, stop *models.Stop, exists bool) error {
	payload, err := encodeStop(stop)
	if err != nil {
		return err
	}
	key := stopKeyPrefix + stop.ID.String()
	op := "create stop"
	if exists {
		op = "update stop"
	}
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		switch {
		case exists && n == 0:
			return fmt.Errorf("stop %s: %w", stop.ID, sentinel.ErrNotFound)
		case !exists && n > 0:
			return fmt.Errorf("stop %s: %w", stop.ID, sentinel.ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if stop.IsActive() {
				pipe.SAdd(ctx, activeStopsKey, stop.ID.String())
			} else {
				pipe.SRem(ctx, activeStopsKey, stop.ID.String())
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("stop %s: %w", stop.ID, sentinel.ErrConflict)
	}
	return err
}

func (s *RedisStore) ListActive(ctx context.Context) ([]*models.Stop, error) {
	ids, err := s.client.SMembers(ctx, activeStopsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active stops: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = stopKeyPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load active stops: %w", err)
	}
	out := make([]*models.Stop, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry outlived its record
			continue
		}
		stop, err := decodeStop([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, stop)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RedisStore) MarkHalted(ctx context.Context, stopID domain.StopID, txID domain.TransactionID) error {
	return s.client.SAdd(ctx, haltedTxKeyPrefix+txID.String(), stopID.String()).Err()
}

func (s *RedisStore) UnmarkHalted(ctx context.Context, stopID domain.StopID, txID domain.TransactionID) error {
	return s.client.SRem(ctx, haltedTxKeyPrefix+txID.String(), stopID.String()).Err()
}

func (s *RedisStore) IsHalted(ctx context.Context, txID domain.TransactionID) (bool, error) {
	n, err := s.client.SCard(ctx, haltedTxKeyPrefix+txID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check halted transaction: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) MarkParty(ctx context.Context, stopID domain.StopID, party domain.PartyID) error {
	return s.client.SAdd(ctx, haltedPartyKeyPrefix+string(party), stopID.String()).Err()
}

func (s *RedisStore) UnmarkParty(ctx context.Context, stopID domain.StopID, party domain.PartyID) error {
	return s.client.SRem(ctx, haltedPartyKeyPrefix+string(party), stopID.String()).Err()
}

func (s *RedisStore) IsPartyHalted(ctx context.Context, party domain.PartyID) (bool, error) {
	n, err := s.client.SCard(ctx, haltedPartyKeyPrefix+string(party)).Result()
	if err != nil {
		return false, fmt.Errorf("check halted party: %w", err)
	}
	return n > 0, nil
}

func encodeStop(stop *models.Stop) ([]byte, error) {
	rec := stopRecord{
		ID:        stop.ID.String(),
		Trigger:   string(stop.Trigger),
		Reason:    stop.Reason,
		Actor:     string(stop.Actor),
		Severity:  string(stop.Severity),
		Status:    string(stop.Status),
		CreatedAt: stop.CreatedAt,
		ClearedAt: stop.ClearedAt,
	}
	for _, id := range stop.Affected {
		rec.Affected = append(rec.Affected, id.String())
	}
	for _, h := range stop.Halted {
		rec.Halted = append(rec.Halted, haltedRecord{
			TransactionID: h.TransactionID.String(),
			Sender:        string(h.Sender),
			Receiver:      string(h.Receiver),
			WasEscalated:  h.WasEscalated,
			At:            h.At,
		})
	}
	for _, p := range stop.HaltedParties {
		rec.HaltedParties = append(rec.HaltedParties, string(p))
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal stop: %w", err)
	}
	return payload, nil
}

func decodeStop(raw []byte) (*models.Stop, error) {
	var rec stopRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal stop: %w", err)
	}
	id, err := domain.ParseStopID(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("decode stop id: %w", err)
	}
	stop := &models.Stop{
		ID:        id,
		Trigger:   models.Trigger(rec.Trigger),
		Reason:    rec.Reason,
		Actor:     domain.PartyID(rec.Actor),
		Severity:  models.Severity(rec.Severity),
		Status:    models.Status(rec.Status),
		CreatedAt: rec.CreatedAt.UTC(),
		ClearedAt: rec.ClearedAt,
	}
	for _, raw := range rec.Affected {
		txID, err := domain.ParseTransactionID(raw)
		if err != nil {
			return nil, fmt.Errorf("decode affected id: %w", err)
		}
		stop.Affected = append(stop.Affected, txID)
	}
	for _, h := range rec.Halted {
		txID, err := domain.ParseTransactionID(h.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("decode halted id: %w", err)
		}
		stop.Halted = append(stop.Halted, models.HaltedTransaction{
			TransactionID: txID,
			Sender:        domain.PartyID(h.Sender),
			Receiver:      domain.PartyID(h.Receiver),
			WasEscalated:  h.WasEscalated,
			At:            h.At.UTC(),
		})
	}
	for _, p := range rec.HaltedParties {
		stop.HaltedParties = append(stop.HaltedParties, domain.PartyID(p))
	}
	return stop, nil
}
