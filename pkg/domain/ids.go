package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain-errors"
)

// Typed identifiers. Distinct types keep a stop id from being passed where a
// transaction id is expected; construct them with the Parse functions at
// trust boundaries.
type (
	TransactionID uuid.UUID
	StopID        uuid.UUID
	DisputeID     uuid.UUID
)

// PartyID identifies an organization registered on the ledger (brand,
// manufacturer, distributor, retailer). Ledger identities are opaque strings.
type PartyID string

const maxPartyIDLength = 128

func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }
func NewStopID() StopID               { return StopID(uuid.New()) }
func NewDisputeID() DisputeID         { return DisputeID(uuid.New()) }

func (id TransactionID) String() string { return uuid.UUID(id).String() }
func (id StopID) String() string        { return uuid.UUID(id).String() }
func (id DisputeID) String() string     { return uuid.UUID(id).String() }

func (id TransactionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id StopID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id DisputeID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

func (p PartyID) String() string { return string(p) }

func parseUUID(kind, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, kind+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, kind+" must not be nil")
	}
	return parsed, nil
}

// ParseTransactionID parses a non-nil UUID transaction id.
func ParseTransactionID(raw string) (TransactionID, error) {
	id, err := parseUUID("transaction id", raw)
	return TransactionID(id), err
}

// ParseStopID parses a non-nil UUID emergency stop id.
func ParseStopID(raw string) (StopID, error) {
	id, err := parseUUID("stop id", raw)
	return StopID(id), err
}

// ParseDisputeID parses a non-nil UUID dispute id.
func ParseDisputeID(raw string) (DisputeID, error) {
	id, err := parseUUID("dispute id", raw)
	return DisputeID(id), err
}

// ParsePartyID validates a ledger organization identity: non-empty, bounded,
// printable, no surrounding whitespace.
func ParsePartyID(raw string) (PartyID, error) {
	if strings.TrimSpace(raw) == "" {
		return "", dErrors.New(dErrors.CodeValidation, "party id is required")
	}
	if raw != strings.TrimSpace(raw) {
		return "", dErrors.New(dErrors.CodeValidation, "party id must not have surrounding whitespace")
	}
	if len(raw) > maxPartyIDLength {
		return "", dErrors.New(dErrors.CodeValidation, "party id is too long")
	}
	for _, r := range raw {
		if r < 0x20 || r == 0x7f {
			return "", dErrors.New(dErrors.CodeValidation, "party id contains control characters")
		}
	}
	return PartyID(raw), nil
}
