package timeout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
)

// Matcher decides whether a timeout category applies to a transaction.
type Matcher func(*models.Transaction) bool

type operator string

const (
	opGT operator = ">"
	opGE operator = ">="
	opLT operator = "<"
	opLE operator = "<="
	opEQ operator = "=="
	opNE operator = "!="
)

// ParsePredicate compiles "<field> <op> <literal>". Fields are value, sender,
// receiver, item and metadata.<key>. value compares numerically and accepts
// every operator; the string fields accept only == and !=.
func ParsePredicate(expr string) (Matcher, error) {
	parts := strings.Fields(expr)
	if len(parts) < 3 {
		return nil, fmt.Errorf("predicate %q: want \"<field> <op> <literal>\"", expr)
	}
	field, op := parts[0], operator(parts[1])
	literal := strings.Trim(strings.Join(parts[2:], " "), `"'`)

	switch op {
	case opGT, opGE, opLT, opLE, opEQ, opNE:
	default:
		return nil, fmt.Errorf("predicate %q: unknown operator %q", expr, op)
	}

	if field == "value" {
		want, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil, fmt.Errorf("predicate %q: value literal must be numeric", expr)
		}
		return func(t *models.Transaction) bool { return compareFloat(t.Value, op, want) }, nil
	}

	var get func(*models.Transaction) string
	switch {
	case field == "sender":
		get = func(t *models.Transaction) string { return string(t.Sender) }
	case field == "receiver":
		get = func(t *models.Transaction) string { return string(t.Receiver) }
	case field == "item":
		get = func(t *models.Transaction) string { return t.ItemRef }
	case strings.HasPrefix(field, "metadata.") && len(field) > len("metadata."):
		key := strings.TrimPrefix(field, "metadata.")
		get = func(t *models.Transaction) string { return t.Metadata[key] }
	default:
		return nil, fmt.Errorf("predicate %q: unknown field %q", expr, field)
	}
	if op != opEQ && op != opNE {
		return nil, fmt.Errorf("predicate %q: %s supports only == and !=", expr, field)
	}
	return func(t *models.Transaction) bool {
		eq := get(t) == literal
		if op == opEQ {
			return eq
		}
		return !eq
	}, nil
}

func compareFloat(got float64, op operator, want float64) bool {
	switch op {
	case opGT:
		return got > want
	case opGE:
		return got >= want
	case opLT:
		return got < want
	case opLE:
		return got <= want
	case opEQ:
		return got == want
	case opNE:
		return got != want
	}
	return false
}

// ValueAbove is the typed form of "value > limit".
func ValueAbove(limit float64) Matcher {
	return func(t *models.Transaction) bool { return t.Value > limit }
}
