package orders

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	purchasePrefix = "COMP"
	salePrefix     = "V"
)

// SequenceStore hands out the next value of a per-(kind, scope) counter. The
// increment must be atomic with respect to concurrent callers and commit with the
// surrounding transaction.
type SequenceStore interface {
	NextSequence(ctx context.Context, kind Kind, scope string) (int64, error)
}

// Numbering assigns human-readable document numbers.
type Numbering struct {
	clock func() time.Time
}

// NewNumbering builds Numbering. A nil clock uses time.Now.
func NewNumbering(clock func() time.Time) *Numbering {
	if clock == nil {
		clock = time.Now
	}
	return &Numbering{clock: clock}
}

// Next reserves and formats the next number of kind k. Sale sequences restart every
// calendar year of the clock; purchases use one global sequence.
func (n *Numbering) Next(ctx context.Context, store SequenceStore, k Kind) (string, error) {
	scope := ScopeKey(k, n.clock())
	seq, err := store.NextSequence(ctx, k, scope)
	if err != nil {
		return "", err
	}
	return FormatNumber(scope, seq), nil
}

// ScopeKey is the counter scope and number prefix, e.g. "COMP" or "V2025".
func ScopeKey(k Kind, at time.Time) string {
	if k == KindPurchase {
		return purchasePrefix
	}
	return fmt.Sprintf("%s%04d", salePrefix, at.Year())
}

// FormatNumber renders scope and seq as SCOPE-NNNNNN. Sequences beyond six digits
// are printed in full.
func FormatNumber(scope string, seq int64) string {
	return fmt.Sprintf("%s-%06d", scope, seq)
}

// ParseSuffix extracts the numeric sequence of number within scope.
func ParseSuffix(scope, number string) (int64, bool) {
	rest, ok := strings.CutPrefix(number, scope+"-")
	if !ok || rest == "" {
		return 0, false
	}
	seq, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}
