// Package orders implements the sale and purchase document lifecycle: totals,
// numbering, status transitions and the stock movements they imply.
package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distinguishes the two document types sharing this lifecycle.
type Kind string

const (
	// KindSale documents decrement stock when completed.
	KindSale Kind = "sale"
	// KindPurchase documents increment stock when received.
	KindPurchase Kind = "purchase"
)

// Status is a document state. Spelling is kind specific.
type Status string

const (
	SalePending   Status = "pending"
	SaleCompleted Status = "completed"
	SaleCancelled Status = "cancelled"

	PurchasePending   Status = "PENDING"
	PurchasePartial   Status = "PARTIAL"
	PurchaseReceived  Status = "RECEIVED"
	PurchaseCancelled Status = "CANCELLED"
)

var kindStatuses = map[Kind][]Status{
	KindSale:     {SalePending, SaleCompleted, SaleCancelled},
	KindPurchase: {PurchasePending, PurchasePartial, PurchaseReceived, PurchaseCancelled},
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindStatuses[k]
	return ok
}

// DefaultStatus is the state new documents start in.
func (k Kind) DefaultStatus() Status {
	if k == KindPurchase {
		return PurchasePending
	}
	return SalePending
}

// Settles reports whether documents of kind k in status s have moved stock.
func (k Kind) Settles(s Status) bool {
	switch k {
	case KindSale:
		return s == SaleCompleted
	case KindPurchase:
		return s == PurchaseReceived
	}
	return false
}

// ParseStatus matches raw case-insensitively against the statuses of k and
// returns the canonical spelling.
func (k Kind) ParseStatus(raw string) (Status, error) {
	trimmed := strings.TrimSpace(raw)
	for _, s := range kindStatuses[k] {
		if strings.EqualFold(string(s), trimmed) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown %s status %q", ErrValidation, k, raw)
}

// stockSign is the direction a settled document moves stock.
func (k Kind) stockSign() int {
	if k == KindPurchase {
		return 1
	}
	return -1
}

func (k Kind) partyLabel() string {
	if k == KindPurchase {
		return "supplier"
	}
	return "customer"
}

// Document is a sale or purchase with its line items.
type Document struct {
	ID        uuid.UUID
	Kind      Kind
	Number    string
	PartyID   uuid.UUID
	UserID    uuid.UUID
	Date      time.Time
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	Status    Status
	Notes     string
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is one priced line of a document.
type Item struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

// ItemInput is a requested line. A nil UnitPrice takes the product's reference price.
type ItemInput struct {
	ProductID uuid.UUID        `validate:"required"`
	Quantity  int              `validate:"gt=0"`
	UnitPrice *decimal.Decimal `validate:"-"`
}

// CreateInput carries the fields of a new document.
type CreateInput struct {
	PartyID        uuid.UUID `validate:"required"`
	UserID         uuid.UUID
	Date           time.Time
	Notes          string      `validate:"max=2000"`
	Status         string      `validate:"omitempty,max=32"`
	Items          []ItemInput `validate:"required,min=1,dive"`
	IdempotencyKey string      `validate:"omitempty,max=128"`
}

// Patch is a partial update. Nil fields are left untouched; a nil or empty Items
// slice keeps the existing lines. A pointer to "" clears Notes.
type Patch struct {
	PartyID *uuid.UUID
	Date    *time.Time
	Notes   *string     `validate:"omitempty,max=2000"`
	Status  *string     `validate:"omitempty,max=32"`
	Items   []ItemInput `validate:"omitempty,dive"`
}

// ListFilter narrows document listings.
type ListFilter struct {
	Search  string
	PartyID uuid.UUID
	Status  Status
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}
