package orders

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrValidation covers malformed input and disallowed status transitions.
	ErrValidation = errors.New("orders: validation failed")
	// ErrReference indicates a referenced party or product does not exist.
	ErrReference = errors.New("orders: referenced entity not found")
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("orders: document not found")
	// ErrInsufficientStock is matched by every *InsufficientStockError.
	ErrInsufficientStock = errors.New("orders: insufficient stock")
	// ErrConflict indicates the document cannot change in its current state.
	ErrConflict = errors.New("orders: conflict")
	// ErrPersistence wraps storage failures. The transaction has been rolled back.
	ErrPersistence = errors.New("orders: persistence failure")

	// ErrInvalidTransition is returned for status changes outside the transition table.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrValidation)
	// ErrUnknownProduct is the item-level ErrReference: an item names a missing product.
	ErrUnknownProduct = fmt.Errorf("%w: product not found", ErrReference)
	// ErrDuplicateNumber signals a document number collision at insert time.
	ErrDuplicateNumber = fmt.Errorf("%w: duplicate document number", ErrPersistence)
)

// InsufficientStockError reports the first product whose stock cannot cover a decrement.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Name      string
	Available int
	Required  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Not enough stock for product %s. Available: %d, Required: %d", e.Name, e.Available, e.Required)
}

// Is lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func isDomainError(err error) bool {
	for _, target := range []error{ErrValidation, ErrReference, ErrNotFound, ErrInsufficientStock, ErrConflict, ErrPersistence} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
