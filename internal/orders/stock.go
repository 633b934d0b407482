package orders

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/maelza/maelza-erp/internal/inventory"
)

// StockEffect is the stock consequence of a status transition.
type StockEffect int

const (
	EffectNone StockEffect = iota
	EffectIncrement
	EffectDecrement
)

func (e StockEffect) String() string {
	switch e {
	case EffectIncrement:
		return "increment"
	case EffectDecrement:
		return "decrement"
	}
	return "none"
}

type transition struct {
	from, to Status
}

var transitions = map[Kind]map[transition]StockEffect{
	KindSale: {
		{SalePending, SaleCompleted}: EffectDecrement,
		{SaleCompleted, SalePending}: EffectIncrement,
		{SalePending, SaleCancelled}: EffectNone,
	},
	KindPurchase: {
		{PurchasePending, PurchaseReceived}:  EffectIncrement,
		{PurchasePending, PurchasePartial}:   EffectNone,
		{PurchasePending, PurchaseCancelled}: EffectNone,
		{PurchasePartial, PurchaseReceived}:  EffectIncrement,
		{PurchasePartial, PurchaseCancelled}: EffectNone,
		{PurchaseReceived, PurchasePending}:  EffectDecrement,
	},
}

// Effect looks up the transition from -> to for kind k. Staying in the same status
// is always allowed and has no effect of its own.
func Effect(k Kind, from, to Status) (StockEffect, error) {
	if from == to {
		return EffectNone, nil
	}
	effect, ok := transitions[k][transition{from, to}]
	if !ok {
		return EffectNone, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, k, from, to)
	}
	return effect, nil
}

// ProductDelta is the signed stock change of one product.
type ProductDelta struct {
	ProductID uuid.UUID
	Qty       int
}

// StockDelta is a set of non-zero product deltas sorted by product id.
type StockDelta []ProductDelta

// ProductIDs returns the ids in lock order.
func (d StockDelta) ProductIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(d))
	for i, pd := range d {
		ids[i] = pd.ProductID
	}
	return ids
}

// ComputeDelta nets what the document contributes to stock after the change
// against what it contributed before. A settled sale contributes -qty per item,
// a settled purchase +qty; any other status contributes nothing. Editing items
// of a settled document therefore moves only the difference.
func ComputeDelta(k Kind, oldStatus, newStatus Status, oldItems, newItems []Item) StockDelta {
	net := make(map[uuid.UUID]int)
	for id, qty := range contribution(k, newStatus, newItems) {
		net[id] += qty
	}
	for id, qty := range contribution(k, oldStatus, oldItems) {
		net[id] -= qty
	}
	delta := make(StockDelta, 0, len(net))
	for id, qty := range net {
		if qty != 0 {
			delta = append(delta, ProductDelta{ProductID: id, Qty: qty})
		}
	}
	sort.Slice(delta, func(i, j int) bool {
		return bytes.Compare(delta[i].ProductID[:], delta[j].ProductID[:]) < 0
	})
	return delta
}

func contribution(k Kind, status Status, items []Item) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int)
	if !k.Settles(status) {
		return out
	}
	sign := k.stockSign()
	for _, item := range items {
		out[item.ProductID] += sign * item.Quantity
	}
	return out
}

// StockRef identifies the document a stock change belongs to.
type StockRef struct {
	Kind       Kind
	DocumentID uuid.UUID
	Number     string
}

// StockEngine applies stock deltas under row locks.
type StockEngine struct {
	clock func() time.Time
}

// NewStockEngine builds a StockEngine. A nil clock uses time.Now.
func NewStockEngine(clock func() time.Time) *StockEngine {
	if clock == nil {
		clock = time.Now
	}
	return &StockEngine{clock: clock}
}

// Commit locks every product in delta, verifies no decrement would take stock
// below zero, then writes the new stock and one journal row per product. Nothing
// is written when any check fails. The updated products are returned.
func (e *StockEngine) Commit(ctx context.Context, store inventory.TxStore, delta StockDelta, ref StockRef) ([]inventory.Product, error) {
	if len(delta) == 0 {
		return nil, nil
	}
	locked, err := store.LockProducts(ctx, delta.ProductIDs())
	if err != nil {
		return nil, err
	}
	for _, pd := range delta {
		p, ok := locked[pd.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, pd.ProductID)
		}
		if pd.Qty < 0 && p.Stock+pd.Qty < 0 {
			return nil, &InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Required: -pd.Qty}
		}
	}
	now := e.clock().UTC()
	updated := make([]inventory.Product, 0, len(delta))
	for _, pd := range delta {
		p := locked[pd.ProductID]
		p.Stock += pd.Qty
		if err := store.UpdateProductStock(ctx, p.ID, p.Stock); err != nil {
			return nil, err
		}
		movement := inventory.Movement{
			ID:        uuid.New(),
			ProductID: p.ID,
			Type:      inventory.MovementIn,
			Quantity:  pd.Qty,
			Balance:   p.Stock,
			RefKind:   string(ref.Kind),
			RefID:     ref.DocumentID,
			RefNumber: ref.Number,
			Note:      fmt.Sprintf("%s %s", ref.Kind, ref.Number),
			CreatedAt: now,
		}
		if pd.Qty < 0 {
			movement.Type = inventory.MovementOut
			movement.Quantity = -pd.Qty
		}
		if err := store.InsertMovement(ctx, movement); err != nil {
			return nil, err
		}
		updated = append(updated, p)
	}
	return updated, nil
}
