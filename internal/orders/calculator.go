package orders

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maelza/maelza-erp/internal/inventory"
)

// TaxRate is the flat rate applied to every document subtotal.
var TaxRate = decimal.RequireFromString("0.18")

const moneyPlaces = 2

// Totals is the calculator output: priced items plus document amounts.
type Totals struct {
	Items    []Item
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ReferencePrice is the default unit price of product p for documents of kind k.
func ReferencePrice(k Kind, p inventory.Product) decimal.Decimal {
	if k == KindPurchase {
		return p.CostPrice
	}
	return p.SalePrice
}

// ComputeTotals prices every item and derives subtotal, tax and total. Item order
// is preserved. It performs no I/O.
func ComputeTotals(k Kind, inputs []ItemInput, catalog map[uuid.UUID]inventory.Product) (Totals, error) {
	if len(inputs) == 0 {
		return Totals{}, fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	out := Totals{Items: make([]Item, 0, len(inputs)), Subtotal: decimal.Zero}
	for i, in := range inputs {
		product, ok := catalog[in.ProductID]
		if !ok {
			return Totals{}, fmt.Errorf("%w: %s", ErrUnknownProduct, in.ProductID)
		}
		if in.Quantity <= 0 {
			return Totals{}, fmt.Errorf("%w: item %d quantity must be greater than zero", ErrValidation, i+1)
		}
		price := ReferencePrice(k, product)
		if in.UnitPrice != nil {
			if in.UnitPrice.IsNegative() {
				return Totals{}, fmt.Errorf("%w: item %d unit price must not be negative", ErrValidation, i+1)
			}
			price = *in.UnitPrice
		}
		// Prices are stored with two decimals; the line total must use the stored value.
		price = price.Round(moneyPlaces)
		line := price.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(moneyPlaces)
		out.Items = append(out.Items, Item{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: price,
			Total:     line,
		})
		out.Subtotal = out.Subtotal.Add(line)
	}
	out.Tax = out.Subtotal.Mul(TaxRate).Round(moneyPlaces)
	out.Total = out.Subtotal.Add(out.Tax)
	return out, nil
}

func productIDs(inputs []ItemInput) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(inputs))
	ids := make([]uuid.UUID, 0, len(inputs))
	for _, in := range inputs {
		if _, ok := seen[in.ProductID]; ok {
			continue
		}
		seen[in.ProductID] = struct{}{}
		ids = append(ids, in.ProductID)
	}
	return ids
}
