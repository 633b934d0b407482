package orders

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/maelza/maelza-erp/internal/inventory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func catalogOf(products ...inventory.Product) map[uuid.UUID]inventory.Product {
	out := make(map[uuid.UUID]inventory.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out
}

func testProduct(name string, stock int, cost, sale string) inventory.Product {
	return inventory.Product{
		ID:        uuid.New(),
		Code:      name,
		Name:      name,
		Unit:      "unit",
		CostPrice: dec(cost),
		SalePrice: dec(sale),
		Stock:     stock,
		IsActive:  true,
	}
}

func requireConsistentTotals(t *testing.T, subtotal, tax, total decimal.Decimal, items []Item) {
	t.Helper()
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Total)
	}
	require.True(t, subtotal.Equal(sum), "subtotal %s != sum of items %s", subtotal, sum)
	require.True(t, tax.Equal(subtotal.Mul(TaxRate).Round(2)), "tax %s", tax)
	require.True(t, total.Equal(subtotal.Add(tax)), "total %s", total)
}

func TestComputeTotalsSaleUsesSalePrice(t *testing.T) {
	p := testProduct("P", 10, "60", "100")
	totals, err := ComputeTotals(KindSale, []ItemInput{{ProductID: p.ID, Quantity: 3}}, catalogOf(p))
	require.NoError(t, err)
	require.Equal(t, "300.00", totals.Subtotal.StringFixed(2))
	require.Equal(t, "54.00", totals.Tax.StringFixed(2))
	require.Equal(t, "354.00", totals.Total.StringFixed(2))
	require.True(t, totals.Items[0].UnitPrice.Equal(dec("100")))
	requireConsistentTotals(t, totals.Subtotal, totals.Tax, totals.Total, totals.Items)
}

func TestComputeTotalsPurchaseUsesCostPrice(t *testing.T) {
	p := testProduct("P", 10, "60", "100")
	totals, err := ComputeTotals(KindPurchase, []ItemInput{{ProductID: p.ID, Quantity: 5}}, catalogOf(p))
	require.NoError(t, err)
	require.Equal(t, "300.00", totals.Subtotal.StringFixed(2))
	require.Equal(t, "354.00", totals.Total.StringFixed(2))
}

func TestComputeTotalsExplicitPriceAndRounding(t *testing.T) {
	a := testProduct("A", 0, "1", "1")
	b := testProduct("B", 0, "1", "1")
	totals, err := ComputeTotals(KindSale, []ItemInput{
		{ProductID: a.ID, Quantity: 3, UnitPrice: decPtr("0.33")},
		{ProductID: b.ID, Quantity: 1, UnitPrice: decPtr("5.50")},
	}, catalogOf(a, b))
	require.NoError(t, err)
	require.Equal(t, "0.99", totals.Items[0].Total.StringFixed(2))
	require.Equal(t, a.ID, totals.Items[0].ProductID)
	require.Equal(t, b.ID, totals.Items[1].ProductID)
	require.Equal(t, "6.49", totals.Subtotal.StringFixed(2))
	require.Equal(t, "1.17", totals.Tax.StringFixed(2))
	require.Equal(t, "7.66", totals.Total.StringFixed(2))
	requireConsistentTotals(t, totals.Subtotal, totals.Tax, totals.Total, totals.Items)
}

func TestComputeTotalsRoundsUnitPriceToStoredPrecision(t *testing.T) {
	p := testProduct("P", 0, "1", "1")
	totals, err := ComputeTotals(KindSale, []ItemInput{{ProductID: p.ID, Quantity: 3, UnitPrice: decPtr("10.555")}}, catalogOf(p))
	require.NoError(t, err)

	item := totals.Items[0]
	require.Equal(t, "10.56", item.UnitPrice.String())
	require.Equal(t, "31.68", item.Total.StringFixed(2))
	stored := item.UnitPrice.Round(moneyPlaces)
	require.True(t, stored.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(moneyPlaces).Equal(item.Total))
	requireConsistentTotals(t, totals.Subtotal, totals.Tax, totals.Total, totals.Items)
}

func TestComputeTotalsZeroPriceAllowed(t *testing.T) {
	p := testProduct("P", 0, "1", "1")
	totals, err := ComputeTotals(KindSale, []ItemInput{{ProductID: p.ID, Quantity: 2, UnitPrice: decPtr("0")}}, catalogOf(p))
	require.NoError(t, err)
	require.True(t, totals.Total.IsZero())
}

func TestComputeTotalsRejectsBadInput(t *testing.T) {
	p := testProduct("P", 0, "1", "1")
	catalog := catalogOf(p)

	_, err := ComputeTotals(KindSale, nil, catalog)
	require.ErrorIs(t, err, ErrValidation)

	_, err = ComputeTotals(KindSale, []ItemInput{{ProductID: uuid.New(), Quantity: 1}}, catalog)
	require.ErrorIs(t, err, ErrReference)
	require.ErrorIs(t, err, ErrUnknownProduct)

	_, err = ComputeTotals(KindSale, []ItemInput{{ProductID: p.ID, Quantity: 0}}, catalog)
	require.ErrorIs(t, err, ErrValidation)

	_, err = ComputeTotals(KindSale, []ItemInput{{ProductID: p.ID, Quantity: -2}}, catalog)
	require.ErrorIs(t, err, ErrValidation)

	_, err = ComputeTotals(KindPurchase, []ItemInput{{ProductID: p.ID, Quantity: 1, UnitPrice: decPtr("-0.01")}}, catalog)
	require.ErrorIs(t, err, ErrValidation)
}
