// Package pricing holds the cart arithmetic shared by every place that shows
// money: derived totals, GST and stock-bound quantities. All functions are pure.
package pricing

import (
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Totals are the derived cart totals.
type Totals struct {
	Items int             `json:"total_items"`
	Price decimal.Decimal `json:"total_price"`
}

// CartTotals computes totalItems = Σ quantity and totalPrice = Σ unitPrice×quantity.
// A nil or empty item list yields zero totals.
func CartTotals(items []domain.CartItem) Totals {
	t := Totals{Price: decimal.Zero}
	for _, it := range items {
		t.Items += it.Quantity
		t.Price = t.Price.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return t
}

// LineSubtotal is unitPrice×quantity for one item.
func LineSubtotal(item domain.CartItem) decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}
