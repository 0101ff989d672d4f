package pricing

import (
	"testing"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func item(ref string, qty int, price string) domain.CartItem {
	return domain.CartItem{ProductRef: ref, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func TestCartTotals(t *testing.T) {
	tests := []struct {
		name      string
		items     []domain.CartItem
		wantItems int
		wantPrice string
	}{
		{"nil items", nil, 0, "0"},
		{"empty items", []domain.CartItem{}, 0, "0"},
		{"single line", []domain.CartItem{item("P1", 2, "100")}, 2, "200"},
		{"several lines", []domain.CartItem{item("P1", 2, "100"), item("P2", 3, "19.99")}, 5, "259.97"},
		{"fractional prices stay exact", []domain.CartItem{item("P1", 3, "0.1")}, 3, "0.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CartTotals(tt.items)
			assert.Equal(t, tt.wantItems, got.Items)
			assert.True(t, decimal.RequireFromString(tt.wantPrice).Equal(got.Price), "got %s", got.Price)
		})
	}
}

func TestSummarize_DefaultGST(t *testing.T) {
	s := Summarize([]domain.CartItem{item("P1", 2, "100")})

	assert.Len(t, s.Lines, 1)
	assert.Equal(t, 2, s.TotalItems)
	assert.True(t, decimal.NewFromInt(200).Equal(s.Subtotal))
	assert.True(t, decimal.NewFromInt(36).Equal(s.Tax))
	assert.True(t, decimal.NewFromInt(236).Equal(s.Total))
}

func TestSummarize_ItemGSTAndNoDoubling(t *testing.T) {
	it := item("P1", 1, "50")
	it.GSTPercent = decimal.NewNullDecimal(decimal.NewFromInt(5))

	s := Summarize([]domain.CartItem{it})

	assert.True(t, decimal.RequireFromString("2.5").Equal(s.Tax))
	assert.True(t, decimal.RequireFromString("52.5").Equal(s.Total))
	assert.False(t, decimal.NewFromInt(100).Equal(s.Total), "total must not be price doubled")
}

func TestGSTPercent_ZeroFallsBackToDefault(t *testing.T) {
	it := item("P1", 1, "10")
	it.GSTPercent = decimal.NewNullDecimal(decimal.Zero)

	assert.True(t, DefaultGSTPercent.Equal(GSTPercent(it)))
}

func TestClampQuantity(t *testing.T) {
	assert.Equal(t, 1, ClampQuantity(0, 10))
	assert.Equal(t, 1, ClampQuantity(-4, 10))
	assert.Equal(t, 5, ClampQuantity(5, 10))
	assert.Equal(t, 10, ClampQuantity(15, 10))
	assert.Equal(t, 1, ClampQuantity(3, 0))
}

func TestStepQuantity(t *testing.T) {
	assert.Equal(t, 3, StepQuantity(2, 1, 10))
	assert.Equal(t, 1, StepQuantity(1, -1, 10))
	assert.Equal(t, 4, StepQuantity(4, 1, 4))
}
