package pricing

import (
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultGSTPercent applies to items whose product carries no GST rate.
var DefaultGSTPercent = decimal.NewFromInt(18)

var hundred = decimal.NewFromInt(100)

// Line is the priced view of one cart item.
type Line struct {
	ProductRef string          `json:"product_ref"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	GSTPercent decimal.Decimal `json:"gst_percent"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
}

// Summary is the priced view of a whole cart.
type Summary struct {
	Lines      []Line          `json:"lines"`
	TotalItems int             `json:"total_items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
}

// GSTPercent returns the rate for item, falling back to DefaultGSTPercent
// when the rate is absent or zero.
func GSTPercent(item domain.CartItem) decimal.Decimal {
	if item.GSTPercent.Valid && item.GSTPercent.Decimal.IsPositive() {
		return item.GSTPercent.Decimal
	}
	return DefaultGSTPercent
}

// LineTax is subtotal × gst / 100, rounded to cents.
func LineTax(item domain.CartItem) decimal.Decimal {
	return LineSubtotal(item).Mul(GSTPercent(item)).Div(hundred).Round(2)
}

// PriceLine prices a single item: subtotal plus GST.
func PriceLine(item domain.CartItem) Line {
	sub := LineSubtotal(item)
	tax := LineTax(item)
	return Line{
		ProductRef: item.ProductRef,
		Quantity:   item.Quantity,
		UnitPrice:  item.UnitPrice,
		Subtotal:   sub,
		GSTPercent: GSTPercent(item),
		Tax:        tax,
		Total:      sub.Add(tax),
	}
}

// Summarize prices every line and sums them. Totals are the sum of the
// rounded line values so the displayed lines always add up.
func Summarize(items []domain.CartItem) Summary {
	s := Summary{
		Lines:    make([]Line, 0, len(items)),
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		Total:    decimal.Zero,
	}
	for _, it := range items {
		l := PriceLine(it)
		s.Lines = append(s.Lines, l)
		s.TotalItems += l.Quantity
		s.Subtotal = s.Subtotal.Add(l.Subtotal)
		s.Tax = s.Tax.Add(l.Tax)
		s.Total = s.Total.Add(l.Total)
	}
	return s
}
