package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart is the local view of the server-side cart resource.
// ID stays empty until the first successful fetch.
type Cart struct {
	ID     string     `json:"id"`
	UserID string     `json:"user_id,omitempty"`
	Items  []CartItem `json:"items"`
}

// CartItem is one line of a cart. Quantity is always >= 1; the price is the
// snapshot taken when the item was added.
type CartItem struct {
	ProductRef  string              `json:"product_ref"`
	ProductName string              `json:"product_name,omitempty"`
	Quantity    int                 `json:"quantity"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	GSTPercent  decimal.NullDecimal `json:"gst_percent"`
}

// ItemQuantity is one entry of a batch quantity update.
type ItemQuantity struct {
	ProductRef string `json:"product_ref"`
	Quantity   int    `json:"quantity"`
}

// Product is the catalog view used when adding to the cart from a product page.
type Product struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	UnitPrice  decimal.Decimal     `json:"unit_price"`
	Stock      int                 `json:"stock"`
	GSTPercent decimal.NullDecimal `json:"gst_percent"`
}

// Credentials are the bearer token and user id of the signed in customer.
type Credentials struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Clone returns a deep copy, so snapshots handed to callers never alias store state.
func (c Cart) Clone() Cart {
	out := Cart{ID: c.ID, UserID: c.UserID}
	if c.Items != nil {
		out.Items = make([]CartItem, len(c.Items))
		copy(out.Items, c.Items)
	}
	return out
}

// Item returns the line for productRef.
func (c Cart) Item(productRef string) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ProductRef == productRef {
			return it, true
		}
	}
	return CartItem{}, false
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// CartSnapshot is a cached copy of the last cart the store applied.
type CartSnapshot struct {
	Cart     Cart      `json:"cart"`
	CachedAt time.Time `json:"cached_at"`
}
