package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// envelope covers every response shape of the cart API. Endpoints disagree
// on the success flag name; either one being true counts as success.
type envelope struct {
	IsSuccess *bool           `json:"isSuccess"`
	Success   *bool           `json:"success"`
	Message   string          `json:"message"`
	Error     json.RawMessage `json:"error"`
	Data      json.RawMessage `json:"data"`
	Items     json.RawMessage `json:"items"`
}

func (e envelope) ok(status int) bool {
	if status < 200 || status >= 300 {
		return false
	}
	return (e.IsSuccess != nil && *e.IsSuccess) || (e.Success != nil && *e.Success)
}

func (e envelope) message(status int, fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	var s string
	if json.Unmarshal(e.Error, &s) == nil && s != "" {
		return s
	}
	if status >= 400 {
		return fmt.Sprintf("%s: %s", fallback, strings.ToLower(http.StatusText(status)))
	}
	return fallback
}

// flexRef decodes a reference that is either a plain id or a populated
// document carrying an _id.
type flexRef struct {
	ID         string
	Name       string
	BasicPrice decimal.NullDecimal
	GSTPercent decimal.NullDecimal
}

type populatedProduct struct {
	ID          string              `json:"_id"`
	ProductName string              `json:"productName"`
	Name        string              `json:"name"`
	BasicPrice  decimal.NullDecimal `json:"basicPrice"`
	HSNNumber   *struct {
		GSTPercentage decimal.NullDecimal `json:"gstPercentage"`
	} `json:"hsnNumber"`
}

func (r *flexRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &r.ID)
	case '{':
		var p populatedProduct
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		r.ID = p.ID
		r.Name = p.ProductName
		if r.Name == "" {
			r.Name = p.Name
		}
		r.BasicPrice = p.BasicPrice
		if p.HSNNumber != nil {
			r.GSTPercent = p.HSNNumber.GSTPercentage
		}
		return nil
	default:
		// numeric ids
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported reference %s", string(data))
		}
		r.ID = n.String()
		return nil
	}
}

type wireProduct struct {
	populatedProduct
	Stock int `json:"stock"`
}

func decodeProduct(data []byte) (domain.Product, error) {
	var wp wireProduct
	if err := json.Unmarshal(data, &wp); err != nil {
		return domain.Product{}, err
	}
	p := domain.Product{ID: wp.ID, Name: wp.ProductName, Stock: wp.Stock, UnitPrice: wp.BasicPrice.Decimal}
	if p.Name == "" {
		p.Name = wp.Name
	}
	if wp.HSNNumber != nil {
		p.GSTPercent = wp.HSNNumber.GSTPercentage
	}
	return p, nil
}

type wireItem struct {
	ProductID flexRef             `json:"productId"`
	Quantity  int                 `json:"quantity"`
	Price     decimal.NullDecimal `json:"price"`
}

type wireCart struct {
	ID     string          `json:"_id"`
	AltID  string          `json:"id"`
	UserID flexRef         `json:"userId"`
	Items  json.RawMessage `json:"items"`
}

// decodeCart converts the server cart into the domain shape. Items that are
// not a JSON array degrade to an empty cart; lines with quantity < 1 are
// dropped; repeated products are merged at the first line's price.
func decodeCart(data []byte, logger *zap.Logger) (domain.Cart, error) {
	var wc wireCart
	if err := json.Unmarshal(data, &wc); err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{ID: wc.ID, UserID: wc.UserID.ID}
	if cart.ID == "" {
		cart.ID = wc.AltID
	}

	items := bytes.TrimSpace(wc.Items)
	if len(items) == 0 || bytes.Equal(items, []byte("null")) {
		cart.Items = []domain.CartItem{}
		return cart, nil
	}
	if items[0] != '[' {
		logger.Warn("cart items is not an array, treating cart as empty", zap.String("cart_id", cart.ID))
		cart.Items = []domain.CartItem{}
		return cart, nil
	}

	var lines []wireItem
	if err := json.Unmarshal(items, &lines); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart items: %w", err)
	}

	cart.Items = make([]domain.CartItem, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.ProductID.ID == "" || l.Quantity < 1 {
			logger.Warn("dropping invalid cart line",
				zap.String("cart_id", cart.ID), zap.String("product_ref", l.ProductID.ID), zap.Int("quantity", l.Quantity))
			continue
		}
		price := decimal.Zero
		switch {
		case l.Price.Valid:
			price = l.Price.Decimal
		case l.ProductID.BasicPrice.Valid:
			price = l.ProductID.BasicPrice.Decimal
		}

		if i, seen := index[l.ProductID.ID]; seen {
			if kept := cart.Items[i].UnitPrice; !kept.Equal(price) {
				// local totals will not match the server's for this cart
				logger.Warn("duplicate cart line with a different price",
					zap.String("cart_id", cart.ID), zap.String("product_ref", l.ProductID.ID),
					zap.String("kept_price", kept.String()), zap.String("dropped_price", price.String()))
			}
			cart.Items[i].Quantity += l.Quantity
			continue
		}

		index[l.ProductID.ID] = len(cart.Items)
		cart.Items = append(cart.Items, domain.CartItem{
			ProductRef:  l.ProductID.ID,
			ProductName: l.ProductID.Name,
			Quantity:    l.Quantity,
			UnitPrice:   price,
			GSTPercent:  l.ProductID.GSTPercent,
		})
	}
	return cart, nil
}
