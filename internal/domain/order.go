package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusDispatched OrderStatus = "DISPATCHED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusDispatched, OrderStatusCancelled},
	OrderStatusDispatched: {OrderStatusDelivered},
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether an order may move from one status to the next.
func CanTransitionTo(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

const (
	PaymentCreditCard     = "credit_card"
	PaymentCashOnDelivery = "cash_on_delivery"
)

// OrderLine is a cart line frozen at checkout time. TotalPrice includes GST.
type OrderLine struct {
	ProductRef  string          `json:"product_ref"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type PartyDetails struct {
	PartyName string `json:"party_name"`
	ContactNo string `json:"contact_no"`
	Email     string `json:"email"`
	Address   string `json:"address"`
}

type ShippingDetails struct {
	Party   PartyDetails `json:"party"`
	Country string       `json:"country"`
	State   string       `json:"state"`
	City    string       `json:"city"`
	ZipCode string       `json:"zip_code"`
}

// Order is created from a cart by proceeding to checkout and stays PENDING
// until it is placed with shipping details.
type Order struct {
	ID            string           `json:"id"`
	CartID        string           `json:"cart_id"`
	UserID        string           `json:"user_id,omitempty"`
	Status        OrderStatus      `json:"status"`
	Items         []OrderLine      `json:"items"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	Shipping      *ShippingDetails `json:"shipping,omitempty"`
	PaymentMethod string           `json:"payment_method,omitempty"`
	PaymentID     string           `json:"payment_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type PlaceOrderRequest struct {
	Shipping      ShippingDetails `json:"shipping"`
	PaymentMethod string          `json:"payment_method"`
}

// Placement is the answer to placing an order. PaymentID stays empty for
// cash on delivery.
type Placement struct {
	OrderID   string      `json:"order_id"`
	PaymentID string      `json:"payment_id,omitempty"`
	Status    OrderStatus `json:"status"`
}
