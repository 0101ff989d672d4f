package backend

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type wireOrderProduct struct {
	ID          string `json:"_id"`
	ProductName string `json:"productName"`
}

type wireOrderLine struct {
	ProductID  wireOrderProduct `json:"productId"`
	Quantity   int              `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	TotalPrice decimal.Decimal  `json:"totalPrice"`
}

type wireParty struct {
	PartyName string `json:"partyName"`
	ContactNo string `json:"contactNo"`
	Email     string `json:"email"`
	Address   string `json:"address"`
}

type wireAddress struct {
	PartyDetails wireParty `json:"partyDetails"`
	Country      string    `json:"country"`
	State        string    `json:"state"`
	City         string    `json:"city"`
	ZipCode      string    `json:"zipCode"`
}

// wireOrder carries both _id and id: checkout reads the former, order
// history the latter.
type wireOrder struct {
	ID            string          `json:"_id"`
	AltID         string          `json:"id"`
	CartID        string          `json:"cartId"`
	UserID        string          `json:"userId"`
	Status        string          `json:"status"`
	Items         []wireOrderLine `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	AddressID     *wireAddress    `json:"addressId,omitempty"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	PaymentID     string          `json:"paymentId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type placeOrderRequest struct {
	PartyDetails  wireParty `json:"partyDetails"`
	Country       string    `json:"country"`
	State         string    `json:"state"`
	City          string    `json:"city"`
	ZipCode       string    `json:"zipCode"`
	OrderID       string    `json:"orderId"`
	PaymentMethod string    `json:"paymentMethod"`
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.store.Orders(userID(r.Context()))
	items := make([]wireOrder, 0, len(orders))
	for _, o := range orders {
		items = append(items, toWireOrder(o))
	}
	respondJSON(w, http.StatusOK, map[string]any{"isSuccess": true, "items": items})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.store.Order(userID(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		respondJSON(w, statusFor(err), map[string]any{"isSuccess": false, "message": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"isSuccess": true, "data": toWireOrder(o)})
}

func (h *Handler) ProceedToCheckout(w http.ResponseWriter, r *http.Request) {
	o, err := h.store.ProceedToCheckout(userID(r.Context()), chi.URLParam(r, "cartID"))
	if err != nil {
		respondJSON(w, statusFor(err), map[string]any{"isSuccess": false, "message": err.Error()})
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"isSuccess": true, "message": "Order created", "data": toWireOrder(o)})
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"isSuccess": false, "message": "invalid JSON body"})
		return
	}
	orderID := chi.URLParam(r, "orderID")
	if req.OrderID != "" && req.OrderID != orderID {
		respondJSON(w, http.StatusBadRequest, map[string]any{"isSuccess": false, "message": "orderId does not match the path"})
		return
	}

	placed, err := h.store.PlaceOrder(userID(r.Context()), orderID, domain.PlaceOrderRequest{
		Shipping: domain.ShippingDetails{
			Party: domain.PartyDetails{
				PartyName: req.PartyDetails.PartyName,
				ContactNo: req.PartyDetails.ContactNo,
				Email:     req.PartyDetails.Email,
				Address:   req.PartyDetails.Address,
			},
			Country: req.Country,
			State:   req.State,
			City:    req.City,
			ZipCode: req.ZipCode,
		},
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		respondJSON(w, statusFor(err), map[string]any{"isSuccess": false, "message": err.Error()})
		return
	}
	h.logger.Info("order placed",
		zap.String("order_id", placed.OrderID), zap.String("user_id", userID(r.Context())))
	respondJSON(w, http.StatusOK, map[string]any{
		"isSuccess": true,
		"message":   "Order placed successfully",
		"data":      map[string]string{"id": placed.PaymentID, "orderId": placed.OrderID, "status": string(placed.Status)},
	})
}

func toWireOrder(o domain.Order) wireOrder {
	out := wireOrder{
		ID:            o.ID,
		AltID:         o.ID,
		CartID:        o.CartID,
		UserID:        o.UserID,
		Status:        string(o.Status),
		Items:         make([]wireOrderLine, 0, len(o.Items)),
		TotalAmount:   o.TotalAmount,
		PaymentMethod: o.PaymentMethod,
		PaymentID:     o.PaymentID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, l := range o.Items {
		out.Items = append(out.Items, wireOrderLine{
			ProductID:  wireOrderProduct{ID: l.ProductRef, ProductName: l.ProductName},
			Quantity:   l.Quantity,
			Price:      l.UnitPrice,
			TotalPrice: l.TotalPrice,
		})
	}
	if sh := o.Shipping; sh != nil {
		out.AddressID = &wireAddress{
			PartyDetails: wireParty{
				PartyName: sh.Party.PartyName,
				ContactNo: sh.Party.ContactNo,
				Email:     sh.Party.Email,
				Address:   sh.Party.Address,
			},
			Country: sh.Country,
			State:   sh.State,
			City:    sh.City,
			ZipCode: sh.ZipCode,
		}
	}
	return out
}
