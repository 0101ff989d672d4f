package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const pathOrders = "/orders"

func pathOrder(orderID string) string            { return "/orders/" + orderID }
func pathProceedToCheckout(cartID string) string { return "/orders/proceedToCheckout/" + cartID }
func pathPlaceOrder(orderID string) string       { return "/orders/placeOrder/" + orderID }

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

type wireOrderLine struct {
	ProductID  flexRef             `json:"productId"`
	Quantity   int                 `json:"quantity"`
	Price      decimal.NullDecimal `json:"price"`
	TotalPrice decimal.NullDecimal `json:"totalPrice"`
}

type wireOrder struct {
	ID            string          `json:"_id"`
	AltID         string          `json:"id"`
	CartID        flexRef         `json:"cartId"`
	UserID        flexRef         `json:"userId"`
	Status        string          `json:"status"`
	Items         []wireOrderLine `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	AddressID     *wireAddress    `json:"addressId"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentID     string          `json:"paymentId"`
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

type placementData struct {
	PaymentID string `json:"id"`
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
}

func (s *HTTPCartService) ListOrders(ctx context.Context, token string) (Result[[]domain.Order], error) {
	env, status, err := s.call(ctx, http.MethodGet, pathOrders, token, nil)
	if err != nil {
		return Result[[]domain.Order]{}, err
	}
	if !env.ok(status) {
		return Rejected[[]domain.Order](env.message(status, "failed to fetch orders")), nil
	}

	orders := []domain.Order{}
	if isNullJSON(env.Items) {
		return Success(orders), nil
	}
	var wire []wireOrder
	if err := json.Unmarshal(env.Items, &wire); err != nil {
		return Result[[]domain.Order]{}, fmt.Errorf("%w: decode orders: %w", ErrUnexpectedResponse, err)
	}
	for _, wo := range wire {
		orders = append(orders, wo.toDomain())
	}
	return Success(orders), nil
}

func (s *HTTPCartService) GetOrder(ctx context.Context, token, orderID string) (Result[domain.Order], error) {
	if err := checkOrderID(orderID); err != nil {
		return Result[domain.Order]{}, err
	}
	return s.order(ctx, http.MethodGet, pathOrder(orderID), token, nil, "failed to fetch order")
}

func (s *HTTPCartService) ProceedToCheckout(ctx context.Context, token, cartID string) (Result[domain.Order], error) {
	if err := checkCartID(cartID); err != nil {
		return Result[domain.Order]{}, err
	}
	return s.order(ctx, http.MethodPost, pathProceedToCheckout(cartID), token, struct{}{}, "failed to proceed to checkout")
}

func (s *HTTPCartService) PlaceOrder(ctx context.Context, token, orderID string, req domain.PlaceOrderRequest) (Result[domain.Placement], error) {
	if err := checkOrderID(orderID); err != nil {
		return Result[domain.Placement]{}, err
	}
	sh := req.Shipping
	body := placeOrderRequest{
		PartyDetails: wireParty{
			PartyName: sh.Party.PartyName,
			ContactNo: sh.Party.ContactNo,
			Email:     sh.Party.Email,
			Address:   sh.Party.Address,
		},
		Country:       sh.Country,
		State:         sh.State,
		City:          sh.City,
		ZipCode:       sh.ZipCode,
		OrderID:       orderID,
		PaymentMethod: req.PaymentMethod,
	}

	env, status, err := s.call(ctx, http.MethodPost, pathPlaceOrder(orderID), token, body)
	if err != nil {
		return Result[domain.Placement]{}, err
	}
	if !env.ok(status) {
		return Rejected[domain.Placement](env.message(status, "failed to place order")), nil
	}
	var pd placementData
	if !isNullJSON(env.Data) {
		if err := json.Unmarshal(env.Data, &pd); err != nil {
			return Result[domain.Placement]{}, fmt.Errorf("%w: decode placement: %w", ErrUnexpectedResponse, err)
		}
	}
	if pd.OrderID == "" {
		pd.OrderID = orderID
	}
	return Success(domain.Placement{
		OrderID:   pd.OrderID,
		PaymentID: pd.PaymentID,
		Status:    domain.OrderStatus(pd.Status),
	}), nil
}

func (s *HTTPCartService) order(ctx context.Context, method, path, token string, body any, fallback string) (Result[domain.Order], error) {
	env, status, err := s.call(ctx, method, path, token, body)
	if err != nil {
		return Result[domain.Order]{}, err
	}
	if !env.ok(status) || isNullJSON(env.Data) {
		return Rejected[domain.Order](env.message(status, fallback)), nil
	}
	var wo wireOrder
	if err := json.Unmarshal(env.Data, &wo); err != nil {
		return Result[domain.Order]{}, fmt.Errorf("%w: decode order: %w", ErrUnexpectedResponse, err)
	}
	return Success(wo.toDomain()), nil
}

func (wo wireOrder) toDomain() domain.Order {
	o := domain.Order{
		ID:            wo.ID,
		CartID:        wo.CartID.ID,
		UserID:        wo.UserID.ID,
		Status:        domain.OrderStatus(wo.Status),
		Items:         make([]domain.OrderLine, 0, len(wo.Items)),
		TotalAmount:   wo.TotalAmount,
		PaymentMethod: wo.PaymentMethod,
		PaymentID:     wo.PaymentID,
		CreatedAt:     wo.CreatedAt,
		UpdatedAt:     wo.UpdatedAt,
	}
	if o.ID == "" {
		o.ID = wo.AltID
	}
	for _, l := range wo.Items {
		unit := l.Price.Decimal
		if !l.Price.Valid && l.ProductID.BasicPrice.Valid {
			unit = l.ProductID.BasicPrice.Decimal
		}
		total := l.TotalPrice.Decimal
		if !l.TotalPrice.Valid {
			total = unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
		}
		o.Items = append(o.Items, domain.OrderLine{
			ProductRef:  l.ProductID.ID,
			ProductName: l.ProductID.Name,
			Quantity:    l.Quantity,
			UnitPrice:   unit,
			TotalPrice:  total,
		})
	}
	if a := wo.AddressID; a != nil {
		o.Shipping = &domain.ShippingDetails{
			Party: domain.PartyDetails{
				PartyName: a.PartyDetails.PartyName,
				ContactNo: a.PartyDetails.ContactNo,
				Email:     a.PartyDetails.Email,
				Address:   a.PartyDetails.Address,
			},
			Country: a.Country,
			State:   a.State,
			City:    a.City,
			ZipCode: a.ZipCode,
		}
	}
	return o
}

func checkOrderID(orderID string) error {
	if orderID == "" || strings.ContainsAny(orderID, "/?#") {
		return fmt.Errorf("%w: %q", ErrInvalidOrderID, orderID)
	}
	return nil
}
