package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidOrder wraps every payload validation failure
var ErrInvalidOrder = errors.New("invalid order")

// OrderItem is one line of an order submission
type OrderItem struct {
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	ProductImage string          `json:"productImage,omitempty"`
	VariantID    string          `json:"variantId,omitempty"`
	VariantName  string          `json:"variantName,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
}

// PaymentMethodRef carries only the payment type tag
type PaymentMethodRef struct {
	Type models.PaymentType `json:"type"`
}

// CreateOrderRequest is the order placement payload
type CreateOrderRequest struct {
	Items           []OrderItem            `json:"items"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   PaymentMethodRef       `json:"paymentMethod"`
	OrderNotes      string                 `json:"orderNotes,omitempty"`
	Summary         models.OrderSummary    `json:"summary"`
}

// Order is the order as returned by the order service
type Order struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"userId"`
	Items           []OrderItem            `json:"items"`
	Summary         models.OrderSummary    `json:"summary"`
	Total           decimal.Decimal        `json:"total"`
	Status          string                 `json:"status"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   PaymentMethodRef       `json:"paymentMethod"`
	OrderNotes      string                 `json:"orderNotes,omitempty"`
	CreatedAt       string                 `json:"createdAt"`
	UpdatedAt       string                 `json:"updatedAt"`
}

// OrderResponse is the order placement response
type OrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Order   *Order `json:"order,omitempty"`
	Message string `json:"message,omitempty"`
}

// ListOrdersFilter narrows ListOrders
type ListOrdersFilter struct {
	Status string
	Limit  int
}

// OrderClient places and reads orders on the order service
type OrderClient struct {
	base
}

// NewOrderClient creates an order client. nil logger disables logging.
func NewOrderClient(baseURL string, timeout time.Duration, logger *zap.Logger) *OrderClient {
	return &OrderClient{base: newBase(baseURL, timeout, logger)}
}

// PlaceOrder validates and submits req. Any failure is returned as an error
// whose message is fit to show the customer.
func (c *OrderClient) PlaceOrder(ctx context.Context, req CreateOrderRequest, idempotencyKey string) (*OrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderClient.PlaceOrder")
	defer span.End()

	if err := ValidateOrder(req); err != nil {
		c.logger.Warn("Rejected invalid order payload", zap.Error(err))
		return nil, err
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	var out OrderResponse
	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/api/v1/orders",
		body:    req,
		headers: map[string]string{"Idempotency-Key": idempotencyKey},
	}, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Message != "" {
			return nil, err
		}
		c.logger.Error("Order placement failed", zap.Error(err))
		return nil, &StatusError{StatusCode: statusOf(err), Message: "Failed to place order"}
	}
	if !out.Success || out.OrderID == "" {
		msg := out.Message
		if msg == "" {
			msg = "Failed to place order"
		}
		return nil, &StatusError{StatusCode: http.StatusOK, Message: msg}
	}

	c.logger.Info("Order placed", zap.String("order_id", out.OrderID))
	return &out, nil
}

// GetOrder fetches one order by id
func (c *OrderClient) GetOrder(ctx context.Context, id string) (*Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderClient.GetOrder")
	defer span.End()

	var order Order
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/orders/" + url.PathEscape(id)}, &order); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &order, nil
}

// ListOrders returns the orders of userID
func (c *OrderClient) ListOrders(ctx context.Context, userID string, filter ListOrdersFilter) ([]Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderClient.ListOrders")
	defer span.End()

	q := url.Values{}
	q.Set("userId", userID)
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	orders := []Order{}
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/orders?" + q.Encode()}, &orders); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// CancelOrder asks the order service to cancel a pending order
func (c *OrderClient) CancelOrder(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "OrderClient.CancelOrder")
	defer span.End()

	_, err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/api/v1/orders/" + url.PathEscape(id) + "/cancel",
		body:   struct{}{},
	}, nil)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	return nil
}

// ValidateOrder checks the payload before it leaves the service
func ValidateOrder(req CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrder)
	}
	for i, item := range req.Items {
		if item.ProductID == "" || item.ProductName == "" || !item.Price.IsPositive() || item.Quantity <= 0 {
			return fmt.Errorf("%w: invalid item at index %d", ErrInvalidOrder, i)
		}
	}

	a := req.ShippingAddress
	if a.FirstName == "" || a.LastName == "" || a.Street == "" || a.City == "" ||
		a.PostalCode == "" || a.Country == "" || a.Phone == "" {
		return fmt.Errorf("%w: order must include a valid shipping address", ErrInvalidOrder)
	}
	if req.PaymentMethod.Type == "" {
		return fmt.Errorf("%w: order must include a payment method", ErrInvalidOrder)
	}
	if !req.Summary.Total.IsPositive() {
		return fmt.Errorf("%w: order total must be greater than zero", ErrInvalidOrder)
	}
	return nil
}

func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
