package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/client"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/storage"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrdersVersion is the envelope version of the persisted order records
const OrdersVersion = 1

// Validation messages shown to the customer
const (
	MsgShippingRequired = "Dirección de envío requerida"
	MsgPaymentRequired  = "Método de pago requerido"
	MsgTermsRequired    = "Debe aceptar los términos y condiciones"
	MsgEmptyCart        = "El carrito está vacío"
	MsgAlreadyRunning   = "Ya hay un pedido en proceso"
)

// ValidationError is a checkout precondition that does not hold
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Result is the outcome of ProcessOrder: either OrderID is set and Success
// is true, or Error carries the message shown to the customer.
type Result struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
}

func succeeded(orderID string) Result { return Result{Success: true, OrderID: orderID} }
func failed(err error) Result         { return Result{Success: false, Error: err.Error()} }

// ProcessOrder validates the checkout, submits cart to the order service and
// records the placed order. It never panics or returns an error: every
// failure becomes a failed Result plus an error notification. The cart is
// left untouched.
func (s *Session) ProcessOrder(ctx context.Context, cart models.Cart) Result {
	ctx, span := util.StartSpan(ctx, "Checkout.ProcessOrder")
	defer span.End()

	s.mu.Lock()
	if s.state.IsProcessing {
		s.mu.Unlock()
		return s.fail(ctx, &ValidationError{Message: MsgAlreadyRunning}, "concurrent")
	}
	s.state.IsProcessing = true
	snapshot := s.state
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.state.IsProcessing = false
		s.mu.Unlock()
	}()

	if err := validate(snapshot, cart); err != nil {
		return s.fail(ctx, err, "validation")
	}

	summary := s.CalculateOrderSummary(cart)
	req := buildRequest(snapshot, cart, summary)

	start := time.Now()
	resp, err := s.deps.Orders.PlaceOrder(ctx, req, uuid.New().String())
	util.OrderPlacementLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return s.fail(ctx, err, "remote")
	}

	util.OrdersPlacedTotal.Inc()
	record := buildRecord(resp, req, time.Now())
	s.recordOrder(ctx, record)

	s.deps.Notifier.Notify(notify.Success(fmt.Sprintf("¡Pedido #%s realizado con éxito!", resp.OrderID)))
	s.deps.Logger.Info("Order placed",
		zap.String("session_id", s.deps.SessionID),
		zap.String("order_id", resp.OrderID))
	return succeeded(resp.OrderID)
}

func (s *Session) fail(ctx context.Context, err error, reason string) Result {
	util.OrdersFailedTotal.WithLabelValues(reason).Inc()
	s.deps.Notifier.Notify(notify.Error(err.Error()))
	s.deps.ErrorLogger.LogError(ctx, err, map[string]string{
		"component":  "checkout",
		"session_id": s.deps.SessionID,
		"reason":     reason,
	})
	return failed(err)
}

// recordOrder appends the order record and publishes ORDER_PLACED. Both are
// best effort: the order already exists upstream.
func (s *Session) recordOrder(ctx context.Context, record models.OrderRecord) {
	userID := ""
	if u := s.deps.CurrentUser(); u != nil {
		userID = u.ID
	}

	if err := AppendOrderRecord(ctx, s.deps.Storage, s.deps.SessionID, record); err != nil {
		util.PersistenceFailuresTotal.WithLabelValues(storage.KeyOrders, "append").Inc()
		s.deps.Logger.Warn("Failed to persist order record",
			zap.String("session_id", s.deps.SessionID),
			zap.String("order_id", record.ID),
			zap.Error(err))
	}

	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishOrderPlaced(ctx, s.deps.SessionID, userID, record); err != nil {
			s.deps.Logger.Warn("Failed to publish order placed event",
				zap.String("order_id", record.ID),
				zap.Error(err))
		}
	}
}

func validate(st State, cart models.Cart) error {
	switch {
	case st.ShippingAddress == nil:
		return &ValidationError{Message: MsgShippingRequired}
	case st.PaymentMethod == nil:
		return &ValidationError{Message: MsgPaymentRequired}
	case !st.AgreedToTerms:
		return &ValidationError{Message: MsgTermsRequired}
	case len(cart.Items) == 0:
		return &ValidationError{Message: MsgEmptyCart}
	}
	return nil
}

func buildRequest(st State, cart models.Cart, summary models.OrderSummary) client.CreateOrderRequest {
	items := make([]client.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, client.OrderItem{
			ProductID:    item.Product.ID,
			ProductName:  item.Product.Name,
			ProductImage: item.Product.PrimaryImage(),
			Price:        item.Product.Price,
			Quantity:     item.Quantity,
		})
	}

	return client.CreateOrderRequest{
		Items:           items,
		ShippingAddress: *st.ShippingAddress,
		PaymentMethod:   client.PaymentMethodRef{Type: st.PaymentMethod.Type},
		OrderNotes:      strings.TrimSpace(st.OrderNotes),
		Summary:         summary,
	}
}

// buildRecord keeps the status reported by the order service and falls
// back to confirmed when the response has none.
func buildRecord(resp *client.OrderResponse, req client.CreateOrderRequest, now time.Time) models.OrderRecord {
	items := make([]models.OrderRecordItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.OrderRecordItem{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     item.ProductImage,
		})
	}

	status := models.OrderStatusConfirmed
	if resp.Order != nil && resp.Order.Status != "" {
		status = resp.Order.Status
	}

	return models.OrderRecord{
		ID:              resp.OrderID,
		Date:            now.UTC().Format(time.RFC3339),
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentType:     req.PaymentMethod.Type,
		OrderNotes:      req.OrderNotes,
		Summary:         req.Summary,
		Status:          status,
	}
}

// AppendOrderRecord adds record to the order history of sessionID
func AppendOrderRecord(ctx context.Context, st storage.Store, sessionID string, record models.OrderRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode order record: %w", err)
	}
	return st.AppendRecord(ctx, storage.SessionKey(storage.KeyOrders, sessionID), OrdersVersion, data)
}

// OrderRecords returns the order history of sessionID, newest last. An
// unreadable history is empty.
func OrderRecords(ctx context.Context, st storage.Store, sessionID string) []models.OrderRecord {
	records, err := storage.LoadRecords[models.OrderRecord](ctx, st, storage.SessionKey(storage.KeyOrders, sessionID), OrdersVersion)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		util.GetLogger().Warn("Discarding unreadable order history",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	return records
}
