package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"storefront/internal/client"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/receipt"
	"storefront/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrderArchive reads order records archived from placed-order events
type OrderArchive interface {
	OrderRecordsForUser(ctx context.Context, userID string) ([]models.OrderRecord, error)
	OrderRecordsForSession(ctx context.Context, sessionID string) ([]models.OrderRecord, error)
}

// RemoteOrders reads and cancels orders on the order service
type RemoteOrders interface {
	GetOrder(ctx context.Context, id string) (*client.Order, error)
	ListOrders(ctx context.Context, userID string, filter client.ListOrdersFilter) ([]client.Order, error)
	CancelOrder(ctx context.Context, id string) error
}

// orderHistory merges the session's stored records with the archive.
// Archive failures degrade to the stored records.
func (h *Handler) orderHistory(c *gin.Context, sess *session.Session) []models.OrderRecord {
	ctx := c.Request.Context()
	records := h.sessions.OrderHistory(ctx, sess.ID)
	if h.archive == nil {
		return records
	}

	var (
		archived []models.OrderRecord
		err      error
	)
	if user := sess.Auth.User(); user != nil {
		archived, err = h.archive.OrderRecordsForUser(ctx, user.ID)
	} else {
		archived, err = h.archive.OrderRecordsForSession(ctx, sess.ID)
	}
	if err != nil {
		h.logger.Warn("Order archive unavailable", zap.String("session_id", sess.ID), zap.Error(err))
		return records
	}

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		seen[rec.ID] = true
	}
	for _, rec := range archived {
		if seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date < records[j].Date })
	return records
}

// listOrders returns the orders placed from this session or account, oldest first
func (h *Handler) listOrders(c *gin.Context) {
	sess := currentSession(c)
	orders := h.orderHistory(c, sess)
	respond(c, http.StatusOK, sess, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

// orderReceipt renders the PDF receipt of an order from the history
func (h *Handler) orderReceipt(c *gin.Context) {
	sess := currentSession(c)
	orderID := c.Param("id")

	for _, order := range h.orderHistory(c, sess) {
		if order.ID != orderID {
			continue
		}

		pdf, err := receipt.Render(order)
		if err != nil {
			h.logger.Error("Failed to render receipt", zap.String("order_id", orderID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render receipt"})
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="pedido-%s.pdf"`, orderID))
		c.Data(http.StatusOK, "application/pdf", pdf)
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
}

// accountOrders lists the signed-in user's orders from the order service
func (h *Handler) accountOrders(c *gin.Context) {
	sess := currentSession(c)
	if !h.ordersAvailable(c) {
		return
	}

	filter := client.ListOrdersFilter{Status: c.Query("status")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		filter.Limit = limit
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), sess.Auth.User().ID, filter)
	if err != nil {
		h.orderServiceError(c, "", err)
		return
	}
	respond(c, http.StatusOK, sess, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

// getOrder returns one of the signed-in user's orders
func (h *Handler) getOrder(c *gin.Context) {
	sess := currentSession(c)
	order, ok := h.ownedOrder(c, sess)
	if !ok {
		return
	}
	respond(c, http.StatusOK, sess, gin.H{"order": order})
}

// cancelOrder cancels one of the signed-in user's orders
func (h *Handler) cancelOrder(c *gin.Context) {
	sess := currentSession(c)
	order, ok := h.ownedOrder(c, sess)
	if !ok {
		return
	}

	if err := h.orders.CancelOrder(c.Request.Context(), order.ID); err != nil {
		h.orderServiceError(c, order.ID, err)
		return
	}

	h.logger.Info("Order cancelled", zap.String("order_id", order.ID), zap.String("session_id", sess.ID))
	sess.Notifications.Notify(notify.Success(fmt.Sprintf("Pedido #%s cancelado", order.ID)))
	respond(c, http.StatusOK, sess, gin.H{"orderId": order.ID, "status": models.OrderStatusCancelled})
}

// ownedOrder fetches the :id order, answering 404 when it belongs to someone else
func (h *Handler) ownedOrder(c *gin.Context, sess *session.Session) (*client.Order, bool) {
	if !h.ordersAvailable(c) {
		return nil, false
	}

	orderID := c.Param("id")
	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.orderServiceError(c, orderID, err)
		return nil, false
	}
	if order.UserID != sess.Auth.User().ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return nil, false
	}
	return order, true
}

func (h *Handler) ordersAvailable(c *gin.Context) bool {
	if h.orders == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Order service unavailable"})
		return false
	}
	return true
}

func (h *Handler) orderServiceError(c *gin.Context, orderID string, err error) {
	switch {
	case client.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case client.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": "Order cannot be cancelled"})
	default:
		h.logger.Error("Order service request failed", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Order service unavailable"})
	}
}
