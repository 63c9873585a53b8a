package api

import (
	"errors"
	"net/http"

	"storefront/internal/cart"
	"storefront/internal/client"
	"storefront/internal/models"
	"storefront/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AddItemRequest adds a catalog product to the cart or wishlist
type AddItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

// UpdateQuantityRequest sets the quantity of a cart line
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func cartBody(sess *session.Session) gin.H {
	return gin.H{
		"cart":   sess.Cart.Snapshot(),
		"isOpen": sess.Cart.IsOpen(),
	}
}

func (h *Handler) getCart(c *gin.Context) {
	sess := currentSession(c)
	respond(c, http.StatusOK, sess, cartBody(sess))
}

func (h *Handler) addCartItem(c *gin.Context) {
	sess := currentSession(c)

	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	product, ok := h.lookupProduct(c, req.ProductID)
	if !ok {
		return
	}

	if err := sess.Cart.AddToCart(c.Request.Context(), *product, req.Quantity); err != nil {
		body := cartBody(sess)
		body["error"] = err.Error()
		respond(c, cartErrorStatus(err), sess, body)
		return
	}

	respond(c, http.StatusOK, sess, cartBody(sess))
}

func (h *Handler) updateCartItem(c *gin.Context) {
	sess := currentSession(c)

	var req UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := sess.Cart.UpdateQuantity(c.Request.Context(), c.Param("productId"), *req.Quantity); err != nil {
		body := cartBody(sess)
		body["error"] = err.Error()
		respond(c, cartErrorStatus(err), sess, body)
		return
	}

	respond(c, http.StatusOK, sess, cartBody(sess))
}

func (h *Handler) removeCartItem(c *gin.Context) {
	sess := currentSession(c)
	sess.Cart.RemoveFromCart(c.Request.Context(), c.Param("productId"))
	respond(c, http.StatusOK, sess, cartBody(sess))
}

func (h *Handler) clearCart(c *gin.Context) {
	sess := currentSession(c)
	sess.Cart.ClearCart(c.Request.Context())
	respond(c, http.StatusOK, sess, cartBody(sess))
}

func (h *Handler) toggleCart(c *gin.Context) {
	sess := currentSession(c)
	sess.Cart.Toggle()
	respond(c, http.StatusOK, sess, cartBody(sess))
}

func cartErrorStatus(err error) int {
	var stockErr *cart.InsufficientStockError
	switch {
	case errors.Is(err, cart.ErrOutOfStock), errors.As(err, &stockErr):
		return http.StatusConflict
	case errors.Is(err, cart.ErrNotInCart):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// lookupProduct fetches a product from the catalog and writes the error
// response when it cannot
func (h *Handler) lookupProduct(c *gin.Context, id string) (*models.Product, bool) {
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err == nil {
		return product, true
	}
	if client.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Producto no encontrado"})
		return nil, false
	}
	h.logger.Error("Failed to fetch product", zap.String("product_id", id), zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "No se pudo consultar el catálogo"})
	return nil, false
}
