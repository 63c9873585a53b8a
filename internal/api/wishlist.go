package api

import (
	"errors"
	"net/http"

	"storefront/internal/session"
	"storefront/internal/wishlist"

	"github.com/gin-gonic/gin"
)

// WishlistRequest names the product to add or toggle
type WishlistRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

func wishlistBody(sess *session.Session) gin.H {
	return gin.H{
		"items": sess.Wishlist.Items(),
		"count": sess.Wishlist.GetItemCount(),
	}
}

func (h *Handler) getWishlist(c *gin.Context) {
	sess := currentSession(c)
	respond(c, http.StatusOK, sess, wishlistBody(sess))
}

func (h *Handler) addWishlistItem(c *gin.Context) {
	sess := currentSession(c)

	var req WishlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, ok := h.lookupProduct(c, req.ProductID)
	if !ok {
		return
	}

	if err := sess.Wishlist.AddItem(c.Request.Context(), *product); err != nil {
		body := wishlistBody(sess)
		body["error"] = err.Error()
		status := http.StatusBadRequest
		if errors.Is(err, wishlist.ErrAlreadyInWishlist) {
			status = http.StatusConflict
		}
		respond(c, status, sess, body)
		return
	}

	respond(c, http.StatusOK, sess, wishlistBody(sess))
}

// toggleWishlistItem only asks the catalog when the product is being added
func (h *Handler) toggleWishlistItem(c *gin.Context) {
	sess := currentSession(c)

	var req WishlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if sess.Wishlist.IsInWishlist(req.ProductID) {
		sess.Wishlist.RemoveItem(c.Request.Context(), req.ProductID)
		body := wishlistBody(sess)
		body["added"] = false
		respond(c, http.StatusOK, sess, body)
		return
	}

	product, ok := h.lookupProduct(c, req.ProductID)
	if !ok {
		return
	}
	added, err := sess.Wishlist.ToggleItem(c.Request.Context(), *product)
	if err != nil {
		body := wishlistBody(sess)
		body["error"] = err.Error()
		respond(c, http.StatusBadRequest, sess, body)
		return
	}

	body := wishlistBody(sess)
	body["added"] = added
	respond(c, http.StatusOK, sess, body)
}

func (h *Handler) removeWishlistItem(c *gin.Context) {
	sess := currentSession(c)
	sess.Wishlist.RemoveItem(c.Request.Context(), c.Param("productId"))
	respond(c, http.StatusOK, sess, wishlistBody(sess))
}

func (h *Handler) clearWishlist(c *gin.Context) {
	sess := currentSession(c)
	sess.Wishlist.ClearWishlist(c.Request.Context())
	respond(c, http.StatusOK, sess, wishlistBody(sess))
}
