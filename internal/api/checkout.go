package api

import (
	"net/http"
	"strings"

	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/session"

	"github.com/gin-gonic/gin"
)

// StepRequest jumps to a checkout step
type StepRequest struct {
	Step *int `json:"step" binding:"required"`
}

// NotesRequest sets the order notes
type NotesRequest struct {
	Notes string `json:"notes"`
}

// TermsRequest records the terms checkbox
type TermsRequest struct {
	Agreed bool `json:"agreed"`
}

func checkoutBody(sess *session.Session) gin.H {
	return gin.H{
		"checkout":   sess.Checkout.State(),
		"canProceed": sess.Checkout.CanProceedToNextStep(),
	}
}

func (h *Handler) getCheckout(c *gin.Context) {
	sess := currentSession(c)
	respond(c, http.StatusOK, sess, checkoutBody(sess))
}

func (h *Handler) setCheckoutStep(c *gin.Context) {
	sess := currentSession(c)

	var req StepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess.Checkout.SetCurrentStep(*req.Step)
	respond(c, http.StatusOK, sess, checkoutBody(sess))
}

func (h *Handler) setShipping(c *gin.Context) {
	sess := currentSession(c)

	var addr models.ShippingAddress
	if err := c.ShouldBindJSON(&addr); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if missing := missingAddressFields(addr); len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Dirección incompleta",
			"fields": missing,
		})
		return
	}

	sess.Checkout.SetShippingAddress(addr)
	respond(c, http.StatusOK, sess, checkoutBody(sess))
}

func (h *Handler) setPayment(c *gin.Context) {
	sess := currentSession(c)

	var pm models.PaymentMethod
	if err := c.ShouldBindJSON(&pm); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !pm.Type.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Método de pago no soportado"})
		return
	}

	sess.Checkout.SetPaymentMethod(pm)
	respond(c, http.StatusOK, sess, checkoutBody(sess))
}

func (h *Handler) setNotes(c *gin.Context) {
	sess := currentSession(c)

	var req NotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess.Checkout.SetOrderNotes(req.Notes)
	respond(c, http.StatusOK, sess, checkoutBody(sess))
}

func (h *Handler) setTerms(c *gin.Context) {
	sess := currentSession(c)

	var req TermsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess.Checkout.SetAgreedToTerms(req.Agreed)
	respond(c, http.StatusOK, sess, checkoutBody(sess))
}

func (h *Handler) nextStep(c *gin.Context) {
	sess := currentSession(c)
	sess.Checkout.NextStep()
	respond(c, http.StatusOK, sess, checkoutBody(sess))
}

func (h *Handler) previousStep(c *gin.Context) {
	sess := currentSession(c)
	sess.Checkout.PreviousStep()
	respond(c, http.StatusOK, sess, checkoutBody(sess))
}

func (h *Handler) calculateSummary(c *gin.Context) {
	sess := currentSession(c)
	sess.Checkout.CalculateOrderSummary(sess.Cart.Snapshot())
	respond(c, http.StatusOK, sess, checkoutBody(sess))
}

// placeOrder submits the current cart. The cart is kept; the storefront
// clears it once it shows the confirmation.
func (h *Handler) placeOrder(c *gin.Context) {
	sess := currentSession(c)

	result := sess.Checkout.ProcessOrder(c.Request.Context(), sess.Cart.Snapshot())

	body := checkoutBody(sess)
	body["result"] = result
	respond(c, orderResultStatus(result), sess, body)
}

func (h *Handler) resetCheckout(c *gin.Context) {
	sess := currentSession(c)
	sess.Checkout.Reset()
	respond(c, http.StatusOK, sess, checkoutBody(sess))
}

func orderResultStatus(r checkout.Result) int {
	if r.Success {
		return http.StatusCreated
	}
	switch r.Error {
	case checkout.MsgAlreadyRunning:
		return http.StatusConflict
	case checkout.MsgShippingRequired, checkout.MsgPaymentRequired,
		checkout.MsgTermsRequired, checkout.MsgEmptyCart:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func missingAddressFields(a models.ShippingAddress) []string {
	required := []struct {
		name  string
		value string
	}{
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"street", a.Street},
		{"city", a.City},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
		{"phone", a.Phone},
	}

	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}
