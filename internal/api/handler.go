package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// SessionCookie identifies the visitor session
const SessionCookie = "pn_session"

const (
	sessionCookieMaxAge = 30 * 24 * 60 * 60
	ctxSessionKey       = "session"
)

// ProductSource looks up catalog products
type ProductSource interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

// ReadyCheck reports whether a dependency can serve requests
type ReadyCheck func(ctx context.Context) error

// Options configures the HTTP handler
type Options struct {
	Sessions       *session.Manager
	Catalog        ProductSource
	// Archive and Orders are optional
	Archive        OrderArchive
	Orders         RemoteOrders
	CookieSecure   bool
	AllowedOrigins []string
	ReadyChecks    map[string]ReadyCheck
	Logger         *zap.Logger
}

// Handler contains HTTP handlers
type Handler struct {
	sessions       *session.Manager
	catalog        ProductSource
	archive        OrderArchive
	orders         RemoteOrders
	cookieSecure   bool
	allowedOrigins []string
	readyChecks    map[string]ReadyCheck
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = util.GetLogger()
	}
	return &Handler{
		sessions:       opts.Sessions,
		catalog:        opts.Catalog,
		archive:        opts.Archive,
		orders:         opts.Orders,
		cookieSecure:   opts.CookieSecure,
		allowedOrigins: opts.AllowedOrigins,
		readyChecks:    opts.ReadyChecks,
		logger:         opts.Logger,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", h.sessionMiddleware())
	{
		cart := v1.Group("/cart")
		cart.GET("", h.getCart)
		cart.POST("/items", h.addCartItem)
		cart.PATCH("/items/:productId", h.updateCartItem)
		cart.DELETE("/items/:productId", h.removeCartItem)
		cart.DELETE("", h.clearCart)
		cart.POST("/toggle", h.toggleCart)

		wishlist := v1.Group("/wishlist")
		wishlist.GET("", h.getWishlist)
		wishlist.POST("/items", h.addWishlistItem)
		wishlist.POST("/toggle", h.toggleWishlistItem)
		wishlist.DELETE("/items/:productId", h.removeWishlistItem)
		wishlist.DELETE("", h.clearWishlist)

		checkout := v1.Group("/checkout", h.requireAuth())
		checkout.GET("", h.getCheckout)
		checkout.PUT("/step", h.setCheckoutStep)
		checkout.PUT("/shipping", h.setShipping)
		checkout.PUT("/payment", h.setPayment)
		checkout.PUT("/notes", h.setNotes)
		checkout.PUT("/terms", h.setTerms)
		checkout.POST("/next", h.nextStep)
		checkout.POST("/previous", h.previousStep)
		checkout.POST("/summary", h.calculateSummary)
		checkout.POST("/orders", h.placeOrder)
		checkout.POST("/reset", h.resetCheckout)

		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id/receipt", h.orderReceipt)
		v1.GET("/orders/:id", h.requireAuth(), h.getOrder)
		v1.POST("/orders/:id/cancel", h.requireAuth(), h.cancelOrder)
		v1.GET("/account/orders", h.requireAuth(), h.accountOrders)

		auth := v1.Group("/auth")
		auth.GET("/me", h.me)
		auth.POST("/login", h.rateLimitAuth(), h.login)
		auth.POST("/register", h.rateLimitAuth(), h.register)
		auth.POST("/logout", h.logout)

		notifications := v1.Group("/notifications")
		notifications.GET("", h.listNotifications)
		notifications.DELETE("/:id", h.dismissNotification)
		notifications.DELETE("", h.clearNotifications)
		notifications.GET("/ws", h.streamNotifications)
	}
}

// WithCORS wraps the router for the storefront origins. Credentials are
// allowed so the session cookie travels with cross-origin requests.
func WithCORS(next http.Handler, origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler(next)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every registered dependency check
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.readyChecks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// sessionMiddleware resolves the visitor session from its cookie, issuing a
// new one when the cookie is missing or malformed
func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.New().String()
		}
		// Refresh the expiry on every request.
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, id, sessionCookieMaxAge, "/", "", h.cookieSecure, true)

		c.Set(ctxSessionKey, h.sessions.Open(c.Request.Context(), id))
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(ctxSessionKey).(*session.Session)
}

// respond writes body plus the visitor's active notifications
func respond(c *gin.Context, status int, sess *session.Session, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["notifications"] = sess.Notifications.List()
	c.JSON(status, body)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
