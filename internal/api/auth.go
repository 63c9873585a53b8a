package api

import (
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/client"
	"storefront/internal/session"

	"github.com/gin-gonic/gin"
)

// Messages for rejected requests
const (
	MsgLoginRequired   = "Debe iniciar sesión"
	MsgTooManyAttempts = "Demasiados intentos, intente de nuevo en unos minutos"
)

// LoginRequest is the login form
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest is the registration form
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Phone     string `json:"phone"`
}

func authBody(sess *session.Session) gin.H {
	return gin.H{"auth": sess.Auth.State()}
}

// requireAuth rejects requests from visitors who are not signed in
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentSession(c).Auth.IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": MsgLoginRequired})
			return
		}
		c.Next()
	}
}

// rateLimitAuth throttles credential attempts per session
func (h *Handler) rateLimitAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentSession(c).AuthLimiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": MsgTooManyAttempts})
			return
		}
		c.Next()
	}
}

// me re-checks the upstream session and returns the auth state
func (h *Handler) me(c *gin.Context) {
	sess := currentSession(c)
	sess.Auth.LoadCurrentUser(c.Request.Context())
	respond(c, http.StatusOK, sess, authBody(sess))
}

func (h *Handler) login(c *gin.Context) {
	sess := currentSession(c)

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !sess.Auth.Login(c.Request.Context(), req.Email, req.Password) {
		respond(c, authErrorStatus(sess.Auth.State().Error), sess, authBody(sess))
		return
	}
	respond(c, http.StatusOK, sess, authBody(sess))
}

func (h *Handler) register(c *gin.Context) {
	sess := currentSession(c)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ok := sess.Auth.Register(c.Request.Context(), client.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if !ok {
		respond(c, authErrorStatus(sess.Auth.State().Error), sess, authBody(sess))
		return
	}
	respond(c, http.StatusCreated, sess, authBody(sess))
}

func (h *Handler) logout(c *gin.Context) {
	sess := currentSession(c)
	sess.Auth.Logout(c.Request.Context())
	respond(c, http.StatusOK, sess, authBody(sess))
}

func authErrorStatus(msg string) int {
	switch msg {
	case auth.MsgInvalidCredentials:
		return http.StatusUnauthorized
	case auth.MsgEmailTaken:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
