// Package auth tracks the signed-in customer of a visitor session against
// the upstream auth service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/client"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/storage"
	"storefront/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// StorageVersion is the envelope version of the persisted auth session
const StorageVersion = 1

// Messages shown to the customer
const (
	MsgInvalidCredentials = "Credenciales inválidas"
	MsgEmailTaken         = "El correo ya está registrado"
	MsgLoginFailed        = "Error al iniciar sesión"
	MsgRegisterFailed     = "Error al registrarse"
	MsgSessionCheckFailed = "No se pudo verificar la sesión"
)

// expirySkew treats tokens about to expire as expired
const expirySkew = 30 * time.Second

// Client is the upstream session API
type Client interface {
	Me(ctx context.Context, creds client.Credentials) (*models.User, client.Credentials, error)
	Login(ctx context.Context, email, password string) (*models.User, client.Credentials, error)
	Register(ctx context.Context, req client.RegisterRequest) (*models.User, client.Credentials, error)
	Logout(ctx context.Context, creds client.Credentials) error
	Refresh(ctx context.Context, creds client.Credentials) (client.Credentials, error)
}

// State is the auth state exposed to the storefront. IsAuthenticated is
// always derived from User.
type State struct {
	User            *models.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	IsLoading       bool         `json:"isLoading"`
	Error           string       `json:"error,omitempty"`
}

type persisted struct {
	User        *models.User       `json:"user"`
	Credentials client.Credentials `json:"credentials"`
}

// Store owns the auth session of one visitor
type Store struct {
	mu        sync.Mutex
	user      *models.User
	creds     client.Credentials
	loading   bool
	err       string
	sessionID string
	key       string
	client    Client
	storage   storage.Store
	notifier  notify.Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// Open creates the auth store for sessionID and restores the persisted
// user and upstream cookies without calling the auth service.
func Open(ctx context.Context, st storage.Store, sessionID string, c Client, notifier notify.Notifier, logger *zap.Logger) *Store {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = util.GetLogger()
	}
	s := &Store{
		sessionID: sessionID,
		key:       storage.SessionKey(storage.KeyAuth, sessionID),
		client:    c,
		storage:   st,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}

	var p persisted
	if err := storage.Load(ctx, st, s.key, StorageVersion, &p); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			util.PersistenceFailuresTotal.WithLabelValues(storage.KeyAuth, "load").Inc()
			logger.Warn("Discarding unreadable auth snapshot",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
		return s
	}
	if p.User != nil && p.User.ID != "" {
		s.user = p.User
	}
	s.creds = p.Credentials
	return s
}

// State returns a copy of the auth state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	var user *models.User
	if s.user != nil {
		u := *s.user
		user = &u
	}
	return State{User: user, IsAuthenticated: user != nil, IsLoading: s.loading, Error: s.err}
}

// User returns the signed-in customer, or nil
func (s *Store) User() *models.User {
	return s.State().User
}

func (s *Store) IsAuthenticated() bool {
	return s.User() != nil
}

// Credentials returns the upstream session cookies
func (s *Store) Credentials() client.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
}

// Login signs in with email and password. Expected failures set a
// customer-facing error and return false.
func (s *Store) Login(ctx context.Context, email, password string) bool {
	ctx, span := util.StartSpan(ctx, "AuthStore.Login")
	defer span.End()

	s.begin()
	user, creds, err := s.client.Login(ctx, email, password)
	if err == nil && user == nil {
		err = fmt.Errorf("login response has no user")
	}
	if err != nil {
		msg := MsgLoginFailed
		if client.IsUnauthorized(err) {
			msg = MsgInvalidCredentials
		}
		s.finishFailure(ctx, "login", msg, err)
		return false
	}

	s.finishSuccess(ctx, "login", user, creds)
	s.notifier.Notify(notify.Success(fmt.Sprintf("¡Bienvenido, %s!", user.FirstName)))
	return true
}

// Register creates an account and signs it in
func (s *Store) Register(ctx context.Context, req client.RegisterRequest) bool {
	ctx, span := util.StartSpan(ctx, "AuthStore.Register")
	defer span.End()

	s.begin()
	user, creds, err := s.client.Register(ctx, req)
	if err == nil && user == nil {
		err = fmt.Errorf("register response has no user")
	}
	if err != nil {
		msg := MsgRegisterFailed
		if client.IsConflict(err) {
			msg = MsgEmailTaken
		}
		s.finishFailure(ctx, "register", msg, err)
		return false
	}

	s.finishSuccess(ctx, "register", user, creds)
	s.notifier.Notify(notify.Success(fmt.Sprintf("¡Cuenta creada! Bienvenido, %s", user.FirstName)))
	return true
}

// Logout revokes the upstream session and always clears the local one
func (s *Store) Logout(ctx context.Context) {
	ctx, span := util.StartSpan(ctx, "AuthStore.Logout")
	defer span.End()

	creds := s.Credentials()
	if !creds.IsZero() {
		if err := s.client.Logout(ctx, creds); err != nil {
			s.logger.Warn("Upstream logout failed, clearing local session anyway",
				zap.String("session_id", s.sessionID),
				zap.Error(err))
		}
	}

	s.mu.Lock()
	s.user = nil
	s.creds = client.Credentials{}
	s.loading = false
	s.err = ""
	s.persist(ctx)
	s.mu.Unlock()

	util.AuthOutcomesTotal.WithLabelValues("logout", "success").Inc()
	s.notifier.Notify(notify.Info("Sesión cerrada"))
}

// LoadCurrentUser checks the upstream session. An expired access token is
// refreshed first when a refresh token is held. A 401 or an empty session
// ends unauthenticated without an error; other failures set an error.
func (s *Store) LoadCurrentUser(ctx context.Context) {
	ctx, span := util.StartSpan(ctx, "AuthStore.LoadCurrentUser")
	defer span.End()

	s.mu.Lock()
	s.loading = true
	creds := s.creds
	s.mu.Unlock()

	triedRefresh := false
	if creds.RefreshToken != "" && s.accessExpired(creds.AccessToken) {
		creds, _ = s.refresh(ctx, creds)
		triedRefresh = true
	}

	user, creds, err := s.client.Me(ctx, creds)
	if client.IsUnauthorized(err) && !triedRefresh && creds.RefreshToken != "" {
		var ok bool
		if creds, ok = s.refresh(ctx, creds); ok {
			user, creds, err = s.client.Me(ctx, creds)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	switch {
	case err == nil:
		s.user = user
		s.creds = creds
		s.err = ""
		if user == nil {
			s.creds = client.Credentials{}
		}
		util.AuthOutcomesTotal.WithLabelValues("me", outcome(user != nil)).Inc()
	case client.IsUnauthorized(err):
		s.user = nil
		s.creds = client.Credentials{}
		s.err = ""
		util.AuthOutcomesTotal.WithLabelValues("me", "unauthenticated").Inc()
	default:
		s.user = nil
		s.creds = creds
		s.err = MsgSessionCheckFailed
		util.AuthOutcomesTotal.WithLabelValues("me", "error").Inc()
		util.NewErrorReporter(s.logger).LogError(ctx, err, map[string]string{
			"component":  "auth",
			"op":         "me",
			"session_id": s.sessionID,
		})
	}
	s.persist(ctx)
}

func (s *Store) refresh(ctx context.Context, creds client.Credentials) (client.Credentials, bool) {
	next, err := s.client.Refresh(ctx, creds)
	if err != nil {
		s.logger.Info("Session refresh rejected",
			zap.String("session_id", s.sessionID),
			zap.Error(err))
		util.AuthOutcomesTotal.WithLabelValues("refresh", "failure").Inc()
		return next, false
	}
	util.AuthOutcomesTotal.WithLabelValues("refresh", "success").Inc()
	return next, true
}

// accessExpired inspects the exp claim without verifying the signature;
// verification is the auth service's job. Unparseable tokens count as live.
func (s *Store) accessExpired(token string) bool {
	if token == "" {
		return true
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.Before(s.now().Add(expirySkew))
}

func (s *Store) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.mu.Unlock()
}

func (s *Store) finishSuccess(ctx context.Context, op string, user *models.User, creds client.Credentials) {
	s.mu.Lock()
	s.user = user
	s.creds = creds
	s.loading = false
	s.err = ""
	s.persist(ctx)
	s.mu.Unlock()

	util.AuthOutcomesTotal.WithLabelValues(op, "success").Inc()
	s.logger.Info("Customer signed in",
		zap.String("session_id", s.sessionID),
		zap.String("user_id", user.ID),
		zap.String("via", op))
}

func (s *Store) finishFailure(ctx context.Context, op, msg string, err error) {
	s.mu.Lock()
	s.loading = false
	s.err = msg
	s.mu.Unlock()

	util.AuthOutcomesTotal.WithLabelValues(op, "failure").Inc()
	s.notifier.Notify(notify.Error(msg))
	util.NewErrorReporter(s.logger).LogError(ctx, err, map[string]string{
		"component":  "auth",
		"op":         op,
		"session_id": s.sessionID,
	})
}

// persist must be called with s.mu held
func (s *Store) persist(ctx context.Context) {
	if err := storage.Save(ctx, s.storage, s.key, StorageVersion, persisted{User: s.user, Credentials: s.creds}); err != nil {
		util.PersistenceFailuresTotal.WithLabelValues(storage.KeyAuth, "save").Inc()
		s.logger.Warn("Failed to persist auth session",
			zap.String("session_id", s.sessionID),
			zap.Error(err))
	}
}

func outcome(authenticated bool) string {
	if authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}
