// Package session keeps the per-visitor stores in memory and evicts idle
// visitors. Cart, wishlist, auth and order history survive eviction through
// the snapshot storage; checkout and notifications do not.
package session

import (
	"context"
	"sync"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/storage"
	"storefront/internal/util"
	"storefront/internal/wishlist"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTTL is how long an untouched session stays in memory
const DefaultTTL = 30 * time.Minute

// Config wires the collaborators every session shares
type Config struct {
	Storage     storage.Store
	Orders      checkout.OrderPlacer
	AuthClient  auth.Client
	OrderEvents checkout.EventPublisher
	ErrorLogger checkout.ErrorLogger
	// Pricing defaults to checkout.DefaultPricing when nil
	Pricing     *checkout.Pricing

	NotificationDuration time.Duration
	TTL                  time.Duration
	// AuthRate and AuthBurst limit login and register attempts per session
	AuthRate  rate.Limit
	AuthBurst int

	Logger *zap.Logger
}

// Session groups the stores of one visitor
type Session struct {
	ID            string
	Cart          *cart.Store
	Wishlist      *wishlist.Store
	Checkout      *checkout.Session
	Auth          *auth.Store
	Notifications *notify.Center
	AuthLimiter   *rate.Limiter

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Manager is the registry of live sessions
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates a session registry
func NewManager(cfg Config) *Manager {
	if cfg.Storage == nil {
		cfg.Storage = storage.NewMemory()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.AuthRate == 0 {
		cfg.AuthRate = rate.Every(6 * time.Second)
	}
	if cfg.AuthBurst <= 0 {
		cfg.AuthBurst = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = util.GetLogger()
	}
	if cfg.ErrorLogger == nil {
		cfg.ErrorLogger = util.NewErrorReporter(cfg.Logger)
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Open returns the live session id, building and rehydrating it on first
// use. A rebuilt session with upstream cookies checks them against the auth
// service.
func (m *Manager) Open(ctx context.Context, id string) *Session {
	now := m.now()

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		s.touch(now)
		return s
	}
	m.mu.Unlock()

	built := m.build(ctx, id, now)

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		built.Notifications.Close()
		s.touch(now)
		return s
	}
	m.sessions[id] = built
	util.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if !built.Auth.Credentials().IsZero() {
		built.Auth.LoadCurrentUser(ctx)
	}
	m.logger.Debug("Session opened", zap.String("session_id", id))
	return built
}

// Get returns a live session without creating one
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len is the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evict drops a session from memory
func (m *Manager) Evict(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		util.ActiveSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()

	if ok {
		s.Notifications.Close()
	}
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.TTL)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	util.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, s := range idle {
		s.Notifications.Close()
	}
	if len(idle) > 0 {
		m.logger.Info("Evicted idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle sessions every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close evicts every session
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	util.ActiveSessions.Set(0)
	m.mu.Unlock()

	for _, s := range all {
		s.Notifications.Close()
	}
}

func (m *Manager) build(ctx context.Context, id string, now time.Time) *Session {
	cfg := m.cfg
	center := notify.NewCenter(cfg.NotificationDuration)


	s := &Session{
		ID:            id,
		Cart:          cart.Open(ctx, cfg.Storage, id, center, cart.WithLogger(cfg.Logger)),
		Wishlist:      wishlist.Open(ctx, cfg.Storage, id, center, cfg.Logger),
		Auth:          auth.Open(ctx, cfg.Storage, id, cfg.AuthClient, center, cfg.Logger),
		Notifications: center,
		AuthLimiter:   rate.NewLimiter(cfg.AuthRate, cfg.AuthBurst),
		lastSeen:      now,
	}
	s.Checkout = checkout.NewSession(checkout.Deps{
		SessionID:   id,
		Pricing:     cfg.Pricing,
		Orders:      cfg.Orders,
		Storage:     cfg.Storage,
		Notifier:    center,
		ErrorLogger: cfg.ErrorLogger,
		Publisher:   cfg.OrderEvents,
		CurrentUser: func() *models.User { return s.Auth.User() },
		Logger:      cfg.Logger,
	})
	return s
}

// OrderHistory returns the order records placed from session id
func (m *Manager) OrderHistory(ctx context.Context, id string) []models.OrderRecord {
	return checkout.OrderRecords(ctx, m.cfg.Storage, id)
}
