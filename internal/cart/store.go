package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/storage"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StorageVersion is the envelope version of the persisted cart
const StorageVersion = 2

// Option configures a Store
type Option func(*Store)

// WithLogger overrides the global logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store owns the cart of one visitor session. Every mutation is saved in
// full under the session's cart key.
type Store struct {
	mu        sync.Mutex
	cart      models.Cart
	isOpen    bool
	sessionID string
	key       string
	storage   storage.Store
	notifier  notify.Notifier
	logger    *zap.Logger
}

// Open creates the cart store for sessionID and rehydrates it. A missing,
// corrupt or outdated snapshot yields an empty cart.
func Open(ctx context.Context, st storage.Store, sessionID string, notifier notify.Notifier, opts ...Option) *Store {
	if notifier == nil {
		notifier = notify.Discard
	}
	s := &Store{
		cart:      Empty(),
		sessionID: sessionID,
		key:       storage.SessionKey(storage.KeyCart, sessionID),
		storage:   st,
		notifier:  notifier,
		logger:    util.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var persisted models.Cart
	err := storage.Load(ctx, st, s.key, StorageVersion, &persisted)
	switch {
	case err == nil:
		if persisted.Items == nil {
			persisted.Items = []models.CartItem{}
		}
		persisted.Recalculate()
		s.cart = persisted
	case errors.Is(err, storage.ErrNotFound):
	default:
		util.PersistenceFailuresTotal.WithLabelValues(storage.KeyCart, "load").Inc()
		s.logger.Warn("Discarding unreadable cart snapshot",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	return s
}

// AddToCart adds quantity units of product. Rejections leave the cart
// untouched and are reported through a notification and the returned error.
func (s *Store) AddToCart(ctx context.Context, product models.Product, quantity int) error {
	s.mu.Lock()
	next, err := Add(s.cart, product, quantity)
	if err != nil {
		s.mu.Unlock()
		s.reject(product, err)
		return err
	}
	s.cart = next
	s.persist(ctx)
	count, total := next.Count, next.Total
	s.mu.Unlock()

	util.CartItemsAddedTotal.Add(float64(quantity))
	s.notifier.Notify(notify.Success(
		fmt.Sprintf("🛒 %s añadido al carrito\n📦 %s • %s", product.Name, units(count), money(total))).
		WithAction("Ver carrito", notify.ActionOpenCart))
	return nil
}

// RemoveFromCart drops the line of productID; absent ids are a no-op
func (s *Store) RemoveFromCart(ctx context.Context, productID string) {
	s.mu.Lock()
	next, removed := Remove(s.cart, productID)
	if removed == nil {
		s.mu.Unlock()
		return
	}
	s.cart = next
	s.persist(ctx)
	s.mu.Unlock()

	s.notifyRemoved(removed.Product.Name, next)
}

// UpdateQuantity sets the quantity of productID. Zero or less removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		s.RemoveFromCart(ctx, productID)
		return nil
	}

	s.mu.Lock()
	next, err := UpdateQuantity(s.cart, productID, quantity)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, ErrNotInCart) {
			return err
		}
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			util.CartRejectionsTotal.WithLabelValues("insufficient_stock").Inc()
			s.notifier.Notify(notify.Warning(
				fmt.Sprintf("⚠️ Solo hay %d unidades disponibles", stockErr.Available)))
		}
		return err
	}
	s.cart = next
	s.persist(ctx)
	s.mu.Unlock()
	return nil
}

// ClearCart empties the cart. Clearing an empty cart emits nothing.
func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	next, removed := Clear(s.cart)
	if removed == 0 {
		s.mu.Unlock()
		return
	}
	s.cart = next
	s.persist(ctx)
	s.mu.Unlock()

	util.CartsClearedTotal.Inc()
	s.notifier.Notify(notify.Success(
		fmt.Sprintf("🧹 Carrito vaciado (%d producto(s) eliminado(s))", removed)))
}

func (s *Store) GetItemQuantity(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ItemQuantity(s.cart, productID)
}

func (s *Store) HasItems() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return HasItems(s.cart)
}

// Snapshot returns a copy of the current cart
func (s *Store) Snapshot() models.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// IsOpen reports whether the cart drawer is shown. It is not persisted.
func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOpen
}

func (s *Store) SetOpen(open bool) {
	s.mu.Lock()
	s.isOpen = open
	s.mu.Unlock()
}

// Toggle flips the cart drawer and returns the new state
func (s *Store) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isOpen = !s.isOpen
	return s.isOpen
}

func (s *Store) reject(product models.Product, err error) {
	var stockErr *InsufficientStockError
	switch {
	case errors.Is(err, ErrOutOfStock):
		util.CartRejectionsTotal.WithLabelValues("out_of_stock").Inc()
		s.notifier.Notify(notify.Error(fmt.Sprintf("%s está agotado", product.Name)))
	case errors.As(err, &stockErr):
		util.CartRejectionsTotal.WithLabelValues("insufficient_stock").Inc()
		s.notifier.Notify(notify.Warning(
			fmt.Sprintf("⚠️ Solo hay %d unidades disponibles de %s", stockErr.Available, product.Name)))
	case errors.Is(err, ErrInvalidQuantity):
		util.CartRejectionsTotal.WithLabelValues("invalid_quantity").Inc()
		s.notifier.Notify(notify.Error("La cantidad debe ser mayor que cero"))
	}
}

func (s *Store) notifyRemoved(name string, remaining models.Cart) {
	msg := fmt.Sprintf("🗑️ %s eliminado del carrito", name)
	if !HasItems(remaining) {
		s.notifier.Notify(notify.Info(msg + "\n🛒 Carrito vacío").
			WithDuration(4 * time.Second))
		return
	}
	s.notifier.Notify(notify.Info(
		fmt.Sprintf("%s\n📦 Quedan: %s • %s", msg, units(remaining.Count), money(remaining.Total))).
		WithDuration(5*time.Second).
		WithAction("Ver carrito", notify.ActionOpenCart))
}

// persist must be called with s.mu held so saves keep mutation order
func (s *Store) persist(ctx context.Context) {
	if err := storage.Save(ctx, s.storage, s.key, StorageVersion, s.cart); err != nil {
		util.PersistenceFailuresTotal.WithLabelValues(storage.KeyCart, "save").Inc()
		s.logger.Warn("Failed to persist cart",
			zap.String("session_id", s.sessionID),
			zap.Error(err))
	}
}

func units(n int) string {
	if n == 1 {
		return "1 producto"
	}
	return fmt.Sprintf("%d productos", n)
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
