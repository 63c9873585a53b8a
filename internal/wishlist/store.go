package wishlist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/storage"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// StorageVersion is the envelope version of the persisted wishlist
const StorageVersion = 1

// Store owns the wishlist of one visitor session
type Store struct {
	mu        sync.Mutex
	list      Wishlist
	sessionID string
	key       string
	storage   storage.Store
	notifier  notify.Notifier
	logger    *zap.Logger
}

// Open creates the wishlist store for sessionID and rehydrates it. nil
// logger uses the global logger.
func Open(ctx context.Context, st storage.Store, sessionID string, notifier notify.Notifier, logger *zap.Logger) *Store {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = util.GetLogger()
	}
	s := &Store{
		list:      Empty(),
		sessionID: sessionID,
		key:       storage.SessionKey(storage.KeyWishlist, sessionID),
		storage:   st,
		notifier:  notifier,
		logger:    logger,
	}

	var persisted Wishlist
	if err := storage.Load(ctx, st, s.key, StorageVersion, &persisted); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			util.PersistenceFailuresTotal.WithLabelValues(storage.KeyWishlist, "load").Inc()
			logger.Warn("Discarding unreadable wishlist snapshot",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
		return s
	}

	// Drop duplicates a hand-edited or older snapshot may carry.
	for _, p := range persisted.Items {
		if next, err := Add(s.list, p); err == nil {
			s.list = next
		}
	}
	return s
}

// AddItem adds product. A product already present is reported with an
// error notification and ErrAlreadyInWishlist.
func (s *Store) AddItem(ctx context.Context, product models.Product) error {
	s.mu.Lock()
	next, err := Add(s.list, product)
	if err != nil {
		s.mu.Unlock()
		s.notifyRejected(product, err)
		return err
	}
	s.list = next
	s.persist(ctx)
	s.mu.Unlock()

	util.WishlistChangesTotal.WithLabelValues("add").Inc()
	s.notifier.Notify(notify.Success(fmt.Sprintf("%s añadido a la lista de deseos", product.Name)))
	return nil
}

// RemoveItem drops productID; absent ids are a silent no-op
func (s *Store) RemoveItem(ctx context.Context, productID string) {
	s.mu.Lock()
	next, removed := Remove(s.list, productID)
	if removed == nil {
		s.mu.Unlock()
		return
	}
	s.list = next
	s.persist(ctx)
	s.mu.Unlock()

	util.WishlistChangesTotal.WithLabelValues("remove").Inc()
	s.notifier.Notify(notify.Success(fmt.Sprintf("%s eliminado de la lista de deseos", removed.Name)))
}

// ToggleItem adds or removes product and reports whether it is now listed
func (s *Store) ToggleItem(ctx context.Context, product models.Product) (bool, error) {
	s.mu.Lock()
	name := product.Name
	if i := indexOf(s.list, product.ID); i >= 0 {
		name = s.list.Items[i].Name
	}
	next, added, err := Toggle(s.list, product)
	if err != nil {
		s.mu.Unlock()
		s.notifyRejected(product, err)
		return false, err
	}
	s.list = next
	s.persist(ctx)
	s.mu.Unlock()

	if added {
		util.WishlistChangesTotal.WithLabelValues("add").Inc()
		s.notifier.Notify(notify.Success(fmt.Sprintf("%s añadido a la lista de deseos", name)))
	} else {
		util.WishlistChangesTotal.WithLabelValues("remove").Inc()
		s.notifier.Notify(notify.Success(fmt.Sprintf("%s eliminado de la lista de deseos", name)))
	}
	return added, nil
}

// ClearWishlist empties the list, notifying only when it was non-empty
func (s *Store) ClearWishlist(ctx context.Context) {
	s.mu.Lock()
	next, removed := Clear(s.list)
	if removed == 0 {
		s.mu.Unlock()
		return
	}
	s.list = next
	s.persist(ctx)
	s.mu.Unlock()

	util.WishlistChangesTotal.WithLabelValues("clear").Inc()
	s.notifier.Notify(notify.Success(fmt.Sprintf("Lista de deseos vaciada (%d productos eliminados)", removed)))
}

func (s *Store) IsInWishlist(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Contains(s.list, productID)
}

func (s *Store) GetItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Count(s.list)
}

func (s *Store) HasItems() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return HasItems(s.list)
}

// Items returns a copy of the listed products in insertion order
func (s *Store) Items() []models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Product, len(s.list.Items))
	copy(out, s.list.Items)
	return out
}

func (s *Store) notifyRejected(product models.Product, err error) {
	switch {
	case errors.Is(err, ErrAlreadyInWishlist):
		s.notifier.Notify(notify.Error(fmt.Sprintf("%s ya está en tu lista de deseos", product.Name)))
	case errors.Is(err, ErrInvalidProduct):
		s.notifier.Notify(notify.Error("Producto inválido"))
	}
}

func (s *Store) persist(ctx context.Context) {
	if err := storage.Save(ctx, s.storage, s.key, StorageVersion, s.list); err != nil {
		util.PersistenceFailuresTotal.WithLabelValues(storage.KeyWishlist, "save").Inc()
		s.logger.Warn("Failed to persist wishlist",
			zap.String("session_id", s.sessionID),
			zap.Error(err))
	}
}
