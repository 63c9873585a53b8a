// Package wishlist keeps a deduplicated set of products, independent of the cart.
package wishlist

import (
	"errors"

	"storefront/internal/models"
)

var (
	ErrAlreadyInWishlist = errors.New("product is already in the wishlist")
	ErrInvalidProduct    = errors.New("product id and name are required")
)

// Wishlist is an ordered product set keyed by product id
type Wishlist struct {
	Items []models.Product `json:"items"`
}

func Empty() Wishlist {
	return Wishlist{Items: []models.Product{}}
}

func Contains(w Wishlist, productID string) bool {
	return indexOf(w, productID) >= 0
}

func Count(w Wishlist) int {
	return len(w.Items)
}

func HasItems(w Wishlist) bool {
	return len(w.Items) > 0
}

// Add appends p unless a product with the same id is present
func Add(w Wishlist, p models.Product) (Wishlist, error) {
	if p.ID == "" || p.Name == "" {
		return w, ErrInvalidProduct
	}
	if Contains(w, p.ID) {
		return w, ErrAlreadyInWishlist
	}

	items := make([]models.Product, len(w.Items), len(w.Items)+1)
	copy(items, w.Items)
	return Wishlist{Items: append(items, p)}, nil
}

// Remove drops productID and returns the removed product, or nil if absent
func Remove(w Wishlist, productID string) (Wishlist, *models.Product) {
	i := indexOf(w, productID)
	if i < 0 {
		return w, nil
	}

	removed := w.Items[i]
	items := make([]models.Product, 0, len(w.Items)-1)
	items = append(items, w.Items[:i]...)
	items = append(items, w.Items[i+1:]...)
	return Wishlist{Items: items}, &removed
}

// Toggle removes p when present, adds it otherwise. added reports which.
func Toggle(w Wishlist, p models.Product) (next Wishlist, added bool, err error) {
	if Contains(w, p.ID) {
		next, _ = Remove(w, p.ID)
		return next, false, nil
	}
	next, err = Add(w, p)
	if err != nil {
		return w, false, err
	}
	return next, true, nil
}

// Clear empties the wishlist and returns how many products were removed
func Clear(w Wishlist) (Wishlist, int) {
	return Empty(), len(w.Items)
}

func indexOf(w Wishlist, productID string) int {
	for i, p := range w.Items {
		if p.ID == productID {
			return i
		}
	}
	return -1
}
