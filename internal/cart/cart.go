// Package cart implements the shopping cart. The functions in this file are
// pure: they take a cart and return a new one without touching storage or
// notifications.
package cart

import (
	"errors"
	"fmt"

	"storefront/internal/models"
)

var (
	ErrOutOfStock      = errors.New("product is out of stock")
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrNotInCart       = errors.New("product is not in the cart")
)

// InsufficientStockError rejects a mutation that would exceed the stock
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available=%d, requested=%d",
		e.ProductID, e.Available, e.Requested)
}

// Empty returns a cart with no items
func Empty() models.Cart {
	return models.Cart{Items: []models.CartItem{}}
}

// ItemQuantity returns the quantity of productID in c, or 0
func ItemQuantity(c models.Cart, productID string) int {
	if i := indexOf(c, productID); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

// HasItems reports whether the cart has at least one line
func HasItems(c models.Cart) bool {
	return len(c.Items) > 0
}

// Add puts quantity units of p into the cart. The whole request is rejected
// when the resulting quantity would exceed p.Stock.
func Add(c models.Cart, p models.Product, quantity int) (models.Cart, error) {
	if quantity <= 0 {
		return c, ErrInvalidQuantity
	}
	if !p.Orderable() {
		return c, ErrOutOfStock
	}

	newQuantity := ItemQuantity(c, p.ID) + quantity
	if newQuantity > p.Stock {
		return c, &InsufficientStockError{ProductID: p.ID, Available: p.Stock, Requested: newQuantity}
	}

	next := c.Clone()
	if i := indexOf(next, p.ID); i >= 0 {
		next.Items[i].Quantity = newQuantity
	} else {
		next.Items = append(next.Items, models.CartItem{Product: p, Quantity: quantity})
	}
	next.Recalculate()
	return next, nil
}

// Remove drops the line of productID. The removed line is returned, or nil
// when the product was not in the cart (c is then returned unchanged).
func Remove(c models.Cart, productID string) (models.Cart, *models.CartItem) {
	i := indexOf(c, productID)
	if i < 0 {
		return c, nil
	}

	removed := c.Items[i]
	next := models.Cart{Items: make([]models.CartItem, 0, len(c.Items)-1)}
	next.Items = append(next.Items, c.Items[:i]...)
	next.Items = append(next.Items, c.Items[i+1:]...)
	next.Recalculate()
	return next, &removed
}

// UpdateQuantity sets the quantity of productID. Quantities <= 0 remove the
// line; quantities above the product stock are rejected.
func UpdateQuantity(c models.Cart, productID string, quantity int) (models.Cart, error) {
	if quantity <= 0 {
		next, removed := Remove(c, productID)
		if removed == nil {
			return c, ErrNotInCart
		}
		return next, nil
	}

	i := indexOf(c, productID)
	if i < 0 {
		return c, ErrNotInCart
	}
	if stock := c.Items[i].Product.Stock; quantity > stock {
		return c, &InsufficientStockError{ProductID: productID, Available: stock, Requested: quantity}
	}

	next := c.Clone()
	next.Items[i].Quantity = quantity
	next.Recalculate()
	return next, nil
}

// Clear empties the cart and returns the number of lines removed
func Clear(c models.Cart) (models.Cart, int) {
	return Empty(), len(c.Items)
}

func indexOf(c models.Cart, productID string) int {
	for i, item := range c.Items {
		if item.Product.ID == productID {
			return i
		}
	}
	return -1
}
