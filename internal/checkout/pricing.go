// Package checkout drives the four-step checkout workflow and turns a cart
// into a submitted order.
package checkout

import (
	"fmt"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Pricing holds the order summary parameters
type Pricing struct {
	ShippingRate          decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	TaxRate               decimal.Decimal
}

// DefaultPricing is the storefront's standard pricing
func DefaultPricing() Pricing {
	return Pricing{
		ShippingRate:          decimal.NewFromInt(150),
		FreeShippingThreshold: decimal.NewFromInt(3000),
		TaxRate:               decimal.RequireFromString("0.18"),
	}
}

// ParsePricing reads pricing from decimal strings. Empty values keep the
// default.
func ParsePricing(shippingRate, freeShippingThreshold, taxRate string) (Pricing, error) {
	p := DefaultPricing()
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"shipping rate", shippingRate, &p.ShippingRate},
		{"free shipping threshold", freeShippingThreshold, &p.FreeShippingThreshold},
		{"tax rate", taxRate, &p.TaxRate},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return Pricing{}, fmt.Errorf("invalid %s %q: %w", f.name, f.raw, err)
		}
		if d.IsNegative() {
			return Pricing{}, fmt.Errorf("invalid %s %q: must not be negative", f.name, f.raw)
		}
		*f.dst = d
	}
	return p, nil
}

// CalculateSummary prices cart. Shipping is waived only when the subtotal
// strictly exceeds the free-shipping threshold. Discount is always zero.
func CalculateSummary(cart models.Cart, p Pricing) models.OrderSummary {
	subtotal := cart.Total

	shipping := p.ShippingRate
	if subtotal.GreaterThan(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(p.TaxRate)
	discount := decimal.Zero

	return models.OrderSummary{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal.Add(shipping).Add(tax).Sub(discount),
	}
}
