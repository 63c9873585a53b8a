package models

import "github.com/shopspring/decimal"

func init() {
	// Upstream services and the browser expect prices as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// ProductImage holds the full-size and thumbnail URLs of a product image
type ProductImage struct {
	Full      string `json:"full"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Alt       string `json:"alt,omitempty"`
}

// Product is a catalog entry owned by the product service
type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	Images     []ProductImage  `json:"images,omitempty"`
	Categories []string        `json:"categories,omitempty"`
	SKU        string          `json:"sku,omitempty"`
}

// Orderable reports whether at least one unit is in stock
func (p Product) Orderable() bool {
	return p.Stock > 0
}

// PrimaryImage returns the first image URL, or "" when the product has none
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].Full
}

// CartItem pairs a product with the quantity in the cart
type CartItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal is price times quantity
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the shopping cart aggregate. Total and Count are derived from Items.
type Cart struct {
	Items []CartItem      `json:"items"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// Recalculate recomputes Total and Count from Items
func (c *Cart) Recalculate() {
	total := decimal.Zero
	count := 0
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
		count += item.Quantity
	}
	c.Total = total
	c.Count = count
}

// Clone returns a copy whose item slice can be modified independently
func (c Cart) Clone() Cart {
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items, Total: c.Total, Count: c.Count}
}

// ShippingAddress is the delivery address captured during checkout
type ShippingAddress struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Company    string `json:"company,omitempty"`
	Street     string `json:"street"`
	Apartment  string `json:"apartment,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"isDefault,omitempty"`
}

// PaymentType is the tag of a payment method
type PaymentType string

const (
	PaymentCreditCard     PaymentType = "credit_card"
	PaymentDebitCard      PaymentType = "debit_card"
	PaymentBankTransfer   PaymentType = "bank_transfer"
	PaymentCashOnDelivery PaymentType = "cash_on_delivery"
)

// IsValid checks the payment type against the supported set
func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentCreditCard, PaymentDebitCard, PaymentBankTransfer, PaymentCashOnDelivery:
		return true
	default:
		return false
	}
}

// PaymentMethod is selected during checkout. Only Type leaves this service;
// the card and bank fields are placeholders and no payment is processed.
type PaymentMethod struct {
	Type          PaymentType `json:"type"`
	CardNumber    string      `json:"cardNumber,omitempty"`
	ExpiryDate    string      `json:"expiryDate,omitempty"`
	CardHolder    string      `json:"cardHolder,omitempty"`
	BankName      string      `json:"bankName,omitempty"`
	AccountNumber string      `json:"accountNumber,omitempty"`
	IsDefault     bool        `json:"isDefault,omitempty"`
}

// OrderSummary holds the priced totals of an order
type OrderSummary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// OrderRecordItem is the simplified line kept in an order record
type OrderRecordItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// OrderRecord is the denormalized copy of a placed order kept for display
type OrderRecord struct {
	ID              string            `json:"id"`
	Date            string            `json:"date"`
	Items           []OrderRecordItem `json:"items"`
	ShippingAddress ShippingAddress   `json:"shippingAddress"`
	PaymentType     PaymentType       `json:"paymentType"`
	OrderNotes      string            `json:"orderNotes,omitempty"`
	Summary         OrderSummary      `json:"summary"`
	Status          string            `json:"status"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// User is the authenticated customer as exposed by the session endpoints
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role,omitempty"`
}

// FullName joins first and last name
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
