// Package domain defines the customer, product and order records managed by
// crmcore together with the persistence contracts that backends implement.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the record kind for errors, audit entries and metrics.
type EntityType string

// Supported entity types.
const (
	EntityCustomer EntityType = "customer"
	EntityProduct  EntityType = "product"
	EntityOrder    EntityType = "order"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Customer is a person or business placing orders. Email is unique across
// all customers.
type Customer struct {
	Base
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Product is a sellable item. Price is strictly positive and Stock is never
// negative.
type Product struct {
	Base
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Order links one customer to a non-empty set of distinct products.
// TotalAmount is the sum of the product prices at creation time.
type Order struct {
	Base
	CustomerID  string          `json:"customer_id"`
	ProductIDs  []string        `json:"product_ids"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OrderDate   time.Time       `json:"order_date"`
}

// Clone returns a deep copy of the order.
func (o Order) Clone() Order {
	cp := o
	cp.ProductIDs = append([]string(nil), o.ProductIDs...)
	return cp
}
