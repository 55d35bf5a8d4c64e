package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crmcore/internal/money"
	"crmcore/internal/validation"
	"crmcore/pkg/domain"
)

const (
	// LowStockThreshold selects products for restocking (stock strictly below).
	LowStockThreshold = 10
	// RestockQuantity is added to each low-stock product.
	RestockQuantity = 10

	// MsgCustomerCreated confirms a single customer creation.
	MsgCustomerCreated = "Customer created successfully."
	// MsgNoLowStock is returned when no product needed restocking.
	MsgNoLowStock = "No low-stock products found."
)

// CustomerInput carries the fields of a customer to create. An empty Phone
// means no phone.
type CustomerInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CreateCustomerResult is returned by CreateCustomer.
type CreateCustomerResult struct {
	Customer Customer `json:"customer"`
	Message  string   `json:"message"`
}

// ProductInput carries the fields of a product to create. Price is the
// textual decimal; a nil Stock defaults to zero.
type ProductInput struct {
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock *int   `json:"stock"`
}

// OrderInput carries the fields of an order to create. A nil OrderDate uses
// the service clock.
type OrderInput struct {
	CustomerID string     `json:"customerId"`
	ProductIDs []string   `json:"productIds"`
	OrderDate  *time.Time `json:"orderDate,omitempty"`
}

// UpdateLowStockResult is returned by UpdateLowStockProducts.
type UpdateLowStockResult struct {
	Products []Product `json:"products"`
	Message  string    `json:"message"`
}

// CreateCustomer validates name, email uniqueness and phone, in that order,
// and persists the customer.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (CreateCustomerResult, error) {
	var created Customer
	err := s.run(ctx, "create_customer", domain.EntityCustomer, func(ctx context.Context) (string, error) {
		err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := validateCustomer(tx, in, false); err != nil {
				return err
			}
			var err error
			created, err = insertCustomer(tx, in)
			return err
		})
		return created.ID, err
	})
	if err != nil {
		return CreateCustomerResult{}, err
	}
	return CreateCustomerResult{Customer: created, Message: MsgCustomerCreated}, nil
}

// CreateProduct validates and persists a product.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	var created Product
	err := s.run(ctx, "create_product", domain.EntityProduct, func(ctx context.Context) (string, error) {
		if err := validation.Required("name", "Name", in.Name); err != nil {
			return "", err
		}
		price, err := validation.Price(in.Price)
		if err != nil {
			return "", err
		}
		stock, err := validation.Stock(in.Stock)
		if err != nil {
			return "", err
		}
		err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateProduct(Product{Name: in.Name, Price: price, Stock: stock})
			return err
		})
		return created.ID, err
	})
	return created, err
}

// CreateOrder resolves the customer and the products, computes the exact
// total and persists the order header with its product links in one
// transaction.
func (s *Service) CreateOrder(ctx context.Context, in OrderInput) (Order, error) {
	var created Order
	err := s.run(ctx, "create_order", domain.EntityOrder, func(ctx context.Context) (string, error) {
		if len(in.ProductIDs) == 0 {
			return "", validation.Invalid("productIds", validation.MsgNoProducts)
		}
		orderDate := s.clock.Now().UTC()
		if in.OrderDate != nil {
			orderDate = in.OrderDate.UTC()
		}
		err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, err := tx.GetCustomer(in.CustomerID); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return validation.Reference("customerId", validation.MsgInvalidCustomerID)
				}
				return fmt.Errorf("load customer: %w", err)
			}
			if err := validation.ProductIDs(in.ProductIDs); err != nil {
				return err
			}
			products, err := tx.FindProducts(in.ProductIDs)
			if err != nil {
				return fmt.Errorf("load products: %w", err)
			}
			if len(products) != len(in.ProductIDs) {
				return validation.Reference("productIds", validation.MsgInvalidProductID)
			}
			prices := make([]money.Amount, len(products))
			for i, p := range products {
				prices[i] = p.Price
			}
			created, err = tx.CreateOrder(Order{
				CustomerID:  in.CustomerID,
				ProductIDs:  append([]string(nil), in.ProductIDs...),
				TotalAmount: money.Sum(prices...),
				OrderDate:   orderDate,
			})
			return err
		})
		return created.ID, err
	})
	return created, err
}

// UpdateLowStockProducts adds RestockQuantity to every product whose stock is
// below LowStockThreshold. All updates commit together or not at all.
func (s *Service) UpdateLowStockProducts(ctx context.Context) (UpdateLowStockResult, error) {
	var updated []Product
	err := s.run(ctx, "update_low_stock_products", domain.EntityProduct, func(ctx context.Context) (string, error) {
		err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			updated = nil
			low, err := tx.ListProductsBelowStock(LowStockThreshold)
			if err != nil {
				return fmt.Errorf("list low stock: %w", err)
			}
			for _, p := range low {
				next, err := tx.UpdateProduct(p.ID, func(p *Product) error {
					p.Stock += RestockQuantity
					return nil
				})
				if err != nil {
					return fmt.Errorf("restock %s: %w", p.ID, err)
				}
				updated = append(updated, next)
			}
			return nil
		})
		return "", err
	})
	if err != nil {
		return UpdateLowStockResult{}, err
	}
	if updated == nil {
		updated = []Product{}
	}
	msg := MsgNoLowStock
	if len(updated) > 0 {
		msg = fmt.Sprintf("Restocked %d low-stock product(s).", len(updated))
	}
	return UpdateLowStockResult{Products: updated, Message: msg}, nil
}

// validateCustomer runs the customer checks. Single creation checks email
// uniqueness before phone shape; the bulk path checks phone first.
func validateCustomer(tx TransactionView, in CustomerInput, phoneFirst bool) error {
	if err := validation.Required("name", "Name", in.Name); err != nil {
		return err
	}
	checks := []func() error{
		func() error { return validation.UniqueEmail(tx, in.Email) },
		func() error { return validation.Phone(in.Phone) },
	}
	if phoneFirst {
		checks[0], checks[1] = checks[1], checks[0]
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// insertCustomer persists the customer, reporting a unique-constraint hit
// with the same conflict as the pre-check.
func insertCustomer(tx Transaction, in CustomerInput) (Customer, error) {
	created, err := tx.CreateCustomer(Customer{Name: in.Name, Email: in.Email, Phone: in.Phone})
	if errors.Is(err, domain.ErrDuplicateEmail) {
		return Customer{}, validation.Conflict("email", validation.MsgEmailExists)
	}
	return created, err
}
