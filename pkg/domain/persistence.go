package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("crmcore: record not found")

	// ErrDuplicateEmail is returned when the customer email unique constraint is violated.
	ErrDuplicateEmail = errors.New("crmcore: duplicate customer email")

	// ErrConstraint is returned when a write violates a store-level check
	// (price, stock, order product set).
	ErrConstraint = errors.New("crmcore: constraint violation")

	// ErrSavepointOrder is returned when savepoints are not closed in LIFO order
	// or are closed twice.
	ErrSavepointOrder = errors.New("crmcore: savepoint closed out of order")
)

// Savepoint is a nested scope opened inside a running transaction. Commit
// keeps the writes made since it was opened; Rollback discards only them.
type Savepoint interface {
	Commit() error
	Rollback() error
}

// Transaction exposes the record operations a persistence implementation must
// support within an atomic scope. Implementations never commit the enclosing
// transaction themselves.
type Transaction interface {
	TransactionView
	CreateCustomer(Customer) (Customer, error)
	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	CreateOrder(Order) (Order, error)
	BeginNested(ctx context.Context) (Savepoint, error)
}

// TransactionView provides read-only access to records.
type TransactionView interface {
	GetCustomer(id string) (Customer, error)
	CustomerEmailExists(email string) (bool, error)
	GetProduct(id string) (Product, error)
	FindProducts(ids []string) ([]Product, error)
	ListProductsBelowStock(threshold int) ([]Product, error)
	GetOrder(id string) (Order, error)
	ListCustomers() ([]Customer, error)
	ListProducts() ([]Product, error)
	ListOrders() ([]Order, error)
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	Ping(ctx context.Context) error
	Close() error
}

// RunNested runs fn inside a savepoint of tx. The savepoint is committed when
// fn succeeds and rolled back otherwise. Errors from fn are returned as-is; a
// failure to open or roll back the savepoint is wrapped in a NestedScopeError
// so callers can tell it apart from a record-level failure.
func RunNested(ctx context.Context, tx Transaction, fn func(Transaction) error) error {
	sp, err := tx.BeginNested(ctx)
	if err != nil {
		return &NestedScopeError{Op: "begin", Err: err}
	}
	if err := fn(tx); err != nil {
		if rbErr := sp.Rollback(); rbErr != nil {
			return &NestedScopeError{Op: "rollback", Err: errors.Join(rbErr, err)}
		}
		return err
	}
	if err := sp.Commit(); err != nil {
		return &NestedScopeError{Op: "commit", Err: err}
	}
	return nil
}

// NestedScopeError reports a failure of the savepoint machinery itself rather
// than of the work running inside it.
type NestedScopeError struct {
	Op  string
	Err error
}

func (e *NestedScopeError) Error() string {
	return "savepoint " + e.Op + ": " + e.Err.Error()
}

func (e *NestedScopeError) Unwrap() error { return e.Err }
