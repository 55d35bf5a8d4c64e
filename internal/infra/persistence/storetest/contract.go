// Package storetest holds the behavioural contract shared by every
// persistence backend. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crmcore/pkg/domain"
)

// Opener returns a fresh, empty store for one subtest.
type Opener func(t *testing.T) domain.PersistentStore

// Run executes the full contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	t.Run("CustomerRoundTrip", func(t *testing.T) { testCustomerRoundTrip(t, open(t)) })
	t.Run("DuplicateEmailConstraint", func(t *testing.T) { testDuplicateEmail(t, open(t)) })
	t.Run("ProductChecks", func(t *testing.T) { testProductChecks(t, open(t)) })
	t.Run("OrderWithProducts", func(t *testing.T) { testOrderWithProducts(t, open(t)) })
	t.Run("OrderRejectsRepeatedProduct", func(t *testing.T) { testOrderRepeatedProduct(t, open(t)) })
	t.Run("RollbackDiscardsWrites", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("SavepointIsolation", func(t *testing.T) { testSavepoints(t, open(t)) })
	t.Run("SavepointAfterConstraintFailure", func(t *testing.T) { testSavepointAfterFailure(t, open(t)) })
	t.Run("LowStockAndUpdate", func(t *testing.T) { testLowStock(t, open(t)) })
	t.Run("PriceIsExact", func(t *testing.T) { testPriceExact(t, open(t)) })
}

func mustTx(t *testing.T, store domain.PersistentStore, fn func(tx domain.Transaction) error) {
	t.Helper()
	if err := store.RunInTransaction(context.Background(), fn); err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func seedProduct(t *testing.T, store domain.PersistentStore, name, price string, stock int) domain.Product {
	t.Helper()
	var created domain.Product
	mustTx(t, store, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateProduct(domain.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock})
		return err
	})
	return created
}

func seedCustomer(t *testing.T, store domain.PersistentStore, name, email string) domain.Customer {
	t.Helper()
	var created domain.Customer
	mustTx(t, store, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateCustomer(domain.Customer{Name: name, Email: email})
		return err
	})
	return created
}

func testCustomerRoundTrip(t *testing.T, store domain.PersistentStore) {
	created := seedCustomer(t, store, "Alice", "alice@example.com")
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("expected creation timestamp")
	}
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		got, err := v.GetCustomer(created.ID)
		if err != nil {
			return err
		}
		if got.Email != "alice@example.com" || got.Name != "Alice" {
			t.Fatalf("unexpected customer %+v", got)
		}
		exists, err := v.CustomerEmailExists("alice@example.com")
		if err != nil {
			return err
		}
		if !exists {
			t.Fatalf("expected email to exist")
		}
		if _, err := v.GetCustomer("missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		all, err := v.ListCustomers()
		if err != nil {
			return err
		}
		if len(all) != 1 {
			t.Fatalf("expected one customer, got %d", len(all))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testDuplicateEmail(t *testing.T, store domain.PersistentStore) {
	seedCustomer(t, store, "Alice", "dup@example.com")
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateCustomer(domain.Customer{Name: "Other", Email: "dup@example.com"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func testProductChecks(t *testing.T, store domain.PersistentStore) {
	cases := []domain.Product{
		{Name: "Free", Price: decimal.Zero, Stock: 1},
		{Name: "Negative", Price: decimal.RequireFromString("-1"), Stock: 1},
		{Name: "Oversold", Price: decimal.RequireFromString("1"), Stock: -1},
	}
	for _, p := range cases {
		err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.CreateProduct(p)
			return err
		})
		if !errors.Is(err, domain.ErrConstraint) {
			t.Fatalf("%s: expected ErrConstraint, got %v", p.Name, err)
		}
	}
}

func testOrderWithProducts(t *testing.T, store domain.PersistentStore) {
	customer := seedCustomer(t, store, "Bob", "bob@example.com")
	laptop := seedProduct(t, store, "Laptop", "999.99", 10)
	mouse := seedProduct(t, store, "Mouse", "25.00", 50)
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var created domain.Order
	mustTx(t, store, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateOrder(domain.Order{
			CustomerID:  customer.ID,
			ProductIDs:  []string{laptop.ID, mouse.ID},
			TotalAmount: decimal.RequireFromString("1024.99"),
			OrderDate:   when,
		})
		return err
	})
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		got, err := v.GetOrder(created.ID)
		if err != nil {
			return err
		}
		if got.CustomerID != customer.ID {
			t.Fatalf("unexpected customer %s", got.CustomerID)
		}
		if len(got.ProductIDs) != 2 {
			t.Fatalf("expected 2 products, got %v", got.ProductIDs)
		}
		if !got.TotalAmount.Equal(decimal.RequireFromString("1024.99")) {
			t.Fatalf("unexpected total %s", got.TotalAmount)
		}
		if !got.OrderDate.Equal(when) {
			t.Fatalf("unexpected order date %s", got.OrderDate)
		}
		orders, err := v.ListOrders()
		if err != nil {
			return err
		}
		if len(orders) != 1 || len(orders[0].ProductIDs) != 2 {
			t.Fatalf("unexpected order listing %+v", orders)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testOrderRepeatedProduct(t *testing.T, store domain.PersistentStore) {
	customer := seedCustomer(t, store, "Carol", "carol@example.com")
	laptop := seedProduct(t, store, "Laptop", "999.99", 10)
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateOrder(domain.Order{
			CustomerID:  customer.ID,
			ProductIDs:  []string{laptop.ID, laptop.ID},
			TotalAmount: decimal.RequireFromString("1999.98"),
		})
		return err
	})
	if err == nil {
		t.Fatalf("expected repeated product to be rejected")
	}
	assertOrderCount(t, store, 0)
}

func testRollback(t *testing.T, store domain.PersistentStore) {
	boom := errors.New("boom")
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateCustomer(domain.Customer{Name: "Temp", Email: "temp@example.com"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	assertCustomerCount(t, store, 0)
}

func testSavepoints(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	mustTx(t, store, func(tx domain.Transaction) error {
		kept, err := tx.BeginNested(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.CreateCustomer(domain.Customer{Name: "Kept", Email: "kept@example.com"}); err != nil {
			return err
		}
		if err := kept.Commit(); err != nil {
			return err
		}

		dropped, err := tx.BeginNested(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.CreateCustomer(domain.Customer{Name: "Dropped", Email: "dropped@example.com"}); err != nil {
			return err
		}
		inner, err := tx.BeginNested(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.CreateCustomer(domain.Customer{Name: "Inner", Email: "inner@example.com"}); err != nil {
			return err
		}
		if err := inner.Commit(); err != nil {
			return err
		}
		if err := dropped.Rollback(); err != nil {
			return err
		}
		if err := dropped.Rollback(); !errors.Is(err, domain.ErrSavepointOrder) {
			t.Fatalf("expected second rollback to fail, got %v", err)
		}
		exists, err := tx.CustomerEmailExists("inner@example.com")
		if err != nil {
			return err
		}
		if exists {
			t.Fatalf("inner customer should be rolled back with its parent scope")
		}
		return nil
	})
	err := store.View(ctx, func(v domain.TransactionView) error {
		all, err := v.ListCustomers()
		if err != nil {
			return err
		}
		if len(all) != 1 || all[0].Email != "kept@example.com" {
			t.Fatalf("unexpected customers %+v", all)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testSavepointAfterFailure(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	seedCustomer(t, store, "Existing", "existing@example.com")
	mustTx(t, store, func(tx domain.Transaction) error {
		err := domain.RunNested(ctx, tx, func(tx domain.Transaction) error {
			_, err := tx.CreateCustomer(domain.Customer{Name: "Clash", Email: "existing@example.com"})
			return err
		})
		if !errors.Is(err, domain.ErrDuplicateEmail) {
			t.Fatalf("expected duplicate email inside savepoint, got %v", err)
		}
		return domain.RunNested(ctx, tx, func(tx domain.Transaction) error {
			_, err := tx.CreateCustomer(domain.Customer{Name: "After", Email: "after@example.com"})
			return err
		})
	})
	assertCustomerCount(t, store, 2)
}

func testLowStock(t *testing.T, store domain.PersistentStore) {
	low := seedProduct(t, store, "Cable", "5.50", 3)
	seedProduct(t, store, "Monitor", "199.00", 25)
	mustTx(t, store, func(tx domain.Transaction) error {
		products, err := tx.ListProductsBelowStock(10)
		if err != nil {
			return err
		}
		if len(products) != 1 || products[0].ID != low.ID {
			t.Fatalf("unexpected low-stock products %+v", products)
		}
		updated, err := tx.UpdateProduct(low.ID, func(p *domain.Product) error {
			p.Stock += 10
			return nil
		})
		if err != nil {
			return err
		}
		if updated.Stock != 13 {
			t.Fatalf("expected stock 13, got %d", updated.Stock)
		}
		if _, err := tx.UpdateProduct("missing", func(*domain.Product) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		return nil
	})
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		p, err := v.GetProduct(low.ID)
		if err != nil {
			return err
		}
		if p.Stock != 13 {
			t.Fatalf("expected persisted stock 13, got %d", p.Stock)
		}
		found, err := v.FindProducts([]string{low.ID, "missing", low.ID})
		if err != nil {
			return err
		}
		if len(found) != 1 {
			t.Fatalf("expected one match, got %d", len(found))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testPriceExact(t *testing.T, store domain.PersistentStore) {
	p := seedProduct(t, store, "Precise", "0.10", 1)
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		got, err := v.GetProduct(p.ID)
		if err != nil {
			return err
		}
		if !got.Price.Equal(decimal.RequireFromString("0.10")) {
			t.Fatalf("unexpected price %s", got.Price)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func assertCustomerCount(t *testing.T, store domain.PersistentStore, want int) {
	t.Helper()
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		all, err := v.ListCustomers()
		if err != nil {
			return err
		}
		if len(all) != want {
			t.Fatalf("expected %d customers, got %d", want, len(all))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func assertOrderCount(t *testing.T, store domain.PersistentStore, want int) {
	t.Helper()
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		all, err := v.ListOrders()
		if err != nil {
			return err
		}
		if len(all) != want {
			t.Fatalf("expected %d orders, got %d", want, len(all))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
