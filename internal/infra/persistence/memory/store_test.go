package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crmcore/internal/infra/persistence/storetest"
	"crmcore/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.PersistentStore { return NewStore() })
}

func TestStoreExportImport(t *testing.T) {
	store := NewStore()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		c, err := tx.CreateCustomer(domain.Customer{Name: "Alice", Email: "alice@example.com"})
		if err != nil {
			return err
		}
		if !c.CreatedAt.Equal(fixed) {
			t.Fatalf("expected fixed clock, got %s", c.CreatedAt)
		}
		_, err = tx.CreateProduct(domain.Product{Name: "Mouse", Price: decimal.RequireFromString("25.00"), Stock: 1})
		return err
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ExportState().Customers) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	restored := store.ExportState()
	if len(restored.Customers) != 1 || len(restored.Products) != 1 {
		t.Fatalf("expected restored state, got %+v", restored)
	}
	// email index is rebuilt on import
	err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateCustomer(domain.Customer{Name: "Again", Email: "alice@example.com"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email after import, got %v", err)
	}
}

func TestStoreRejectsOpenSavepointAtCommit(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.BeginNested(context.Background())
		return err
	})
	if !errors.Is(err, domain.ErrSavepointOrder) {
		t.Fatalf("expected savepoint order error, got %v", err)
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := store.RunInTransaction(ctx, func(domain.Transaction) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before fn, got %v (called=%v)", err, called)
	}
}
