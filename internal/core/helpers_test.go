package core_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"crmcore/internal/core"
	"crmcore/internal/infra/persistence/memory"
	"crmcore/internal/infra/persistence/sqlite"
	"crmcore/internal/validation"
	"crmcore/pkg/domain"
)

type backend struct {
	name string
	open func(t *testing.T) domain.PersistentStore
}

var backends = []backend{
	{name: "memory", open: func(*testing.T) domain.PersistentStore { return memory.NewStore() }},
	{name: "sqlite", open: func(t *testing.T) domain.PersistentStore {
		store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "crm.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	}},
}

// forEachBackend runs fn against a fresh service per storage backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, svc *core.Service), opts ...core.ServiceOption) {
	t.Helper()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, core.NewService(b.open(t), opts...))
		})
	}
}

func intPtr(v int) *int { return &v }

func mustProduct(t *testing.T, svc *core.Service, name, price string, stock int) core.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), core.ProductInput{Name: name, Price: price, Stock: intPtr(stock)})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return p
}

func mustCustomer(t *testing.T, svc *core.Service, name, email string) core.Customer {
	t.Helper()
	res, err := svc.CreateCustomer(context.Background(), core.CustomerInput{Name: name, Email: email})
	if err != nil {
		t.Fatalf("create customer %s: %v", email, err)
	}
	return res.Customer
}

func expectUserError(t *testing.T, err error, kind validation.Kind, msg string) {
	t.Helper()
	var verr *validation.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error %q, got %v", msg, err)
	}
	if verr.Kind != kind || verr.Message != msg {
		t.Fatalf("expected %s %q, got %s %q", kind, msg, verr.Kind, verr.Message)
	}
}

func customerEmails(t *testing.T, svc *core.Service) map[string]bool {
	t.Helper()
	customers, err := svc.ListCustomers(context.Background())
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	out := make(map[string]bool, len(customers))
	for _, c := range customers {
		out[c.Email] = true
	}
	return out
}
