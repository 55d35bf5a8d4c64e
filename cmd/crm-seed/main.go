// Command crm-seed loads a small demo data set into the configured store.
// Running it again leaves existing customers and products untouched.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"crmcore/internal/config"
	"crmcore/internal/core"
)

var (
	seedCustomers = []core.CustomerInput{
		{Name: "Alice", Email: "alice@example.com", Phone: "+1234567890"},
		{Name: "Bob", Email: "bob@example.com", Phone: "123-456-7890"},
	}
	seedProducts = []struct {
		name  string
		price string
		stock int
	}{
		{"Laptop", "999.99", 10},
		{"Mouse", "25.00", 50},
	}
)

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	driver := fs.String("storage", "", "storage driver: memory|sqlite|postgres (overrides CRM_STORAGE_DRIVER)")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if *driver != "" {
		cfg.Storage.Driver = core.StorageDriver(*driver)
	}
	store, err := core.OpenPersistentStore(cfg.Storage)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	if err := seed(ctx, core.NewService(store), stdout); err != nil {
		_, _ = fmt.Fprintf(stderr, "seed: %v\n", err)
		return 1
	}
	return 0
}

func seed(ctx context.Context, svc *core.Service, out io.Writer) error {
	customers, err := svc.ListCustomers(ctx)
	if err != nil {
		return err
	}
	byEmail := make(map[string]core.Customer, len(customers))
	for _, c := range customers {
		byEmail[c.Email] = c
	}
	for _, in := range seedCustomers {
		if _, ok := byEmail[in.Email]; ok {
			continue
		}
		res, err := svc.CreateCustomer(ctx, in)
		if err != nil {
			return fmt.Errorf("customer %s: %w", in.Email, err)
		}
		byEmail[in.Email] = res.Customer
		_, _ = fmt.Fprintf(out, "created customer %s\n", in.Email)
	}

	products, err := svc.ListProducts(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]core.Product, len(products))
	for _, p := range products {
		byName[p.Name] = p
	}
	for _, sp := range seedProducts {
		if _, ok := byName[sp.name]; ok {
			continue
		}
		stock := sp.stock
		p, err := svc.CreateProduct(ctx, core.ProductInput{Name: sp.name, Price: sp.price, Stock: &stock})
		if err != nil {
			return fmt.Errorf("product %s: %w", sp.name, err)
		}
		byName[sp.name] = p
		_, _ = fmt.Fprintf(out, "created product %s\n", sp.name)
	}

	orders, err := svc.ListOrders(ctx)
	if err != nil {
		return err
	}
	alice := byEmail[seedCustomers[0].Email]
	for _, o := range orders {
		if o.CustomerID == alice.ID {
			return nil
		}
	}
	order, err := svc.CreateOrder(ctx, core.OrderInput{
		CustomerID: alice.ID,
		ProductIDs: []string{byName["Laptop"].ID, byName["Mouse"].ID},
	})
	if err != nil {
		return fmt.Errorf("order: %w", err)
	}
	_, _ = fmt.Fprintf(out, "created order %s total %s\n", order.ID, order.TotalAmount.StringFixed(2))
	return nil
}
