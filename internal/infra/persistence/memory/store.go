// Package memory provides an in-memory implementation of the crmcore
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crmcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Customer aliases domain.Customer.
	Customer = domain.Customer
	// Product aliases domain.Product.
	Product = domain.Product
	// Order aliases domain.Order.
	Order = domain.Order
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	customers map[string]Customer
	products  map[string]Product
	orders    map[string]Order
	emails    map[string]string // email -> customer id
}

func newMemoryState() memoryState {
	return memoryState{
		customers: make(map[string]Customer),
		products:  make(map[string]Product),
		orders:    make(map[string]Order),
		emails:    make(map[string]string),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.customers {
		cloned.customers[k] = v
	}
	for k, v := range s.products {
		cloned.products[k] = v
	}
	for k, v := range s.orders {
		cloned.orders[k] = v.Clone()
	}
	for k, v := range s.emails {
		cloned.emails[k] = v
	}
	return cloned
}

// Snapshot captures a point-in-time copy of the store state.
type Snapshot struct {
	Customers map[string]Customer `json:"customers"`
	Products  map[string]Product  `json:"products"`
	Orders    map[string]Order    `json:"orders"`
}

// Store provides an in-memory transactional store. Transactions are
// serialised; each one works on a clone of the committed state.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// ExportState clones the current store state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Customers: make(map[string]Customer, len(s.state.customers)),
		Products:  make(map[string]Product, len(s.state.products)),
		Orders:    make(map[string]Order, len(s.state.orders)),
	}
	for k, v := range s.state.customers {
		snap.Customers[k] = v
	}
	for k, v := range s.state.products {
		snap.Products[k] = v
	}
	for k, v := range s.state.orders {
		snap.Orders[k] = v.Clone()
	}
	return snap
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	state := newMemoryState()
	for k, v := range snapshot.Customers {
		state.customers[k] = v
		state.emails[v.Email] = k
	}
	for k, v := range snapshot.Products {
		state.products[k] = v
	}
	for k, v := range snapshot.Orders {
		state.orders[k] = v.Clone()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// RunInTransaction executes fn within a transactional copy of the store state
// and publishes the copy only when fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.savepoints) != 0 {
		return fmt.Errorf("commit with %d open savepoint(s): %w", len(tx.savepoints), domain.ErrSavepointOrder)
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(stateView{state: &snapshot})
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *Store) Close() error { return nil }

type transaction struct {
	state      memoryState
	savepoints []memoryState
	now        time.Time
}

type savepoint struct {
	tx    *transaction
	depth int
	done  bool
}

// BeginNested pushes a copy of the current state that Rollback restores.
func (tx *transaction) BeginNested(ctx context.Context) (domain.Savepoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx.savepoints = append(tx.savepoints, tx.state.clone())
	return &savepoint{tx: tx, depth: len(tx.savepoints) - 1}, nil
}

func (sp *savepoint) check() error {
	if sp.done || len(sp.tx.savepoints) != sp.depth+1 {
		return domain.ErrSavepointOrder
	}
	return nil
}

func (sp *savepoint) Commit() error {
	if err := sp.check(); err != nil {
		return err
	}
	sp.tx.savepoints = sp.tx.savepoints[:sp.depth]
	sp.done = true
	return nil
}

func (sp *savepoint) Rollback() error {
	if err := sp.check(); err != nil {
		return err
	}
	sp.tx.state = sp.tx.savepoints[sp.depth]
	sp.tx.savepoints = sp.tx.savepoints[:sp.depth]
	sp.done = true
	return nil
}

func (tx *transaction) view() stateView { return stateView{state: &tx.state} }

func (tx *transaction) GetCustomer(id string) (Customer, error) { return tx.view().GetCustomer(id) }
func (tx *transaction) CustomerEmailExists(email string) (bool, error) {
	return tx.view().CustomerEmailExists(email)
}
func (tx *transaction) GetProduct(id string) (Product, error) { return tx.view().GetProduct(id) }
func (tx *transaction) FindProducts(ids []string) ([]Product, error) {
	return tx.view().FindProducts(ids)
}
func (tx *transaction) ListProductsBelowStock(threshold int) ([]Product, error) {
	return tx.view().ListProductsBelowStock(threshold)
}
func (tx *transaction) GetOrder(id string) (Order, error)  { return tx.view().GetOrder(id) }
func (tx *transaction) ListCustomers() ([]Customer, error) { return tx.view().ListCustomers() }
func (tx *transaction) ListProducts() ([]Product, error)   { return tx.view().ListProducts() }
func (tx *transaction) ListOrders() ([]Order, error)       { return tx.view().ListOrders() }

// CreateCustomer stores a customer, enforcing email uniqueness.
func (tx *transaction) CreateCustomer(c Customer) (Customer, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := tx.state.customers[c.ID]; exists {
		return Customer{}, fmt.Errorf("customer %q already exists", c.ID)
	}
	if _, taken := tx.state.emails[c.Email]; taken {
		return Customer{}, fmt.Errorf("customer email %q: %w", c.Email, domain.ErrDuplicateEmail)
	}
	c.CreatedAt = tx.now
	tx.state.customers[c.ID] = c
	tx.state.emails[c.Email] = c.ID
	return c, nil
}

// CreateProduct stores a product after checking price and stock ranges.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := tx.state.products[p.ID]; exists {
		return Product{}, fmt.Errorf("product %q already exists", p.ID)
	}
	if err := checkProduct(p); err != nil {
		return Product{}, err
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.products[p.ID] = p
	return p, nil
}

// UpdateProduct mutates a product using the provided mutator function.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %q: %w", id, domain.ErrNotFound)
	}
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.ID = id
	if err := checkProduct(current); err != nil {
		return Product{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.products[id] = current
	return current, nil
}

// CreateOrder stores the order header together with its product links.
func (tx *transaction) CreateOrder(o Order) (Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if _, exists := tx.state.orders[o.ID]; exists {
		return Order{}, fmt.Errorf("order %q already exists", o.ID)
	}
	if _, ok := tx.state.customers[o.CustomerID]; !ok {
		return Order{}, fmt.Errorf("order customer %q: %w", o.CustomerID, domain.ErrNotFound)
	}
	if len(o.ProductIDs) == 0 {
		return Order{}, fmt.Errorf("order without products: %w", domain.ErrConstraint)
	}
	seen := make(map[string]struct{}, len(o.ProductIDs))
	for _, id := range o.ProductIDs {
		if _, dup := seen[id]; dup {
			return Order{}, fmt.Errorf("order product %q repeated: %w", id, domain.ErrConstraint)
		}
		seen[id] = struct{}{}
		if _, ok := tx.state.products[id]; !ok {
			return Order{}, fmt.Errorf("order product %q: %w", id, domain.ErrNotFound)
		}
	}
	o.CreatedAt = tx.now
	if o.OrderDate.IsZero() {
		o.OrderDate = tx.now
	}
	tx.state.orders[o.ID] = o.Clone()
	return o.Clone(), nil
}

func checkProduct(p Product) error {
	if !p.Price.IsPositive() {
		return fmt.Errorf("product price %s: %w", p.Price, domain.ErrConstraint)
	}
	if p.Stock < 0 {
		return fmt.Errorf("product stock %d: %w", p.Stock, domain.ErrConstraint)
	}
	return nil
}

type stateView struct {
	state *memoryState
}

func (v stateView) GetCustomer(id string) (Customer, error) {
	c, ok := v.state.customers[id]
	if !ok {
		return Customer{}, fmt.Errorf("customer %q: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (v stateView) CustomerEmailExists(email string) (bool, error) {
	_, ok := v.state.emails[email]
	return ok, nil
}

func (v stateView) GetProduct(id string) (Product, error) {
	p, ok := v.state.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %q: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// FindProducts returns the distinct products matching ids; missing ids are skipped.
func (v stateView) FindProducts(ids []string) ([]Product, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := v.state.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v stateView) ListProductsBelowStock(threshold int) ([]Product, error) {
	var out []Product
	for _, p := range v.state.products {
		if p.Stock < threshold {
			out = append(out, p)
		}
	}
	sortProducts(out)
	return out, nil
}

func (v stateView) GetOrder(id string) (Order, error) {
	o, ok := v.state.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %q: %w", id, domain.ErrNotFound)
	}
	return o.Clone(), nil
}

func (v stateView) ListCustomers() ([]Customer, error) {
	out := make([]Customer, 0, len(v.state.customers))
	for _, c := range v.state.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v stateView) ListProducts() ([]Product, error) {
	out := make([]Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, p)
	}
	sortProducts(out)
	return out, nil
}

func (v stateView) ListOrders() ([]Order, error) {
	out := make([]Order, 0, len(v.state.orders))
	for _, o := range v.state.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OrderDate.Equal(out[j].OrderDate) {
			return out[i].OrderDate.Before(out[j].OrderDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func sortProducts(ps []Product) {
	sort.Slice(ps, func(i, j int) bool {
		if c := strings.Compare(ps[i].Name, ps[j].Name); c != 0 {
			return c < 0
		}
		return ps[i].ID < ps[j].ID
	})
}
