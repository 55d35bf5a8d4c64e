// Package sqlstore implements the crmcore persistence contract on top of
// database/sql. Backend packages (sqlite, postgres) supply a Dialect with the
// schema, placeholder style and constraint-error classification.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"crmcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Dialect captures the differences between SQL backends.
type Dialect struct {
	Name   string
	Schema []string
	// Rebind converts a query written with '?' placeholders to the backend's style.
	Rebind func(query string) string
	// IsUniqueViolation reports unique/primary key violations.
	IsUniqueViolation func(err error) bool
	// IsCheckViolation reports CHECK constraint violations.
	IsCheckViolation func(err error) bool
}

// Store persists records in relational tables and maps nested scopes to SQL
// savepoints.
type Store struct {
	db      *sql.DB
	dialect Dialect
	nowFn   func() time.Time
}

// New wraps db. Call Migrate before first use.
func New(db *sql.DB, dialect Dialect) *Store {
	if dialect.Rebind == nil {
		dialect.Rebind = func(q string) string { return q }
	}
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(error) bool { return false }
	}
	if dialect.IsCheckViolation == nil {
		dialect.IsCheckViolation = func(error) bool { return false }
	}
	return &Store{db: db, dialect: dialect, nowFn: func() time.Time { return time.Now().UTC() }}
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

// Migrate applies the dialect schema. Statements must be idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: apply schema: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// RunInTransaction runs fn in a database transaction that is committed only
// when fn succeeds and every savepoint it opened has been closed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()
	tx := &transaction{ctx: ctx, tx: sqlTx, d: s.dialect, now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.open) != 0 {
		return fmt.Errorf("commit with %d open savepoint(s): %w", len(tx.open), domain.ErrSavepointOrder)
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// View runs fn inside a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(&transaction{ctx: ctx, tx: sqlTx, d: s.dialect, now: s.nowFn()})
}

type transaction struct {
	ctx  context.Context
	tx   *sql.Tx
	d    Dialect
	now  time.Time
	seq  int
	open []string
}

func (t *transaction) exec(query string, args ...any) error {
	_, err := t.tx.ExecContext(t.ctx, t.d.Rebind(query), args...)
	return err
}

func (t *transaction) query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(t.ctx, t.d.Rebind(query), args...)
}

func (t *transaction) queryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, t.d.Rebind(query), args...)
}

type savepoint struct {
	t    *transaction
	name string
	done bool
}

// BeginNested issues SAVEPOINT with a per-transaction unique name.
func (t *transaction) BeginNested(ctx context.Context) (domain.Savepoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.seq++
	name := fmt.Sprintf("sp_%d", t.seq)
	if err := t.exec("SAVEPOINT " + name); err != nil {
		return nil, fmt.Errorf("savepoint %s: %w", name, err)
	}
	t.open = append(t.open, name)
	return &savepoint{t: t, name: name}, nil
}

func (sp *savepoint) pop() error {
	open := sp.t.open
	if sp.done || len(open) == 0 || open[len(open)-1] != sp.name {
		return domain.ErrSavepointOrder
	}
	sp.t.open = open[:len(open)-1]
	sp.done = true
	return nil
}

func (sp *savepoint) Commit() error {
	if err := sp.pop(); err != nil {
		return err
	}
	if err := sp.t.exec("RELEASE SAVEPOINT " + sp.name); err != nil {
		return fmt.Errorf("release %s: %w", sp.name, err)
	}
	return nil
}

func (sp *savepoint) Rollback() error {
	if err := sp.pop(); err != nil {
		return err
	}
	if err := sp.t.exec("ROLLBACK TO SAVEPOINT " + sp.name); err != nil {
		return fmt.Errorf("rollback to %s: %w", sp.name, err)
	}
	if err := sp.t.exec("RELEASE SAVEPOINT " + sp.name); err != nil {
		return fmt.Errorf("release %s: %w", sp.name, err)
	}
	return nil
}

func (t *transaction) CreateCustomer(c domain.Customer) (domain.Customer, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = t.now
	err := t.exec(`INSERT INTO customers (id, name, email, phone, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.CreatedAt)
	if err != nil {
		if t.d.IsUniqueViolation(err) {
			return domain.Customer{}, fmt.Errorf("customer email %q: %w", c.Email, errors.Join(domain.ErrDuplicateEmail, err))
		}
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	return c, nil
}

func (t *transaction) GetCustomer(id string) (domain.Customer, error) {
	var c domain.Customer
	var created timeValue
	err := t.queryRow(`SELECT id, name, email, phone, created_at FROM customers WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, fmt.Errorf("customer %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	c.CreatedAt = created.Time
	return c, nil
}

func (t *transaction) CustomerEmailExists(email string) (bool, error) {
	var n int
	if err := t.queryRow(`SELECT COUNT(*) FROM customers WHERE email = ?`, email).Scan(&n); err != nil {
		return false, fmt.Errorf("count customer email: %w", err)
	}
	return n > 0, nil
}

func (t *transaction) ListCustomers() ([]domain.Customer, error) {
	rows, err := t.query(`SELECT id, name, email, phone, created_at FROM customers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Customer
	for rows.Next() {
		var c domain.Customer
		var created timeValue
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &created); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		c.CreatedAt = created.Time
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return out, nil
}

func checkProduct(p domain.Product) error {
	if !p.Price.IsPositive() {
		return fmt.Errorf("product price %s: %w", p.Price, domain.ErrConstraint)
	}
	if p.Stock < 0 {
		return fmt.Errorf("product stock %d: %w", p.Stock, domain.ErrConstraint)
	}
	return nil
}

func (t *transaction) productError(op string, err error) error {
	if t.d.IsCheckViolation(err) {
		return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrConstraint, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (t *transaction) CreateProduct(p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := checkProduct(p); err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = t.now
	p.UpdatedAt = t.now
	err := t.exec(`INSERT INTO products (id, name, price, stock, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Price.String(), p.Stock, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return domain.Product{}, t.productError("insert product", err)
	}
	return p, nil
}

const productColumns = `id, name, price, stock, created_at, updated_at`

func scanProduct(scan func(dest ...any) error) (domain.Product, error) {
	var p domain.Product
	var created, updated timeValue
	if err := scan(&p.ID, &p.Name, &p.Price, &p.Stock, &created, &updated); err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = created.Time
	p.UpdatedAt = updated.Time
	return p, nil
}

func (t *transaction) GetProduct(id string) (domain.Product, error) {
	p, err := scanProduct(t.queryRow(`SELECT `+productColumns+` FROM products WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (t *transaction) listProducts(query string, args ...any) ([]domain.Product, error) {
	rows, err := t.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

// FindProducts returns the distinct products matching ids; missing ids are skipped.
func (t *transaction) FindProducts(ids []string) ([]domain.Product, error) {
	distinct := dedupe(ids)
	if len(distinct) == 0 {
		return nil, nil
	}
	args := make([]any, len(distinct))
	for i, id := range distinct {
		args[i] = id
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (` + placeholders(len(distinct)) + `) ORDER BY name, id`
	return t.listProducts(query, args...)
}

func (t *transaction) ListProductsBelowStock(threshold int) ([]domain.Product, error) {
	return t.listProducts(`SELECT `+productColumns+` FROM products WHERE stock < ? ORDER BY name, id`, threshold)
}

func (t *transaction) ListProducts() ([]domain.Product, error) {
	return t.listProducts(`SELECT ` + productColumns + ` FROM products ORDER BY name, id`)
}

func (t *transaction) UpdateProduct(id string, mutator func(*domain.Product) error) (domain.Product, error) {
	current, err := t.GetProduct(id)
	if err != nil {
		return domain.Product{}, err
	}
	if err := mutator(&current); err != nil {
		return domain.Product{}, err
	}
	current.ID = id
	if err := checkProduct(current); err != nil {
		return domain.Product{}, err
	}
	current.UpdatedAt = t.now
	err = t.exec(`UPDATE products SET name = ?, price = ?, stock = ?, updated_at = ? WHERE id = ?`,
		current.Name, current.Price.String(), current.Stock, current.UpdatedAt, id)
	if err != nil {
		return domain.Product{}, t.productError("update product", err)
	}
	return current, nil
}

// CreateOrder writes the order header and its product links. Both land in the
// caller's transaction, so neither is visible without the other.
func (t *transaction) CreateOrder(o domain.Order) (domain.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if len(o.ProductIDs) == 0 {
		return domain.Order{}, fmt.Errorf("order without products: %w", domain.ErrConstraint)
	}
	if len(dedupe(o.ProductIDs)) != len(o.ProductIDs) {
		return domain.Order{}, fmt.Errorf("order repeats a product: %w", domain.ErrConstraint)
	}
	if _, err := t.GetCustomer(o.CustomerID); err != nil {
		return domain.Order{}, err
	}
	found, err := t.FindProducts(o.ProductIDs)
	if err != nil {
		return domain.Order{}, err
	}
	if len(found) != len(o.ProductIDs) {
		return domain.Order{}, fmt.Errorf("order products: %w", domain.ErrNotFound)
	}
	o.CreatedAt = t.now
	if o.OrderDate.IsZero() {
		o.OrderDate = t.now
	}
	o.OrderDate = o.OrderDate.UTC()
	if err := t.exec(`INSERT INTO orders (id, customer_id, total_amount, order_date, created_at) VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.CustomerID, o.TotalAmount.String(), o.OrderDate, o.CreatedAt); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	for i, pid := range o.ProductIDs {
		if err := t.exec(`INSERT INTO order_products (order_id, product_id, position) VALUES (?, ?, ?)`, o.ID, pid, i); err != nil {
			if t.d.IsUniqueViolation(err) {
				return domain.Order{}, fmt.Errorf("order product %q: %w", pid, errors.Join(domain.ErrConstraint, err))
			}
			return domain.Order{}, fmt.Errorf("link order product: %w", err)
		}
	}
	return o.Clone(), nil
}

const orderColumns = `id, customer_id, total_amount, order_date, created_at`

func scanOrder(scan func(dest ...any) error) (domain.Order, error) {
	var o domain.Order
	var orderDate, created timeValue
	if err := scan(&o.ID, &o.CustomerID, &o.TotalAmount, &orderDate, &created); err != nil {
		return domain.Order{}, err
	}
	o.OrderDate = orderDate.Time
	o.CreatedAt = created.Time
	return o, nil
}

func (t *transaction) orderProductIDs(orderID string) ([]string, error) {
	rows, err := t.query(`SELECT product_id FROM order_products WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order products: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order product: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *transaction) GetOrder(id string) (domain.Order, error) {
	o, err := scanOrder(t.queryRow(`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	if o.ProductIDs, err = t.orderProductIDs(id); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (t *transaction) ListOrders() ([]domain.Order, error) {
	rows, err := t.query(`SELECT ` + orderColumns + ` FROM orders ORDER BY order_date, id`)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	// Close before issuing the per-order queries; sqlite runs on a single connection.
	_ = rows.Close()
	for i := range out {
		if out[i].ProductIDs, err = t.orderProductIDs(out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
