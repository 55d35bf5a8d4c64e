// Package core hosts the mutation engine: single-entity creates, the
// restock mutation and the savepoint-per-record bulk customer import.
package core

import (
	"context"
	"errors"
	"time"

	"crmcore/internal/infra/persistence/memory"
	"crmcore/internal/validation"
	"crmcore/pkg/domain"
)

type (
	Customer        = domain.Customer
	Product         = domain.Product
	Order           = domain.Order
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// Service exposes transactional mutations and reads over a PersistentStore.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Service{
		store:   store,
		clock:   o.clock,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  o.tracer,
		audit:   o.audit,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ListCustomers returns all customers in creation order.
func (s *Service) ListCustomers(ctx context.Context) ([]Customer, error) {
	var out []Customer
	err := s.store.View(ctx, func(v TransactionView) error {
		var err error
		out, err = v.ListCustomers()
		return err
	})
	return out, err
}

// ListProducts returns all products ordered by name.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	err := s.store.View(ctx, func(v TransactionView) error {
		var err error
		out, err = v.ListProducts()
		return err
	})
	return out, err
}

// ListOrders returns all orders by order date.
func (s *Service) ListOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	err := s.store.View(ctx, func(v TransactionView) error {
		var err error
		out, err = v.ListOrders()
		return err
	})
	return out, err
}

// GetOrder loads a single order.
func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	var out Order
	err := s.store.View(ctx, func(v TransactionView) error {
		var err error
		out, err = v.GetOrder(id)
		return err
	})
	return out, err
}

// run wraps a mutation with tracing, metrics, audit and logging. fn returns
// the id of the affected record, if any.
func (s *Service) run(ctx context.Context, op string, entity domain.EntityType, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	id, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation: op,
		Entity:    entity,
		EntityID:  id,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)

	switch {
	case err == nil:
		s.logger.Info("mutation completed", "operation", op, "entity", string(entity), "id", id, "duration", duration)
	case isUserError(err):
		s.logger.Warn("mutation rejected", "operation", op, "entity", string(entity), "error", err.Error())
	default:
		s.logger.Error("mutation failed", "operation", op, "entity", string(entity), "error", err.Error())
	}
	return err
}

func isUserError(err error) bool {
	_, ok := validation.KindOf(err)
	return ok || errors.Is(err, context.Canceled)
}
