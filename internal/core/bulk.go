package core

import (
	"context"
	"errors"
	"fmt"

	"crmcore/internal/validation"
	"crmcore/pkg/domain"
)

// BulkCreateCustomersResult lists the customers created by a bulk import and
// one "Record {i}: {reason}" entry per rejected input, both in input order.
type BulkCreateCustomersResult struct {
	Customers []Customer `json:"customers"`
	Errors    []string   `json:"errors"`
}

// BulkCreateCustomers imports customers inside one outer transaction, giving
// each record its own savepoint. A record that fails validation or storage is
// rolled back alone and reported; the rest of the batch continues. Records
// see the customers created earlier in the same batch, so a repeated email is
// rejected as a duplicate.
//
// The batch aborts with an error only when the savepoint machinery or the
// outer transaction fails.
func (s *Service) BulkCreateCustomers(ctx context.Context, inputs []CustomerInput) (BulkCreateCustomersResult, error) {
	var result BulkCreateCustomersResult
	err := s.run(ctx, "bulk_create_customers", domain.EntityCustomer, func(ctx context.Context) (string, error) {
		if len(inputs) == 0 {
			return "", validation.Invalid("customers", validation.MsgNoCustomers)
		}
		err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			result = BulkCreateCustomersResult{
				Customers: make([]Customer, 0, len(inputs)),
				Errors:    []string{},
			}
			for i, in := range inputs {
				if err := ctx.Err(); err != nil {
					return err
				}
				var created Customer
				err := domain.RunNested(ctx, tx, func(tx Transaction) error {
					if err := validateCustomer(tx, in, true); err != nil {
						return err
					}
					var err error
					created, err = insertCustomer(tx, in)
					return err
				})
				var scopeErr *domain.NestedScopeError
				if errors.As(err, &scopeErr) {
					return fmt.Errorf("record %d: %w", i, err)
				}
				if err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("Record %d: %s", i, err.Error()))
					s.logger.Debug("bulk record rejected", "index", i, "error", err.Error())
					continue
				}
				result.Customers = append(result.Customers, created)
			}
			return nil
		})
		return "", err
	})
	if err != nil {
		return BulkCreateCustomersResult{}, err
	}
	if batch, ok := s.metrics.(BatchMetricsRecorder); ok {
		batch.ObserveBatch(ctx, "bulk_create_customers", len(result.Customers), len(result.Errors))
	}
	return result, nil
}
