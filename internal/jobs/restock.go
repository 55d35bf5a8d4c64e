package jobs

import (
	"context"
	"fmt"
)

// Restock runs the low-stock restock mutation and logs each product's new
// stock level.
type Restock struct {
	Service Restocker
	Log     *LogFile
	Clock   Clock
}

func (r *Restock) Name() string { return "restock" }

func (r *Restock) Run(ctx context.Context) error {
	res, err := r.Service.UpdateLowStockProducts(ctx)
	if err != nil {
		return fmt.Errorf("restock: %w", err)
	}
	ts := r.Clock.now().Format(logLayout)
	lines := make([]string, 0, len(res.Products)+1)
	for _, p := range res.Products {
		lines = append(lines, fmt.Sprintf("%s - %s restocked to %d", ts, p.Name, p.Stock))
	}
	lines = append(lines, fmt.Sprintf("%s - %s", ts, res.Message))
	return r.Log.Append(lines...)
}
