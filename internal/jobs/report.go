package jobs

import (
	"context"
	"fmt"
	"strings"

	"crmcore/internal/blob"
	"crmcore/internal/money"
)

// Report summarises customers, orders and revenue. The line is appended to
// the report log and, when Archive is set, stored as a blob under reports/.
type Report struct {
	Reader  Reader
	Log     *LogFile
	Archive blob.Store
	Clock   Clock
}

func (r *Report) Name() string { return "crm_report" }

// Run appends "YYYY-MM-DD HH:MM:SS - Report: N customers, M orders, R revenue".
func (r *Report) Run(ctx context.Context) error {
	customers, err := r.Reader.ListCustomers(ctx)
	if err != nil {
		return fmt.Errorf("report customers: %w", err)
	}
	orders, err := r.Reader.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("report orders: %w", err)
	}
	totals := make([]money.Amount, len(orders))
	for i, o := range orders {
		totals[i] = o.TotalAmount
	}
	now := r.Clock.now()
	line := fmt.Sprintf("%s - Report: %d customers, %d orders, %s revenue",
		now.Format(logLayout), len(customers), len(orders), money.Format(money.Sum(totals...)))
	if err := r.Log.Append(line); err != nil {
		return err
	}
	if r.Archive == nil {
		return nil
	}
	key := "reports/crm-report-" + now.UTC().Format("20060102T150405Z") + ".txt"
	_, err = r.Archive.Put(ctx, key, strings.NewReader(line+"\n"), blob.PutOptions{
		ContentType: "text/plain; charset=utf-8",
		Metadata:    map[string]string{"job": r.Name()},
	})
	if err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	return nil
}
